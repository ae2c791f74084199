// Package snapshot fetches the point-in-time roster and history for a room.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/omochice/roomlink/pkg/protocol"
)

// Client calls the snapshot API. The API is consumed exactly once per join,
// at the moment the live connection reports ready.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
}

// Fetch returns the snapshot for roomID.
func (c *Client) Fetch(ctx context.Context, roomID string) (protocol.Snapshot, error) {
	url := fmt.Sprintf("%s/api/rooms/%s/snapshot", c.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("snapshot fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.Snapshot{}, fmt.Errorf("snapshot fetch failed: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to read snapshot response: %w", err)
	}
	return protocol.DecodeSnapshot(body)
}
