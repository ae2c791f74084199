// Package ws provides the default websocket transport for the live channel,
// built on nhooyr.io/websocket.
package ws

import (
	"context"
	"fmt"
	"net/url"

	"nhooyr.io/websocket"

	"github.com/omochice/roomlink/internal/transport"
)

// CommunityPath is the server's live channel endpoint.
const CommunityPath = "/community"

// Dialer dials the room endpoint of a chat server.
type Dialer struct {
	// BaseURL is the server root, e.g. "ws://localhost:8080".
	BaseURL string
}

// Dial implements transport.Dialer. The target URL carries the room and the
// caller identity as query parameters; identity is an explicit argument, not
// ambient state.
func (d Dialer) Dial(ctx context.Context, roomID, username string) (transport.Conn, error) {
	target, err := RoomURL(d.BaseURL, roomID, username)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, target), nil
}

// RoomURL builds the live channel URL for a room and identity.
func RoomURL(base, roomID, username string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	u.Path = CommunityPath
	q := u.Query()
	q.Set("roomId", roomID)
	q.Set("username", username)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps an established websocket connection.
func NewConn(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// ReadText implements transport.Conn.
func (c *Conn) ReadText(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText implements transport.Conn.
func (c *Conn) WriteText(ctx context.Context, text string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(text))
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
