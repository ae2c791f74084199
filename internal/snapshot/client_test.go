package snapshot_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omochice/roomlink/internal/snapshot"
)

func TestClient_Fetch(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"roomName": "General",
			"participants": [{"username": "alice", "connected": true}],
			"history": [{"username": "alice", "body": "hi", "createdAt": "2026-08-30T10:00:00Z"}]
		}`))
	}))
	defer server.Close()

	client := snapshot.NewClient(server.URL, nil)
	snap, err := client.Fetch(context.Background(), "42")
	require.NoError(t, err)

	require.Equal(t, "/api/rooms/42/snapshot", gotPath)
	require.Equal(t, "General", snap.RoomName)
	require.Len(t, snap.Participants, 1)
	require.Len(t, snap.History, 1)
}

func TestClient_FetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such room", http.StatusNotFound)
	}))
	defer server.Close()

	client := snapshot.NewClient(server.URL, nil)
	_, err := client.Fetch(context.Background(), "42")
	require.ErrorContains(t, err, "404")
}

func TestClient_FetchServerDown(t *testing.T) {
	client := snapshot.NewClient("http://127.0.0.1:1", nil)
	_, err := client.Fetch(context.Background(), "42")
	require.Error(t, err)
}

func TestClient_FetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := snapshot.NewClient(server.URL, nil)
	_, err := client.Fetch(ctx, "42")
	require.Error(t, err)
}
