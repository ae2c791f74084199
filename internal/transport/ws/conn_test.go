package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/omochice/roomlink/internal/transport/ws"
)

func TestRoomURL(t *testing.T) {
	got, err := ws.RoomURL("ws://localhost:8080", "42", "alice")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/community?roomId=42&username=alice", got)
}

func TestRoomURL_EscapesParams(t *testing.T) {
	got, err := ws.RoomURL("ws://localhost:8080", "42", "a b")
	require.NoError(t, err)
	require.Contains(t, got, "username=a+b")
}

func TestDialer_DialAndEcho(t *testing.T) {
	var gotQuery struct {
		roomID   string
		username string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.roomID = r.URL.Query().Get("roomId")
		gotQuery.username = r.URL.Query().Get("username")

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("failed to accept: %v", err)
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")

		// Echo a single frame back.
		_, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), websocket.MessageText, data)

		// Wait for the client to close.
		c.Read(context.Background())
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialer := ws.Dialer{BaseURL: "ws" + strings.TrimPrefix(server.URL, "http")}
	conn, err := dialer.Dial(ctx, "7", "alice")
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, "7", gotQuery.roomID)
	require.Equal(t, "alice", gotQuery.username)

	require.NoError(t, conn.WriteText(ctx, "alice:hello"))
	line, err := conn.ReadText(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice:hello", line)
}

func TestDialer_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dialer := ws.Dialer{BaseURL: "ws://127.0.0.1:1"}
	_, err := dialer.Dial(ctx, "7", "alice")
	require.Error(t, err)
}

func TestConn_ReadAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Read(context.Background())
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	ctx := context.Background()
	dialer := ws.Dialer{BaseURL: "ws" + strings.TrimPrefix(server.URL, "http")}
	conn, err := dialer.Dial(ctx, "7", "alice")
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	_, err = conn.ReadText(ctx)
	require.Error(t, err)
}
