// Package gobws provides an alternative live channel transport built on the
// low-level gobwas/ws frame reader and writer. It speaks the same URL
// contract as the default transport.
package gobws

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/roomlink/internal/transport"
	wstransport "github.com/omochice/roomlink/internal/transport/ws"
)

// Dialer dials the room endpoint using gobwas/ws.
type Dialer struct {
	// BaseURL is the server root, e.g. "ws://localhost:8080".
	BaseURL string
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, roomID, username string) (transport.Conn, error) {
	target, err := wstransport.RoomURL(d.BaseURL, roomID, username)
	if err != nil {
		return nil, err
	}
	conn, br, _, err := ws.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	rw := io.ReadWriter(conn)
	if br != nil {
		// The handshake reader may hold frames that arrived with the
		// upgrade response; drain it before reading from the socket.
		rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	return &Conn{conn: conn, rw: rw}, nil
}

// Conn adapts a raw gobwas client connection to transport.Conn.
type Conn struct {
	conn    net.Conn
	rw      io.ReadWriter
	readMu  sync.Mutex
	writeMu sync.Mutex
}

// ReadText implements transport.Conn. gobwas reads are not context-aware;
// cancellation is delivered by closing the connection, which fails the
// blocked read.
func (c *Conn) ReadText(_ context.Context) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText implements transport.Conn.
func (c *Conn) WriteText(_ context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientText(c.conn, []byte(text))
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, nil)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
