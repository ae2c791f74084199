// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/omochice/roomlink/internal/transport"
)

// ErrClosed is returned by reads and writes on a closed fake connection.
var ErrClosed = errors.New("transporttest: connection closed")

// Conn is an in-memory transport.Conn driven by the test.
type Conn struct {
	incoming  chan string
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent []string
}

// NewConn creates an open fake connection.
func NewConn() *Conn {
	return &Conn{
		incoming: make(chan string, 16),
		closed:   make(chan struct{}),
	}
}

// Deliver queues one inbound line as if the server had sent it.
func (c *Conn) Deliver(line string) {
	c.incoming <- line
}

// ReadText implements transport.Conn.
func (c *Conn) ReadText(ctx context.Context) (string, error) {
	select {
	case line := <-c.incoming:
		return line, nil
	case <-c.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// WriteText implements transport.Conn.
func (c *Conn) WriteText(_ context.Context, text string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()
	return nil
}

// Sent returns every line written by the client so far.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// Close implements transport.Conn. Calling it from a test simulates the
// transport dropping; the client's blocked read fails.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return "transporttest"
}

// Dialer adapts a function to transport.Dialer.
type Dialer struct {
	DialFunc func(ctx context.Context, roomID, username string) (transport.Conn, error)
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, roomID, username string) (transport.Conn, error) {
	return d.DialFunc(ctx, roomID, username)
}

// Static returns a Dialer that always hands out conn.
func Static(conn *Conn) Dialer {
	return Dialer{
		DialFunc: func(context.Context, string, string) (transport.Conn, error) {
			return conn, nil
		},
	}
}

// Failing returns a Dialer whose dials always fail with err.
func Failing(err error) Dialer {
	return Dialer{
		DialFunc: func(context.Context, string, string) (transport.Conn, error) {
			return nil, err
		},
	}
}
