// Package transport abstracts the live channel connection so the connection
// manager is independent of the websocket library in use.
package transport

import "context"

// Conn is one bidirectional text-frame connection to a room.
type Conn interface {
	// ReadText reads a single inbound text frame. It returns an error once
	// the connection is closed.
	ReadText(ctx context.Context) (string, error)

	// WriteText sends a single text frame.
	WriteText(ctx context.Context, text string) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens the live channel to a room on behalf of one identity.
type Dialer interface {
	Dial(ctx context.Context, roomID, username string) (Conn, error)
}
