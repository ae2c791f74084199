// Package conn owns the live connection lifecycle for one room session.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/omochice/roomlink/internal/transport"
	"github.com/omochice/roomlink/pkg/protocol"
)

var (
	// ErrNotOpen is returned by Send when the connection is not open.
	ErrNotOpen = errors.New("connection not open")
	// ErrBlankMessage is returned by Send for empty or whitespace-only text.
	ErrBlankMessage = errors.New("blank message")
	// ErrAlreadyStarted is returned by Connect once the manager has left
	// StateIdle. One manager serves exactly one connection.
	ErrAlreadyStarted = errors.New("connection already started")
	// ErrClosedWhileConnecting is returned by Connect when Close raced the
	// dial and won.
	ErrClosedWhileConnecting = errors.New("closed while connecting")
)

// EventHandler receives every decoded inbound event while the connection is
// open.
type EventHandler func(protocol.Event)

// StateHandler observes every state transition. reason is non-empty only for
// StateFailed.
type StateHandler func(state State, reason string)

// Manager owns exactly one live connection. It dials through the configured
// transport, runs the read loop, and serializes all state transitions. It
// performs no automatic reconnect: a dropped transport ends the session and
// the caller decides whether to join again.
type Manager struct {
	dialer transport.Dialer
	log    *slog.Logger

	mu      sync.Mutex
	state   State
	conn    transport.Conn
	onEvent EventHandler
	onState StateHandler

	// notifyMu keeps the order of delivered state notifications equal to
	// the order the transitions were taken in.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// NewManager creates a Manager in StateIdle. logger may be nil.
func NewManager(dialer transport.Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dialer: dialer,
		log:    logger,
		state:  StateIdle,
	}
}

// OnEvent registers the inbound event handler. Register before Connect.
func (m *Manager) OnEvent(h EventHandler) {
	m.mu.Lock()
	m.onEvent = h
	m.mu.Unlock()
}

// OnStateChange registers the transition observer. Register before Connect.
func (m *Manager) OnStateChange(h StateHandler) {
	m.mu.Lock()
	m.onState = h
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the room endpoint on behalf of username and, on success,
// starts the read loop. The transition to StateOpen is the ready signal the
// session waits for before fetching the snapshot.
func (m *Manager) Connect(ctx context.Context, roomID, username string) error {
	if err := m.transition(StateConnecting, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyStarted, err)
	}

	conn, err := m.dialer.Dial(ctx, roomID, username)
	if err != nil {
		m.mu.Lock()
		connecting := m.state == StateConnecting
		m.mu.Unlock()
		if connecting {
			_ = m.transition(StateFailed, fmt.Sprintf("dial: %v", err))
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Close ran while the dial was in flight; the dialed connection
		// is discarded and the close finishes here.
		m.mu.Unlock()
		_ = conn.Close()
		_ = m.transition(StateClosed, "")
		return ErrClosedWhileConnecting
	}
	m.conn = conn
	m.mu.Unlock()

	if err := m.transition(StateOpen, ""); err != nil {
		_ = conn.Close()
		_ = m.transition(StateClosed, "")
		return ErrClosedWhileConnecting
	}

	m.log.Debug("connection open", "remote", conn.RemoteAddr())
	m.wg.Add(1)
	go m.readLoop(conn)
	return nil
}

// Send transmits one chat message body. The connection must be open and the
// body must be non-blank; both misuses are reported to the caller.
func (m *Manager) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankMessage
	}

	m.mu.Lock()
	state := m.state
	conn := m.conn
	m.mu.Unlock()

	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w (state %s)", ErrNotOpen, state)
	}
	if err := conn.WriteText(context.Background(), protocol.EncodeBody(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close shuts the connection down. It is idempotent and safe to call at any
// lifecycle stage, including while a dial is in flight.
func (m *Manager) Close() error {
	m.mu.Lock()
	state := m.state
	conn := m.conn
	m.mu.Unlock()

	switch state {
	case StateIdle, StateClosing, StateClosed, StateFailed:
		return nil
	}

	if err := m.transition(StateClosing, ""); err != nil {
		// Lost a race with a failure or another close; nothing to do.
		return nil
	}
	if conn != nil {
		// The read loop observes the closed transport and finishes the
		// transition to StateClosed.
		_ = conn.Close()
		return nil
	}
	// No transport yet (close during dial); Connect discards the dialed
	// connection when it returns, so the close can finish immediately.
	_ = m.transition(StateClosed, "")
	return nil
}

// Wait blocks until the read loop has exited. It returns immediately if the
// connection never opened.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) readLoop(conn transport.Conn) {
	defer m.wg.Done()

	for {
		line, err := conn.ReadText(context.Background())
		if err != nil {
			m.mu.Lock()
			closing := m.state == StateClosing
			m.mu.Unlock()
			if closing {
				_ = m.transition(StateClosed, "")
			} else {
				_ = m.transition(StateFailed, fmt.Sprintf("read: %v", err))
			}
			return
		}

		event := protocol.DecodeLine(line, time.Now())
		if event == nil {
			m.log.Warn("dropping malformed control line", "line", line)
			continue
		}

		m.mu.Lock()
		h := m.onEvent
		open := m.state == StateOpen
		m.mu.Unlock()
		if open && h != nil {
			h(event)
		}
	}
}

// transition moves to the next state if the edge is legal, then notifies the
// state observer. notifyMu is held across the state change and the callback so
// concurrent transitions cannot deliver their notifications out of edge order;
// the observer must not call back into the manager's transition paths.
func (m *Manager) transition(to State, reason string) error {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("illegal connection transition %s -> %s", from, to)
	}
	m.state = to
	h := m.onState
	m.mu.Unlock()

	m.log.Debug("connection state changed", "from", from.String(), "to", to.String(), "reason", reason)
	if h != nil {
		h(to, reason)
	}
	return nil
}
