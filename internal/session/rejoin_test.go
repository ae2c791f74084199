package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/roomlink/internal/conn"
	"github.com/omochice/roomlink/internal/session"
	"github.com/omochice/roomlink/internal/transport"
	"github.com/omochice/roomlink/internal/transport/transporttest"
)

// flakyDialer fails the first failures dials, then hands out fresh fake
// connections.
type flakyDialer struct {
	mu       sync.Mutex
	failures int
	attempts int
	conns    []*transporttest.Conn
}

func (d *flakyDialer) Dial(_ context.Context, _, _ string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("connection refused")
	}
	c := transporttest.NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *flakyDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *flakyDialer) lastConn() *transporttest.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func TestRejoiner_RetriesUntilJoined(t *testing.T) {
	dialer := &flakyDialer{failures: 2}
	rej := session.NewRejoiner(session.RejoinConfig{
		NewSession: func() *session.Session {
			return session.New(session.Config{
				Dialer:    dialer,
				Snapshots: &fakeFetcher{snap: threeMessageSnapshot()},
			})
		},
		RoomID:          "1",
		Username:        "me",
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- rej.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return dialer.attemptCount() >= 3
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		s := rej.Current()
		return s != nil && s.ConnectionState() == conn.StateOpen
	}, 5*time.Second, 10*time.Millisecond)

	// The transport drops; the rejoiner must dial again with a fresh join.
	dialer.lastConn().Close()
	require.Eventually(t, func() bool {
		return dialer.attemptCount() >= 4
	}, 5*time.Second, 10*time.Millisecond)

	rej.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRejoiner_GivesUpAfterBudget(t *testing.T) {
	dialer := &flakyDialer{failures: 1 << 30}
	rej := session.NewRejoiner(session.RejoinConfig{
		NewSession: func() *session.Session {
			return session.New(session.Config{
				Dialer:    dialer,
				Snapshots: &fakeFetcher{},
			})
		},
		RoomID:          "1",
		Username:        "me",
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxElapsed:      50 * time.Millisecond,
	})

	err := rej.Run(context.Background())
	require.ErrorIs(t, err, session.ErrRejoinBudgetExhausted)
	require.GreaterOrEqual(t, dialer.attemptCount(), 2)
}

func TestRejoiner_HonorsContextCancel(t *testing.T) {
	dialer := &flakyDialer{failures: 1 << 30}
	rej := session.NewRejoiner(session.RejoinConfig{
		NewSession: func() *session.Session {
			return session.New(session.Config{
				Dialer:    dialer,
				Snapshots: &fakeFetcher{},
			})
		},
		RoomID:          "1",
		Username:        "me",
		InitialInterval: time.Hour, // cancellation must not wait out the backoff
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rej.Run(ctx) }()

	require.Eventually(t, func() bool {
		return dialer.attemptCount() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
