package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/omochice/roomlink/internal/conn"
)

// ErrRejoinBudgetExhausted is returned by Run when the backoff policy gives
// up before a join succeeds.
var ErrRejoinBudgetExhausted = errors.New("rejoin budget exhausted")

// RejoinConfig configures a Rejoiner. NewSession, RoomID, and Username are
// required.
type RejoinConfig struct {
	// NewSession builds a fresh Session for each attempt.
	NewSession func() *Session
	RoomID     string
	Username   string

	// OnSession runs before each join attempt so the caller can register
	// its message and presence subscriptions on the new session. The
	// connection-state subscription is owned by the Rejoiner.
	OnSession func(*Session)

	// Backoff tuning; zero values keep the library defaults, except
	// MaxElapsed where zero means no overall limit.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration

	Logger *slog.Logger
}

// Rejoiner keeps a room view alive across transient network failures by
// re-running Join with exponential backoff whenever the connection fails.
//
// The snapshot API offers no cursor-based history fetch, so every attempt is
// a fresh join with a full snapshot rather than a resume from the last known
// message position; messages delivered while disconnected appear only if the
// server holds them in history.
type Rejoiner struct {
	cfg RejoinConfig
	log *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}

	mu      sync.Mutex
	current *Session
}

// NewRejoiner creates a Rejoiner. Call Run to start it.
func NewRejoiner(cfg RejoinConfig) *Rejoiner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Rejoiner{
		cfg:  cfg,
		log:  logger,
		stop: make(chan struct{}),
	}
}

// Current returns the most recently joined session, or nil before the first
// successful join.
func (r *Rejoiner) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run joins and keeps rejoining until ctx is cancelled, Stop is called, or
// the backoff budget runs out. It blocks the caller.
func (r *Rejoiner) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		policy.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		policy.MaxInterval = r.cfg.MaxInterval
	}
	policy.MaxElapsedTime = r.cfg.MaxElapsed
	policy.Reset()

	for {
		s := r.cfg.NewSession()
		if r.cfg.OnSession != nil {
			r.cfg.OnSession(s)
		}

		failed := make(chan string, 1)
		s.OnConnectionState(func(st conn.State, reason string) {
			if st == conn.StateFailed {
				select {
				case failed <- reason:
				default:
				}
			}
		})

		err := s.Join(ctx, r.cfg.RoomID, r.cfg.Username)
		if err == nil {
			policy.Reset()
			r.mu.Lock()
			r.current = s
			r.mu.Unlock()

			select {
			case reason := <-failed:
				r.log.Warn("connection lost, rejoining", "reason", reason)
			case <-r.stop:
				s.Leave()
				return nil
			case <-ctx.Done():
				s.Leave()
				return ctx.Err()
			}
		} else {
			r.log.Warn("join attempt failed", "error", err)
		}
		s.Leave()

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up after %s: %w", r.cfg.MaxElapsed, ErrRejoinBudgetExhausted)
		}
		select {
		case <-time.After(wait):
		case <-r.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop ends the run loop and leaves the current session. Idempotent.
func (r *Rejoiner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}
