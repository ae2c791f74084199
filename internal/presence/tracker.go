// Package presence tracks the roster of room participants.
//
// The roster is cumulative for the lifetime of a session: a participant who
// disconnects stays listed as disconnected rather than being removed, which
// matches how the room UI shows every participant with an ON/OFF indicator.
package presence

import (
	"errors"
	"fmt"
	"log/slog"
)

// Participant is one roster entry.
type Participant struct {
	Username  string
	Connected bool
}

// ErrAlreadySeeded is returned when Seed is called a second time.
var ErrAlreadySeeded = errors.New("roster already seeded")

// Tracker is the single source of truth for who is in the room. It is not
// safe for concurrent use; the owning session serializes access.
type Tracker struct {
	participants []Participant
	byName       map[string]int
	seeded       bool
	log          *slog.Logger
}

// NewTracker creates an empty Tracker. logger may be nil.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		byName: make(map[string]int),
		log:    logger,
	}
}

// Seed replaces the roster with the snapshot roster. It runs exactly once,
// right after the snapshot fetch completes; a second call is a programming
// error and is reported, not ignored.
func (t *Tracker) Seed(participants []Participant) error {
	if t.seeded {
		return fmt.Errorf("cannot seed roster: %w", ErrAlreadySeeded)
	}
	t.seeded = true
	for _, p := range participants {
		if p.Username == "" {
			t.log.Warn("dropping roster entry with empty username")
			continue
		}
		t.apply(p.Username, p.Connected)
	}
	return nil
}

// Apply upserts one live presence observation. Unknown usernames are inserted
// (a participant can join after the snapshot was taken); re-applying the same
// status is a no-op. Malformed events are dropped with a diagnostic.
func (t *Tracker) Apply(username string, connected bool) {
	if username == "" {
		t.log.Warn("dropping presence event with empty username")
		return
	}
	t.apply(username, connected)
}

func (t *Tracker) apply(username string, connected bool) {
	if i, ok := t.byName[username]; ok {
		t.participants[i].Connected = connected
		return
	}
	t.byName[username] = len(t.participants)
	t.participants = append(t.participants, Participant{
		Username:  username,
		Connected: connected,
	})
}

// List returns the roster in insertion order.
func (t *Tracker) List() []Participant {
	out := make([]Participant, len(t.participants))
	copy(out, t.participants)
	return out
}

// Len returns the number of roster entries.
func (t *Tracker) Len() int {
	return len(t.participants)
}
