// Package msglog maintains the ordered message log for one room session.
package msglog

import (
	"errors"
	"fmt"
	"time"
)

// Origin records how a message entered the log.
type Origin int

const (
	// OriginHistory marks a message ingested from the snapshot backfill.
	OriginHistory Origin = iota
	// OriginLive marks a message received over the live channel.
	OriginLive
)

// String returns the string representation of Origin.
func (o Origin) String() string {
	switch o {
	case OriginHistory:
		return "history"
	case OriginLive:
		return "live"
	default:
		return "unknown"
	}
}

// Message is one immutable entry in the log. Seq is assigned at insertion
// time and is strictly increasing within a session; the wire format carries
// no sequence numbers of its own.
type Message struct {
	Seq    int
	Sender string
	Body   string
	SentAt time.Time
	Origin Origin
}

var (
	// ErrHistorySeeded is returned when SeedHistory is called a second time.
	ErrHistorySeeded = errors.New("history already seeded")
	// ErrLiveAccepted is returned when SeedHistory is called after a live
	// message has been accepted.
	ErrLiveAccepted = errors.New("live messages already accepted")
)

// Log is the append-only, position-ordered message log. It is not safe for
// concurrent use; the owning session serializes access.
type Log struct {
	messages []Message
	seeded   bool
	live     bool
}

// New creates an empty Log.
func New() *Log {
	return &Log{}
}

// SeedHistory appends the snapshot backfill in the order provided (assumed
// chronological ascending). It must run before any live message is accepted:
// once AppendLive has run, the backfill window is over and seeding is refused
// so that history can never land behind live messages. Seeding twice is
// likewise refused.
func (l *Log) SeedHistory(entries []Message) error {
	if l.live {
		return fmt.Errorf("cannot seed history: %w", ErrLiveAccepted)
	}
	if l.seeded {
		return fmt.Errorf("cannot seed history: %w", ErrHistorySeeded)
	}
	l.seeded = true
	for _, e := range entries {
		e.Seq = len(l.messages)
		e.Origin = OriginHistory
		l.messages = append(l.messages, e)
	}
	return nil
}

// AppendLive appends one live message at the next sequence position. The wire
// protocol carries no message IDs, so no duplicate suppression is attempted.
func (l *Log) AppendLive(sender, body string, at time.Time) Message {
	l.live = true
	msg := Message{
		Seq:    len(l.messages),
		Sender: sender,
		Body:   body,
		SentAt: at,
		Origin: OriginLive,
	}
	l.messages = append(l.messages, msg)
	return msg
}

// All returns the full position-ordered log.
func (l *Log) All() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	return len(l.messages)
}
