// Package session composes the connection manager, presence tracker, and
// message log into one per-room lifecycle with a single public surface.
//
// A Session binds exactly one Join to exactly one live connection. All store
// mutation happens on the session's event loop goroutine, so each store has a
// single writer and subscribers observe consistent snapshots. Subscriber
// callbacks run on that same goroutine and must not block.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/omochice/roomlink/internal/conn"
	"github.com/omochice/roomlink/internal/msglog"
	"github.com/omochice/roomlink/internal/presence"
	"github.com/omochice/roomlink/internal/transport"
	"github.com/omochice/roomlink/pkg/protocol"
)

var (
	// ErrAlreadyJoined is returned by Join after a prior Join. One session
	// serves one join/leave pair; start a new session to rejoin.
	ErrAlreadyJoined = errors.New("session already joined")
	// ErrSessionClosed is returned by Join after Leave has run.
	ErrSessionClosed = errors.New("session closed")
)

// Fetcher fetches the join-time snapshot. *snapshot.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, roomID string) (protocol.Snapshot, error)
}

// Config assembles a Session's collaborators. Dialer and Snapshots are
// required; Logger may be nil.
type Config struct {
	Dialer    transport.Dialer
	Snapshots Fetcher
	Logger    *slog.Logger
}

// Room describes the joined room. The name is filled in when the snapshot
// resolves and is immutable afterwards.
type Room struct {
	ID   string
	Name string
}

type stateChange struct {
	state  conn.State
	reason string
}

type snapshotResult struct {
	snap protocol.Snapshot
	err  error
}

// Session is the composition root for one room.
type Session struct {
	id      uuid.UUID
	mgr     *conn.Manager
	fetcher Fetcher
	log     *slog.Logger

	events chan protocol.Event
	states chan stateChange
	snaps  chan snapshotResult

	done      chan struct{}
	loopDone  chan struct{}
	leaveOnce sync.Once

	mu         sync.Mutex
	room       Room
	tracker    *presence.Tracker
	journal    *msglog.Log
	joined     bool
	left       bool
	onMessages func([]msglog.Message)
	onPresence func([]presence.Participant)
	onState    func(conn.State, string)
	onSnapErr  func(error)
}

// New creates a Session. It does nothing until Join is called.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("session", id.String())

	return &Session{
		id:       id,
		mgr:      conn.NewManager(cfg.Dialer, logger),
		fetcher:  cfg.Snapshots,
		log:      logger,
		tracker:  presence.NewTracker(logger),
		journal:  msglog.New(),
		events:   make(chan protocol.Event, 64),
		states:   make(chan stateChange, 8),
		snaps:    make(chan snapshotResult, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// OnMessages registers the subscriber notified with the full ordered log
// whenever it changes. Register before Join.
func (s *Session) OnMessages(h func([]msglog.Message)) {
	s.mu.Lock()
	s.onMessages = h
	s.mu.Unlock()
}

// OnPresence registers the subscriber notified with the full roster whenever
// it changes. Register before Join.
func (s *Session) OnPresence(h func([]presence.Participant)) {
	s.mu.Lock()
	s.onPresence = h
	s.mu.Unlock()
}

// OnConnectionState registers the subscriber notified of every connection
// state transition. Register before Join.
func (s *Session) OnConnectionState(h func(conn.State, string)) {
	s.mu.Lock()
	s.onState = h
	s.mu.Unlock()
}

// OnSnapshotError registers the subscriber notified when the snapshot fetch
// fails. The live channel stays open in that case; roster and history remain
// empty until the caller restarts the session.
func (s *Session) OnSnapshotError(h func(error)) {
	s.mu.Lock()
	s.onSnapErr = h
	s.mu.Unlock()
}

// Join connects to the room as username, fetches the snapshot once the
// connection is open, and starts delivering updates to subscribers. Live
// events that arrive while the snapshot fetch is in flight are buffered and
// applied after the backfill, in arrival order.
func (s *Session) Join(ctx context.Context, roomID, username string) error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.joined = true
	s.room = Room{ID: roomID}
	s.mu.Unlock()

	s.mgr.OnEvent(func(e protocol.Event) {
		select {
		case s.events <- e:
		case <-s.done:
		}
	})
	s.mgr.OnStateChange(func(st conn.State, reason string) {
		select {
		case s.states <- stateChange{st, reason}:
		case <-s.done:
		}
	})

	go s.run()

	if err := s.mgr.Connect(ctx, roomID, username); err != nil {
		// The session is unusable after a failed connect; stop the event
		// loop now rather than leaving it parked until the caller thinks
		// to call Leave.
		s.Leave()
		return err
	}

	// Connection open: fetch the snapshot without blocking the caller.
	go func() {
		snap, err := s.fetcher.Fetch(ctx, roomID)
		select {
		case s.snaps <- snapshotResult{snap, err}:
		case <-s.done:
			// Left while the fetch was in flight; the result is discarded.
		}
	}()
	return nil
}

// Send forwards one message to the room. Blank input is a deliberate no-op:
// pressing send on an empty box does nothing. Sending on a connection that is
// not open is a caller error and is reported.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.mgr.Send(text)
}

// Leave closes the connection and stops every internal listener. It is
// idempotent and safe at any lifecycle stage, including before Join or while
// the snapshot fetch is in flight. Once it returns, no handler mutates
// session state.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.mu.Lock()
		s.left = true
		started := s.joined
		s.mu.Unlock()

		close(s.done)
		_ = s.mgr.Close()
		s.mgr.Wait()
		if started {
			<-s.loopDone
		}

		// The loop is gone, so the final state cannot reach subscribers
		// through it; report it directly.
		s.mu.Lock()
		h := s.onState
		s.mu.Unlock()
		if h != nil {
			h(s.mgr.State(), "")
		}
		s.log.Debug("session left", "state", s.mgr.State().String())
	})
}

// Messages returns the current position-ordered log.
func (s *Session) Messages() []msglog.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.journal.All()
}

// Participants returns the current roster in insertion order.
func (s *Session) Participants() []presence.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.List()
}

// Room returns the joined room's identity.
func (s *Session) Room() Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// ConnectionState returns the live connection's current state.
func (s *Session) ConnectionState() conn.State {
	return s.mgr.State()
}

// run is the session event loop. It is the only goroutine that mutates the
// presence tracker and the message log.
func (s *Session) run() {
	defer close(s.loopDone)

	var (
		seeded  bool
		pending []protocol.Event
	)
	for {
		select {
		case <-s.done:
			return

		case res := <-s.snaps:
			if res.err != nil {
				s.log.Warn("snapshot unavailable", "error", res.err)
				s.mu.Lock()
				h := s.onSnapErr
				s.mu.Unlock()
				if h != nil {
					h(res.err)
				}
			} else {
				s.seed(res.snap)
			}
			// With or without a backfill, the buffering window is over:
			// replay the events that arrived meanwhile, in arrival order.
			seeded = true
			for _, e := range pending {
				s.applyEvent(e)
			}
			pending = nil
			s.notifyMessages()
			s.notifyPresence()

		case e := <-s.events:
			if !seeded {
				pending = append(pending, e)
				continue
			}
			s.applyEvent(e)
			switch e.(type) {
			case protocol.MessageEvent:
				s.notifyMessages()
			case protocol.PresenceEvent:
				s.notifyPresence()
			}

		case sc := <-s.states:
			s.mu.Lock()
			h := s.onState
			s.mu.Unlock()
			if h != nil {
				h(sc.state, sc.reason)
			}
			if sc.state == conn.StateFailed {
				s.log.Warn("connection failed", "reason", sc.reason)
			}
		}
	}
}

func (s *Session) seed(snap protocol.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		// Leave won the race with the snapshot fetch; the resolved data
		// is discarded, not applied.
		return
	}

	s.room.Name = snap.RoomName

	roster := lo.Map(snap.Participants, func(p protocol.RosterEntry, _ int) presence.Participant {
		return presence.Participant{Username: p.Username, Connected: p.Connected}
	})
	if err := s.tracker.Seed(roster); err != nil {
		s.log.Error("roster seed rejected", "error", err)
	}

	history := lo.Map(snap.History, func(h protocol.HistoryEntry, _ int) msglog.Message {
		return msglog.Message{Sender: h.Username, Body: h.Body, SentAt: h.CreatedAt}
	})
	if err := s.journal.SeedHistory(history); err != nil {
		s.log.Error("history seed rejected", "error", err)
	}
}

func (s *Session) applyEvent(e protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return
	}
	switch ev := e.(type) {
	case protocol.MessageEvent:
		s.journal.AppendLive(ev.Sender, ev.Body, ev.ReceivedAt)
	case protocol.PresenceEvent:
		s.tracker.Apply(ev.Username, ev.Connected)
	}
}

func (s *Session) notifyMessages() {
	s.mu.Lock()
	h := s.onMessages
	if s.left {
		h = nil
	}
	var msgs []msglog.Message
	if h != nil {
		msgs = s.journal.All()
	}
	s.mu.Unlock()
	if h != nil {
		h(msgs)
	}
}

func (s *Session) notifyPresence() {
	s.mu.Lock()
	h := s.onPresence
	if s.left {
		h = nil
	}
	var roster []presence.Participant
	if h != nil {
		roster = s.tracker.List()
	}
	s.mu.Unlock()
	if h != nil {
		h(roster)
	}
}
