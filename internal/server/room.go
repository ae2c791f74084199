package server

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/omochice/roomlink/pkg/protocol"
)

// Room is one chat room: its invited members, the cumulative
// connected/disconnected roster, and the in-memory message history.
type Room struct {
	ID   string
	Name string

	mu        sync.Mutex
	invited   map[string]struct{}
	order     []string
	connected map[string]bool
	history   []protocol.HistoryEntry
}

// NewRoom creates a room that only the invited usernames may join.
func NewRoom(id, name string, invited []string) *Room {
	r := &Room{
		ID:        id,
		Name:      name,
		invited:   make(map[string]struct{}, len(invited)),
		connected: make(map[string]bool),
	}
	for _, username := range invited {
		r.invited[username] = struct{}{}
	}
	return r
}

// IsInvited reports whether username may join the room.
func (r *Room) IsInvited(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.invited[username]
	return ok
}

// Connect marks username connected, recording first-seen order.
func (r *Room) Connect(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.connected[username]; !seen {
		r.order = append(r.order, username)
	}
	r.connected[username] = true
}

// Disconnect marks username disconnected. The roster is cumulative: the
// entry stays so late joiners still see who has been in the room.
func (r *Room) Disconnect(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.connected[username]; seen {
		r.connected[username] = false
	}
}

// AppendHistory records one delivered message.
func (r *Room) AppendHistory(username, body string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, protocol.HistoryEntry{
		Username:  username,
		Body:      body,
		CreatedAt: at,
	})
}

// Snapshot returns the roster and history in wire shape.
func (r *Room) Snapshot() protocol.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := lo.Map(r.order, func(username string, _ int) protocol.RosterEntry {
		return protocol.RosterEntry{
			Username:  username,
			Connected: r.connected[username],
		}
	})
	history := make([]protocol.HistoryEntry, len(r.history))
	copy(history, r.history)

	return protocol.Snapshot{
		RoomName:     r.Name,
		Participants: participants,
		History:      history,
	}
}

// Registry holds the rooms the server knows about.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// CreateRoom registers a room with its invited members and returns it.
func (g *Registry) CreateRoom(id, name string, invited []string) *Room {
	room := NewRoom(id, name, invited)
	g.mu.Lock()
	g.rooms[id] = room
	g.mu.Unlock()
	return room
}

// Room returns the room with the given id.
func (g *Registry) Room(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	return room, ok
}
