// Package server implements a development room server that speaks the same
// protocol as the production backend: a websocket live channel at /community
// carrying colon-delimited text lines, and a REST snapshot endpoint. It keeps
// everything in memory and is meant for local development and integration
// tests.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/roomlink/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // development server; any origin may connect
	},
}

// member is one connected websocket member of a room.
type member struct {
	conn     *websocket.Conn
	username string
	room     *Room
	outgoing chan string
}

// Server serves the live channel and the snapshot API.
type Server struct {
	address  string
	registry *Registry
	log      *slog.Logger

	listener net.Listener
	server   *http.Server
	serveErr chan error

	mu      sync.Mutex
	members map[*member]bool
	wg      sync.WaitGroup
}

// New creates a Server for the rooms in registry. logger may be nil.
func New(address string, registry *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		registry: registry,
		log:      logger,
		serveErr: make(chan error, 1),
		members:  make(map[*member]bool),
	}
}

// Start binds the listener and begins serving in the background. It returns
// once the server is accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/community", s.handleCommunity)
	mux.HandleFunc("GET /api/rooms/{id}/snapshot", s.handleSnapshot)

	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	s.log.Info("room server started", "addr", listener.Addr().String())
	return nil
}

// Wait blocks until the server stops, returning the serve error if it died
// unexpectedly.
func (s *Server) Wait() error {
	if err := <-s.serveErr; err != nil {
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	}
	return nil
}

// Stop shuts the server down and disconnects every member.
func (s *Server) Stop() {
	if s.server != nil {
		_ = s.server.Shutdown(context.Background())
	}

	s.mu.Lock()
	for m := range s.members {
		_ = m.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// MemberCount returns the number of connected members across all rooms.
func (s *Server) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *Server) handleCommunity(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	username := r.URL.Query().Get("username")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", "error", err)
		return
	}

	if roomID == "" || username == "" {
		s.reject(conn, "roomId and username are required")
		return
	}
	if strings.ContainsRune(username, ':') || strings.HasPrefix(username, "*") {
		// Colons would break line framing and a leading star could
		// collide with the reserved presence sender.
		s.reject(conn, "invalid username")
		return
	}

	room, ok := s.registry.Room(roomID)
	if !ok || !room.IsInvited(username) {
		s.reject(conn, "only invited users may connect")
		return
	}

	m := &member{
		conn:     conn,
		username: username,
		room:     room,
		outgoing: make(chan string, 16),
	}

	s.mu.Lock()
	s.members[m] = true
	s.mu.Unlock()

	room.Connect(username)
	s.broadcast(room, protocol.EncodePresenceLine(username, true))
	s.log.Info("member connected", "room", room.ID, "username", username)

	s.wg.Add(2)
	go s.writeLoop(m)
	go s.readLoop(m)
}

// reject closes a just-upgraded connection the way the production backend
// does: a NOT_ACCEPTABLE close frame with a reason.
func (s *Server) reject(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseUnsupportedData, reason), deadline)
	_ = conn.Close()
}

func (s *Server) readLoop(m *member) {
	defer s.wg.Done()
	defer s.drop(m)

	for {
		msgType, data, err := m.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		body := string(data)
		m.room.AppendHistory(m.username, body, time.Now())
		s.broadcast(m.room, protocol.EncodeMessageLine(m.username, body))
	}
}

func (s *Server) writeLoop(m *member) {
	defer s.wg.Done()
	for line := range m.outgoing {
		if err := m.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

// drop unregisters a member and announces the disconnect. The roster entry
// stays; only its connected flag flips.
func (s *Server) drop(m *member) {
	s.mu.Lock()
	if !s.members[m] {
		s.mu.Unlock()
		return
	}
	delete(s.members, m)
	s.mu.Unlock()

	close(m.outgoing)
	_ = m.conn.Close()

	m.room.Disconnect(m.username)
	s.broadcast(m.room, protocol.EncodePresenceLine(m.username, false))
	s.log.Info("member disconnected", "room", m.room.ID, "username", m.username)
}

func (s *Server) broadcast(room *Room, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.members {
		if m.room != room {
			continue
		}
		select {
		case m.outgoing <- line:
		default:
			s.log.Warn("dropping line for slow member", "room", room.ID, "username", m.username)
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	room, ok := s.registry.Room(r.PathValue("id"))
	if !ok {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(room.Snapshot()); err != nil {
		s.log.Warn("failed to encode snapshot", "room", room.ID, "error", err)
	}
}
