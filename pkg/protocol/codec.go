// Package protocol translates between the room wire format and typed events.
//
// The live channel carries single-line UTF-8 text frames of the form
// "<sender>:<body>". The snapshot API returns a JSON document with the room
// name, the roster, and the message history. Both directions are decoded
// tolerantly: a chat line can never fail to decode.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PresenceSender is the reserved sender of presence control lines. The server
// rejects usernames that could collide with it at connect time.
const PresenceSender = "*presence"

const (
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
)

// DecodeLine decodes one inbound wire line.
//
// Ordinary lines split on the first colon only; the sender segment is trimmed
// and the body is kept verbatim, so colons inside the body survive. A line
// with no colon decodes as a message with an empty sender and the whole line
// as its body.
//
// Lines from the reserved sender "*presence" carry "<username>:<status>"
// bodies and decode to a PresenceEvent. A malformed presence body yields nil,
// which callers drop with a diagnostic.
func DecodeLine(raw string, now time.Time) Event {
	sender, body, found := strings.Cut(raw, ":")
	if !found {
		return MessageEvent{Body: raw, ReceivedAt: now}
	}
	sender = strings.TrimSpace(sender)
	if sender == PresenceSender {
		return decodePresence(body)
	}
	return MessageEvent{Sender: sender, Body: body, ReceivedAt: now}
}

func decodePresence(body string) Event {
	username, status, found := strings.Cut(body, ":")
	if !found || username == "" {
		return nil
	}
	switch status {
	case statusConnected:
		return PresenceEvent{Username: username, Connected: true}
	case statusDisconnected:
		return PresenceEvent{Username: username, Connected: false}
	default:
		return nil
	}
}

// EncodeBody frames an outbound message. The sender is implied by the
// authenticated connection identity, so the payload is the body as-is.
func EncodeBody(body string) string {
	return body
}

// EncodeMessageLine frames a chat line from sender for broadcast.
func EncodeMessageLine(sender, body string) string {
	return sender + ":" + body
}

// EncodePresenceLine frames a presence control line for username.
func EncodePresenceLine(username string, connected bool) string {
	status := statusDisconnected
	if connected {
		status = statusConnected
	}
	return PresenceSender + ":" + username + ":" + status
}

// Snapshot is the point-in-time roster and history returned by the snapshot
// API at join time.
type Snapshot struct {
	RoomName     string         `json:"roomName"`
	Participants []RosterEntry  `json:"participants"`
	History      []HistoryEntry `json:"history"`
}

// RosterEntry is one roster row of a snapshot.
type RosterEntry struct {
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

// HistoryEntry is one historical message of a snapshot, in chronological
// ascending order.
type HistoryEntry struct {
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecodeSnapshot decodes a snapshot API response body. Missing optional
// fields default to their zero values; only malformed JSON is an error.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
