package protocol

import "time"

// Event is a decoded inbound wire event. Exactly one concrete type exists per
// event kind, so components behind the codec never handle raw wire text.
type Event interface {
	isEvent()
}

// MessageEvent is a chat line sent by a room participant.
type MessageEvent struct {
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// PresenceEvent reports a participant connecting to or disconnecting from
// the room.
type PresenceEvent struct {
	Username  string
	Connected bool
}

func (MessageEvent) isEvent()  {}
func (PresenceEvent) isEvent() {}
