package domain

import (
	"encoding/json"
	"time"
)

type EventType string

// Client -> server.
const (
	EventJoinRoom           EventType = "join-room"
	EventLeaveRoom          EventType = "leave-room"
	EventRelayOffer         EventType = "relay-offer"
	EventRelayAnswer        EventType = "relay-answer"
	EventRelayICECandidate  EventType = "relay-ice-candidate"
	EventSubscribeUpdates   EventType = "subscribe-updates"
	EventUnsubscribeUpdates EventType = "unsubscribe-updates"
	EventPing               EventType = "ping"

	// EventDisconnect is raised by the transport, never accepted from a client.
	EventDisconnect EventType = "disconnect"
)

// Server -> client.
const (
	EventWelcome          EventType = "welcome"
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventWebRTCOffer      EventType = "webrtc-offer"
	EventWebRTCAnswer     EventType = "webrtc-answer"
	EventICECandidate     EventType = "ice-candidate"
	EventProctoringUpdate EventType = "proctoring-update"
	EventPong             EventType = "pong"
	EventError            EventType = "error"
)

// Error codes carried by EventError.
const (
	ErrCodeBadPayload     = "bad_payload"
	ErrCodeUnknownEvent   = "unknown_event"
	ErrCodeMissingSession = "missing_session"
	ErrCodeMissingPayload = "missing_payload"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternal       = "internal_error"
)

// Inbound is one decoded client event. From is bound by the transport and
// never read from the wire.
type Inbound struct {
	Type      EventType       `json:"type"`
	SessionID SessionID       `json:"sessionId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`

	From ConnectionID `json:"-"`
}

type Welcome struct {
	Type         EventType    `json:"type"`
	ConnectionID ConnectionID `json:"connectionId"`
}

type UserJoined struct {
	Type         EventType    `json:"type"`
	SessionID    SessionID    `json:"sessionId"`
	ConnectionID ConnectionID `json:"connectionId"`
	Role         Role         `json:"role"`
	Timestamp    time.Time    `json:"timestamp"`
}

type UserLeft struct {
	Type         EventType    `json:"type"`
	SessionID    SessionID    `json:"sessionId"`
	ConnectionID ConnectionID `json:"connectionId"`
}

type OfferRelay struct {
	Type      EventType       `json:"type"`
	SessionID SessionID       `json:"sessionId"`
	Offer     json.RawMessage `json:"offer"`
	From      ConnectionID    `json:"from"`
}

type AnswerRelay struct {
	Type      EventType       `json:"type"`
	SessionID SessionID       `json:"sessionId"`
	Answer    json.RawMessage `json:"answer"`
	From      ConnectionID    `json:"from"`
}

type CandidateRelay struct {
	Type      EventType       `json:"type"`
	SessionID SessionID       `json:"sessionId"`
	Candidate json.RawMessage `json:"candidate"`
	From      ConnectionID    `json:"from"`
}

type ProctoringUpdate struct {
	Type      EventType       `json:"type"`
	SessionID SessionID       `json:"sessionId"`
	Analysis  json.RawMessage `json:"analysis"`
}

type Pong struct {
	Type EventType `json:"type"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// NewErrorEvent keeps the type tag out of call sites.
func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: code, Message: message}
}
