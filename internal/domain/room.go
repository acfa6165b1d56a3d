package domain

type (
	// SessionID names one interview session. It is chosen by the calling
	// application and doubles as the room key.
	SessionID string
	// ConnectionID names one live client link for its whole lifetime.
	ConnectionID string
)

// Role is how a connection takes part in a room.
type Role string

const (
	// RoleParticipant negotiates peer connections (join-room).
	RoleParticipant Role = "participant"
	// RoleObserver only listens for membership and proctoring broadcasts (subscribe-updates).
	RoleObserver Role = "observer"
)

// Member is one entry of a room's membership set.
type Member struct {
	ID   ConnectionID `json:"connectionId"`
	Role Role         `json:"role"`
}

// Room is a point-in-time view of a session's membership.
type Room struct {
	SessionID SessionID `json:"sessionId"`
	Members   []Member  `json:"members"`
}
