//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source=signal_iface.go -destination=../mocks/mock_sender.go -package=mocks

package core

import (
	"errors"

	"github.com/dkeye/Proctor/internal/domain"
)

var (
	ErrConnClosed = errors.New("connection closed")
	// ErrBackpressure means a latency-sensitive event was refused because the
	// queue is full of other latency-sensitive events.
	ErrBackpressure = errors.New("backpressure")
	// ErrDropped means a lossy event was discarded on a full queue.
	ErrDropped = errors.New("dropped")
)

// Frame is one encoded outbound event.
type Frame []byte

// Message is a Frame tagged with its event type, which decides its priority.
type Message struct {
	Type  domain.EventType
	Frame Frame
}

// Lossy reports whether the message may be evicted under pressure.
// Proctoring updates are superseded by the next analysis anyway.
func (m Message) Lossy() bool {
	return m.Type == domain.EventProctoringUpdate
}

// Sender is the router-facing side of a connection handle.
// Owned by the transport adapter; Close runs disconnect handling once.
type Sender interface {
	ID() domain.ConnectionID
	Send(Message) error
	Close()
}
