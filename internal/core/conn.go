package core

import (
	"sync"

	"github.com/dkeye/Proctor/internal/domain"
)

const DefaultQueueSize = 64

type ConnOptions struct {
	// QueueSize bounds pending outbound messages. Zero means DefaultQueueSize.
	QueueSize int
	// OnClose runs exactly once, on the goroutine that closes the handle first.
	OnClose func(domain.ConnectionID)
	// OnDrop observes every message discarded by the queue policy.
	OnDrop func(domain.EventType)
}

// Conn is the server-side handle of one client link: an id plus a bounded
// outbound queue drained by a single writer.
//
// Send never blocks. When the queue is full the oldest lossy message is
// evicted; latency-sensitive messages are never evicted or reordered.
type Conn struct {
	id   domain.ConnectionID
	opts ConnOptions

	mu     sync.Mutex
	queue  []Message
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Sender = (*Conn)(nil)

func NewConn(id domain.ConnectionID, opts ConnOptions) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Conn{
		id:    id,
		opts:  opts,
		queue: make([]Message, 0, opts.QueueSize),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (c *Conn) ID() domain.ConnectionID { return c.id }

func (c *Conn) Send(m Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	var evicted *Message
	if len(c.queue) >= c.opts.QueueSize {
		i := c.oldestLossy()
		switch {
		case i >= 0:
			old := c.queue[i]
			evicted = &old
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
		case m.Lossy():
			c.mu.Unlock()
			c.dropped(m.Type)
			return ErrDropped
		default:
			c.mu.Unlock()
			return ErrBackpressure
		}
	}
	c.queue = append(c.queue, m)
	c.mu.Unlock()

	if evicted != nil {
		c.dropped(evicted.Type)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wake fires after Send queued something. Receivers should Drain.
func (c *Conn) Wake() <-chan struct{} { return c.wake }

// Done is closed once the handle is terminal.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Drain hands over every pending message in enqueue order.
func (c *Conn) Drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = make([]Message, 0, c.opts.QueueSize)
	return out
}

func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close discards pending messages and fires OnClose. Safe to call from any
// number of goroutines; only the first call has an effect.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()
		close(c.done)

		if c.opts.OnClose != nil {
			c.opts.OnClose(c.id)
		}
	})
}

// oldestLossy returns the index of the first lossy message or -1. Caller holds mu.
func (c *Conn) oldestLossy() int {
	for i, m := range c.queue {
		if m.Lossy() {
			return i
		}
	}
	return -1
}

func (c *Conn) dropped(t domain.EventType) {
	if c.opts.OnDrop != nil {
		c.opts.OnDrop(t)
	}
}
