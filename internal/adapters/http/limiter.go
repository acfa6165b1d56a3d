package http

import (
	"sync"
	"time"

	"github.com/dkeye/Proctor/internal/domain"
	"golang.org/x/time/rate"
)

// sessionLimiter caps how often frames of one session reach the analysis
// service. Idle entries are swept on access.
type sessionLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	idleTTL time.Duration
	entries map[domain.SessionID]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newSessionLimiter(perSec float64, burst int) *sessionLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &sessionLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		idleTTL: 5 * time.Minute,
		entries: make(map[domain.SessionID]*limiterEntry),
		now:     time.Now,
	}
}

func (s *sessionLimiter) Allow(sid domain.SessionID) bool {
	if s.perSec <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if now.Sub(e.seen) > s.idleTTL {
			delete(s.entries, id)
		}
	}
	e, ok := s.entries[sid]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(s.perSec, s.burst)}
		s.entries[sid] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}
