//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source=bridge.go -destination=../../mocks/mock_bridge.go -package=mocks

// Package proctor pushes externally produced analysis results into rooms.
package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSession       = errors.New("empty session id")
	ErrInvalidAnalysis = errors.New("analysis is not valid JSON")
)

// Broadcaster is the part of the router the bridge needs.
type Broadcaster interface {
	BroadcastRoom(sid domain.SessionID, t domain.EventType, v any) (int, error)
}

// Publisher accepts analysis results from non-connection sources.
type Publisher interface {
	Publish(ctx context.Context, sid domain.SessionID, analysis json.RawMessage) (int, error)
}

// Bridge fans one analysis result out to every current member of a session.
// Delivery is best effort: an unknown or emptied room is not an error, and
// slow members may lose the update to newer ones.
type Bridge struct {
	out Broadcaster
}

var _ Publisher = (*Bridge)(nil)

func NewBridge(out Broadcaster) *Bridge {
	return &Bridge{out: out}
}

// Publish returns the number of members whose queue accepted the update.
func (b *Bridge) Publish(ctx context.Context, sid domain.SessionID, analysis json.RawMessage) (int, error) {
	if sid == "" {
		metrics.ProctoringPublishes.WithLabelValues("rejected").Inc()
		return 0, ErrNoSession
	}
	if !json.Valid(analysis) {
		metrics.ProctoringPublishes.WithLabelValues("rejected").Inc()
		return 0, fmt.Errorf("%w: session %s", ErrInvalidAnalysis, sid)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := b.out.BroadcastRoom(sid, domain.EventProctoringUpdate, domain.ProctoringUpdate{
		Type:      domain.EventProctoringUpdate,
		SessionID: sid,
		Analysis:  analysis,
	})
	if err != nil {
		metrics.ProctoringPublishes.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("publish to %s: %w", sid, err)
	}
	if n == 0 {
		metrics.ProctoringPublishes.WithLabelValues("no_room").Inc()
		log.Debug().Str("module", "app.proctor").Str("session_id", string(sid)).Msg("no recipients, update dropped")
		return 0, nil
	}
	metrics.ProctoringPublishes.WithLabelValues("delivered").Inc()
	log.Debug().Str("module", "app.proctor").Str("session_id", string(sid)).Int("delivered", n).Msg("proctoring update published")
	return n, nil
}
