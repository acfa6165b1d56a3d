// Package orch routes inbound signaling events to their handlers and
// delivers the resulting outbound events.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Proctor/internal/app"
	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMissingSession = errors.New("missing sessionId")
	ErrMissingPayload = errors.New("missing relay payload")
	ErrNotConnected   = errors.New("connection is not bound")
)

// Handler reacts to one inbound event: it mutates the registry and enqueues
// outbound events. Handlers never block on another connection.
type Handler func(ctx context.Context, in domain.Inbound) error

type route struct {
	handle      Handler
	needSession bool
	internal    bool
}

type Orchestrator struct {
	Registry *app.Registry
	Conns    *app.Directory
	Policy   app.Policy
	Now      func() time.Time

	routes map[domain.EventType]route
}

func New(reg *app.Registry, conns *app.Directory, policy app.Policy) *Orchestrator {
	if policy == nil {
		policy = app.DropPolicy{}
	}
	o := &Orchestrator{
		Registry: reg,
		Conns:    conns,
		Policy:   policy,
		Now:      time.Now,
	}
	o.routes = map[domain.EventType]route{
		domain.EventJoinRoom:           {handle: o.handleJoin, needSession: true},
		domain.EventSubscribeUpdates:   {handle: o.handleSubscribe, needSession: true},
		domain.EventLeaveRoom:          {handle: o.handleLeave, needSession: true},
		domain.EventUnsubscribeUpdates: {handle: o.handleLeave, needSession: true},
		domain.EventRelayOffer:         {handle: o.handleOffer, needSession: true},
		domain.EventRelayAnswer:        {handle: o.handleAnswer, needSession: true},
		domain.EventRelayICECandidate:  {handle: o.handleCandidate, needSession: true},
		domain.EventDisconnect:         {handle: o.handleDisconnect, internal: true},
	}
	return o
}

// Dispatch routes an event received from a client. Errors concern only the
// issuing connection.
func (o *Orchestrator) Dispatch(ctx context.Context, in domain.Inbound) error {
	r, ok := o.routes[in.Type]
	if !ok || r.internal {
		metrics.RejectedEvents.WithLabelValues(domain.ErrCodeUnknownEvent).Inc()
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
	if r.needSession && in.SessionID == "" {
		metrics.RejectedEvents.WithLabelValues(domain.ErrCodeMissingSession).Inc()
		return fmt.Errorf("%w: %s", ErrMissingSession, in.Type)
	}
	if _, ok := o.Conns.Get(in.From); !ok {
		// Frames still in flight after the disconnect was reported.
		return fmt.Errorf("%w: %s", ErrNotConnected, in.From)
	}
	metrics.InboundEvents.WithLabelValues(string(in.Type)).Inc()
	return r.handle(ctx, in)
}

func (o *Orchestrator) dispatchInternal(ctx context.Context, in domain.Inbound) error {
	r, ok := o.routes[in.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
	return r.handle(ctx, in)
}

func encode(t domain.EventType, v any) (core.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return core.Message{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return core.Message{Type: t, Frame: b}, nil
}

// SendTo enqueues v for a single connection.
func (o *Orchestrator) SendTo(id domain.ConnectionID, t domain.EventType, v any) error {
	msg, err := encode(t, v)
	if err != nil {
		return err
	}
	o.deliver([]domain.ConnectionID{id}, msg)
	return nil
}

// BroadcastRoom enqueues v for every current member of sid and returns the
// number of queues that accepted it.
func (o *Orchestrator) BroadcastRoom(sid domain.SessionID, t domain.EventType, v any) (int, error) {
	members := o.Registry.Members(sid)
	if len(members) == 0 {
		return 0, nil
	}
	msg, err := encode(t, v)
	if err != nil {
		return 0, err
	}
	return o.deliver(memberIDs(members, "", nil), msg), nil
}

func (o *Orchestrator) broadcast(targets []domain.ConnectionID, t domain.EventType, v any) (int, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	msg, err := encode(t, v)
	if err != nil {
		return 0, err
	}
	return o.deliver(targets, msg), nil
}

// deliver runs without any registry lock held, so a kicked member may
// re-enter the router through its disconnect.
func (o *Orchestrator) deliver(targets []domain.ConnectionID, msg core.Message) int {
	sent := 0
	for _, id := range targets {
		conn, ok := o.Conns.Get(id)
		if !ok {
			// Disconnect in flight; the supervisor removes it from its rooms.
			continue
		}
		err := conn.Send(msg)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, core.ErrBackpressure):
			o.onBackpressure(conn, msg)
		case errors.Is(err, core.ErrDropped), errors.Is(err, core.ErrConnClosed):
		default:
			log.Error().Err(err).Str("module", "orch").Str("conn_id", string(id)).Msg("send failed")
		}
	}
	return sent
}

func (o *Orchestrator) onBackpressure(conn core.Sender, msg core.Message) {
	action := o.Policy.OnBackPressure(conn, msg)
	metrics.Backpressure.WithLabelValues(action.String()).Inc()
	log.Warn().Str("module", "orch").Str("conn_id", string(conn.ID())).Str("type", string(msg.Type)).Str("action", action.String()).Msg("slow consumer")
	if action == app.KickMember {
		conn.Close()
	}
}

// memberIDs filters members down to ids, skipping exclude and, when roles is
// non-nil, anyone whose role is not listed.
func memberIDs(members []domain.Member, exclude domain.ConnectionID, roles map[domain.Role]bool) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		if m.ID == exclude {
			continue
		}
		if roles != nil && !roles[m.Role] {
			continue
		}
		out = append(out, m.ID)
	}
	return out
}
