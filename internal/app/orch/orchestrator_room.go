package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleJoin(_ context.Context, in domain.Inbound) error {
	return o.join(in.SessionID, in.From, domain.RoleParticipant)
}

func (o *Orchestrator) handleSubscribe(_ context.Context, in domain.Inbound) error {
	return o.join(in.SessionID, in.From, domain.RoleObserver)
}

// join tells the pre-existing members about the newcomer. The joiner itself
// gets nothing back.
//
// The binding is checked again after the membership is recorded: the
// supervisor unbinds before it collects rooms, so a connection that is still
// bound here is guaranteed to be swept, and one that is not must undo its own
// join.
func (o *Orchestrator) join(sid domain.SessionID, id domain.ConnectionID, role domain.Role) error {
	res := o.Registry.Join(sid, id, role)
	if !res.Added {
		log.Debug().Str("module", "orch").Str("session_id", string(sid)).Str("conn_id", string(id)).Msg("join: already a member")
		return nil
	}
	if _, ok := o.Conns.Get(id); !ok {
		if !res.Upgraded {
			// Nobody was told about it; the supervisor owns upgraded memberships.
			o.Registry.Leave(sid, id)
		}
		log.Debug().Str("module", "orch").Str("session_id", string(sid)).Str("conn_id", string(id)).Msg("join: connection gone, not announced")
		return fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	_, err := o.broadcast(memberIDs(res.Others, id, nil), domain.EventUserJoined, domain.UserJoined{
		Type:         domain.EventUserJoined,
		SessionID:    sid,
		ConnectionID: id,
		Role:         res.Role,
		Timestamp:    o.Now().UTC(),
	})
	return err
}

func (o *Orchestrator) handleLeave(_ context.Context, in domain.Inbound) error {
	return o.leave(in.SessionID, in.From)
}

// leave is shared by explicit leaves and disconnect cleanup. Only the call
// that actually removed the membership notifies, so racing paths produce a
// single user-left.
func (o *Orchestrator) leave(sid domain.SessionID, id domain.ConnectionID) error {
	res := o.Registry.Leave(sid, id)
	if !res.Removed || res.RoomDeleted {
		return nil
	}
	_, err := o.broadcast(memberIDs(res.Remaining, id, nil), domain.EventUserLeft, domain.UserLeft{
		Type:         domain.EventUserLeft,
		SessionID:    sid,
		ConnectionID: id,
	})
	return err
}
