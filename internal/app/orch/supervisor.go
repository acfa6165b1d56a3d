package orch

import (
	"context"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/rs/zerolog/log"
)

// OnDisconnect is the transport's hook for a lost connection. It unbinds the
// handle and feeds a disconnect event through the same path as leave-room.
// Only the first report for a connection does anything.
func (o *Orchestrator) OnDisconnect(id domain.ConnectionID) {
	if !o.Conns.Unbind(id) {
		return
	}
	if err := o.dispatchInternal(context.Background(), domain.Inbound{Type: domain.EventDisconnect, From: id}); err != nil {
		log.Error().Err(err).Str("module", "orch.supervisor").Str("conn_id", string(id)).Msg("disconnect cleanup")
	}
}

func (o *Orchestrator) handleDisconnect(_ context.Context, in domain.Inbound) error {
	rooms := o.Registry.RoomsContaining(in.From)
	for _, sid := range rooms {
		if err := o.leave(sid, in.From); err != nil {
			log.Error().Err(err).Str("module", "orch.supervisor").Str("session_id", string(sid)).Str("conn_id", string(in.From)).Msg("leave on disconnect")
		}
	}
	log.Info().Str("module", "orch.supervisor").Str("conn_id", string(in.From)).Int("rooms", len(rooms)).Msg("disconnect reconciled")
	return nil
}
