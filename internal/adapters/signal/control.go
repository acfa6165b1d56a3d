package signal

import (
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(id domain.ConnectionID) {
	if err := ctl.Orch.SendTo(id, domain.EventPong, domain.Pong{Type: domain.EventPong}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("pong")
	}
}
