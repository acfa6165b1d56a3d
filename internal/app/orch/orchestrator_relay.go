package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/rs/zerolog/log"
)

var participantsOnly = map[domain.Role]bool{domain.RoleParticipant: true}

func (o *Orchestrator) handleOffer(_ context.Context, in domain.Inbound) error {
	return o.relay(in, in.Offer, domain.EventWebRTCOffer, domain.OfferRelay{
		Type:      domain.EventWebRTCOffer,
		SessionID: in.SessionID,
		Offer:     in.Offer,
		From:      in.From,
	})
}

func (o *Orchestrator) handleAnswer(_ context.Context, in domain.Inbound) error {
	return o.relay(in, in.Answer, domain.EventWebRTCAnswer, domain.AnswerRelay{
		Type:      domain.EventWebRTCAnswer,
		SessionID: in.SessionID,
		Answer:    in.Answer,
		From:      in.From,
	})
}

func (o *Orchestrator) handleCandidate(_ context.Context, in domain.Inbound) error {
	return o.relay(in, in.Candidate, domain.EventICECandidate, domain.CandidateRelay{
		Type:      domain.EventICECandidate,
		SessionID: in.SessionID,
		Candidate: in.Candidate,
		From:      in.From,
	})
}

// relay forwards an opaque negotiation blob to the other participants of the
// room. A sender that has not joined reaches nobody; that is not an error.
func (o *Orchestrator) relay(in domain.Inbound, payload json.RawMessage, t domain.EventType, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingPayload, in.Type)
	}
	if role, ok := o.Registry.RoleOf(in.SessionID, in.From); !ok || role != domain.RoleParticipant {
		log.Debug().Str("module", "orch").Str("session_id", string(in.SessionID)).Str("conn_id", string(in.From)).Str("type", string(in.Type)).Msg("relay from non-participant, no recipients")
		return nil
	}
	targets := memberIDs(o.Registry.Members(in.SessionID), in.From, participantsOnly)
	n, err := o.broadcast(targets, t, v)
	if err != nil {
		return err
	}
	log.Debug().Str("module", "orch").Str("session_id", string(in.SessionID)).Str("from", string(in.From)).Str("type", string(t)).Int("sent_to", n).Msg("relayed")
	return nil
}
