package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Proctor/internal/app/orch"
	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrRateLimited = errors.New("rate limited")

// writePump is the only writer of ws. It owns the socket: when it returns the
// socket is closed, which in turn ends readPump.
func (ctl *SignalWSController) writePump(ctx context.Context, ws *websocket.Conn, conn *core.Conn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn_id", string(conn.ID())).Msg("writePump ctx done")
			ctl.writeClose(ws, websocket.CloseGoingAway)
			return
		case <-conn.Done():
			ctl.writeClose(ws, websocket.CloseNormalClosure)
			return
		case <-conn.Wake():
			for _, m := range conn.Drain() {
				if err := ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
					log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, m.Frame); err != nil {
					log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(conn.ID())).Msg("writePump write error")
					return
				}
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(conn.ID())).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) writeClose(ws *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.opts.WriteWait))
}

// readPump feeds every frame to the router in arrival order. A missed pong
// trips the read deadline and surfaces as a disconnect.
func (ctl *SignalWSController) readPump(ctx context.Context, ws *websocket.Conn, conn *core.Conn) {
	id := conn.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("readPump closing")
		conn.Close()
	}()

	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(ctx, conn, data)
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, conn *core.Conn, data []byte) {
	id := conn.ID()
	if !ctl.Limiter.Allow(id) {
		metrics.RejectedEvents.WithLabelValues(domain.ErrCodeRateLimited).Inc()
		ctl.replyError(id, ErrRateLimited)
		return
	}

	var in domain.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		metrics.RejectedEvents.WithLabelValues(domain.ErrCodeBadPayload).Inc()
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad json")
		ctl.replyError(id, err)
		return
	}
	in.From = id

	if in.Type == domain.EventPing {
		ctl.handlePing(id)
		return
	}
	if err := ctl.Orch.Dispatch(ctx, in); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Str("type", string(in.Type)).Msg("event rejected")
		ctl.replyError(id, err)
	}
}

// replyError answers only the offending connection.
func (ctl *SignalWSController) replyError(id domain.ConnectionID, err error) {
	ev := domain.NewErrorEvent(errorCode(err), err.Error())
	if sendErr := ctl.Orch.SendTo(id, domain.EventError, ev); sendErr != nil {
		log.Error().Err(sendErr).Str("module", "signal").Str("conn_id", string(id)).Msg("reply error")
	}
}

func errorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, ErrRateLimited):
		return domain.ErrCodeRateLimited
	case errors.Is(err, orch.ErrUnknownEvent):
		return domain.ErrCodeUnknownEvent
	case errors.Is(err, orch.ErrMissingSession):
		return domain.ErrCodeMissingSession
	case errors.Is(err, orch.ErrMissingPayload):
		return domain.ErrCodeMissingPayload
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return domain.ErrCodeBadPayload
	default:
		return domain.ErrCodeInternal
	}
}
