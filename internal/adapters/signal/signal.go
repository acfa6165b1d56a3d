// Package signal is the websocket transport of the signaling layer: one
// connection handle per socket, a read pump feeding the router and a write
// pump draining the handle's queue.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Proctor/internal/app/orch"
	"github.com/dkeye/Proctor/internal/core"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	QueueSize  int

	RateEvents   int
	RateInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 65536
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.RateEvents <= 0 {
		o.RateEvents = 200
	}
	if o.RateInterval <= 0 {
		o.RateInterval = time.Second
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		Limiter: NewRateLimiter(opts.RateEvents, opts.RateInterval),
		opts:    opts,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until ctx ends or
// either side goes away.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := domain.NewConnectionID()
	conn := core.NewConn(id, core.ConnOptions{
		QueueSize: ctl.opts.QueueSize,
		OnClose:   ctl.onClose,
		OnDrop: func(t domain.EventType) {
			metrics.DroppedEvents.WithLabelValues(string(t)).Inc()
			log.Debug().Str("module", "signal").Str("conn_id", string(id)).Str("type", string(t)).Msg("dropped outbound event")
		},
	})
	ctl.Orch.Conns.Bind(conn)
	log.Info().Str("module", "signal").Str("conn_id", string(id)).Str("client", client).Msg("new WS connection")

	if err := ctl.Orch.SendTo(id, domain.EventWelcome, domain.Welcome{Type: domain.EventWelcome, ConnectionID: id}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("welcome")
	}

	go ctl.writePump(ctx, ws, conn)
	go ctl.readPump(ctx, ws, conn)
}

func (ctl *SignalWSController) onClose(id domain.ConnectionID) {
	ctl.Limiter.Forget(id)
	ctl.Orch.OnDisconnect(id)
}
