package http

import (
	"context"

	"github.com/dkeye/Proctor/internal/adapters/signal"
	"github.com/dkeye/Proctor/internal/config"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware labels every browser with a stable token kept in the
// cookie session. It only tags logs; it is not authentication.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type Deps struct {
	Signal   *signal.SignalWSController
	Handlers *Handlers
	Metrics  *prometheus.Registry
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ProctorSessions", store))
	r.Use(ClientTokenMiddleware())

	if deps.Handlers.frames == nil && cfg.Analysis.FramesPerSecond > 0 {
		deps.Handlers.frames = newSessionLimiter(cfg.Analysis.FramesPerSecond, cfg.Analysis.FrameBurst)
	}

	r.GET("/healthz", deps.Handlers.health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Metrics)))
	}

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})
	api.GET("/ice-servers", deps.Handlers.iceServers)
	api.GET("/rooms/:sessionId", deps.Handlers.room)
	api.POST("/sessions/:sessionId/proctoring", deps.Handlers.publishProctoring)
	api.POST("/sessions/:sessionId/analyze-frame", deps.Handlers.analyzeFrame)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
