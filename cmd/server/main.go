package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Proctor/internal/adapters/http"
	"github.com/dkeye/Proctor/internal/adapters/analysis"
	"github.com/dkeye/Proctor/internal/adapters/ingress"
	"github.com/dkeye/Proctor/internal/adapters/rtc"
	wssignal "github.com/dkeye/Proctor/internal/adapters/signal"
	"github.com/dkeye/Proctor/internal/app"
	"github.com/dkeye/Proctor/internal/app/orch"
	"github.com/dkeye/Proctor/internal/app/proctor"
	"github.com/dkeye/Proctor/internal/config"
	"github.com/dkeye/Proctor/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(c config.Log) {
	if !c.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyFromName(cfg.BackpressurePolicy)
	if err != nil {
		return err
	}
	ice, err := rtc.Configuration(cfg.ICEServers)
	if err != nil {
		return err
	}

	o := orch.New(app.NewRegistry(), app.NewDirectory(), policy)
	bridge := proctor.NewBridge(o)

	ctl := wssignal.NewSignalWSController(o, wssignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		QueueSize:    cfg.SendQueueSize,
		RateEvents:   cfg.RateLimit.Events,
		RateInterval: cfg.RateLimit.Interval,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Signal: ctl,
		Handlers: &router.Handlers{
			Publisher:   bridge,
			Analyzer:    analysis.NewClient(cfg.Analysis.URL, cfg.Analysis.Timeout),
			Rooms:       o.Registry,
			ICE:         ice,
			Connections: o.Conns.Len,
		},
		Metrics: metrics.NewRegistry(),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("policy", cfg.BackpressurePolicy).Msg("Proctor signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(gctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet, ingress will keep retrying")
		}
		listener := ingress.NewRedisListener(client, cfg.Redis.ChannelPrefix, bridge)
		g.Go(func() error { return listener.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}
