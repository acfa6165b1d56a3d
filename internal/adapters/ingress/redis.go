// Package ingress receives analysis results pushed by other processes.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Proctor/internal/app/proctor"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultChannelPrefix = "proctoring:"

var ErrBadChannel = errors.New("channel does not name a session")

// RedisListener pattern-subscribes to <prefix>* and publishes each message
// body to the session named by the channel suffix.
type RedisListener struct {
	client redis.UniversalClient
	prefix string
	pub    proctor.Publisher
	retry  time.Duration
}

func NewRedisListener(client redis.UniversalClient, prefix string, pub proctor.Publisher) *RedisListener {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisListener{client: client, prefix: prefix, pub: pub, retry: 2 * time.Second}
}

// Channel is where producers publish results for sid.
func (l *RedisListener) Channel(sid domain.SessionID) string {
	return l.prefix + string(sid)
}

// Run blocks until ctx ends, resubscribing after receive errors.
func (l *RedisListener) Run(ctx context.Context) error {
	log.Info().Str("module", "adapters.ingress").Str("pattern", l.prefix+"*").Msg("redis ingress started")
	for {
		err := l.runSubscription(ctx)
		if ctx.Err() != nil {
			log.Info().Str("module", "adapters.ingress").Msg("redis ingress stopped")
			return nil
		}
		log.Warn().Err(err).Str("module", "adapters.ingress").Dur("retry_in", l.retry).Msg("subscription lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisListener) runSubscription(ctx context.Context) error {
	sub := l.client.PSubscribe(ctx, l.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			if err := l.Handle(ctx, msg.Channel, msg.Payload); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ingress").Str("channel", msg.Channel).Msg("invalid proctoring message")
			}
		}
	}
}

// Handle publishes one message. Unknown rooms are not an error.
func (l *RedisListener) Handle(ctx context.Context, channel, payload string) error {
	sid := strings.TrimPrefix(channel, l.prefix)
	if sid == channel || sid == "" {
		metrics.ProctoringPublishes.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %q", ErrBadChannel, channel)
	}
	n, err := l.pub.Publish(ctx, domain.SessionID(sid), json.RawMessage(payload))
	if err != nil {
		return err
	}
	log.Debug().Str("module", "adapters.ingress").Str("session_id", sid).Int("delivered", n).Msg("proctoring message relayed")
	return nil
}
