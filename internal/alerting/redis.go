package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisOptions configure the Redis pub/sub channel.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	Channel     string
	DialTimeout time.Duration
}

// RedisNotifier publishes forecasts on a pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
	logger  zerolog.Logger
}

// NewRedisNotifier builds a notifier with its own client. No connection is made until the first publish.
func NewRedisNotifier(opts RedisOptions, logger zerolog.Logger) (*RedisNotifier, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if opts.Channel == "" {
		return nil, errors.New("redis channel is required")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	return newRedisNotifier(client, opts.Channel, logger), nil
}

func newRedisNotifier(client publisher, channel string, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "alert_redis").Logger(),
	}
}

// Notify publishes the JSON payload.
func (n *RedisNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := encodePayload(note)
	if err != nil {
		return err
	}

	receivers, err := n.client.Publish(ctx, n.channel, body).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	n.logger.Debug().
		Str("cycle_id", note.CycleID).
		Str("symbol", note.Result.Symbol).
		Int64("receivers", receivers).
		Msg("forecast published")
	return nil
}

// Name identifies the channel in logs and metrics.
func (n *RedisNotifier) Name() string { return "redis" }

// Close releases the client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

var _ Notifier = (*RedisNotifier)(nil)
