package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Named is implemented by notifiers that report a channel name.
type Named interface {
	Name() string
}

// ChannelName returns the channel name of n, or "unknown".
func ChannelName(n Notifier) string {
	if named, ok := n.(Named); ok {
		return named.Name()
	}
	return "unknown"
}

// DeliveryObserver is told the outcome of every channel delivery.
type DeliveryObserver func(channel string, err error)

// Fanout delivers each notification to every channel. A failing channel never
// stops delivery to the others.
type Fanout struct {
	channels []Notifier
	observe  DeliveryObserver
	logger   zerolog.Logger
}

// NewFanout combines channels. observe may be nil.
func NewFanout(channels []Notifier, observe DeliveryObserver, logger zerolog.Logger) *Fanout {
	return &Fanout{
		channels: channels,
		observe:  observe,
		logger:   logger.With().Str("component", "alert_fanout").Logger(),
	}
}

// Notify returns the joined errors of all failed channels.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, ch := range f.channels {
		name := ChannelName(ch)
		err := ch.Notify(ctx, note)
		if f.observe != nil {
			f.observe(name, err)
		}
		if err != nil {
			f.logger.Warn().Err(err).
				Str("channel", name).
				Str("cycle_id", note.CycleID).
				Str("symbol", note.Result.Symbol).
				Msg("delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of channels.
func (f *Fanout) Len() int { return len(f.channels) }

// Close closes every channel that holds resources.
func (f *Fanout) Close() error {
	var errs []error
	for _, ch := range f.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Retrying retries a channel with exponential backoff.
type Retrying struct {
	next    Notifier
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

// WithRetry wraps next. retries is the number of extra attempts after the first.
func WithRetry(next Notifier, retries int, backoff time.Duration, logger zerolog.Logger) *Retrying {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Retrying{
		next:    next,
		retries: retries,
		backoff: backoff,
		logger:  logger.With().Str("component", "alert_retry").Str("channel", ChannelName(next)).Logger(),
	}
}

// Notify tries up to retries+1 times, stopping early when ctx is done.
func (r *Retrying) Notify(ctx context.Context, note Notification) error {
	var lastErr error
	for i := 0; i <= r.retries; i++ {
		if lastErr = r.next.Notify(ctx, note); lastErr == nil {
			return nil
		}
		if i == r.retries {
			break
		}
		wait := r.backoff * time.Duration(1<<uint(i))
		r.logger.Warn().Err(lastErr).
			Int("attempt", i+1).
			Int("max_attempts", r.retries+1).
			Dur("backoff", wait).
			Msg("send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", r.retries+1, lastErr)
}

// Name reports the wrapped channel name.
func (r *Retrying) Name() string { return ChannelName(r.next) }

// Close closes the wrapped channel if it holds resources.
func (r *Retrying) Close() error {
	if c, ok := r.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ Notifier = (*Fanout)(nil)
	_ Notifier = (*Retrying)(nil)
)
