package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ohlc-forecast/internal/alerting"
	"ohlc-forecast/internal/candles"
	"ohlc-forecast/internal/config"
	"ohlc-forecast/internal/metrics"
	"ohlc-forecast/internal/scheduler"
	"ohlc-forecast/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Stdout io.Writer

	source candles.Source
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Stdout: os.Stdout,
	}
}

func (a *App) candleSource() candles.Source {
	if a.source != nil {
		return a.source
	}
	cfg := a.Config.Binance
	return candles.NewBinance(candles.BinanceOptions{
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.RequestTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		UserAgent:    cfg.UserAgent,
	}, a.Logger)
}

// newNotifier builds every enabled channel. A channel that cannot be
// constructed is logged and left out; the others still deliver.
func (a *App) newNotifier(rec *metrics.Recorder) *alerting.Fanout {
	cfg := a.Config.Alerting
	var channels []alerting.Notifier

	retry := func(n alerting.Notifier) alerting.Notifier {
		return alerting.WithRetry(n, cfg.Retries, cfg.RetryBackoff, a.Logger)
	}

	if cfg.Telegram.Enabled {
		tg := cfg.Telegram
		channels = append(channels, retry(alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger)))
	}
	if cfg.Kafka.Enabled {
		kn, err := alerting.NewKafkaNotifier(alerting.KafkaOptions{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		}, a.Logger)
		if err != nil {
			a.Logger.Error().Err(err).Msg("kafka channel disabled")
		} else {
			channels = append(channels, retry(kn))
		}
	}
	if cfg.Redis.Enabled {
		rn, err := alerting.NewRedisNotifier(alerting.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, a.Logger)
		if err != nil {
			a.Logger.Error().Err(err).Msg("redis channel disabled")
		} else {
			channels = append(channels, retry(rn))
		}
	}
	if cfg.Stdout {
		channels = append(channels, alerting.NewStdoutNotifier(a.Stdout))
	}

	var observe alerting.DeliveryObserver
	if rec != nil {
		observe = rec.RecordNotify
	}
	return alerting.NewFanout(channels, observe, a.Logger)
}

func (a *App) newScheduler() *scheduler.Scheduler {
	cfg := a.Config.Scheduler
	return scheduler.New(scheduler.Options{
		Interval:     cfg.Interval,
		AlignToStart: cfg.AlignToBucket,
		StartupDelay: cfg.StartupDelay,
		RunOnStart:   cfg.RunOnStart,
		Cron:         cfg.Cron,
	}, a.Logger)
}

// Run executes the long-running forecasting service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := metrics.New()
	notifier := a.newNotifier(rec)
	defer func() {
		if err := notifier.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close notifier")
		}
	}()
	if notifier.Len() == 0 {
		a.Logger.Warn().Msg("no alert channel configured; forecasts are only logged")
	}

	svc := service.New(a.Config, a.newScheduler(), a.candleSource(), notifier, rec, a.Logger)

	group, ctx := errgroup.WithContext(ctx)
	if a.Config.Metrics.Enabled {
		server := metrics.NewServer(a.Config.Metrics.Listen, rec, a.Logger)
		svc.OnCycle(func(r service.CycleReport) { server.MarkCycle(r.Started.Add(r.Duration)) })
		group.Go(func() error { return server.Run(ctx) })
	}
	group.Go(func() error { return svc.Run(ctx) })

	a.Logger.Info().Strs("symbols", a.Config.Forecast.Symbols).Msg("starting forecasting service")
	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("forecasting service stopped")
	return nil
}

// RunOnce executes a single cycle and returns. It fails only when every symbol failed.
func (a *App) RunOnce(ctx context.Context) (service.CycleReport, error) {
	notifier := a.newNotifier(nil)
	defer notifier.Close()

	svc := service.New(a.Config, nil, a.candleSource(), notifier, nil, a.Logger)
	report := svc.RunCycle(ctx, time.Now().UTC())
	if len(report.Symbols) > 0 && report.Succeeded() == 0 {
		return report, fmt.Errorf("all %d symbols failed", len(report.Symbols))
	}
	return report, nil
}

// SimulateOptions configure a forecast over generated candles.
type SimulateOptions struct {
	Symbol   string
	Rows     int
	TrendPct float64
	NoisePct float64
	Seed     uint64
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	Symbol  string
	PNGPath string
	CSVPath string
}
