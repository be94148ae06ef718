package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ohlc-forecast/internal/alerting"
	"ohlc-forecast/internal/candles"
	"ohlc-forecast/internal/config"
	"ohlc-forecast/internal/forecast"
	"ohlc-forecast/internal/forest"
	"ohlc-forecast/internal/scheduler"
)

// Metrics receives pipeline observations.
type Metrics interface {
	ObserveCycle(d time.Duration)
	RecordForecast(res forecast.Result)
	RecordFailure(symbol, kind string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(time.Duration)     {}
func (nopMetrics) RecordForecast(forecast.Result) {}
func (nopMetrics) RecordFailure(string, string)   {}

// SymbolReport is the outcome for one symbol within a cycle.
type SymbolReport struct {
	Symbol  string
	Outcome *forecast.Outcome
	Err     error
	// NotifyErr is set when the forecast succeeded but delivery failed.
	NotifyErr error
}

// CycleReport summarises one pass over all symbols.
type CycleReport struct {
	CycleID  string
	Started  time.Time
	Duration time.Duration
	Symbols  []SymbolReport
}

// Succeeded counts symbols that produced a forecast.
func (r CycleReport) Succeeded() int {
	n := 0
	for _, s := range r.Symbols {
		if s.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts skipped symbols.
func (r CycleReport) Failed() int {
	return len(r.Symbols) - r.Succeeded()
}

// Service orchestrates fetching, forecasting, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	source    candles.Source
	notifier  alerting.Notifier
	metrics   Metrics
	logger    zerolog.Logger

	symbols  []string
	interval string
	limit    int
	settings forecast.Settings
	seed     uint64

	clock   func() time.Time
	newRand func(symbol string) *rand.Rand
	onCycle func(CycleReport)
}

// New constructs the forecasting service. notifier, sched and metrics may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source candles.Source, notifier alerting.Notifier, metrics Metrics, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &Service{
		scheduler: sched,
		source:    source,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger.With().Str("component", "service").Logger(),
		symbols:   append([]string(nil), cfg.Forecast.Symbols...),
		interval:  cfg.Forecast.Interval,
		limit:     cfg.Forecast.Limit,
		settings:  Settings(cfg.Forecast),
		seed:      cfg.Forecast.Seed,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	s.newRand = s.symbolRand
	return s
}

// Settings maps forecast configuration onto pipeline settings.
func Settings(cfg config.ForecastConfig) forecast.Settings {
	params := forest.DefaultParams()
	params.Trees = cfg.Trees
	params.MaxDepth = cfg.MaxDepth
	return forecast.Settings{
		MinRows:      cfg.MinRows,
		ThresholdPct: cfg.ThresholdPct,
		TestRatio:    cfg.TestRatio,
		Forest:       params,
	}
}

// OnCycle registers a callback invoked after every cycle.
func (s *Service) OnCycle(fn func(CycleReport)) {
	s.onCycle = fn
}

// Run drives cycles from the scheduler until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		report := s.RunCycle(ctx, s.clock())
		if len(report.Symbols) > 0 && report.Succeeded() == 0 {
			return fmt.Errorf("all %d symbols failed in cycle %s", len(report.Symbols), report.CycleID)
		}
		return nil
	})
}

// RunCycle processes every symbol sequentially. A failing symbol is logged and
// skipped; it never affects the others.
func (s *Service) RunCycle(ctx context.Context, now time.Time) CycleReport {
	report := CycleReport{
		CycleID: ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Started: now,
	}
	logger := s.logger.With().Str("cycle_id", report.CycleID).Logger()
	logger.Info().Strs("symbols", s.symbols).Msg("cycle started")

	start := time.Now()
	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			logger.Warn().Msg("cycle interrupted")
			break
		}
		report.Symbols = append(report.Symbols, s.runSymbol(ctx, logger, report.CycleID, symbol, now))
	}
	report.Duration = time.Since(start)
	s.metrics.ObserveCycle(report.Duration)

	logger.Info().
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Dur("duration", report.Duration).
		Msg("cycle finished")

	if s.onCycle != nil {
		s.onCycle(report)
	}
	return report
}

func (s *Service) runSymbol(ctx context.Context, logger zerolog.Logger, cycleID, symbol string, now time.Time) SymbolReport {
	rep := SymbolReport{Symbol: symbol}
	logger = logger.With().Str("symbol", symbol).Logger()

	outcome, err := s.ProcessSymbol(ctx, symbol, now)
	if err != nil {
		rep.Err = err
		kind := forecast.ErrorKind(err)
		s.metrics.RecordFailure(symbol, kind)

		event := logger.Error()
		var dataErr *forecast.InsufficientDataError
		if errors.As(err, &dataErr) {
			event = logger.Warn()
		}
		event.Err(err).Str("error_kind", kind).Msg("symbol skipped")
		return rep
	}
	rep.Outcome = &outcome

	res := outcome.Result
	s.metrics.RecordForecast(res)
	text := res.Message()
	logger.Info().
		Float64("current_price", res.CurrentPrice).
		Float64("predicted_price", res.PredictedPrice).
		Float64("change_pct", res.ChangePct).
		Float64("validation_r2", res.R2).
		Str("signal", string(res.Signal)).
		Int("rows", outcome.Rows).
		Int("examples", outcome.Examples).
		Str("message", text).
		Msg("forecast ready")

	if s.notifier != nil {
		note := alerting.Notification{CycleID: cycleID, Result: res, Text: text}
		if err := s.notifier.Notify(ctx, note); err != nil {
			rep.NotifyErr = &forecast.NotifyError{Symbol: symbol, Err: err}
			logger.Error().Err(rep.NotifyErr).Str("error_kind", forecast.ErrorKind(rep.NotifyErr)).Msg("failed to dispatch forecast")
		}
	}
	return rep
}

// ProcessSymbol fetches candles and runs the forecast pipeline for one symbol.
func (s *Service) ProcessSymbol(ctx context.Context, symbol string, now time.Time) (forecast.Outcome, error) {
	rows, err := s.source.Fetch(ctx, symbol, s.interval, s.limit)
	if err != nil {
		var fetchErr *forecast.FetchError
		if !errors.As(err, &fetchErr) {
			err = &forecast.FetchError{Symbol: symbol, Err: err}
		}
		return forecast.Outcome{}, err
	}
	return forecast.Forecast(symbol, rows, now, s.settings, s.newRand(symbol))
}

// symbolRand seeds per symbol when a seed is configured, otherwise draws fresh entropy.
func (s *Service) symbolRand(symbol string) *rand.Rand {
	if s.seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return rand.New(rand.NewPCG(s.seed, h.Sum64()))
}
