package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"ohlc-forecast/internal/alerting"
	"ohlc-forecast/internal/candles"
	"ohlc-forecast/internal/forecast"
	"ohlc-forecast/internal/service"
)

// Simulate 使用合成 K 线跑一次完整预测, 结果输出到标准输出。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (forecast.Outcome, error) {
	if opts.Rows <= 0 {
		return forecast.Outcome{}, errors.New("--rows 必须大于 0")
	}
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return forecast.Outcome{}, errors.New("--symbol 不能为空")
	}

	cfg := *a.Config
	cfg.Forecast.Symbols = []string{symbol}
	cfg.Forecast.Limit = opts.Rows
	if opts.Seed != 0 {
		cfg.Forecast.Seed = opts.Seed
	}

	step, err := candles.IntervalDuration(cfg.Forecast.Interval)
	if err != nil {
		return forecast.Outcome{}, err
	}
	now := time.Now().UTC()
	src := candles.NewSynthetic(candles.SyntheticOptions{
		TrendPct: opts.TrendPct,
		NoisePct: opts.NoisePct,
		Seed:     opts.Seed,
		End:      now.Truncate(step),
	})

	notifier := alerting.NewStdoutNotifier(a.Stdout)
	svc := service.New(&cfg, nil, src, notifier, nil, a.Logger)

	outcome, err := svc.ProcessSymbol(ctx, symbol, now)
	if err != nil {
		return forecast.Outcome{}, err
	}
	text := outcome.Result.Message()
	if err := notifier.Notify(ctx, alerting.Notification{CycleID: "simulate", Result: outcome.Result, Text: text}); err != nil {
		return outcome, err
	}
	a.Logger.Info().
		Str("symbol", symbol).
		Int("examples", outcome.Examples).
		Float64("validation_r2", outcome.Validation.R2).
		Msg("simulation finished")
	return outcome, nil
}
