package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ohlc-forecast/internal/alerting"
	"ohlc-forecast/internal/candles"
	"ohlc-forecast/internal/config"
	"ohlc-forecast/internal/forecast"
	"ohlc-forecast/internal/logging"
	"ohlc-forecast/internal/scheduler"
)

func rising(n int) []forecast.Candle {
	out := make([]forecast.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = forecast.Candle{
			OpenTime: time.Unix(int64(i)*3600, 0).UTC(),
			Open:     c - 0.5,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000 + float64(i%7),
		}
	}
	return out
}

type fakeSource map[string]any

func (f fakeSource) Fetch(_ context.Context, symbol, _ string, _ int) ([]forecast.Candle, error) {
	switch v := f[symbol].(type) {
	case []forecast.Candle:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, errors.New("unknown symbol")
	}
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n alerting.Notification) error {
	r.notes = append(r.notes, n)
	return r.err
}

type fakeMetrics struct {
	cycles    int
	forecasts []forecast.Result
	failures  map[string]string
}

func (m *fakeMetrics) ObserveCycle(time.Duration)         { m.cycles++ }
func (m *fakeMetrics) RecordForecast(res forecast.Result) { m.forecasts = append(m.forecasts, res) }
func (m *fakeMetrics) RecordFailure(symbol, kind string)  { m.failures[symbol] = kind }

func testConfig(symbols ...string) *config.Config {
	cfg := config.Default()
	cfg.Forecast.Symbols = symbols
	cfg.Forecast.Seed = 42
	return cfg
}

func TestRunCycleSkipsFailingSymbols(t *testing.T) {
	src := fakeSource{
		"DOTUSDT": rising(60),
		"BADUSDT": errors.New("connection reset"),
		"NEWUSDT": rising(10),
		"ETHUSDT": rising(80),
	}
	notifier := &recordingNotifier{}
	metrics := &fakeMetrics{failures: map[string]string{}}
	svc := New(testConfig("DOTUSDT", "BADUSDT", "NEWUSDT", "ETHUSDT"), nil, src, notifier, metrics, zerolog.Nop())

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	report := svc.RunCycle(context.Background(), now)

	if len(report.Symbols) != 4 {
		t.Fatalf("所有交易对都应被处理, 实际 %d", len(report.Symbols))
	}
	if report.Succeeded() != 2 || report.Failed() != 2 {
		t.Fatalf("期望 2 成功 2 失败, 实际 %d/%d", report.Succeeded(), report.Failed())
	}
	if metrics.failures["BADUSDT"] != "fetch" || metrics.failures["NEWUSDT"] != "insufficient_data" {
		t.Fatalf("失败类型错误: %#v", metrics.failures)
	}
	if metrics.cycles != 1 || len(metrics.forecasts) != 2 {
		t.Fatalf("指标记录错误: cycles=%d forecasts=%d", metrics.cycles, len(metrics.forecasts))
	}

	if len(notifier.notes) != 2 {
		t.Fatalf("成功的交易对应各推送一次, 实际 %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.CycleID != report.CycleID || note.Result.Symbol != "DOTUSDT" || note.Text != note.Result.Message() {
		t.Fatalf("推送内容错误: %+v", note)
	}
	if !note.Result.Timestamp.Equal(now) {
		t.Fatalf("结果时间应为周期时间: %v", note.Result.Timestamp)
	}

	id, err := ulid.Parse(report.CycleID)
	if err != nil {
		t.Fatalf("cycle_id 应为 ULID: %v", err)
	}
	if ulid.Time(id.Time()).Unix() != now.Unix() {
		t.Fatalf("ULID 时间应等于周期时间: %v", ulid.Time(id.Time()))
	}
}

func TestNotifyFailureDoesNotFailSymbol(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := New(testConfig("DOTUSDT", "ETHUSDT"), nil, fakeSource{"DOTUSDT": rising(60), "ETHUSDT": rising(60)}, notifier, nil, zerolog.Nop())

	report := svc.RunCycle(context.Background(), time.Now())
	if report.Succeeded() != 2 {
		t.Fatalf("推送失败不应影响预测结果: %d", report.Succeeded())
	}
	if len(notifier.notes) != 2 {
		t.Fatal("第一个推送失败后应继续处理下一个交易对")
	}
	for _, rep := range report.Symbols {
		if forecast.ErrorKind(rep.NotifyErr) != "notify" {
			t.Fatalf("推送错误应为 NotifyError: %v", rep.NotifyErr)
		}
	}
}

func TestProcessSymbolWrapsSourceErrors(t *testing.T) {
	svc := New(testConfig("X"), nil, fakeSource{"X": errors.New("dns")}, nil, nil, zerolog.Nop())
	_, err := svc.ProcessSymbol(context.Background(), "X", time.Now())

	var fetchErr *forecast.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Symbol != "X" {
		t.Fatalf("来源错误应包装为 FetchError: %v", err)
	}
}

func TestSeededServiceIsReproducible(t *testing.T) {
	src := fakeSource{"DOTUSDT": rising(120)}
	now := time.Now()

	a, err := New(testConfig("DOTUSDT"), nil, src, nil, nil, zerolog.Nop()).ProcessSymbol(context.Background(), "DOTUSDT", now)
	if err != nil {
		t.Fatalf("预测失败: %v", err)
	}
	b, _ := New(testConfig("DOTUSDT"), nil, src, nil, nil, zerolog.Nop()).ProcessSymbol(context.Background(), "DOTUSDT", now)
	if a.Result.PredictedPrice != b.Result.PredictedPrice {
		t.Fatalf("相同种子应得到相同预测: %v vs %v", a.Result.PredictedPrice, b.Result.PredictedPrice)
	}
}

func TestRunCycleLogsWarningForShortHistory(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerTo(logging.Config{Level: "debug"}, &buf)
	svc := New(testConfig("NEWUSDT"), nil, fakeSource{"NEWUSDT": rising(5)}, nil, nil, logger)

	svc.RunCycle(context.Background(), time.Now())

	found := false
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry["message"] == "symbol skipped" {
			found = true
			if entry["level"] != "warn" || entry["error_kind"] != "insufficient_data" || entry["symbol"] != "NEWUSDT" || entry["cycle_id"] == nil {
				t.Fatalf("数据不足日志字段错误: %#v", entry)
			}
		}
	}
	if !found {
		t.Fatalf("应记录跳过日志: %s", buf.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sched := scheduler.New(scheduler.Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	svc := New(testConfig("DOTUSDT"), sched, fakeSource{"DOTUSDT": rising(60)}, nil, nil, zerolog.Nop())
	svc.newRand = func(string) *rand.Rand { return rand.New(rand.NewPCG(1, 1)) }

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	svc.OnCycle(func(r CycleReport) {
		cycles++
		if r.Succeeded() != 1 {
			t.Errorf("周期应成功: %+v", r)
		}
		cancel()
	})

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled: %v", err)
	}
	if cycles != 1 {
		t.Fatalf("期望执行 1 个周期, 实际 %d", cycles)
	}
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(testConfig("X"), nil, candles.NewSynthetic(candles.SyntheticOptions{}), nil, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("未配置调度器应报错")
	}
}

func TestRunCycleWithSyntheticSource(t *testing.T) {
	src := candles.NewSynthetic(candles.SyntheticOptions{BasePrice: 7, TrendPct: 0.3, NoisePct: 0.5, Seed: 3})
	cfg := testConfig("DOTUSDT")
	cfg.Forecast.Limit = 200
	svc := New(cfg, nil, src, nil, nil, zerolog.Nop())

	report := svc.RunCycle(context.Background(), time.Now())
	if report.Succeeded() != 1 {
		t.Fatalf("合成数据应能完成预测: %+v", report.Symbols[0].Err)
	}
	if got := report.Symbols[0].Outcome.Examples; got != 198 {
		t.Fatalf("200 根 K 线应得到 198 个样本, 实际 %d", got)
	}
}
