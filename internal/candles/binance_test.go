package candles

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ohlc-forecast/internal/forecast"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const klinesBody = `[
 [1700000000000,"10.5","11.0","10.0","10.8","1234.5",1700003599999,"0",10,"0","0","0"],
 [1700003600000,"10.8","12.0","10.7","11.9","987.25",1700007199999,"0",12,"0","0","0"]
]`

func TestBinanceFetchSuccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("请求路径错误: %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	got, err := b.Fetch(context.Background(), "DOTUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if gotQuery != "interval=1h&limit=2&symbol=DOTUSDT" {
		t.Fatalf("查询参数错误: %s", gotQuery)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 根 K 线, 实际 %d", len(got))
	}
	first := got[0]
	if first.Open != 10.5 || first.High != 11 || first.Low != 10 || first.Close != 10.8 {
		t.Fatalf("OHLC 解析错误: %+v", first)
	}
	if first.Volume != 1234.5 {
		t.Fatalf("成交量应取第 6 个字段, 实际 %v", first.Volume)
	}
	if !first.OpenTime.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("开盘时间解析错误: %v", first.OpenTime)
	}
	if got[1].Volume != 987.25 {
		t.Fatalf("第二根成交量错误: %v", got[1].Volume)
	}
}

func TestBinanceFetchAPIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, MaxRetries: 3, RetryBackoff: time.Millisecond}, noopLogger())
	_, err := b.Fetch(context.Background(), "NOPE", "1h", 10)
	if err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}

	var fetchErr *forecast.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Symbol != "NOPE" {
		t.Fatalf("应包装为 FetchError: %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -1121 || apiErr.Msg != "Invalid symbol." {
		t.Fatalf("应解析 Binance 错误体: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx 不应重试, 实际请求 %d 次", calls.Load())
	}
}

func TestBinanceFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, MaxRetries: 2, RetryBackoff: time.Millisecond}, noopLogger())
	got, err := b.Fetch(context.Background(), "DOTUSDT", "1h", 2)
	if err != nil {
		t.Fatalf("重试后应成功: %v", err)
	}
	if len(got) != 2 || calls.Load() != 3 {
		t.Fatalf("期望 3 次请求 2 根 K 线, 实际 %d 次 %d 根", calls.Load(), len(got))
	}
}

func TestBinanceFetchMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"abc","1","1","1","1"]]`))
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, MaxRetries: 2, RetryBackoff: time.Millisecond}, noopLogger())
	if _, err := b.Fetch(context.Background(), "DOTUSDT", "1h", 1); forecast.ErrorKind(err) != "fetch" {
		t.Fatalf("非法数值应返回 fetch 错误, 实际 %v", err)
	}
}

func TestBinanceFetchCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, MaxRetries: 5, RetryBackoff: time.Hour}, noopLogger())
	start := time.Now()
	_, err := b.Fetch(ctx, "DOTUSDT", "1h", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("应返回 context 超时, 实际 %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("取消后不应继续等待退避")
	}
}
