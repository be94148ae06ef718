package candles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ohlc-forecast/internal/forecast"
)

const (
	klinesPath       = "/api/v3/klines"
	defaultBaseURL   = "https://api.binance.com"
	defaultUserAgent = "ohlc-forecast/1.0"
)

// BinanceOptions parameterise the Binance klines source.
type BinanceOptions struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	UserAgent    string
}

// Binance fetches klines from the public Binance REST API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs a Binance source.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch retrieves up to limit klines, retrying transient failures.
func (b *Binance) Fetch(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := b.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
			b.logger.Warn().
				Err(lastErr).
				Str("symbol", symbol).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying klines request")
			select {
			case <-ctx.Done():
				return nil, &forecast.FetchError{Symbol: symbol, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		candles, err := b.fetchOnce(ctx, symbol, interval, limit)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, &forecast.FetchError{Symbol: symbol, Err: lastErr}
}

func (b *Binance) fetchOnce(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))

	endpoint := b.baseURL + klinesPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, permanent(fmt.Errorf("decode klines: %w", err))
	}

	candles := make([]forecast.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, permanent(fmt.Errorf("kline %d: %w", i, err))
		}
		candles = append(candles, c)
	}

	b.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("rows", len(candles)).Msg("fetched klines")
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(row []json.RawMessage) (forecast.Candle, error) {
	if len(row) < 6 {
		return forecast.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return forecast.Candle{}, fmt.Errorf("open time: %w", err)
	}

	var fields [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for k := range fields {
		var raw string
		if err := json.Unmarshal(row[k+1], &raw); err != nil {
			return forecast.Candle{}, fmt.Errorf("%s: %w", names[k], err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return forecast.Candle{}, fmt.Errorf("parse %s: %w", names[k], err)
		}
		fields[k] = d.InexactFloat64()
	}

	return forecast.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// APIError is a non-200 answer from Binance.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("binance api error (%d)", e.Status)
	}
	if e.Code != 0 {
		return fmt.Sprintf("binance api error (%d, code %d): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance api error (%d): %s", e.Status, e.Msg)
}

type errorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	apiErr := &APIError{Status: status}
	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil && body.Msg != "" {
		apiErr.Code = body.Code
		apiErr.Msg = body.Msg
	} else if len(payload) > 0 {
		apiErr.Msg = strings.TrimSpace(string(payload))
	}
	return apiErr
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// retryable reports whether another attempt could succeed. Client errors
// other than rate limiting and malformed payloads are final.
func retryable(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}

var _ Source = (*Binance)(nil)
