// Package candles provides OHLCV candle sources for the forecast pipeline.
package candles

import (
	"context"

	"ohlc-forecast/internal/forecast"
)

// Source retrieves the most recent candles for a symbol, oldest first.
type Source interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error) {
	return f(ctx, symbol, interval, limit)
}
