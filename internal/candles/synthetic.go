package candles

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"ohlc-forecast/internal/forecast"
)

// SyntheticOptions shape the generated series.
type SyntheticOptions struct {
	BasePrice float64
	// TrendPct is the drift of the close per candle, in percent.
	TrendPct float64
	// NoisePct is the amplitude of the seeded random walk around the trend, in percent.
	NoisePct float64
	Volume   float64
	Seed     uint64
	// End is the open time of the newest candle. Zero means the current hour.
	End time.Time
}

// Synthetic generates deterministic candles. The same options always yield the same series.
type Synthetic struct {
	opts SyntheticOptions
}

// NewSynthetic constructs a synthetic source.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.BasePrice <= 0 {
		opts.BasePrice = 100
	}
	if opts.Volume <= 0 {
		opts.Volume = 1_000_000
	}
	return &Synthetic{opts: opts}
}

// Fetch ignores the symbol and returns limit candles spaced by interval.
func (s *Synthetic) Fetch(ctx context.Context, symbol, interval string, limit int) ([]forecast.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &forecast.FetchError{Symbol: symbol, Err: err}
	}
	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, &forecast.FetchError{Symbol: symbol, Err: err}
	}
	if limit <= 0 {
		return nil, nil
	}

	end := s.opts.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(time.Hour)
	}
	rng := rand.New(rand.NewPCG(s.opts.Seed, uint64(limit)))

	out := make([]forecast.Candle, limit)
	price := s.opts.BasePrice
	for i := 0; i < limit; i++ {
		open := price
		noise := (rng.Float64()*2 - 1) * s.opts.NoisePct / 100
		price = price * (1 + s.opts.TrendPct/100 + noise)
		if price <= 0 {
			price = open
		}
		spread := math.Abs(price-open) + price*0.002
		out[i] = forecast.Candle{
			OpenTime: end.Add(-time.Duration(limit-1-i) * step),
			Open:     open,
			High:     math.Max(open, price) + spread/2,
			Low:      math.Max(math.Min(open, price)-spread/2, 0),
			Close:    price,
			Volume:   s.opts.Volume * (1 + 0.5*rng.Float64()),
		}
	}
	return out, nil
}

// IntervalDuration converts a kline interval such as "15m", "1h", "1d" or "1w" to a duration.
func IntervalDuration(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	return time.Duration(n) * unit, nil
}

var _ Source = (*Synthetic)(nil)
