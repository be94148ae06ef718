package forecast

import (
	"math/rand/v2"
	"strings"
	"time"

	"ohlc-forecast/internal/forest"
)

// Settings tune a single forecast.
type Settings struct {
	MinRows      int
	ThresholdPct float64
	TestRatio    float64
	Forest       forest.Params
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		MinRows:      DefaultMinRows,
		ThresholdPct: DefaultThresholdPct,
		TestRatio:    DefaultTestRatio,
		Forest:       forest.DefaultParams(),
	}
}

// Outcome carries the result together with the diagnostics that produced it.
type Outcome struct {
	Result     Result
	Validation Validation
	Rows       int
	Examples   int
}

// Forecast runs features, dataset preparation, fit and decision for one symbol.
func Forecast(symbol string, candles []Candle, now time.Time, settings Settings, rng *rand.Rand) (Outcome, error) {
	table, err := NewBuilder(settings.MinRows).Build(candles)
	if err != nil {
		return Outcome{}, err
	}
	ds, err := Prepare(table)
	if err != nil {
		return Outcome{}, err
	}

	model := NewModel(settings.Forest, settings.TestRatio, rng)
	validation, err := model.FitAndValidate(ds.Examples)
	if err != nil {
		return Outcome{}, err
	}
	predicted, err := model.PredictOne(ds.Inference)
	if err != nil {
		return Outcome{}, err
	}

	changePct, signal, err := Decide(ds.CurrentPrice, predicted, settings.ThresholdPct)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Result: Result{
			Symbol:         strings.ToUpper(symbol),
			Timestamp:      now.UTC(),
			CurrentPrice:   ds.CurrentPrice,
			PredictedPrice: predicted,
			ChangePct:      changePct,
			Signal:         signal,
			R2:             validation.R2,
		},
		Validation: validation,
		Rows:       len(table),
		Examples:   len(ds.Examples),
	}, nil
}
