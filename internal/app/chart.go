package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"ohlc-forecast/internal/candles"
	"ohlc-forecast/internal/forecast"
	"ohlc-forecast/internal/service"
)

// Chart fetches one symbol, forecasts it, and renders the history with the
// projected close as PNG and/or the feature table as CSV.
func (a *App) Chart(ctx context.Context, opts ChartOptions) (forecast.Outcome, error) {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return forecast.Outcome{}, errors.New("at least one of --csv or --png must be provided")
	}
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return forecast.Outcome{}, errors.New("--symbol is required")
	}

	cfg := *a.Config
	rows, err := a.candleSource().Fetch(ctx, symbol, cfg.Forecast.Interval, cfg.Forecast.Limit)
	if err != nil {
		return forecast.Outcome{}, err
	}
	fixedRows := candles.SourceFunc(func(context.Context, string, string, int) ([]forecast.Candle, error) {
		return rows, nil
	})

	now := time.Now().UTC()
	outcome, err := service.New(&cfg, nil, fixedRows, nil, nil, a.Logger).ProcessSymbol(ctx, symbol, now)
	if err != nil {
		return forecast.Outcome{}, err
	}
	table := forecast.BuildFeatures(rows)
	a.Logger.Info().Str("symbol", symbol).Int("rows", len(table)).Msg("exporting forecast chart")

	if opts.CSVPath != "" {
		if err := writeFeaturesCSV(opts.CSVPath, table); err != nil {
			return outcome, err
		}
	}

	if opts.PNGPath != "" {
		step, err := candles.IntervalDuration(cfg.Forecast.Interval)
		if err != nil {
			return outcome, err
		}
		if err := writeForecastPNG(opts.PNGPath, rows, table, outcome.Result, step, cfg.Chart.Width, cfg.Chart.Height); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

func writeFeaturesCSV(path string, table forecast.FeatureTable) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append([]string{"open_time"}, forecast.FeatureColumns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range table {
		vec, ok := row.Vector()
		record := make([]string, 0, len(vec)+1)
		record = append(record, row.OpenTime.UTC().Format(time.RFC3339))
		for i, v := range vec {
			if i == len(vec)-1 && !ok {
				record = append(record, "")
				continue
			}
			record = append(record, formatFloat(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeForecastPNG(path string, rows []forecast.Candle, table forecast.FeatureTable, res forecast.Result, step time.Duration, width, height int) error {
	if len(table) == 0 {
		return errors.New("no candles to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(table))
	closes := forecast.Closes(rows)
	ma5 := make([]float64, len(table))
	ma10 := make([]float64, len(table))

	for i, row := range table {
		x[i] = row.OpenTime
		ma5[i] = row.MA5
		ma10[i] = row.MA10
	}

	last := table[len(table)-1]
	projection := chart.TimeSeries{
		Name:    "Forecast (" + string(res.Signal) + ")",
		XValues: []time.Time{last.OpenTime, last.OpenTime.Add(step)},
		YValues: []float64{last.Close, res.PredictedPrice},
		Style: chart.Style{
			StrokeDashArray: []float64{5, 5},
			DotWidth:        4,
		},
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  res.Symbol,
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "MA5",
				XValues: x,
				YValues: ma5,
			},
			chart.TimeSeries{
				Name:    "MA10",
				XValues: x,
				YValues: ma10,
			},
			projection,
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// formatFloat writes finite values through decimal; ±Inf is written verbatim.
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}
