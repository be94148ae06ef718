// Package metrics exposes forecast pipeline metrics to Prometheus.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ohlc-forecast/internal/forecast"
)

const namespace = "ohlc_forecast"

// Recorder records cycle and per-symbol metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	cycleDuration  prometheus.Histogram
	cyclesTotal    prometheus.Counter
	predictedPrice *prometheus.GaugeVec
	currentPrice   *prometheus.GaugeVec
	changePct      *prometheus.GaugeVec
	validationR2   *prometheus.GaugeVec
	signalsTotal   *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	notifyTotal    *prometheus.CounterVec
	lastSuccess    prometheus.Gauge
}

// New creates a recorder with a fresh registry including Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full forecast cycle over all symbols.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of completed forecast cycles.",
		}),
		predictedPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "predicted_price",
			Help:      "Latest predicted next close per symbol.",
		}, []string{"symbol"}),
		currentPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_price",
			Help:      "Latest observed close per symbol.",
		}, []string{"symbol"}),
		changePct: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "change_pct",
			Help:      "Predicted change in percent per symbol.",
		}, []string{"symbol"}),
		validationR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_r2",
			Help:      "Held-out R² of the latest fit per symbol.",
		}, []string{"symbol"}),
		signalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals emitted per symbol and label.",
		}, []string{"symbol", "signal"}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_failures_total",
			Help:      "Skipped symbols by error kind.",
		}, []string{"symbol", "kind"}),
		notifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries per channel and outcome.",
		}, []string{"channel", "outcome"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_forecast_timestamp_seconds",
			Help:      "Unix time of the latest successful forecast.",
		}),
	}
}

// Registry returns the registry backing this recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveCycle records one completed cycle.
func (r *Recorder) ObserveCycle(d time.Duration) {
	r.cycleDuration.Observe(d.Seconds())
	r.cyclesTotal.Inc()
}

// RecordForecast records a successful per-symbol result.
func (r *Recorder) RecordForecast(res forecast.Result) {
	r.predictedPrice.WithLabelValues(res.Symbol).Set(res.PredictedPrice)
	r.currentPrice.WithLabelValues(res.Symbol).Set(res.CurrentPrice)
	r.changePct.WithLabelValues(res.Symbol).Set(res.ChangePct)
	if !math.IsNaN(res.R2) && !math.IsInf(res.R2, 0) {
		r.validationR2.WithLabelValues(res.Symbol).Set(res.R2)
	}
	r.signalsTotal.WithLabelValues(res.Symbol, string(res.Signal)).Inc()
	r.lastSuccess.Set(float64(res.Timestamp.Unix()))
}

// RecordFailure counts a skipped symbol.
func (r *Recorder) RecordFailure(symbol, kind string) {
	r.failuresTotal.WithLabelValues(symbol, kind).Inc()
}

// RecordNotify counts a delivery attempt on a channel.
func (r *Recorder) RecordNotify(channel string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.notifyTotal.WithLabelValues(channel, outcome).Inc()
}
