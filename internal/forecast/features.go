package forecast

// FeatureColumns is the column order shared by training rows and the inference vector.
var FeatureColumns = []string{
	"open",
	"high",
	"low",
	"close",
	"volume",
	"oc_diff",
	"hl_diff",
	"ma_5",
	"ma_10",
	"volume_change",
}

const (
	shortWindow = 5
	longWindow  = 10

	// DefaultMinRows is the smallest feature table a forecast is attempted on.
	DefaultMinRows = 50
)

// FeatureRow is a candle plus its derived columns.
type FeatureRow struct {
	Candle

	OCDiff float64
	HLDiff float64
	MA5    float64
	MA10   float64

	// VolumeChange is undefined for the first row.
	VolumeChange    float64
	HasVolumeChange bool
}

// Vector returns the row in FeatureColumns order. ok is false when a column is null.
func (r FeatureRow) Vector() (vec []float64, ok bool) {
	vec = []float64{
		r.Open,
		r.High,
		r.Low,
		r.Close,
		r.Volume,
		r.OCDiff,
		r.HLDiff,
		r.MA5,
		r.MA10,
		r.VolumeChange,
	}
	return vec, r.HasVolumeChange
}

// FeatureTable is the chronologically ordered output of BuildFeatures.
type FeatureTable []FeatureRow

// BuildFeatures derives the feature table. Row i only reads rows <= i.
func BuildFeatures(candles []Candle) FeatureTable {
	table := make(FeatureTable, len(candles))
	for i, c := range candles {
		row := FeatureRow{
			Candle: c,
			OCDiff: c.Open - c.Close,
			HLDiff: c.High - c.Low,
			MA5:    trailingMean(candles, i, shortWindow),
			MA10:   trailingMean(candles, i, longWindow),
		}
		if i > 0 {
			prev := candles[i-1].Volume
			row.VolumeChange = (c.Volume - prev) / prev
			row.HasVolumeChange = true
		}
		table[i] = row
	}
	return table
}

// trailingMean averages close over [max(0,i-window+1)..i].
func trailingMean(candles []Candle, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	var sum float64
	for j := start; j <= i; j++ {
		sum += candles[j].Close
	}
	return sum / float64(i-start+1)
}

// Builder applies the minimum row requirement on top of BuildFeatures.
type Builder struct {
	MinRows int
}

// NewBuilder returns a Builder, falling back to DefaultMinRows for non-positive values.
func NewBuilder(minRows int) Builder {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	return Builder{MinRows: minRows}
}

// Build derives features and rejects tables shorter than MinRows.
func (b Builder) Build(candles []Candle) (FeatureTable, error) {
	table := BuildFeatures(candles)
	if len(table) < b.MinRows {
		return nil, &InsufficientDataError{Rows: len(table), MinRows: b.MinRows}
	}
	return table, nil
}
