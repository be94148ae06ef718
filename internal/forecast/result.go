package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout renders forecast times in the message header.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Result is the per-symbol outcome of one cycle.
type Result struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	CurrentPrice   float64   `json:"current_price"`
	PredictedPrice float64   `json:"predicted_price"`
	ChangePct      float64   `json:"change_pct"`
	Signal         Signal    `json:"signal"`
	R2             float64   `json:"validation_r2"`
}

// Message renders the notification text.
func (r Result) Message() string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("*ML Forecast for #%s*\n", r.Symbol))
	builder.WriteString(fmt.Sprintf("Time: %s\n", r.Timestamp.UTC().Format(TimestampLayout)))
	builder.WriteString(fmt.Sprintf("Current Price: %s\n", fixed(r.CurrentPrice, 4)))
	builder.WriteString(fmt.Sprintf("Next Price: %s\n", fixed(r.PredictedPrice, 4)))
	builder.WriteString(fmt.Sprintf("Change: %s%%\n", fixed(r.ChangePct, 2)))
	builder.WriteString(fmt.Sprintf("Signal: *%s*", r.Signal))
	return builder.String()
}

// fixed rounds half away from zero on the shortest decimal form of v.
// decimal cannot represent NaN or ±Inf, those are printed verbatim.
func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', int(places), 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// MarshalJSON encodes a non-finite R2 as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		R2 *float64 `json:"validation_r2"`
	}{plain: plain(r)}
	if !math.IsNaN(r.R2) && !math.IsInf(r.R2, 0) {
		out.R2 = &r.R2
	}
	return json.Marshal(out)
}
