package forecast

// Signal is the discrete trading suggestion derived from a forecast.
type Signal string

const (
	Buy  Signal = "Buy"
	Sell Signal = "Sell"
	Hold Signal = "Hold"
)

// DefaultThresholdPct is the percentage move needed before suggesting Buy or Sell.
const DefaultThresholdPct = 2.0

// Decide converts the predicted move into a signal. The threshold itself is a Hold.
func Decide(current, predicted, thresholdPct float64) (float64, Signal, error) {
	if current == 0 {
		return 0, Hold, ErrZeroPrice
	}
	changePct := (predicted - current) / current * 100
	switch {
	case changePct > thresholdPct:
		return changePct, Buy, nil
	case changePct < -thresholdPct:
		return changePct, Sell, nil
	default:
		return changePct, Hold, nil
	}
}
