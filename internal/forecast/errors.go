package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDataset is returned when null filtering leaves no training rows.
	ErrEmptyDataset = errors.New("forecast: dataset is empty after dropping incomplete rows")
	// ErrZeroPrice is returned when the current price is zero and no change can be derived.
	ErrZeroPrice = errors.New("forecast: current price is zero")
)

// FetchError wraps a candle source failure.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch candles for %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InsufficientDataError reports a feature table shorter than the configured minimum.
type InsufficientDataError struct {
	Rows    int
	MinRows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows, need at least %d", e.Rows, e.MinRows)
}

// ModelFitError reports degenerate training data.
type ModelFitError struct {
	Reason string
}

func (e *ModelFitError) Error() string {
	return "model fit: " + e.Reason
}

// NotifyError wraps a delivery failure on a notification channel.
type NotifyError struct {
	Symbol string
	Err    error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Symbol, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// ErrorKind maps a pipeline error to a stable label for logs and metrics.
func ErrorKind(err error) string {
	var (
		fetchErr  *FetchError
		dataErr   *InsufficientDataError
		fitErr    *ModelFitError
		notifyErr *NotifyError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &dataErr):
		return "insufficient_data"
	case errors.Is(err, ErrEmptyDataset):
		return "empty_dataset"
	case errors.As(err, &fitErr):
		return "model_fit"
	case errors.Is(err, ErrZeroPrice):
		return "zero_price"
	case errors.As(err, &notifyErr):
		return "notify"
	default:
		return "unknown"
	}
}
