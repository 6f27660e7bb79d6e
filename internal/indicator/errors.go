package indicator

import "errors"

var (
	// ErrInsufficientData means the series is too short to seed the window.
	// Skip this cycle and try again on the next one.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrEmptySeries means no defined indicator values exist at all.
	ErrEmptySeries = errors.New("series has no defined values")
	// ErrUndefinedInput means the warm-up period has not elapsed yet.
	ErrUndefinedInput = errors.New("undefined input")
	ErrInvalidWindow  = errors.New("window must be positive")
	// ErrUnorderedSeries means timestamps are not strictly increasing.
	ErrUnorderedSeries = errors.New("timestamps must strictly increase")
	// ErrInvalidPrice means a price is NaN or infinite.
	ErrInvalidPrice = errors.New("price must be finite")
)
