package indicator

import (
	"fmt"

	"github.com/moznion/go-optional"
)

// SMA is the rolling simple mean over window prices. The first window-1
// entries are None.
func SMA(prices PriceSeries, window int) (Series, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	values := prices.Prices()
	out := noneSeries(len(values))
	if len(values) < window {
		return out, nil
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = optional.Some(sum / float64(window))
		}
	}
	return out, nil
}
