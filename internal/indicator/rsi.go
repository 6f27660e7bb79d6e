package indicator

import (
	"fmt"

	"github.com/moznion/go-optional"
)

// ComputeRSI returns Wilder's RSI aligned with prices. The first window
// entries are None.
func ComputeRSI(prices PriceSeries, window int) (Series, error) {
	return RSI(prices.Prices(), window)
}

// RSI is ComputeRSI over bare values.
func RSI(values []float64, window int) (Series, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	if len(values) < window+1 {
		return nil, fmt.Errorf("%w: have %d points, need %d", ErrInsufficientData, len(values), window+1)
	}
	for i, v := range values {
		if !finite(v) {
			return nil, fmt.Errorf("%w: value %d is %v", ErrInvalidPrice, i, v)
		}
	}

	out := noneSeries(len(values))
	period := float64(window)

	var gain, loss float64
	for i := 1; i <= window; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / period
	avgLoss := loss / period
	out[window] = optional.Some(rsiFromAverages(avgGain, avgLoss))

	for i := window + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(period-1) + gain) / period
		avgLoss = (avgLoss*(period-1) + loss) / period
		out[i] = optional.Some(rsiFromAverages(avgGain, avgLoss))
	}
	return out, nil
}

// rsiFromAverages maps smoothed gain/loss to [0, 100]. No losses at all,
// flat prices included, reads as 100.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
