package indicator

import (
	"fmt"

	"github.com/moznion/go-optional"
)

// EWMAOptions parameterizes the exponentially weighted mean.
type EWMAOptions struct {
	// CenterOfMass c gives the smoothing factor alpha = 1/(1+c).
	CenterOfMass float64
	// Adjust divides by the decaying sum of weights instead of using the
	// recursive form y = (1-alpha)*y + alpha*x.
	Adjust bool
	// IgnoreNA keeps undefined entries from decaying the weight of older
	// observations.
	IgnoreNA bool
}

// CenterOfMass is the decay used for an RSI of the given window.
func CenterOfMass(window int) float64 {
	return float64(window-1) / 2
}

// ComputeEWMA smooths an RSI series with center of mass (window-1)/2,
// skipping undefined entries. The first defined value seeds the mean.
func ComputeEWMA(rsi Series, window int) (Series, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	return EWMA(rsi, EWMAOptions{CenterOfMass: CenterOfMass(window), Adjust: true, IgnoreNA: true})
}

// EWMA returns a series of the same length as in. Positions before the first
// defined input are None; undefined inputs after it carry the running mean.
func EWMA(in Series, opts EWMAOptions) (Series, error) {
	if opts.CenterOfMass < 0 {
		return nil, fmt.Errorf("center of mass must be >= 0, got %v", opts.CenterOfMass)
	}

	alpha := 1 / (1 + opts.CenterOfMass)
	decay := 1 - alpha
	newWeight := 1.0
	if !opts.Adjust {
		newWeight = alpha
	}

	out := noneSeries(len(in))
	seeded := false
	var avg float64
	oldWeight := 1.0

	for i, v := range in {
		observed := v.IsSome()
		switch {
		case !seeded:
			if observed {
				avg = v.Unwrap()
				seeded = true
			}
		case observed || !opts.IgnoreNA:
			oldWeight *= decay
			if !observed {
				break
			}
			// Skipping equal values keeps a constant input exactly constant.
			if x := v.Unwrap(); avg != x {
				avg = (oldWeight*avg + newWeight*x) / (oldWeight + newWeight)
			}
			if opts.Adjust {
				oldWeight += newWeight
			} else {
				oldWeight = 1
			}
		}
		if seeded {
			out[i] = optional.Some(avg)
		}
	}

	if !seeded {
		return nil, ErrEmptySeries
	}
	return out, nil
}
