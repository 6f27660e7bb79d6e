package indicator

import (
	"github.com/moznion/go-optional"
)

// Evaluation is one full pass of the signal engine over a price series.
type Evaluation struct {
	Window int
	RSI    Series
	EWMA   Series
	// RSIMean is the plain average of the defined RSI entries.
	RSIMean    optional.Option[float64]
	RSILatest  optional.Option[float64]
	EWMALatest optional.Option[float64]
	Price      Point
	Signal     Signal
}

// Evaluate runs RSI, EWMA and the crossover decision in order. On
// ErrUndefinedInput the series computed so far are still returned.
func Evaluate(prices PriceSeries, window int) (Evaluation, error) {
	eval := Evaluation{
		Window:     window,
		RSIMean:    optional.None[float64](),
		RSILatest:  optional.None[float64](),
		EWMALatest: optional.None[float64](),
	}
	if last, ok := prices.Last(); ok {
		eval.Price = last
	}

	rsi, err := ComputeRSI(prices, window)
	if err != nil {
		return eval, err
	}
	eval.RSI = rsi
	eval.RSIMean = rsi.Mean()

	ewma, err := ComputeEWMA(rsi, window)
	if err != nil {
		return eval, err
	}
	eval.EWMA = ewma

	// The latest entries, not the latest defined ones: a trailing gap must
	// not be papered over with stale values.
	eval.RSILatest = rsi[len(rsi)-1]
	eval.EWMALatest = ewma[len(ewma)-1]

	sig, err := DeriveSignal(eval.RSILatest, eval.EWMALatest)
	if err != nil {
		return eval, err
	}
	eval.Signal = sig
	return eval, nil
}
