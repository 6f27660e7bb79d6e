package indicator

import (
	"fmt"

	"github.com/moznion/go-optional"
)

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Flat  Direction = "FLAT"
)

// Signal is the crossover decision together with the delta that produced it.
type Signal struct {
	Direction Direction
	Delta     float64
}

// DeriveSignal compares the latest RSI to its smoothed mean. The sign of
// rsi - ewma alone decides the direction.
func DeriveSignal(rsiLatest, ewmaLatest optional.Option[float64]) (Signal, error) {
	if rsiLatest.IsNone() || ewmaLatest.IsNone() {
		return Signal{}, fmt.Errorf("%w: rsi defined=%t ewma defined=%t", ErrUndefinedInput, rsiLatest.IsSome(), ewmaLatest.IsSome())
	}
	delta := rsiLatest.Unwrap() - ewmaLatest.Unwrap()
	if !finite(delta) {
		return Signal{}, fmt.Errorf("%w: non-finite delta %v", ErrUndefinedInput, delta)
	}
	switch {
	case delta > 0:
		return Signal{Direction: Long, Delta: delta}, nil
	case delta < 0:
		return Signal{Direction: Short, Delta: delta}, nil
	default:
		return Signal{Direction: Flat, Delta: 0}, nil
	}
}
