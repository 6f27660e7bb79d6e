// Package indicator computes RSI, its exponentially weighted mean and the
// crossover signal derived from them. Every function here is pure: no I/O,
// no logging, no shared state.
package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/moznion/go-optional"
)

type Point struct {
	Time  time.Time
	Price float64
}

// PriceSeries is ordered by strictly increasing time.
type PriceSeries []Point

// NewPriceSeries copies points and checks that timestamps strictly increase
// and prices are finite.
func NewPriceSeries(points []Point) (PriceSeries, error) {
	for i := range points {
		if !finite(points[i].Price) {
			return nil, fmt.Errorf("%w: point %d at %s is %v", ErrInvalidPrice, i,
				points[i].Time.Format(time.RFC3339), points[i].Price)
		}
		if i > 0 && !points[i].Time.After(points[i-1].Time) {
			return nil, fmt.Errorf("%w: point %d at %s is not after %s", ErrUnorderedSeries, i,
				points[i].Time.Format(time.RFC3339), points[i-1].Time.Format(time.RFC3339))
		}
	}
	out := make(PriceSeries, len(points))
	copy(out, points)
	return out, nil
}

func (p PriceSeries) Prices() []float64 {
	prices := make([]float64, len(p))
	for i, pt := range p {
		prices[i] = pt.Price
	}
	return prices
}

// Last returns the most recent point, or false for an empty series.
func (p PriceSeries) Last() (Point, bool) {
	if len(p) == 0 {
		return Point{}, false
	}
	return p[len(p)-1], true
}

// Series is an indicator output aligned one-to-one with its input. Entries
// without enough lookback are None.
type Series []optional.Option[float64]

func (s Series) Latest() optional.Option[float64] {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].IsSome() {
			return s[i]
		}
	}
	return optional.None[float64]()
}

func (s Series) Defined() []float64 {
	values := make([]float64, 0, len(s))
	for _, v := range s {
		if v.IsSome() {
			values = append(values, v.Unwrap())
		}
	}
	return values
}

// Mean averages the defined entries and ignores the rest.
func (s Series) Mean() optional.Option[float64] {
	values := s.Defined()
	if len(values) == 0 {
		return optional.None[float64]()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return optional.Some(sum / float64(len(values)))
}

func noneSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = optional.None[float64]()
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
