package indicator

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
)

var day0 = time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)

// walk is a deterministic price path with both gains and losses.
func walk(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		x := float64(i)
		prices[i] = 100 + 8*math.Sin(x*0.31) + 3*math.Cos(x*1.7) + 0.04*x
	}
	return prices
}

func daily(prices ...float64) PriceSeries {
	series := make(PriceSeries, len(prices))
	for i, p := range prices {
		series[i] = Point{Time: day0.AddDate(0, 0, i), Price: p}
	}
	return series
}

func some(values ...float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = optional.Some(v)
	}
	return s
}

func none() optional.Option[float64] {
	return optional.None[float64]()
}
