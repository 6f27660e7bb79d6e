package indicator

type Zone string

const (
	Oversold   Zone = "oversold"
	Overbought Zone = "overbought"
	Neutral    Zone = "neutral"
)

const (
	DefaultLowRSI  = 30.0
	DefaultHighRSI = 70.0
)

// Classify places an RSI reading relative to the low/high bands. Bounds are
// inclusive on both sides.
func Classify(rsi, low, high float64) Zone {
	switch {
	case rsi <= low:
		return Oversold
	case rsi >= high:
		return Overbought
	default:
		return Neutral
	}
}
