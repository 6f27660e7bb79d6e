package md

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rsicross/internal/indicator"
)

type Timeframe string

const (
	Minute Timeframe = "1m"
	Hour   Timeframe = "1h"
	Day    Timeframe = "1d"
)

func ParseTimeframe(value string) (Timeframe, error) {
	switch Timeframe(value) {
	case Minute, Hour, Day:
		return Timeframe(value), nil
	case "daily":
		return Day, nil
	case "minute":
		return Minute, nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", value)
	}
}

// Duration is the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Request selects bars for one symbol. A positive Limit keeps only the most
// recent Limit bars of the range.
type Request struct {
	Symbol    string
	Start     time.Time
	End       time.Time
	Timeframe Timeframe
	Limit     int
}

// LookbackRequest asks for the last n bars ending at end. The start is padded
// for weekends and holidays; Limit trims the excess.
func LookbackRequest(symbol string, tf Timeframe, n int, end time.Time) Request {
	span := tf.Duration() * time.Duration(n)
	if tf == Day {
		span = span*2 + 7*24*time.Hour
	} else {
		span *= 4
	}
	return Request{
		Symbol:    symbol,
		Start:     end.Add(-span),
		End:       end,
		Timeframe: tf,
		Limit:     n,
	}
}

type HistoryProvider interface {
	Bars(ctx context.Context, req Request) (indicator.PriceSeries, error)
}

// toSeries orders raw points, drops repeated timestamps (the later one wins)
// and applies the request limit.
func toSeries(points []indicator.Point, limit int) (indicator.PriceSeries, error) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	deduped := points[:0]
	for _, p := range points {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(p.Time) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[len(deduped)-limit:]
	}
	return indicator.NewPriceSeries(deduped)
}
