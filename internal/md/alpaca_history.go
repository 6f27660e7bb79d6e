package md

import (
	"context"
	"fmt"

	"rsicross/internal/indicator"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaHistory reads historical stock bars from the Alpaca data API.
type AlpacaHistory struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

func NewAlpacaHistory(apiKey, apiSecret, feed string) *AlpacaHistory {
	return &AlpacaHistory{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: parseFeed(feed),
	}
}

func (a *AlpacaHistory) Bars(ctx context.Context, req Request) (indicator.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := a.client.GetBars(req.Symbol, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(req.Timeframe),
		Start:     req.Start,
		End:       req.End,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", req.Symbol, err)
	}

	points := make([]indicator.Point, 0, len(bars))
	for _, bar := range bars {
		points = append(points, indicator.Point{Time: bar.Timestamp.UTC(), Price: bar.Close})
	}
	return toSeries(points, req.Limit)
}

func alpacaTimeFrame(tf Timeframe) marketdata.TimeFrame {
	switch tf {
	case Minute:
		return marketdata.OneMin
	case Hour:
		return marketdata.OneHour
	default:
		return marketdata.OneDay
	}
}
