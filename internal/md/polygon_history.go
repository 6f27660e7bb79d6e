package md

import (
	"context"
	"fmt"
	"time"

	"rsicross/internal/indicator"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
)

// PolygonHistory reads aggregate bars from Polygon.
type PolygonHistory struct {
	client *polygon.Client
}

func NewPolygonHistory(apiKey string) (*PolygonHistory, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polygon api key is required")
	}
	return &PolygonHistory{client: polygon.New(apiKey)}, nil
}

func (p *PolygonHistory) Bars(ctx context.Context, req Request) (indicator.PriceSeries, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     req.Symbol,
		Multiplier: 1,
		Timespan:   polygonTimespan(req.Timeframe),
		From:       models.Millis(req.Start),
		To:         models.Millis(req.End),
	}.WithLimit(50000)

	iter := p.client.ListAggs(ctx, params)
	var points []indicator.Point
	for iter.Next() {
		agg := iter.Item()
		points = append(points, indicator.Point{Time: time.Time(agg.Timestamp).UTC(), Price: agg.Close})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("polygon aggs %s: %w", req.Symbol, err)
	}
	return toSeries(points, req.Limit)
}

func polygonTimespan(tf Timeframe) models.Timespan {
	switch tf {
	case Minute:
		return models.Minute
	case Hour:
		return models.Hour
	default:
		return models.Day
	}
}
