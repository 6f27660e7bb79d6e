package md

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/rs/zerolog"
)

type Bar struct {
	Symbol    string
	Timestamp time.Time
	Close     float64
}

type BarHandler func(Bar)

// StartStream subscribes to minute bars for symbols and blocks until ctx is done.
func StartStream(ctx context.Context, log zerolog.Logger, apiKey, apiSecret, feed string, symbols []string, handler BarHandler) error {
	client := stream.NewStocksClient(
		parseFeed(feed),
		stream.WithCredentials(apiKey, apiSecret),
	)

	// Connect must be called before subscribing in this SDK version.
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}
	log.Debug().Strs("symbols", symbols).Msg("connected to stream")

	if err := client.SubscribeToBars(func(bar stream.Bar) {
		log.Debug().Str("symbol", bar.Symbol).Time("bar_time", bar.Timestamp).Float64("close", bar.Close).Msg("bar received")
		handler(Bar{
			Symbol:    bar.Symbol,
			Timestamp: bar.Timestamp.UTC(),
			Close:     bar.Close,
		})
	}, symbols...); err != nil {
		return fmt.Errorf("subscribe to bars: %w", err)
	}
	log.Info().Strs("symbols", symbols).Msg("subscribed to bars")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		return err
	}
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
