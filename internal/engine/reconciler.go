package engine

import (
	"context"
	"time"

	"rsicross/internal/state"

	"github.com/rs/zerolog"
)

func ReconcileLoop(ctx context.Context, log zerolog.Logger, brokerClient Broker, store *state.Store, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, log, brokerClient, store, symbols)
		}
	}
}

// reconcileOnce replaces local orders and positions with the broker's view.
func reconcileOnce(ctx context.Context, log zerolog.Logger, brokerClient Broker, store *state.Store, symbols []string) {
	orders, err := brokerClient.OpenOrders(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile open orders failed")
	} else {
		openOrders := make(map[string]state.OpenOrder, len(orders))
		for _, order := range orders {
			openOrders[order.ClientOrderID] = state.OpenOrder{
				ClientOrderID: order.ClientOrderID,
				OrderID:       order.ID,
				Symbol:        order.Symbol,
				Status:        order.Status,
			}
		}
		store.SetOpenOrders(openOrders)
	}

	for _, symbol := range symbols {
		position, err := brokerClient.Position(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("reconcile position failed")
			continue
		}
		store.UpdatePosition(symbol, state.Position{Qty: position.Qty, AvgEntry: position.AvgEntry})
	}

	account, err := brokerClient.Account(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reconcile account failed")
		return
	}
	log.Debug().Float64("equity", account.Equity).Float64("buying_power", account.BuyingPower).Msg("account reconciled")
}
