package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"rsicross/internal/broker"
	"rsicross/internal/config"
	"rsicross/internal/indicator"
	"rsicross/internal/md"
	"rsicross/internal/state"
	"rsicross/internal/strategy"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebalanceBuysOnLongSignal(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": rally()})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	orders := h.broker.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, "RMTI", orders[0].Symbol)
	assert.Equal(t, alpaca.Buy, orders[0].Side)
	assert.Equal(t, 16, orders[0].Qty, "trunc(1000 / 59)")
	assert.Equal(t, "test-run-1", orders[0].ClientOrderID)

	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	d := decisions[0]
	assert.Equal(t, ResultOrderSubmitted, d.Result)
	assert.Equal(t, "LONG", d.Direction)
	assert.Equal(t, strategy.Buy, d.Intent)
	assert.Equal(t, 1.0, d.TargetPercent)
	require.NotNil(t, d.RSI)
	require.NotNil(t, d.EWMA)
	require.NotNil(t, d.Delta)
	assert.Greater(t, *d.Delta, 0.0)
	assert.Equal(t, "overbought", d.Zone)
	assert.Equal(t, "test-run", d.RunID)

	assert.Equal(t, 1, h.store.OpenOrderCount("RMTI"))
	assert.False(t, h.store.Symbol("RMTI").LastTradeTime.IsZero())

	require.Len(t, h.history.requests, 1)
	assert.Equal(t, md.Day, h.history.requests[0].Timeframe)
	assert.Equal(t, 20, h.history.requests[0].Limit)
}

func TestRebalanceTopsUpTowardsTarget(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": rally()})
	h.store.UpdatePosition("RMTI", state.Position{Qty: 10})

	require.NoError(t, h.engine.Rebalance(context.Background()))
	orders := h.broker.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, 6, orders[0].Qty)

	h2 := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": rally()})
	h2.store.UpdatePosition("RMTI", state.Position{Qty: 16})
	require.NoError(t, h2.engine.Rebalance(context.Background()))
	assert.Empty(t, h2.broker.placed())
	decisions := h2.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultHold, decisions[0].Result)
	assert.Equal(t, "at_target", decisions[0].Reason)
}

func TestRebalanceExitsLongOnShortSignal(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": pullback()})
	h.store.UpdatePosition("RMTI", state.Position{Qty: 7})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	orders := h.broker.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, alpaca.Sell, orders[0].Side)
	assert.Equal(t, 7, orders[0].Qty)
}

func TestRebalanceShortsWhenAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.AllowShort = true
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": pullback()})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	orders := h.broker.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, alpaca.Sell, orders[0].Side)
	assert.Equal(t, 21, orders[0].Qty, "trunc(1000 / 46.59)")
}

func TestRebalanceExitsLongWhenAssetNotShortable(t *testing.T) {
	cfg := testConfig()
	cfg.AllowShort = true
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": pullback()})
	h.broker.assets["RMTI"] = broker.Asset{Symbol: "RMTI", Tradable: true}
	h.store.UpdatePosition("RMTI", state.Position{Qty: 7})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	orders := h.broker.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, alpaca.Sell, orders[0].Side)
	assert.Equal(t, 7, orders[0].Qty, "sells down to flat instead of through zero")
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultOrderSubmitted, decisions[0].Result)
	assert.Zero(t, decisions[0].TargetPercent)
}

func TestRebalanceHoldsShortSignalWhenFlat(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": pullback()})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	assert.Empty(t, h.broker.placed())
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultHold, decisions[0].Result)
	assert.Equal(t, "SHORT", decisions[0].Direction)
}

func TestRebalanceSkipsShortHistory(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": daily(1, 2, 3)})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	assert.Empty(t, h.broker.placed())
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultSkippedInsufficientData, decisions[0].Result)
	assert.Nil(t, decisions[0].RSI)
	assert.Zero(t, h.notifier.count())
}

func TestRebalanceReturnsDataFaults(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"RMTI", "AAPL"}
	cfg.Window = 0
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": rally(), "AAPL": rally()})

	err := h.engine.Rebalance(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, indicator.ErrInvalidWindow)
	assert.Contains(t, err.Error(), "RMTI")
	assert.Contains(t, err.Error(), "AAPL")

	for _, d := range h.readDecisions(t) {
		assert.Equal(t, ResultDataFault, d.Result)
	}
}

func TestRebalanceRecordsFetchFailures(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.history.err = errors.New("upstream 503")

	require.NoError(t, h.engine.Rebalance(context.Background()))

	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultFetchFailed, decisions[0].Result)
	assert.Contains(t, decisions[0].RejectReason, "upstream 503")
}

func TestRebalanceRecordsBrokerFailures(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": rally()})
	h.broker.accountErr = errors.New("account locked")

	require.NoError(t, h.engine.Rebalance(context.Background()))

	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultBrokerFailed, decisions[0].Result)
}

func TestRebalanceDryRunPlacesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Trading = config.TradingDryRun
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": rally()})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	assert.Empty(t, h.broker.placed())
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultDryRun, decisions[0].Result)
	assert.Equal(t, 16, decisions[0].IntentQty)
}

func TestRebalanceRespectsRiskGate(t *testing.T) {
	cfg := testConfig()
	cfg.KillSwitch = true
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": rally()})

	require.NoError(t, h.engine.Rebalance(context.Background()))

	assert.Empty(t, h.broker.placed())
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultRejected, decisions[0].Result)
	assert.Equal(t, "kill_switch_enabled", decisions[0].RejectReason)
}

func TestRebalanceNotTradableHolds(t *testing.T) {
	h := newHarness(t, testConfig(), map[string]indicator.PriceSeries{"RMTI": rally()})
	h.broker.assets["RMTI"] = broker.Asset{Symbol: "RMTI"}

	require.NoError(t, h.engine.Rebalance(context.Background()))

	assert.Empty(t, h.broker.placed())
	decisions := h.readDecisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, "not_tradable", decisions[0].Reason)
}

func TestNotifierFiresOncePerDirectionChange(t *testing.T) {
	cfg := testConfig()
	cfg.Trading = config.TradingDryRun
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": rally()})
	ctx := context.Background()

	require.NoError(t, h.engine.Rebalance(ctx))
	require.NoError(t, h.engine.Rebalance(ctx))
	h.alerts.Wait()
	assert.Equal(t, 1, h.notifier.count())

	h.history.series["RMTI"] = pullback()
	require.NoError(t, h.engine.Rebalance(ctx))
	h.alerts.Wait()
	assert.Equal(t, 2, h.notifier.count())
	assert.Equal(t, "RMTI SHORT", h.notifier.sent[1].Subject)
}

func TestRecordVarsPublishesLastReadings(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"RMTI", "AAPL", "MSFT"}
	h := newHarness(t, cfg, map[string]indicator.PriceSeries{"RMTI": pullback(), "AAPL": daily(1, 2)})
	ctx := context.Background()

	require.NoError(t, h.engine.Rebalance(ctx))
	require.NoError(t, h.engine.RecordVars(ctx))

	require.Len(t, h.recorder.entries, 1, "symbols without a reading are skipped")
	entry := h.recorder.entries[0]
	assert.Equal(t, "RMTI", entry.Symbol)
	assert.InDelta(t, 73.6192, entry.RSI.Unwrap(), 1e-4)
	assert.InDelta(t, 75.5092, entry.EWMA.Unwrap(), 1e-4)
	assert.Equal(t, 46.59, entry.Price)
	assert.Equal(t, "SHORT", entry.Direction)
}

func TestOnBarEvaluatesRollingWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeStream
	cfg.Trading = config.TradingDryRun
	h := newHarness(t, cfg, nil)
	ctx := context.Background()

	for _, p := range rally() {
		h.engine.OnBar(ctx, md.Bar{Symbol: "RMTI", Timestamp: p.Time, Close: p.Price})
	}
	// A replayed bar is ignored.
	last := rally()[len(rally())-1]
	h.engine.OnBar(ctx, md.Bar{Symbol: "RMTI", Timestamp: last.Time, Close: 1})

	decisions := h.readDecisions(t)
	require.Len(t, decisions, len(rally()))
	for _, d := range decisions[:9] {
		assert.Equal(t, ResultSkippedInsufficientData, d.Result)
	}
	final := decisions[len(decisions)-1]
	assert.Equal(t, "LONG", final.Direction)
	assert.Equal(t, ResultDryRun, final.Result)
	assert.Equal(t, 59.0, final.Close)

	assert.Len(t, h.recorder.entries, len(rally())-9)
	assert.Equal(t, last.Time, h.store.Symbol("RMTI").LastBarTime)

	// A non-finite close never enters the window.
	h.engine.OnBar(ctx, md.Bar{Symbol: "RMTI", Timestamp: last.Time.Add(time.Minute), Close: math.NaN()})
	assert.Len(t, h.readDecisions(t), len(rally()))
	assert.Equal(t, last.Time, h.store.Symbol("RMTI").LastBarTime)
}

func TestSizeCapsByMaxQtyAndNotional(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQty = 10
	cfg.MaxNotional = 250
	h := newHarness(t, cfg, nil)

	intent := h.engine.size(strategy.TradeIntent{Action: strategy.Buy, TargetPercent: 1}, 100000, 50, 0)
	assert.Equal(t, strategy.Buy, intent.Action)
	assert.Equal(t, 5, intent.Qty, "floor(250 / 50)")

	intent = h.engine.size(strategy.TradeIntent{Action: strategy.Buy, TargetPercent: 1}, 100000, 50, 8)
	assert.Equal(t, 2, intent.Qty, "target capped at MaxQty")

	intent = h.engine.size(strategy.TradeIntent{Action: strategy.Sell, TargetPercent: -1}, 100000, 50, 2)
	assert.Equal(t, strategy.Sell, intent.Action)
	assert.Equal(t, 5, intent.Qty)

	intent = h.engine.size(strategy.TradeIntent{Action: strategy.Sell, TargetPercent: 0}, 100000, 50, -3)
	assert.Equal(t, strategy.Buy, intent.Action, "covering a short")
	assert.Equal(t, 3, intent.Qty)

	intent = h.engine.size(strategy.TradeIntent{Action: strategy.Buy, TargetPercent: 1}, 1000, 0, 0)
	assert.Equal(t, strategy.Hold, intent.Action)
}

func TestBuildOrderLimitPrice(t *testing.T) {
	cfg := testConfig()
	cfg.OrderType = "limit"
	h := newHarness(t, cfg, nil)

	req, err := h.engine.buildOrder("RMTI", 19.8, strategy.TradeIntent{Action: strategy.Sell, Qty: 3})
	require.NoError(t, err)
	assert.Equal(t, alpaca.Limit, req.Type)
	assert.Equal(t, alpaca.Sell, req.Side)
	require.NotNil(t, req.LimitPrice)
	assert.Equal(t, 19.8, *req.LimitPrice)

	h.engine.cfg.TimeInForce = "gtc"
	_, err = h.engine.buildOrder("RMTI", 19.8, strategy.TradeIntent{Action: strategy.Buy, Qty: 1})
	assert.Error(t, err)
}

func TestReconcileReplacesLocalState(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.store.AddOpenOrder(state.OpenOrder{ClientOrderID: "stale", Symbol: "RMTI"})
	h.broker.positions["RMTI"] = -4
	h.broker.open = []broker.OrderRef{{ID: "1", ClientOrderID: "live", Symbol: "AAPL", Status: "new"}}

	reconcileOnce(context.Background(), h.engine.log, h.broker, h.store, []string{"RMTI", "AAPL"})

	assert.Equal(t, -4, h.store.Symbol("RMTI").Position.Qty)
	assert.Zero(t, h.store.OpenOrderCount("RMTI"))
	assert.Equal(t, 1, h.store.OpenOrderCount("AAPL"))
}

func TestReconcileLoopStopsOnCancel(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.broker.positions["RMTI"] = 2
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		ReconcileLoop(ctx, h.engine.log, h.broker, h.store, []string{"RMTI"}, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.store.Symbol("RMTI").Position.Qty == 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconcile loop did not stop")
	}
}
