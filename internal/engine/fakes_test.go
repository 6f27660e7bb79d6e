package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rsicross/internal/broker"
	"rsicross/internal/config"
	"rsicross/internal/indicator"
	"rsicross/internal/md"
	"rsicross/internal/notifier"
	"rsicross/internal/record"
	"rsicross/internal/risk"
	"rsicross/internal/state"
	"rsicross/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2016, 7, 1, 20, 0, 0, 0, time.UTC)

func daily(prices ...float64) indicator.PriceSeries {
	series := make(indicator.PriceSeries, len(prices))
	for i, p := range prices {
		series[i] = indicator.Point{Time: day0.AddDate(0, 0, i), Price: p}
	}
	return series
}

// rally ends with RSI above its smoothed mean.
func rally() indicator.PriceSeries {
	return daily(50, 49, 50, 49, 50, 49, 50, 49, 50, 49, 50, 49, 52, 55, 59)
}

// pullback ends with RSI below its smoothed mean.
func pullback() indicator.PriceSeries {
	return daily(44, 44.25, 44.5, 43.75, 44.65, 45.1, 45.42, 45.84, 46.08, 45.89, 46.03, 46.83, 46.69, 46.45, 46.59)
}

type fakeHistory struct {
	mu       sync.Mutex
	series   map[string]indicator.PriceSeries
	err      error
	requests []md.Request
}

func (f *fakeHistory) Bars(_ context.Context, req md.Request) (indicator.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.series[req.Symbol], nil
}

type fakeBroker struct {
	mu         sync.Mutex
	equity     float64
	positions  map[string]int
	assets     map[string]broker.Asset
	orders     []broker.OrderRequest
	open       []broker.OrderRef
	clocks     []broker.Clock
	onEmpty    func()
	accountErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		equity:    1000,
		positions: map[string]int{},
		assets:    map[string]broker.Asset{},
	}
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return broker.OrderRef{ID: fmt.Sprintf("order-%d", len(f.orders)), ClientOrderID: req.ClientOrderID, Symbol: req.Symbol, Status: "new"}, nil
}

func (f *fakeBroker) OpenOrders(context.Context) ([]broker.OrderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, nil
}

func (f *fakeBroker) Position(_ context.Context, symbol string) (broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return broker.Position{Symbol: symbol, Qty: f.positions[symbol]}, nil
}

func (f *fakeBroker) Account(context.Context) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountErr != nil {
		return broker.Account{}, f.accountErr
	}
	return broker.Account{Equity: f.equity, BuyingPower: f.equity}, nil
}

func (f *fakeBroker) Asset(_ context.Context, symbol string) (broker.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[symbol]; ok {
		return a, nil
	}
	return broker.Asset{Symbol: symbol, Tradable: true, Shortable: true}, nil
}

func (f *fakeBroker) Clock(ctx context.Context) (broker.Clock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clocks) == 0 {
		if f.onEmpty != nil {
			f.onEmpty()
		}
		return broker.Clock{}, context.Canceled
	}
	c := f.clocks[0]
	f.clocks = f.clocks[1:]
	return c, nil
}

func (f *fakeBroker) placed() []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.OrderRequest(nil), f.orders...)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []record.Entry
}

func (c *captureRecorder) Record(_ context.Context, entry record.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

type countingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Message
}

func (c *countingNotifier) Send(_ context.Context, msg notifier.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testConfig() config.Config {
	return config.Config{
		Mode:              config.ModeSchedule,
		Trading:           config.TradingPaper,
		Symbols:           []string{"RMTI"},
		Window:            9,
		HistoryBars:       20,
		Timeframe:         "1d",
		Provider:          "alpaca",
		LowRSI:            30,
		HighRSI:           70,
		MaxQty:            100,
		MaxNotional:       10000,
		ReconcileInterval: time.Second,
		OrderType:         "market",
		TimeInForce:       "day",
		NotifyRetries:     1,
	}
}

type harness struct {
	engine    *Engine
	history   *fakeHistory
	broker    *fakeBroker
	store     *state.Store
	recorder  *captureRecorder
	notifier  *countingNotifier
	alerts    *notifier.Dispatcher
	decisions string
}

func newHarness(t *testing.T, cfg config.Config, series map[string]indicator.PriceSeries) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	decisions, err := NewDecisionLogger(path, "test-run")
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisions.Close() })

	h := &harness{
		history:   &fakeHistory{series: series},
		broker:    newFakeBroker(),
		store:     state.NewStore(),
		recorder:  &captureRecorder{},
		notifier:  &countingNotifier{},
		decisions: path,
	}
	h.alerts = notifier.NewDispatcher(h.notifier, zerolog.Nop(), time.Second)
	h.engine, err = New(cfg, Deps{
		Strategy:  strategy.RSICrossover{AllowShort: cfg.AllowShort},
		Gate:      risk.Gate{},
		Broker:    h.broker,
		History:   h.history,
		State:     h.store,
		Decisions: decisions,
		Recorder:  h.recorder,
		Alerts:    h.alerts,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return day0.AddDate(0, 1, 0) },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) readDecisions(t *testing.T) []Decision {
	t.Helper()
	file, err := os.Open(h.decisions)
	require.NoError(t, err)
	defer file.Close()

	var out []Decision
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		out = append(out, d)
	}
	require.NoError(t, scanner.Err())
	return out
}
