package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
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

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Broker is the subset of the trading API the engine drives.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	OpenOrders(ctx context.Context) ([]broker.OrderRef, error)
	Position(ctx context.Context, symbol string) (broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
	Asset(ctx context.Context, symbol string) (broker.Asset, error)
	Clock(ctx context.Context) (broker.Clock, error)
}

type Deps struct {
	Strategy  strategy.Strategy
	Gate      risk.Gate
	Broker    Broker
	History   md.HistoryProvider
	State     *state.Store
	Decisions *DecisionLogger
	// Recorder and Alerts are optional.
	Recorder record.Recorder
	Alerts   *notifier.Dispatcher
	Log      zerolog.Logger
	Now      func() time.Time
}

type Engine struct {
	cfg       config.Config
	timeframe md.Timeframe
	strategy  strategy.Strategy
	gate      risk.Gate
	broker    Broker
	history   md.HistoryProvider
	state     *state.Store
	decisions *DecisionLogger
	recorder  record.Recorder
	alerts    *notifier.Dispatcher
	log       zerolog.Logger
	now       func() time.Time
	runID     string

	// orderMu serializes position reads and order placement across symbols.
	orderMu     sync.Mutex
	buffersMu   sync.Mutex
	buffers     map[string]*md.RingBuffer
	orderSeqNum uint64
}

func New(cfg config.Config, deps Deps) (*Engine, error) {
	tf, err := md.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if deps.Recorder == nil {
		deps.Recorder = record.Nop{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		cfg:       cfg,
		timeframe: tf,
		strategy:  deps.Strategy,
		gate:      deps.Gate,
		broker:    deps.Broker,
		history:   deps.History,
		state:     deps.State,
		decisions: deps.Decisions,
		recorder:  deps.Recorder,
		alerts:    deps.Alerts,
		log:       deps.Log.With().Str("component", "engine").Logger(),
		now:       deps.Now,
		runID:     deps.Decisions.RunID(),
		buffers:   make(map[string]*md.RingBuffer),
	}, nil
}

// Rebalance evaluates every configured symbol against fresh history. Data
// faults are returned joined; every other failure is logged and recorded as
// a decision.
func (e *Engine) Rebalance(ctx context.Context) error {
	errs := make([]error, len(e.cfg.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range e.cfg.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			errs[i] = e.rebalanceSymbol(gctx, symbol)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (e *Engine) rebalanceSymbol(ctx context.Context, symbol string) error {
	req := md.LookbackRequest(symbol, e.timeframe, e.cfg.HistoryBars, e.now())
	prices, err := e.history.Bars(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("history fetch failed")
		e.decisions.Append(Decision{
			Timestamp:    e.now(),
			Symbol:       symbol,
			Result:       ResultFetchFailed,
			RejectReason: err.Error(),
		})
		return nil
	}
	_, err = e.evaluateSymbol(ctx, symbol, prices)
	return err
}

// OnBar feeds a streamed bar into the symbol's rolling window and evaluates it.
func (e *Engine) OnBar(ctx context.Context, bar md.Bar) {
	if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
		e.log.Warn().Str("symbol", bar.Symbol).Time("bar_time", bar.Timestamp).Msg("non-finite close dropped")
		return
	}
	buf := e.buffer(bar.Symbol)
	point := indicator.Point{Time: bar.Timestamp, Price: bar.Close}
	if !buf.Add(point) {
		e.log.Debug().Str("symbol", bar.Symbol).Time("bar_time", bar.Timestamp).Msg("stale bar dropped")
		return
	}
	e.state.SetLastBarTime(bar.Symbol, bar.Timestamp)

	eval, err := e.evaluateSymbol(ctx, bar.Symbol, buf.Series())
	if err != nil {
		e.log.Error().Err(err).Str("symbol", bar.Symbol).Msg("bar evaluation failed")
		return
	}
	if eval.RSI != nil {
		e.record(ctx, bar.Symbol, eval)
	}
}

func (e *Engine) buffer(symbol string) *md.RingBuffer {
	e.buffersMu.Lock()
	defer e.buffersMu.Unlock()
	buf, ok := e.buffers[symbol]
	if !ok {
		buf = md.NewRingBuffer(e.cfg.HistoryBars)
		e.buffers[symbol] = buf
	}
	return buf
}

// RecordVars publishes the last reading of every symbol.
func (e *Engine) RecordVars(ctx context.Context) error {
	var errs []error
	for _, symbol := range e.cfg.Symbols {
		reading := e.state.Symbol(symbol).Reading
		if reading.Time.IsZero() {
			continue
		}
		entry := record.Entry{
			Time:      reading.Time,
			Symbol:    symbol,
			RSI:       fromPtr(reading.RSI),
			EWMA:      fromPtr(reading.EWMA),
			Price:     reading.Price,
			Direction: reading.Direction,
		}
		if err := e.recorder.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.log.Warn().Err(err).Msg("record failed")
		return err
	}
	return nil
}

func (e *Engine) record(ctx context.Context, symbol string, eval indicator.Evaluation) {
	entry := record.Entry{
		Time:      eval.Price.Time,
		Symbol:    symbol,
		RSI:       eval.RSILatest,
		EWMA:      eval.EWMALatest,
		Price:     eval.Price.Price,
		Direction: string(eval.Signal.Direction),
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("record failed")
	}
}

// evaluateSymbol runs the signal engine over prices and acts on the result.
// Only data faults are returned.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, prices indicator.PriceSeries) (indicator.Evaluation, error) {
	eval, err := indicator.Evaluate(prices, e.cfg.Window)
	decision := e.baseDecision(symbol, eval)

	switch {
	case err == nil:
	case errors.Is(err, indicator.ErrInsufficientData):
		e.log.Warn().Err(err).Str("symbol", symbol).Int("bars", len(prices)).Msg("not enough history, skipping")
		decision.Result = ResultSkippedInsufficientData
		decision.Reason = err.Error()
		e.decisions.Append(decision)
		return eval, nil
	case errors.Is(err, indicator.ErrUndefinedInput):
		e.log.Info().Str("symbol", symbol).Msg("indicators warming up, holding")
		e.storeReading(symbol, eval)
		decision.Result = ResultHoldWarmup
		decision.Intent = strategy.Hold
		decision.Reason = err.Error()
		e.decisions.Append(decision)
		return eval, nil
	default:
		e.log.Error().Err(err).Str("symbol", symbol).Msg("indicator data fault")
		decision.Result = ResultDataFault
		decision.Reason = err.Error()
		e.decisions.Append(decision)
		return eval, fmt.Errorf("%s: %w", symbol, err)
	}

	e.storeReading(symbol, eval)
	e.log.Info().
		Str("symbol", symbol).
		Float64("close", eval.Price.Price).
		Float64("rsi", eval.RSILatest.TakeOr(math.NaN())).
		Float64("rsi_ewma", eval.EWMALatest.TakeOr(math.NaN())).
		Float64("delta", eval.Signal.Delta).
		Str("direction", string(eval.Signal.Direction)).
		Msg("signal evaluated")

	if e.alerts != nil {
		e.alerts.Dispatch(ctx, symbol, eval.Signal.Direction, notifier.FormatSignal(symbol, eval, e.cfg.LowRSI, e.cfg.HighRSI))
	}

	e.act(ctx, symbol, eval, decision)
	return eval, nil
}

func (e *Engine) act(ctx context.Context, symbol string, eval indicator.Evaluation, decision Decision) {
	e.orderMu.Lock()
	defer e.orderMu.Unlock()

	asset, err := e.broker.Asset(ctx, symbol)
	if err != nil {
		e.brokerFailed(decision, err)
		return
	}

	symState := e.state.Symbol(symbol)
	position := symState.Position.Qty
	decision.PositionQty = position

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp:   eval.Price.Time,
		Symbol:      symbol,
		Close:       eval.Price.Price,
		Evaluation:  eval,
		PositionQty: position,
		Tradable:    asset.Tradable,
		Shortable:   asset.Shortable,
	})

	if intent.Action != strategy.Hold {
		account, err := e.broker.Account(ctx)
		if err != nil {
			e.brokerFailed(decision, err)
			return
		}
		intent = e.size(intent, account.Equity, eval.Price.Price, position)
	}
	decision.Intent = intent.Action
	decision.TargetPercent = intent.TargetPercent
	decision.IntentQty = intent.Qty
	decision.Reason = intent.Reason

	riskCtx := risk.RiskContext{
		Now:            e.now(),
		Symbol:         symbol,
		Price:          eval.Price.Price,
		PositionQty:    position,
		OpenOrderCount: e.state.OpenOrderCount(symbol),
		LastTradeTime:  symState.LastTradeTime,
		MaxQty:         e.cfg.MaxQty,
		MaxNotional:    e.cfg.MaxNotional,
		Cooldown:       e.cfg.Cooldown,
		KillSwitch:     e.cfg.KillSwitch,
		Tradable:       asset.Tradable,
		Shortable:      asset.Shortable,
		AllowShort:     e.cfg.AllowShort,
		ExtendedHours:  e.cfg.ExtendedHours,
		OrderType:      e.cfg.OrderType,
		TimeInForce:    e.cfg.TimeInForce,
	}

	approved, err := e.gate.Evaluate(intent, riskCtx)
	if err != nil {
		decision.Result = ResultRejected
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		return
	}
	decision.ApprovalReason = approved.Reason

	if intent.Action == strategy.Hold {
		decision.Result = ResultHold
		e.decisions.Append(decision)
		return
	}

	if e.cfg.Trading != config.TradingPaper {
		decision.Result = ResultDryRun
		e.decisions.Append(decision)
		e.log.Info().Str("symbol", symbol).Str("intent", string(intent.Action)).Int("qty", intent.Qty).Msg("dry run, order not placed")
		return
	}

	orderReq, err := e.buildOrder(symbol, eval.Price.Price, approved.Intent)
	if err != nil {
		decision.Result = ResultOrderBuildFailed
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		return
	}

	orderRef, err := e.broker.PlaceOrder(ctx, orderReq)
	if err != nil {
		decision.Result = ResultOrderFailed
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		return
	}

	decision.Result = ResultOrderSubmitted
	decision.OrderID = orderRef.ID
	decision.ClientOrderID = orderRef.ClientOrderID
	e.decisions.Append(decision)

	e.state.SetLastTradeTime(symbol, e.now())
	e.state.AddOpenOrder(state.OpenOrder{
		ClientOrderID: orderRef.ClientOrderID,
		OrderID:       orderRef.ID,
		Symbol:        symbol,
		Status:        orderRef.Status,
	})
}

func (e *Engine) brokerFailed(decision Decision, err error) {
	e.log.Error().Err(err).Str("symbol", decision.Symbol).Msg("broker call failed")
	decision.Result = ResultBrokerFailed
	decision.RejectReason = err.Error()
	e.decisions.Append(decision)
}

// size turns a target percent of equity into a signed order quantity. The
// target is capped at MaxQty shares and each order at MaxNotional.
func (e *Engine) size(intent strategy.TradeIntent, equity, price float64, position int) strategy.TradeIntent {
	if price <= 0 {
		return strategy.TradeIntent{Action: strategy.Hold, Reason: "no_price"}
	}
	target := int(math.Trunc(equity * intent.TargetPercent / price))
	target = max(min(target, e.cfg.MaxQty), -e.cfg.MaxQty)

	delta := target - position
	maxOrder := int(math.Floor(e.cfg.MaxNotional / price))
	switch {
	case delta > 0:
		intent.Action = strategy.Buy
		intent.Qty = min(delta, maxOrder)
	case delta < 0:
		intent.Action = strategy.Sell
		intent.Qty = min(-delta, maxOrder)
	default:
		return strategy.TradeIntent{Action: strategy.Hold, TargetPercent: intent.TargetPercent, Reason: "at_target"}
	}
	return intent
}

func (e *Engine) storeReading(symbol string, eval indicator.Evaluation) {
	e.state.SetReading(symbol, state.Reading{
		Time:      eval.Price.Time,
		Price:     eval.Price.Price,
		RSI:       toPtr(eval.RSILatest),
		EWMA:      toPtr(eval.EWMALatest),
		Direction: string(eval.Signal.Direction),
	})
}

func (e *Engine) baseDecision(symbol string, eval indicator.Evaluation) Decision {
	d := Decision{
		Timestamp: e.now(),
		BarTime:   eval.Price.Time,
		Symbol:    symbol,
		Close:     eval.Price.Price,
		RSI:       toPtr(eval.RSILatest),
		EWMA:      toPtr(eval.EWMALatest),
		Direction: string(eval.Signal.Direction),
	}
	if d.RSI != nil {
		d.Zone = string(indicator.Classify(*d.RSI, e.cfg.LowRSI, e.cfg.HighRSI))
	}
	if d.Direction != "" {
		delta := eval.Signal.Delta
		d.Delta = &delta
	}
	return d
}

func (e *Engine) buildOrder(symbol string, price float64, intent strategy.TradeIntent) (broker.OrderRequest, error) {
	orderType, err := parseOrderType(e.cfg.OrderType)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	tif, err := parseTimeInForce(e.cfg.TimeInForce)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	side := alpaca.Buy
	if intent.Action == strategy.Sell {
		side = alpaca.Sell
	}

	req := broker.OrderRequest{
		Symbol:        symbol,
		Qty:           intent.Qty,
		Side:          side,
		Type:          orderType,
		TimeInForce:   tif,
		ClientOrderID: e.nextClientOrderID(),
		ExtendedHours: e.cfg.ExtendedHours,
	}

	if orderType == alpaca.Limit {
		req.LimitPrice = &price
	}

	return req, nil
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}

func parseOrderType(value string) (alpaca.OrderType, error) {
	switch value {
	case "market":
		return alpaca.Market, nil
	case "limit":
		return alpaca.Limit, nil
	default:
		return "", fmt.Errorf("unsupported order type: %s", value)
	}
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day":
		return alpaca.Day, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}

func toPtr(v optional.Option[float64]) *float64 {
	if v.IsNone() {
		return nil
	}
	x := v.Unwrap()
	return &x
}

func fromPtr(v *float64) optional.Option[float64] {
	if v == nil {
		return optional.None[float64]()
	}
	return optional.Some(*v)
}
