package risk

import (
	"errors"
	"time"

	"rsicross/internal/strategy"

	"github.com/rs/zerolog"
)

var (
	ErrKillSwitch          = errors.New("kill_switch_enabled")
	ErrOpenOrder           = errors.New("open_order_exists")
	ErrCooldown            = errors.New("cooldown_active")
	ErrNotTradable         = errors.New("asset_not_tradable")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrMaxPosition         = errors.New("max_position_exceeded")
	ErrShortNotAllowed     = errors.New("short_not_allowed")
	ErrMaxNotional         = errors.New("max_notional_exceeded")
	ErrExtendedHoursOrders = errors.New("extended_hours_requires_limit_day")
)

type RiskContext struct {
	Now            time.Time
	Symbol         string
	Price          float64
	PositionQty    int
	OpenOrderCount int
	LastTradeTime  time.Time
	MaxQty         int
	MaxNotional    float64
	Cooldown       time.Duration
	KillSwitch     bool
	Tradable       bool
	Shortable      bool
	AllowShort     bool
	ExtendedHours  bool
	OrderType      string
	TimeInForce    string
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

// Gate checks sized intents against the configured limits. The zero value
// logs nothing.
type Gate struct {
	Log zerolog.Logger
}

// resultingQty is the signed position after the intent fills.
func resultingQty(intent strategy.TradeIntent, position int) int {
	if intent.Action == strategy.Sell {
		return position - intent.Qty
	}
	return position + intent.Qty
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	notional := ctx.Price * float64(intent.Qty)
	after := resultingQty(intent, ctx.PositionQty)
	g.Log.Info().
		Str("symbol", ctx.Symbol).
		Str("intent", string(intent.Action)).
		Int("qty", intent.Qty).
		Int("position", ctx.PositionQty).
		Float64("price", ctx.Price).
		Float64("notional", notional).
		Msg("risk evaluation")

	reject := func(err error) (ApprovedIntent, error) {
		g.Log.Info().Str("symbol", ctx.Symbol).Str("reason", err.Error()).Msg("risk rejected")
		return ApprovedIntent{}, err
	}

	if ctx.KillSwitch {
		return reject(ErrKillSwitch)
	}
	if ctx.OpenOrderCount > 0 {
		return reject(ErrOpenOrder)
	}
	if !ctx.LastTradeTime.IsZero() && ctx.Now.Sub(ctx.LastTradeTime) < ctx.Cooldown {
		return reject(ErrCooldown)
	}
	if !ctx.Tradable {
		return reject(ErrNotTradable)
	}
	if intent.Qty <= 0 {
		return reject(ErrInvalidQuantity)
	}
	if abs(after) > ctx.MaxQty {
		return reject(ErrMaxPosition)
	}
	if after < 0 && (!ctx.AllowShort || !ctx.Shortable) {
		return reject(ErrShortNotAllowed)
	}
	if notional > ctx.MaxNotional {
		return reject(ErrMaxNotional)
	}
	if ctx.ExtendedHours && (ctx.OrderType != "limit" || ctx.TimeInForce != "day") {
		return reject(ErrExtendedHoursOrders)
	}

	g.Log.Info().
		Str("symbol", ctx.Symbol).
		Str("intent", string(intent.Action)).
		Int("qty", intent.Qty).
		Int("resulting_position", after).
		Str("reason", intent.Reason).
		Msg("risk approved")
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
