package strategy

import (
	"time"

	"rsicross/internal/indicator"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type MarketSnapshot struct {
	Timestamp   time.Time
	Symbol      string
	Close       float64
	Evaluation  indicator.Evaluation
	PositionQty int
	Tradable    bool
	Shortable   bool
}

// TradeIntent asks for the position to be moved to TargetPercent of equity.
// Qty is filled in by the engine once the target has been sized.
type TradeIntent struct {
	Action        Action
	TargetPercent float64
	Qty           int
	Reason        string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}
