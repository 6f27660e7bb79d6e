package strategy

import (
	"rsicross/internal/indicator"
)

// RSICrossover targets a fully long book when RSI is above its smoothed mean
// and a fully short one when it is below. Without AllowShort, or for an asset
// that cannot be shorted, the short side only exits to flat. The
// engine turns the target into an order, so repeated signals only top up or
// trim the position.
type RSICrossover struct {
	AllowShort bool
}

func (s RSICrossover) Decide(snapshot MarketSnapshot) TradeIntent {
	if !snapshot.Tradable {
		return TradeIntent{Action: Hold, Reason: "not_tradable"}
	}

	switch snapshot.Evaluation.Signal.Direction {
	case indicator.Long:
		return TradeIntent{Action: Buy, TargetPercent: 1, Reason: "rsi_above_ewma"}
	case indicator.Short:
		if s.AllowShort && snapshot.Shortable {
			return TradeIntent{Action: Sell, TargetPercent: -1, Reason: "rsi_below_ewma"}
		}
		if snapshot.PositionQty > 0 {
			return TradeIntent{Action: Sell, TargetPercent: 0, Reason: "rsi_below_ewma_exit"}
		}
		return TradeIntent{Action: Hold, Reason: "rsi_below_ewma_no_short"}
	default:
		return TradeIntent{Action: Hold, Reason: "no_crossover"}
	}
}
