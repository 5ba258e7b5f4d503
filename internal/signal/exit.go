package signal

import (
	"fmt"
	"time"

	"futures-trading-engine/internal/indicator"
)

// ExitContext describes an open position for exit evaluation.
type ExitContext struct {
	Direction        Direction
	EntryPrice       float64
	StopLoss         float64
	TakeProfit       float64
	TrailingActive   bool
	TrailingStop     float64
	EntryTime        time.Time
	MaxTradeDuration time.Duration
	MinProfitPct     float64 // profit at which the position may close early; 0 disables
}

// ExitDecision is the result of exit evaluation.
type ExitDecision struct {
	ShouldClose bool
	Reason      string
}

// hold is the no-exit decision.
var hold = ExitDecision{}

// EvaluateExit checks exit conditions in priority order; the first match wins:
// TP/SL breach, trailing-stop breach, max-trade-duration, minimum profit,
// reversal signal, then weak-trend timeout.
func EvaluateExit(ctx ExitContext, price float64, snap *indicator.Snapshot, now time.Time) ExitDecision {
	long := ctx.Direction == DirLong

	// 1. Explicit TP/SL breach.
	if long {
		if ctx.StopLoss > 0 && price <= ctx.StopLoss {
			return closeAt("stop loss hit at %.8g", price)
		}
		if ctx.TakeProfit > 0 && price >= ctx.TakeProfit {
			return closeAt("take profit hit at %.8g", price)
		}
	} else {
		if ctx.StopLoss > 0 && price >= ctx.StopLoss {
			return closeAt("stop loss hit at %.8g", price)
		}
		if ctx.TakeProfit > 0 && price <= ctx.TakeProfit {
			return closeAt("take profit hit at %.8g", price)
		}
	}

	// 2. Trailing stop breach.
	if ctx.TrailingActive && ctx.TrailingStop > 0 {
		if (long && price <= ctx.TrailingStop) || (!long && price >= ctx.TrailingStop) {
			return closeAt("trailing stop hit at %.8g", price)
		}
	}

	held := now.Sub(ctx.EntryTime)

	// 3. Max trade duration.
	if ctx.MaxTradeDuration > 0 && held >= ctx.MaxTradeDuration {
		return ExitDecision{ShouldClose: true, Reason: fmt.Sprintf("max trade duration %s exceeded", ctx.MaxTradeDuration)}
	}

	// 4. Minimum profit to close.
	profitPct := ProfitPercent(ctx.Direction, ctx.EntryPrice, price)
	if ctx.MinProfitPct > 0 && profitPct >= ctx.MinProfitPct {
		return ExitDecision{ShouldClose: true, Reason: fmt.Sprintf("minimum profit %.2f%% reached", profitPct)}
	}

	if snap != nil {
		// 5. Reversal: RSI extreme against the position or MACD cross against it.
		if long && snap.RSI > 70 {
			return ExitDecision{ShouldClose: true, Reason: "reversal: RSI overbought against long"}
		}
		if !long && snap.RSI < 30 {
			return ExitDecision{ShouldClose: true, Reason: "reversal: RSI oversold against short"}
		}
		if long && snap.MACD.Status == indicator.MACDSell {
			return ExitDecision{ShouldClose: true, Reason: "reversal: MACD cross against long"}
		}
		if !long && snap.MACD.Status == indicator.MACDBuy {
			return ExitDecision{ShouldClose: true, Reason: "reversal: MACD cross against short"}
		}

		// 6. Weak trend after a minimum holding time.
		if snap.Trend.Strength < 0.3 && held >= 30*time.Minute {
			return ExitDecision{ShouldClose: true, Reason: "weak trend timeout"}
		}
	}

	return hold
}

func closeAt(format string, price float64) ExitDecision {
	return ExitDecision{ShouldClose: true, Reason: fmt.Sprintf(format, price)}
}

// ProfitPercent returns the signed unrealized profit percent for a position.
func ProfitPercent(dir Direction, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	if dir == DirLong {
		return (price - entry) / entry * 100
	}
	return (entry - price) / entry * 100
}
