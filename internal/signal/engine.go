package signal

import (
	"fmt"
	"math"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/regime"

	"github.com/rs/zerolog"
)

// Action is the trading action a signal recommends.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Direction is the side of an open position.
type Direction string

const (
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

// Signal is a scored entry/exit decision.
type Signal struct {
	Symbol        string    `json:"symbol"`
	Action        Action    `json:"action"`
	Confidence    float64   `json:"confidence"` // [0.5, 0.9] for BUY/SELL
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	Quantity      float64   `json:"quantity"` // base-asset quantity
	Notional      float64   `json:"notional"` // quote-asset size
	Reason        string    `json:"reason"`
	Confirmations int       `json:"confirmations"`
	Synthetic     bool      `json:"synthetic"`
	Timestamp     time.Time `json:"timestamp"`
}

// Engine converts indicators + regime + settings into trading signals using
// confirmation voting.
type Engine struct {
	settings config.SignalSettings
	log      zerolog.Logger
}

// NewEngine creates a signal engine with the given settings.
func NewEngine(settings config.SignalSettings, logger zerolog.Logger) *Engine {
	return &Engine{
		settings: settings,
		log:      logger.With().Str("component", "signal").Logger(),
	}
}

// UpdateSettings replaces the engine settings.
func (e *Engine) UpdateSettings(settings config.SignalSettings) {
	e.settings = settings
}

// Generate produces an entry signal for the symbol from the current indicator
// snapshot and market assessment. It never returns an error: when no entry is
// warranted the result is a HOLD with the reason attached. Signals built from
// synthetic assessments carry Synthetic=true and are never actionable entries.
func (e *Engine) Generate(symbol string, snap *indicator.Snapshot, assessment *regime.Assessment, balance float64) *Signal {
	now := time.Now()

	if assessment == nil || assessment.Synthetic || snap == nil {
		return &Signal{
			Symbol:    symbol,
			Action:    ActionHold,
			Reason:    "Insufficient market data",
			Synthetic: true,
			Timestamp: now,
		}
	}

	price := snap.LastClose
	candidate, source := e.candidateDirection(snap)
	if candidate == ActionHold {
		return &Signal{
			Symbol:    symbol,
			Action:    ActionHold,
			Reason:    "Direction could not be determined",
			Timestamp: now,
		}
	}

	confirmations, weighted, blocked := e.vote(candidate, snap)
	if blocked != "" {
		return &Signal{
			Symbol:    symbol,
			Action:    ActionHold,
			Reason:    blocked,
			Timestamp: now,
		}
	}
	if confirmations < e.settings.ConfirmationRequired {
		return &Signal{
			Symbol:        symbol,
			Action:        ActionHold,
			Confirmations: confirmations,
			Reason: fmt.Sprintf("Only %d/%d confirmations for %s",
				confirmations, e.settings.ConfirmationRequired, candidate),
			Timestamp: now,
		}
	}

	confidence := math.Min(weighted/float64(e.settings.ConfirmationRequired*2), 1) * e.settings.Sensitivity
	confidence = e.adjustForRegime(confidence, candidate, assessment)
	confidence = clampSignalConfidence(confidence)

	notional := e.positionSize(balance, confidence, snap.Volatility.ValuePct)
	stopLoss, takeProfit := e.stops(candidate, price, snap)

	sig := &Signal{
		Symbol:        symbol,
		Action:        candidate,
		Confidence:    confidence,
		EntryPrice:    price,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		Notional:      notional,
		Quantity:      notional / price,
		Confirmations: confirmations,
		Reason:        fmt.Sprintf("%s via %s, %d confirmations", candidate, source, confirmations),
		Timestamp:     now,
	}
	e.log.Debug().
		Str("symbol", symbol).
		Str("action", string(sig.Action)).
		Float64("confidence", sig.Confidence).
		Int("confirmations", sig.Confirmations).
		Msg("signal generated")
	return sig
}

// candidateDirection derives the candidate trade direction: trend rule first,
// counter-trend RSI override, then MA crossover, MACD crossover, and RSI
// extremes as fallbacks.
func (e *Engine) candidateDirection(snap *indicator.Snapshot) (Action, string) {
	var candidate Action = ActionHold
	source := ""

	if e.settings.UseTrendDetection && snap.Trend.Strength >= e.settings.MinTrendStrength {
		switch snap.Trend.Direction {
		case indicator.TrendUp:
			candidate, source = ActionBuy, "trend"
		case indicator.TrendDown:
			candidate, source = ActionSell, "trend"
		}
	}

	if e.settings.AllowCounterTrend {
		if snap.RSI > 70 && candidate != ActionSell {
			candidate, source = ActionSell, "counter-trend RSI"
		} else if snap.RSI < 30 && candidate != ActionBuy {
			candidate, source = ActionBuy, "counter-trend RSI"
		}
	}

	if candidate == ActionHold {
		if snap.EMAShort > 0 && snap.EMALong > 0 {
			diff := (snap.EMAShort - snap.EMALong) / snap.EMALong
			if diff > 0.001 {
				candidate, source = ActionBuy, "MA crossover"
			} else if diff < -0.001 {
				candidate, source = ActionSell, "MA crossover"
			}
		}
	}

	if candidate == ActionHold {
		switch snap.MACD.Status {
		case indicator.MACDBuy:
			candidate, source = ActionBuy, "MACD crossover"
		case indicator.MACDSell:
			candidate, source = ActionSell, "MACD crossover"
		}
	}

	if candidate == ActionHold {
		if snap.RSI < 30 {
			candidate, source = ActionBuy, "RSI oversold"
		} else if snap.RSI > 70 {
			candidate, source = ActionSell, "RSI overbought"
		}
	}

	return candidate, source
}

// vote counts confirmations for the candidate direction. Each agreeing
// indicator contributes one vote and its configured weight. A non-empty
// blocked reason means the entry must not proceed regardless of votes.
func (e *Engine) vote(candidate Action, snap *indicator.Snapshot) (confirmations int, weighted float64, blocked string) {
	agreeRSI := (candidate == ActionBuy && snap.RSI < 40) || (candidate == ActionSell && snap.RSI > 60)
	if agreeRSI {
		confirmations++
		weighted += e.settings.RSIWeight
	}

	agreeMACD := (candidate == ActionBuy && (snap.MACD.Status == indicator.MACDBuy || snap.MACD.Status == indicator.MACDBullish)) ||
		(candidate == ActionSell && (snap.MACD.Status == indicator.MACDSell || snap.MACD.Status == indicator.MACDBearish))
	if agreeMACD {
		confirmations++
		weighted += e.settings.MACDWeight
	}

	if snap.EMAShort > 0 && snap.EMALong > 0 {
		agreeMA := (candidate == ActionBuy && snap.EMAShort > snap.EMALong) ||
			(candidate == ActionSell && snap.EMAShort < snap.EMALong)
		if agreeMA {
			confirmations++
			weighted += e.settings.MAWeight
		}
	}

	agreeMomentum := (candidate == ActionBuy && snap.Momentum.Direction == indicator.TrendUp) ||
		(candidate == ActionSell && snap.Momentum.Direction == indicator.TrendDown)
	if agreeMomentum {
		confirmations++
		weighted += e.settings.MomentumWeight
	}

	volumeAgrees := (candidate == ActionBuy && snap.VolumeProfile.Bias == indicator.TrendUp) ||
		(candidate == ActionSell && snap.VolumeProfile.Bias == indicator.TrendDown)
	if volumeAgrees {
		confirmations++
		weighted += e.settings.VolumeWeight
	} else if e.settings.RequireVolumeConfirm {
		return confirmations, weighted, "Volume confirmation required but absent"
	}

	return confirmations, weighted, ""
}

// adjustForRegime moves confidence ±20% depending on whether the candidate
// direction agrees with the classified regime.
func (e *Engine) adjustForRegime(confidence float64, candidate Action, assessment *regime.Assessment) float64 {
	if assessment.MarketType != regime.MarketTrending || assessment.Indicators == nil {
		return confidence
	}
	trendDir := assessment.Indicators.Trend.Direction
	agrees := (candidate == ActionBuy && trendDir == indicator.TrendUp) ||
		(candidate == ActionSell && trendDir == indicator.TrendDown)
	if agrees {
		return confidence * 1.2
	}
	return confidence * 0.8
}

// positionSize computes the entry notional: a base fraction of balance scaled
// by confidence and inversely by volatility, clamped to [2%, 30%] of balance.
func (e *Engine) positionSize(balance, confidence, volatilityPct float64) float64 {
	base := balance * e.settings.BasePositionPct
	size := base * math.Max(confidence, 0.5)

	if volatilityPct > 2.0 {
		size *= 0.7
	} else if volatilityPct > 0 && volatilityPct < 0.5 {
		size *= 1.3
	}

	minSize := balance * 0.02
	maxSize := balance * 0.30
	return math.Min(math.Max(size, minSize), maxSize)
}

// stops derives stop-loss and take-profit levels. The stop distance is the
// larger of the volatility distance and 1.1x the distance to the opposing
// support/resistance level; take-profit is 1.5x the stop distance, clipped so
// it never crosses the nearest level.
func (e *Engine) stops(candidate Action, price float64, snap *indicator.Snapshot) (stopLoss, takeProfit float64) {
	volDistance := price * snap.Volatility.ValuePct / 100
	if volDistance == 0 {
		volDistance = price * 0.005
	}

	if candidate == ActionBuy {
		stopDistance := volDistance
		if snap.Support > 0 && snap.Support < price {
			levelDistance := (price - snap.Support) * 1.1
			stopDistance = math.Max(stopDistance, levelDistance)
		}
		stopLoss = price - stopDistance
		takeProfit = price + stopDistance*1.5
		if snap.Resistance > price && takeProfit > snap.Resistance {
			takeProfit = snap.Resistance
		}
		return stopLoss, takeProfit
	}

	stopDistance := volDistance
	if snap.Resistance > price {
		levelDistance := (snap.Resistance - price) * 1.1
		stopDistance = math.Max(stopDistance, levelDistance)
	}
	stopLoss = price + stopDistance
	takeProfit = price - stopDistance*1.5
	if snap.Support > 0 && snap.Support < price && takeProfit < snap.Support {
		takeProfit = snap.Support
	}
	return stopLoss, takeProfit
}

func clampSignalConfidence(c float64) float64 {
	return math.Min(math.Max(c, 0.5), 0.9)
}
