// Package backtest replays the signal engine and position lifecycle rules
// over historical candles. No orders are placed; fills are assumed at the
// evaluated price.
package backtest

import (
	"fmt"
	"math"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/position"
	"futures-trading-engine/internal/regime"
	"futures-trading-engine/internal/signal"

	"github.com/rs/zerolog"
)

// Engine runs historical strategy validation.
type Engine struct {
	settings       config.SignalSettings
	strategy       config.StrategyConfig
	strat          position.Strategy
	thresholds     regime.Thresholds
	initialBalance float64
	commission     float64 // fee fraction per fill
	log            zerolog.Logger
}

// Trade is a single closed backtest trade.
type Trade struct {
	EntryTime  time.Time        `json:"entry_time"`
	ExitTime   time.Time        `json:"exit_time"`
	Direction  signal.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   float64          `json:"quantity"`
	DCACount   int              `json:"dca_count"`
	PnL        float64          `json:"pnl"`
	PnLPercent float64          `json:"pnl_percent"`
	ExitReason string           `json:"exit_reason"`
}

// EquityPoint records account balance after a trade closes.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result contains backtest performance metrics.
type Result struct {
	Symbol               string        `json:"symbol"`
	TotalTrades          int           `json:"total_trades"`
	WinningTrades        int           `json:"winning_trades"`
	LosingTrades         int           `json:"losing_trades"`
	WinRate              float64       `json:"win_rate"`
	ProfitFactor         float64       `json:"profit_factor"`
	MaxConsecutiveWins   int           `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	NetResult            float64       `json:"net_result"`
	MaxDrawdown          float64       `json:"max_drawdown"`
	FinalBalance         float64       `json:"final_balance"`
	Trades               []Trade       `json:"trades"`
	EquityCurve          []EquityPoint `json:"equity_curve"`
}

// openTrade is the in-flight position during a replay. params are fixed at
// entry from the active strategy, exactly as the live manager does.
type openTrade struct {
	params         position.TradeParams
	direction      signal.Direction
	initialEntry   float64
	entryPrice     float64
	quantity       float64
	baseQuantity   float64
	dcaCount       int
	stopLoss       float64
	takeProfit     float64
	trailingActive bool
	trailingStop   float64
	highWaterMark  float64
	lowWaterMark   float64
	entryTime      time.Time
}

// New creates a backtest engine with the given settings.
func New(settings config.SignalSettings, strategy config.StrategyConfig, initialBalance, commission float64, logger zerolog.Logger) *Engine {
	return &Engine{
		settings:       settings,
		strategy:       strategy,
		strat:          position.SelectStrategy(strategy),
		thresholds:     regime.DefaultThresholds(),
		initialBalance: initialBalance,
		commission:     commission,
		log:            logger.With().Str("component", "backtest").Logger(),
	}
}

// Run replays the strategy over the candle history. The window grows with
// each bar; decisions start once enough history exists for trend indicators.
func (e *Engine) Run(symbol string, candles []exchange.Candle) (*Result, error) {
	cfg := indicator.DefaultConfig()
	if len(candles) <= cfg.LongPeriod {
		return nil, fmt.Errorf("backtest needs more than %d candles, got %d", cfg.LongPeriod, len(candles))
	}

	signals := signal.NewEngine(e.settings, e.log)

	result := &Result{
		Symbol:      symbol,
		Trades:      make([]Trade, 0),
		EquityCurve: make([]EquityPoint, 0),
	}

	balance := e.initialBalance

	var open *openTrade

	for i := cfg.LongPeriod; i < len(candles); i++ {
		window := candles[:i+1]
		price := candles[i].Close
		now := time.UnixMilli(candles[i].CloseTime)

		snap := indicator.Compute(window, cfg, e.log)

		if open != nil {
			e.updateTrailing(open, price)

			if open.params.AllowDCA && open.dcaCount < open.params.MaxDCAOrders {
				adverse := -signal.ProfitPercent(open.direction, open.initialEntry, price)
				if adverse >= open.params.DCAPriceStepPct*float64(open.dcaCount+1) {
					qty := open.baseQuantity * math.Pow(open.params.DCAMultiplier, float64(open.dcaCount+1))
					total := open.quantity + qty
					open.entryPrice = (open.entryPrice*open.quantity + price*qty) / total
					open.quantity = total
					open.dcaCount++
					open.trailingActive = false
					open.trailingStop = 0
					open.highWaterMark = price
					open.lowWaterMark = price
				}
			}

			dec := signal.EvaluateExit(signal.ExitContext{
				Direction:        open.direction,
				EntryPrice:       open.entryPrice,
				StopLoss:         open.stopLoss,
				TakeProfit:       open.takeProfit,
				TrailingActive:   open.trailingActive,
				TrailingStop:     open.trailingStop,
				EntryTime:        open.entryTime,
				MaxTradeDuration: open.params.MaxTradeDuration,
				MinProfitPct:     e.settings.MinProfitToClosePct,
			}, price, snap, now)

			if dec.ShouldClose {
				balance = e.closeTrade(result, open, price, now, dec.Reason, balance)
				open = nil
			}
			continue
		}

		assessment := regime.Classify(snap, e.thresholds)
		if assessment.Synthetic {
			continue
		}
		assessment.Symbol = symbol

		sig := signals.Generate(symbol, snap, &assessment, balance)
		if sig.Action == signal.ActionHold || sig.Synthetic {
			continue
		}
		if sig.Confidence < e.settings.MinEntryConfidence {
			continue
		}

		direction := signal.DirLong
		if sig.Action == signal.ActionSell {
			direction = signal.DirShort
		}
		params := e.strat.Params(&assessment)
		stopLoss, takeProfit := sig.StopLoss, sig.TakeProfit
		if params.StopLossPct > 0 {
			stopLoss = pctLevel(direction, price, -params.StopLossPct)
		}
		if params.ProfitTargetPct > 0 {
			takeProfit = pctLevel(direction, price, params.ProfitTargetPct)
		}
		open = &openTrade{
			params:        params,
			direction:     direction,
			initialEntry:  price,
			entryPrice:    price,
			quantity:      sig.Quantity,
			baseQuantity:  sig.Quantity,
			stopLoss:      stopLoss,
			takeProfit:    takeProfit,
			highWaterMark: price,
			lowWaterMark:  price,
			entryTime:     now,
		}
	}

	// Force-close anything still open at the last candle.
	if open != nil {
		last := candles[len(candles)-1]
		balance = e.closeTrade(result, open, last.Close, time.UnixMilli(last.CloseTime), "End of data", balance)
	}

	e.finalizeMetrics(result, balance)
	return result, nil
}

// pctLevel mirrors the live manager's percent offset in profit-direction
// terms for the position direction.
func pctLevel(dir signal.Direction, base, pctOffset float64) float64 {
	if dir == signal.DirLong {
		return base * (1 + pctOffset/100)
	}
	return base * (1 - pctOffset/100)
}

func (e *Engine) updateTrailing(t *openTrade, price float64) {
	activation := t.params.TrailingActivePct
	distance := t.params.TrailingDistPct
	if distance <= 0 {
		return
	}

	if t.direction == signal.DirLong {
		if price > t.highWaterMark {
			t.highWaterMark = price
		}
		profit := (price - t.entryPrice) / t.entryPrice * 100
		if !t.trailingActive && profit >= activation {
			t.trailingActive = true
		}
		if t.trailingActive {
			stop := t.highWaterMark * (1 - distance/100)
			if stop > t.trailingStop {
				t.trailingStop = stop
			}
		}
		return
	}

	if t.lowWaterMark == 0 || price < t.lowWaterMark {
		t.lowWaterMark = price
	}
	profit := (t.entryPrice - price) / t.entryPrice * 100
	if !t.trailingActive && profit >= activation {
		t.trailingActive = true
	}
	if t.trailingActive {
		stop := t.lowWaterMark * (1 + distance/100)
		if t.trailingStop == 0 || stop < t.trailingStop {
			t.trailingStop = stop
		}
	}
}

func (e *Engine) closeTrade(result *Result, t *openTrade, exitPrice float64, exitTime time.Time, reason string, balance float64) float64 {
	pnlPct := signal.ProfitPercent(t.direction, t.entryPrice, exitPrice)
	gross := t.entryPrice * t.quantity * pnlPct / 100
	fees := (t.entryPrice + exitPrice) * t.quantity * e.commission
	net := gross - fees

	balance += net
	result.Trades = append(result.Trades, Trade{
		EntryTime:  t.entryTime,
		ExitTime:   exitTime,
		Direction:  t.direction,
		EntryPrice: t.entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   t.quantity,
		DCACount:   t.dcaCount,
		PnL:        net,
		PnLPercent: pnlPct,
		ExitReason: reason,
	})
	result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: exitTime, Equity: balance})
	return balance
}

func (e *Engine) finalizeMetrics(result *Result, balance float64) {
	var grossProfit, grossLoss float64
	var consecWins, consecLosses int

	for _, t := range result.Trades {
		result.TotalTrades++
		if t.PnL > 0 {
			result.WinningTrades++
			grossProfit += t.PnL
			consecWins++
			consecLosses = 0
			if consecWins > result.MaxConsecutiveWins {
				result.MaxConsecutiveWins = consecWins
			}
		} else {
			result.LosingTrades++
			grossLoss += -t.PnL
			consecLosses++
			consecWins = 0
			if consecLosses > result.MaxConsecutiveLosses {
				result.MaxConsecutiveLosses = consecLosses
			}
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if grossLoss > 0 {
		result.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		result.ProfitFactor = math.Inf(1)
	}

	result.NetResult = balance - e.initialBalance
	result.FinalBalance = balance

	peak := e.initialBalance
	for _, p := range result.EquityCurve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
	}
}
