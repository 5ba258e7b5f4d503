package position

import (
	"context"
	"math"
	"sync"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/events"
	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/journal"
	"futures-trading-engine/internal/market"
	"futures-trading-engine/internal/regime"
	"futures-trading-engine/internal/signal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Decider produces the entry signal for a tick. The default wraps the signal
// engine; tests and experiments can substitute scripted deciders without
// touching the state machine.
type Decider func(symbol string, snap *indicator.Snapshot, assessment *regime.Assessment, balance float64) *signal.Signal

// PriceSource supplies streamed last prices. A tick prefers a fresh streamed
// price and falls back to the REST ticker.
type PriceSource interface {
	LastPrice(symbol string, maxAge time.Duration) (float64, bool)
}

// streamPriceMaxAge bounds how old a streamed price may be before the tick
// falls back to the REST ticker.
const streamPriceMaxAge = 10 * time.Second

// Manager owns the trading lifecycle for one symbol. At most one position is
// open at a time; all state transitions happen inside Tick, which the
// scheduler serializes, so reads through Status only need the mutex.
type Manager struct {
	symbol    string
	timeframe string

	client   exchange.Client
	store    *market.CandleStore
	analyzer *regime.Analyzer
	signals  *signal.Engine
	journal  journal.Journal
	bus      *events.Bus
	prices   PriceSource
	log      zerolog.Logger

	mu        sync.RWMutex
	cfg       config.StrategyConfig
	settings  config.SignalSettings
	strategy  Strategy
	decider   Decider
	state     State
	position  *Position
	params    TradeParams
	stats     *BotStats
	startedAt time.Time
}

// Status is the externally visible view of a manager.
type Status struct {
	Symbol    string                `json:"symbol"`
	State     State                 `json:"state"`
	Uptime    time.Duration         `json:"uptime"`
	Strategy  string                `json:"strategy"`
	Position  *Position             `json:"position,omitempty"`
	Stats     StatsData             `json:"stats"`
	Config    config.StrategyConfig `json:"config"`
	StartedAt time.Time             `json:"started_at"`
}

// NewManager wires a lifecycle manager for one symbol. The initial balance
// comes from the config; when zero it is fetched from the exchange account.
func NewManager(
	symbol, timeframe string,
	client exchange.Client,
	store *market.CandleStore,
	analyzer *regime.Analyzer,
	signals *signal.Engine,
	jrnl journal.Journal,
	bus *events.Bus,
	cfg config.StrategyConfig,
	settings config.SignalSettings,
	logger zerolog.Logger,
) *Manager {
	balance := cfg.Common.InitialBalance
	if balance <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if b, err := client.GetAccountBalance(ctx); err == nil && b > 0 {
			balance = b
		} else {
			balance = 1000
		}
	}

	m := &Manager{
		symbol:    symbol,
		timeframe: timeframe,
		client:    client,
		store:     store,
		analyzer:  analyzer,
		signals:   signals,
		journal:   jrnl,
		bus:       bus,
		cfg:       cfg,
		settings:  settings,
		strategy:  SelectStrategy(cfg),
		state:     StateIdle,
		stats:     NewBotStats(balance),
		startedAt: time.Now(),
		log:       logger.With().Str("component", "manager").Str("symbol", symbol).Logger(),
	}
	m.decider = func(sym string, snap *indicator.Snapshot, assessment *regime.Assessment, bal float64) *signal.Signal {
		return m.signals.Generate(sym, snap, assessment, bal)
	}
	return m
}

// SetDecider replaces the entry decision function.
func (m *Manager) SetDecider(d Decider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d != nil {
		m.decider = d
	}
}

// SetPriceSource attaches a streamed price feed.
func (m *Manager) SetPriceSource(ps PriceSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = ps
}

// SetStrategy switches the active strategy by name. Takes effect on the next
// entry; an open position keeps the parameters it was opened with.
func (m *Manager) SetStrategy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.ActiveStrategy = name
	m.strategy = SelectStrategy(m.cfg)
	m.log.Info().Str("strategy", name).Msg("strategy switched")
}

// UpdateConfig applies a new strategy config and signal settings.
func (m *Manager) UpdateConfig(cfg config.StrategyConfig, settings config.SignalSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.settings = settings
	m.strategy = SelectStrategy(cfg)
	m.signals.UpdateSettings(settings)
	m.log.Info().Msg("config updated")
}

// Status reports the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Symbol:    m.symbol,
		State:     m.state,
		Uptime:    time.Since(m.startedAt),
		Strategy:  m.cfg.ActiveStrategy,
		Position:  m.position.Clone(),
		Stats:     m.stats.Snapshot(),
		Config:    m.cfg,
		StartedAt: m.startedAt,
	}
}

// Symbol returns the symbol this manager trades.
func (m *Manager) Symbol() string { return m.symbol }

// Stats exposes the running counters.
func (m *Manager) Stats() *BotStats { return m.stats }

// Tick runs one decision cycle. A failed ticker or kline fetch skips the
// whole decision; no default action is ever taken on missing data.
func (m *Manager) Tick(ctx context.Context) error {
	price, ok := m.streamedPrice()
	if !ok {
		var err error
		price, err = m.client.GetTicker(ctx, m.symbol)
		if err != nil {
			m.log.Warn().Err(err).Msg("ticker fetch failed, skipping tick")
			return err
		}
	}

	candles, err := m.store.Snapshot(ctx, m.symbol, m.timeframe)
	if err != nil {
		m.log.Warn().Err(err).Msg("kline fetch failed, skipping tick")
		return err
	}

	snap := indicator.Compute(candles, indicator.DefaultConfig(), m.log)
	assessment := m.analyzer.Analyze(ctx, m.symbol, m.timeframe)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateOpen:
		m.manageOpen(ctx, price, snap)
	case StateClosing:
		m.retryClose(ctx, price)
	case StateIdle:
		m.tryEnter(ctx, price, snap, assessment)
	}
	return nil
}

// streamedPrice returns a fresh streamed price when a feed is attached.
func (m *Manager) streamedPrice() (float64, bool) {
	m.mu.RLock()
	ps := m.prices
	m.mu.RUnlock()

	if ps == nil {
		return 0, false
	}
	return ps.LastPrice(m.symbol, streamPriceMaxAge)
}

// tryEnter evaluates an entry signal while flat. Synthetic assessments and
// signals never open a position.
func (m *Manager) tryEnter(ctx context.Context, price float64, snap *indicator.Snapshot, assessment *regime.Assessment) {
	if assessment.Synthetic {
		m.log.Debug().Msg("synthetic assessment, entry suppressed")
		return
	}

	sig := m.decider(m.symbol, snap, assessment, m.stats.Balance())
	if sig == nil || sig.Action == signal.ActionHold || sig.Synthetic {
		return
	}
	if sig.Confidence < m.settings.MinEntryConfidence {
		m.log.Debug().Float64("confidence", sig.Confidence).Msg("confidence below entry threshold")
		return
	}

	m.bus.PublishSignal(m.symbol, string(sig.Action), sig.Reason, sig.Confidence, price)

	side := exchange.SideBuy
	direction := signal.DirLong
	if sig.Action == signal.ActionSell {
		side = exchange.SideSell
		direction = signal.DirShort
	}

	ack, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   m.symbol,
		Side:     side,
		Type:     exchange.OrderMarket,
		Quantity: sig.Quantity,
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("entry order rejected, staying idle")
		return
	}

	params := m.strategy.Params(assessment)
	strategyName := activeName(m.strategy, assessment)
	stopLoss, takeProfit := reanchorStops(sig, price)

	pos := &Position{
		Symbol:       m.symbol,
		Direction:    direction,
		Strategy:     strategyName,
		InitialEntry: price,
		EntryPrice:   price,
		Quantity:     sig.Quantity,
		BaseQuantity: sig.Quantity,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		EntryTime:    time.Now(),
		TradeID:      uuid.NewString(),
	}
	if params.StopLossPct > 0 {
		pos.StopLoss = pctLevel(direction, price, -params.StopLossPct)
	}
	if params.ProfitTargetPct > 0 {
		pos.TakeProfit = pctLevel(direction, price, params.ProfitTargetPct)
	}
	resetTrailing(pos, price)

	m.position = pos
	m.params = params
	m.state = StateOpen

	m.log.Info().
		Str("direction", string(direction)).
		Str("strategy", strategyName).
		Float64("entry", price).
		Float64("quantity", sig.Quantity).
		Int64("order_id", ack.OrderID).
		Msg("position opened")
	m.bus.PublishTradeOpened(m.symbol, string(direction), strategyName, price, sig.Quantity)

	m.journalAppend(pos)
}

// manageOpen ratchets the trailing stop, evaluates DCA additions, then runs
// exit evaluation.
func (m *Manager) manageOpen(ctx context.Context, price float64, snap *indicator.Snapshot) {
	pos := m.position

	trailingHit := updateTrailing(pos, price, m.params.TrailingActivePct, m.params.TrailingDistPct)

	if !trailingHit && m.params.AllowDCA && pos.DCACount < m.params.MaxDCAOrders {
		adverse := -signal.ProfitPercent(pos.Direction, pos.InitialEntry, price)
		trigger := m.params.DCAPriceStepPct * float64(pos.DCACount+1)
		if adverse >= trigger {
			m.placeDCA(ctx, price)
		}
	}

	exitCtx := signal.ExitContext{
		Direction:        pos.Direction,
		EntryPrice:       pos.EntryPrice,
		StopLoss:         pos.StopLoss,
		TakeProfit:       pos.TakeProfit,
		TrailingActive:   pos.TrailingStopActive,
		TrailingStop:     pos.TrailingStopPrice,
		EntryTime:        pos.EntryTime,
		MaxTradeDuration: m.params.MaxTradeDuration,
		MinProfitPct:     m.settings.MinProfitToClosePct,
	}
	dec := signal.EvaluateExit(exitCtx, price, snap, time.Now())
	if dec.ShouldClose {
		m.beginClose(ctx, price, dec.Reason)
	}
}

// placeDCA adds to the position. Order failure leaves everything unchanged
// for a retry on the next tick.
func (m *Manager) placeDCA(ctx context.Context, price float64) {
	pos := m.position

	qty := pos.BaseQuantity * math.Pow(m.params.DCAMultiplier, float64(pos.DCACount+1))
	side := exchange.SideBuy
	if pos.Direction == signal.DirShort {
		side = exchange.SideSell
	}

	_, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   m.symbol,
		Side:     side,
		Type:     exchange.OrderMarket,
		Quantity: qty,
	})
	if err != nil {
		m.log.Warn().Err(err).Int("dca_count", pos.DCACount).Msg("dca order rejected")
		return
	}

	pos.applyFill(price, qty)
	pos.DCACount++
	resetTrailing(pos, price)
	if m.params.StopLossPct > 0 {
		pos.StopLoss = pctLevel(pos.Direction, pos.EntryPrice, -m.params.StopLossPct)
	}
	if m.params.ProfitTargetPct > 0 {
		pos.TakeProfit = pctLevel(pos.Direction, pos.EntryPrice, m.params.ProfitTargetPct)
	}

	m.log.Info().
		Int("dca_count", pos.DCACount).
		Float64("fill", price).
		Float64("added", qty).
		Float64("new_entry", pos.EntryPrice).
		Msg("dca filled")
	m.bus.PublishDCAFilled(m.symbol, pos.DCACount, price, qty, pos.EntryPrice)

	m.journalUpdate(pos.TradeID, map[string]interface{}{
		"entry_price": pos.EntryPrice,
		"quantity":    pos.Quantity,
		"dca_count":   pos.DCACount,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
	})
}

// beginClose places the reduce-only closing order. Failure reverts to OPEN
// so the exit is retried next tick.
func (m *Manager) beginClose(ctx context.Context, price float64, reason string) {
	pos := m.position
	m.state = StateClosing

	side := exchange.SideSell
	if pos.Direction == signal.DirShort {
		side = exchange.SideBuy
	}

	ack, err := m.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:     m.symbol,
		Side:       side,
		Type:       exchange.OrderMarket,
		Quantity:   pos.Quantity,
		ReduceOnly: true,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("reason", reason).Msg("close order rejected, retrying next tick")
		m.state = StateOpen
		return
	}

	m.finalizeClose(price, reason, ack)
}

// retryClose runs when a previous close attempt left the manager in CLOSING.
func (m *Manager) retryClose(ctx context.Context, price float64) {
	if m.position == nil {
		m.state = StateIdle
		return
	}
	m.state = StateOpen
	m.beginClose(ctx, price, "Close retry")
}

// finalizeClose books the trade and resets to IDLE.
func (m *Manager) finalizeClose(exitPrice float64, reason string, ack *exchange.OrderAck) {
	pos := m.position
	pnlPct := signal.ProfitPercent(pos.Direction, pos.EntryPrice, exitPrice)
	notional := pos.EntryPrice * pos.Quantity
	closedAt := time.Now()

	m.stats.RecordClose(pos.Strategy, pnlPct, notional, m.cfg.Common.Reinvestment, closedAt)

	m.log.Info().
		Str("reason", reason).
		Float64("entry", pos.EntryPrice).
		Float64("exit", exitPrice).
		Float64("pnl_pct", pnlPct).
		Int64("order_id", ack.OrderID).
		Msg("position closed")
	m.bus.PublishTradeClosed(m.symbol, reason, pos.EntryPrice, exitPrice, pos.Quantity, pnlPct)

	m.journalUpdate(pos.TradeID, map[string]interface{}{
		"exit_price":  exitPrice,
		"exit_time":   closedAt,
		"pnl_percent": pnlPct,
		"exit_reason": reason,
		"status":      "CLOSED",
	})

	m.position = nil
	m.state = StateIdle
}

// journalAppend persists the opening trade record without blocking the tick.
func (m *Manager) journalAppend(pos *Position) {
	record := &journal.TradeRecord{
		ID:         pos.TradeID,
		Symbol:     pos.Symbol,
		Direction:  string(pos.Direction),
		Strategy:   pos.Strategy,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		DCACount:   pos.DCACount,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		EntryTime:  pos.EntryTime,
		Status:     "OPEN",
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.journal.Append(ctx, record); err != nil {
			m.log.Warn().Err(err).Str("trade_id", record.ID).Msg("journal append failed")
		}
	}()
}

func (m *Manager) journalUpdate(id string, fields map[string]interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.journal.Update(ctx, id, fields); err != nil {
			m.log.Warn().Err(err).Str("trade_id", id).Msg("journal update failed")
		}
	}()
}

// pctLevel computes a price pctOffset percent away from base in profit
// direction terms for the given position direction.
func pctLevel(dir signal.Direction, base, pctOffset float64) float64 {
	if dir == signal.DirLong {
		return base * (1 + pctOffset/100)
	}
	return base * (1 - pctOffset/100)
}

// reanchorStops shifts the signal's stop and target so their distances are
// preserved relative to the price actually traded, not the candle close the
// signal was computed from. Signals without a reference price keep their
// levels as absolutes.
func reanchorStops(sig *signal.Signal, entry float64) (stopLoss, takeProfit float64) {
	stopLoss, takeProfit = sig.StopLoss, sig.TakeProfit
	if sig.EntryPrice <= 0 || sig.EntryPrice == entry {
		return stopLoss, takeProfit
	}
	if stopLoss > 0 {
		stopLoss = entry + (sig.StopLoss - sig.EntryPrice)
	}
	if takeProfit > 0 {
		takeProfit = entry + (sig.TakeProfit - sig.EntryPrice)
	}
	return stopLoss, takeProfit
}
