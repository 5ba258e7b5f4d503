// Package engine owns one position lifecycle manager per traded symbol and
// exposes the operations an outer surface (HTTP, CLI) drives.
package engine

import (
	"context"
	"fmt"
	"sync"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/backtest"
	"futures-trading-engine/internal/events"
	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/journal"
	"futures-trading-engine/internal/market"
	"futures-trading-engine/internal/position"
	"futures-trading-engine/internal/regime"
	"futures-trading-engine/internal/signal"

	"github.com/rs/zerolog"
)

// ErrNotRunning is returned for operations on a symbol without an active
// manager.
var ErrNotRunning = fmt.Errorf("engine: symbol is not running")

// ErrAlreadyRunning is returned when starting a symbol twice.
var ErrAlreadyRunning = fmt.Errorf("engine: symbol is already running")

// DefaultTimeframe is used when a start request does not name one.
const DefaultTimeframe = "1h"

type runner struct {
	manager   *position.Manager
	scheduler *position.Scheduler
	timeframe string
}

// Engine is the registry of running symbols. It owns the shared candle
// store, analyzer and signal engine, and creates one manager per Start call.
type Engine struct {
	client   exchange.Client
	store    *market.CandleStore
	analyzer *regime.Analyzer
	journal  journal.Journal
	bus      *events.Bus
	cfg      *config.Config
	prices   position.PriceSource
	log      zerolog.Logger

	mu      sync.RWMutex
	runners map[string]*runner
}

// New wires an engine over its collaborators.
func New(client exchange.Client, store *market.CandleStore, analyzer *regime.Analyzer, jrnl journal.Journal, bus *events.Bus, cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		client:   client,
		store:    store,
		analyzer: analyzer,
		journal:  jrnl,
		bus:      bus,
		cfg:      cfg,
		runners:  make(map[string]*runner),
		log:      logger.With().Str("component", "engine").Logger(),
	}
}

// WithPriceSource attaches a streamed price feed; managers started afterwards
// prefer it over the REST ticker.
func (e *Engine) WithPriceSource(ps position.PriceSource) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices = ps
	return e
}

// Start launches trading for a symbol. A nil strategyCfg uses the engine's
// configured defaults.
func (e *Engine) Start(ctx context.Context, symbol, timeframe string, strategyCfg *config.StrategyConfig) error {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.runners[symbol]; ok {
		return ErrAlreadyRunning
	}

	cfg := e.cfg.Strategy
	if strategyCfg != nil {
		cfg = *strategyCfg
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: invalid strategy config for %s: %w", symbol, err)
	}

	signals := signal.NewEngine(e.cfg.Signals, e.log)
	mgr := position.NewManager(symbol, timeframe, e.client, e.store, e.analyzer, signals, e.journal, e.bus, cfg, e.cfg.Signals, e.log)
	if e.prices != nil {
		mgr.SetPriceSource(e.prices)
	}
	sched := position.NewScheduler(mgr, e.log)
	sched.Start(ctx)

	e.runners[symbol] = &runner{manager: mgr, scheduler: sched, timeframe: timeframe}
	e.log.Info().Str("symbol", symbol).Str("timeframe", timeframe).Msg("symbol started")
	e.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{"symbol": symbol}})
	return nil
}

// Stop halts a symbol's loop, waiting for any in-flight tick.
func (e *Engine) Stop(symbol string) error {
	e.mu.Lock()
	r, ok := e.runners[symbol]
	if ok {
		delete(e.runners, symbol)
	}
	e.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}

	r.scheduler.Stop()
	e.log.Info().Str("symbol", symbol).Msg("symbol stopped")
	e.bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{"symbol": symbol}})
	return nil
}

// StopAll halts every running symbol.
func (e *Engine) StopAll() {
	e.mu.Lock()
	runners := e.runners
	e.runners = make(map[string]*runner)
	e.mu.Unlock()

	for symbol, r := range runners {
		r.scheduler.Stop()
		e.log.Info().Str("symbol", symbol).Msg("symbol stopped")
	}
}

// SetStrategy switches the active strategy for a running symbol.
func (e *Engine) SetStrategy(symbol, name string) error {
	switch name {
	case config.StrategyDCA, config.StrategyScalping, config.StrategyAuto:
	default:
		return fmt.Errorf("engine: unknown strategy %q", name)
	}

	r, ok := e.runner(symbol)
	if !ok {
		return ErrNotRunning
	}
	r.manager.SetStrategy(name)
	return nil
}

// UpdateConfig applies new strategy settings to a running symbol.
func (e *Engine) UpdateConfig(symbol string, cfg config.StrategyConfig, settings config.SignalSettings) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: invalid config: %w", err)
	}

	r, ok := e.runner(symbol)
	if !ok {
		return ErrNotRunning
	}
	r.manager.UpdateConfig(cfg, settings)
	return nil
}

// GetStatus reports the lifecycle state of a running symbol.
func (e *Engine) GetStatus(symbol string) (position.Status, error) {
	r, ok := e.runner(symbol)
	if !ok {
		return position.Status{}, ErrNotRunning
	}
	return r.manager.Status(), nil
}

// Symbols lists the currently running symbols.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.runners))
	for s := range e.runners {
		out = append(out, s)
	}
	return out
}

// AnalyzeMarket returns the current market assessment for a symbol. The
// symbol does not need to be running.
func (e *Engine) AnalyzeMarket(ctx context.Context, symbol, timeframe string) *regime.Assessment {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	return e.analyzer.Analyze(ctx, symbol, timeframe)
}

// GenerateSignal runs a one-off signal evaluation without touching any
// position state.
func (e *Engine) GenerateSignal(ctx context.Context, symbol, timeframe string) (*signal.Signal, error) {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}

	candles, err := e.store.Snapshot(ctx, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("engine: fetching candles for %s: %w", symbol, err)
	}

	snap := indicator.Compute(candles, indicator.DefaultConfig(), e.log)
	assessment := e.analyzer.Analyze(ctx, symbol, timeframe)

	balance := e.cfg.Strategy.Common.InitialBalance
	if balance <= 0 {
		if b, err := e.client.GetAccountBalance(ctx); err == nil && b > 0 {
			balance = b
		} else {
			balance = 1000
		}
	}

	signals := signal.NewEngine(e.cfg.Signals, e.log)
	return signals.Generate(symbol, snap, assessment, balance), nil
}

// Backtest replays the strategy over historical candles for a symbol. When
// candles is nil, history is fetched from the exchange.
func (e *Engine) Backtest(ctx context.Context, symbol, timeframe string, candles []exchange.Candle, limit int) (*backtest.Result, error) {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	if candles == nil {
		if limit <= 0 {
			limit = 500
		}
		var err error
		candles, err = e.client.GetKlines(ctx, symbol, timeframe, limit)
		if err != nil {
			return nil, fmt.Errorf("engine: fetching backtest candles: %w", err)
		}
	}

	balance := e.cfg.Strategy.Common.InitialBalance
	if balance <= 0 {
		balance = 10000
	}

	bt := backtest.New(e.cfg.Signals, e.cfg.Strategy, balance, 0.0004, e.log)
	return bt.Run(symbol, candles)
}

func (e *Engine) runner(symbol string) (*runner, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runners[symbol]
	return r, ok
}
