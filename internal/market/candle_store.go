package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"futures-trading-engine/internal/exchange"

	"github.com/rs/zerolog"
)

// ErrStale is returned when no fresh window is available and refresh failed.
var ErrStale = errors.New("market: candle window stale and refresh failed")

// DefaultTTL is how long a fetched candle window stays fresh.
const DefaultTTL = 5 * time.Minute

// DefaultWindowSize is the number of candles kept per symbol+timeframe.
const DefaultWindowSize = 100

// CandleStore holds per symbol+timeframe rolling candle windows, refreshed
// read-through from the exchange when stale. Snapshots handed to consumers
// are copies; the store never exposes its internal slice.
type CandleStore struct {
	mu         sync.RWMutex
	client     exchange.Client
	windows    map[string]*window
	ttl        time.Duration
	windowSize int
	log        zerolog.Logger
}

type window struct {
	candles   []exchange.Candle
	fetchedAt time.Time
}

// NewCandleStore creates a store backed by the given exchange client.
func NewCandleStore(client exchange.Client, logger zerolog.Logger) *CandleStore {
	return &CandleStore{
		client:     client,
		windows:    make(map[string]*window),
		ttl:        DefaultTTL,
		windowSize: DefaultWindowSize,
		log:        logger.With().Str("component", "candle_store").Logger(),
	}
}

// SetTTL overrides the freshness window. Used by tests and backfills.
func (cs *CandleStore) SetTTL(ttl time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.ttl = ttl
}

func key(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Snapshot returns a copy of the current window for symbol+timeframe,
// refreshing from the exchange once the cached window passes its TTL.
// A window past its TTL is never served: if the refresh fails, ErrStale
// wraps the fetch error so callers skip the tick instead of deciding on
// expired data.
func (cs *CandleStore) Snapshot(ctx context.Context, symbol, timeframe string) ([]exchange.Candle, error) {
	k := key(symbol, timeframe)

	cs.mu.RLock()
	w, ok := cs.windows[k]
	ttl := cs.ttl
	cs.mu.RUnlock()

	if ok && time.Since(w.fetchedAt) < ttl {
		return cloneCandles(w.candles), nil
	}

	fresh, err := cs.client.GetKlines(ctx, symbol, timeframe, cs.windowSize)
	if err != nil {
		cs.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("kline refresh failed")
		return nil, fmt.Errorf("%w: %v", ErrStale, err)
	}

	ordered, err := validateOrder(fresh)
	if err != nil {
		cs.log.Warn().Err(err).Str("symbol", symbol).Msg("rejecting malformed candle window")
		return nil, err
	}

	cs.mu.Lock()
	cs.windows[k] = &window{candles: ordered, fetchedAt: time.Now()}
	cs.mu.Unlock()

	return cloneCandles(ordered), nil
}

// Append adds a single closed candle to an existing window, dropping the
// oldest entry when the window is full. Out-of-order or duplicate candles
// are rejected.
func (cs *CandleStore) Append(symbol, timeframe string, c exchange.Candle) error {
	k := key(symbol, timeframe)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	w, ok := cs.windows[k]
	if !ok {
		cs.windows[k] = &window{candles: []exchange.Candle{c}, fetchedAt: time.Now()}
		return nil
	}

	if n := len(w.candles); n > 0 && c.OpenTime <= w.candles[n-1].OpenTime {
		return fmt.Errorf("market: candle at %d not after window end %d", c.OpenTime, w.candles[n-1].OpenTime)
	}

	w.candles = append(w.candles, c)
	if len(w.candles) > cs.windowSize {
		w.candles = w.candles[len(w.candles)-cs.windowSize:]
	}
	w.fetchedAt = time.Now()
	return nil
}

// Len reports the current window length without refreshing.
func (cs *CandleStore) Len(symbol, timeframe string) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if w, ok := cs.windows[key(symbol, timeframe)]; ok {
		return len(w.candles)
	}
	return 0
}

// Invalidate drops the cached window for symbol+timeframe.
func (cs *CandleStore) Invalidate(symbol, timeframe string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.windows, key(symbol, timeframe))
}

// validateOrder enforces strictly increasing open times, dropping duplicates.
func validateOrder(candles []exchange.Candle) ([]exchange.Candle, error) {
	if len(candles) == 0 {
		return candles, nil
	}

	out := make([]exchange.Candle, 0, len(candles))
	out = append(out, candles[0])
	for _, c := range candles[1:] {
		last := out[len(out)-1]
		if c.OpenTime == last.OpenTime {
			continue
		}
		if c.OpenTime < last.OpenTime {
			return nil, fmt.Errorf("market: candles out of order at %d", c.OpenTime)
		}
		out = append(out, c)
	}
	return out, nil
}

func cloneCandles(candles []exchange.Candle) []exchange.Candle {
	out := make([]exchange.Candle, len(candles))
	copy(out, candles)
	return out
}
