package regime

import (
	"context"
	"sync"
	"time"

	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/market"

	"github.com/rs/zerolog"
)

// AssessmentTTL is how long a cached assessment stays fresh.
const AssessmentTTL = 5 * time.Minute

// SharedCache is an optional second cache tier for assessments (Redis).
// Failures are tolerated; the in-memory tier always works.
type SharedCache interface {
	GetAssessment(ctx context.Context, symbol, timeframe string) (*Assessment, bool)
	SetAssessment(ctx context.Context, a *Assessment, ttl time.Duration)
}

// Analyzer produces market assessments from the candle store, caching results
// per symbol+timeframe. Analysis never returns an error: on missing or
// insufficient data it returns the synthetic baseline assessment.
type Analyzer struct {
	mu     sync.RWMutex
	store  *market.CandleStore
	config indicator.Config
	th     Thresholds
	cached map[string]*cachedAssessment
	shared SharedCache
	log    zerolog.Logger
}

type cachedAssessment struct {
	assessment *Assessment
	expiresAt  time.Time
}

// NewAnalyzer creates an analyzer over the given candle store.
func NewAnalyzer(store *market.CandleStore, cfg indicator.Config, th Thresholds, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:  store,
		config: cfg,
		th:     th,
		cached: make(map[string]*cachedAssessment),
		log:    logger.With().Str("component", "analyzer").Logger(),
	}
}

// WithSharedCache attaches a shared cache tier.
func (a *Analyzer) WithSharedCache(c SharedCache) *Analyzer {
	a.shared = c
	return a
}

// Analyze returns the current market assessment for symbol+timeframe,
// serving from cache within the TTL. A refresh happens only from callers'
// serialized ticks, so at most one refresh per key is in flight.
func (a *Analyzer) Analyze(ctx context.Context, symbol, timeframe string) *Assessment {
	k := symbol + ":" + timeframe

	a.mu.RLock()
	c, ok := a.cached[k]
	a.mu.RUnlock()
	if ok && time.Now().Before(c.expiresAt) {
		return c.assessment
	}

	if a.shared != nil {
		if assessment, ok := a.shared.GetAssessment(ctx, symbol, timeframe); ok {
			a.remember(k, assessment)
			return assessment
		}
	}

	assessment := a.compute(ctx, symbol, timeframe)
	a.remember(k, assessment)
	if a.shared != nil && !assessment.Synthetic {
		a.shared.SetAssessment(ctx, assessment, AssessmentTTL)
	}
	return assessment
}

// AnalyzeSnapshot classifies an already-fetched candle window. Used by the
// backtester, which replays historical windows without the store.
func (a *Analyzer) AnalyzeSnapshot(symbol, timeframe string, candles []exchange.Candle) *Assessment {
	if len(candles) < a.config.ShortPeriod {
		b := Baseline(symbol, timeframe)
		return &b
	}
	snap := indicator.Compute(candles, a.config, a.log)
	assessment := Classify(snap, a.th)
	assessment.Symbol = symbol
	assessment.Timeframe = timeframe
	assessment.Synthetic = !snap.Sufficient
	return &assessment
}

func (a *Analyzer) compute(ctx context.Context, symbol, timeframe string) *Assessment {
	candles, err := a.store.Snapshot(ctx, symbol, timeframe)
	if err != nil || len(candles) < a.config.ShortPeriod {
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("market data unavailable, returning baseline assessment")
		}
		b := Baseline(symbol, timeframe)
		return &b
	}
	return a.AnalyzeSnapshot(symbol, timeframe, candles)
}

func (a *Analyzer) remember(key string, assessment *Assessment) {
	ttl := AssessmentTTL
	if assessment.Synthetic {
		// Synthetic results expire quickly so real data replaces them.
		ttl = 30 * time.Second
	}
	a.mu.Lock()
	a.cached[key] = &cachedAssessment{assessment: assessment, expiresAt: time.Now().Add(ttl)}
	a.mu.Unlock()
}

// Invalidate drops the cached assessment for symbol+timeframe.
func (a *Analyzer) Invalidate(symbol, timeframe string) {
	a.mu.Lock()
	delete(a.cached, symbol+":"+timeframe)
	a.mu.Unlock()
}
