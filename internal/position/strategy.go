package position

import (
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/regime"
)

// TradeParams are the lifecycle knobs a strategy supplies for managing an
// open position.
type TradeParams struct {
	AllowDCA          bool
	MaxDCAOrders      int
	DCAPriceStepPct   float64
	DCAMultiplier     float64
	MaxTradeDuration  time.Duration
	TrailingActivePct float64 // profit % at which trailing arms
	TrailingDistPct   float64 // distance from the water mark
	StopLossPct       float64 // 0 means use the signal's stop
	ProfitTargetPct   float64 // 0 means use the signal's take profit
}

// Strategy selects trade management parameters for the current market. The
// three variants share one contract so the state machine never branches on
// strategy identity.
type Strategy interface {
	Name() string
	Params(assessment *regime.Assessment) TradeParams
}

type dcaStrategy struct {
	cfg config.DCAConfig
}

func (s dcaStrategy) Name() string { return config.StrategyDCA }

func (s dcaStrategy) Params(*regime.Assessment) TradeParams {
	return TradeParams{
		AllowDCA:          true,
		MaxDCAOrders:      s.cfg.MaxDCAOrders,
		DCAPriceStepPct:   s.cfg.DCAPriceStepPct,
		DCAMultiplier:     s.cfg.DCAMultiplier,
		MaxTradeDuration:  time.Duration(s.cfg.MaxTradeDurationMin) * time.Minute,
		TrailingActivePct: s.cfg.TrailingStopPct,
		TrailingDistPct:   s.cfg.TrailingStopPct,
	}
}

type scalpingStrategy struct {
	cfg config.ScalpingConfig
}

func (s scalpingStrategy) Name() string { return config.StrategyScalping }

func (s scalpingStrategy) Params(*regime.Assessment) TradeParams {
	return TradeParams{
		AllowDCA:          false,
		MaxTradeDuration:  time.Duration(s.cfg.MaxTradeDurationMin) * time.Minute,
		TrailingActivePct: s.cfg.TrailingStopActivation,
		TrailingDistPct:   s.cfg.TrailingStopDistancePct,
		StopLossPct:       s.cfg.StopLossPct,
		ProfitTargetPct:   s.cfg.ProfitTargetPct,
	}
}

// autoStrategy defers to DCA or scalping depending on the latest assessment.
type autoStrategy struct {
	dca   dcaStrategy
	scalp scalpingStrategy
	th    config.AutoSwitchingConfig
}

func (s autoStrategy) Name() string { return config.StrategyAuto }

func (s autoStrategy) Params(assessment *regime.Assessment) TradeParams {
	if assessment == nil {
		return s.dca.Params(nil)
	}
	if assessment.Volatility > s.th.VolatilityThreshold ||
		assessment.RecommendedStrategy == regime.StrategyScalping {
		return s.scalp.Params(assessment)
	}
	if assessment.TrendStrength >= s.th.TrendStrengthThreshold {
		return s.dca.Params(assessment)
	}
	if assessment.RecommendedStrategy == regime.StrategyDCA {
		return s.dca.Params(assessment)
	}
	return s.scalp.Params(assessment)
}

// SelectStrategy builds the strategy variant named by cfg.ActiveStrategy,
// defaulting to AUTO for unknown names.
func SelectStrategy(cfg config.StrategyConfig) Strategy {
	dca := dcaStrategy{cfg: cfg.DCA}
	scalp := scalpingStrategy{cfg: cfg.Scalping}

	switch cfg.ActiveStrategy {
	case config.StrategyDCA:
		return dca
	case config.StrategyScalping:
		return scalp
	default:
		return autoStrategy{dca: dca, scalp: scalp, th: cfg.AutoSwitching}
	}
}

// activeName reports which concrete variant would manage a trade opened under
// the given assessment, resolving AUTO to its delegate.
func activeName(s Strategy, assessment *regime.Assessment) string {
	if s.Name() != config.StrategyAuto {
		return s.Name()
	}
	auto, ok := s.(autoStrategy)
	if !ok {
		return s.Name()
	}
	p := auto.Params(assessment)
	if p.AllowDCA {
		return config.StrategyDCA
	}
	return config.StrategyScalping
}
