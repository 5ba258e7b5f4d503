package position

import (
	"testing"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/regime"
)

func autoForTest() autoStrategy {
	cfg := config.DefaultStrategyConfig()
	s := SelectStrategy(cfg)
	auto, ok := s.(autoStrategy)
	if !ok {
		panic("default config should select AUTO")
	}
	return auto
}

func TestSelectStrategyByName(t *testing.T) {
	cfg := config.DefaultStrategyConfig()

	cfg.ActiveStrategy = config.StrategyDCA
	if got := SelectStrategy(cfg).Name(); got != config.StrategyDCA {
		t.Errorf("Expected DCA, got %s", got)
	}

	cfg.ActiveStrategy = config.StrategyScalping
	if got := SelectStrategy(cfg).Name(); got != config.StrategyScalping {
		t.Errorf("Expected SCALPING, got %s", got)
	}

	cfg.ActiveStrategy = "UNKNOWN"
	if got := SelectStrategy(cfg).Name(); got != config.StrategyAuto {
		t.Errorf("Unknown names should fall back to AUTO, got %s", got)
	}
}

func TestAutoPicksScalpingInVolatileMarket(t *testing.T) {
	auto := autoForTest()
	assessment := &regime.Assessment{
		MarketType: regime.MarketVolatile,
		Volatility: 3.0,
	}

	p := auto.Params(assessment)
	if p.AllowDCA {
		t.Error("High volatility should select scalping, which never cost-averages")
	}
	if activeName(auto, assessment) != config.StrategyScalping {
		t.Errorf("Expected SCALPING, got %s", activeName(auto, assessment))
	}
}

func TestAutoPicksDCAInStrongTrend(t *testing.T) {
	auto := autoForTest()
	assessment := &regime.Assessment{
		MarketType:    regime.MarketTrending,
		Volatility:    0.8,
		TrendStrength: 0.9,
	}

	p := auto.Params(assessment)
	if !p.AllowDCA {
		t.Error("Strong trend with calm volatility should select DCA")
	}
	if activeName(auto, assessment) != config.StrategyDCA {
		t.Errorf("Expected DCA, got %s", activeName(auto, assessment))
	}
}

func TestAutoFollowsRecommendation(t *testing.T) {
	auto := autoForTest()
	assessment := &regime.Assessment{
		MarketType:          regime.MarketRanging,
		Volatility:          0.5,
		TrendStrength:       0.2,
		RecommendedStrategy: regime.StrategyDCA,
	}

	if !auto.Params(assessment).AllowDCA {
		t.Error("A DCA recommendation in a calm market should be followed")
	}
}

func TestAutoDefaultsToDCAWithoutAssessment(t *testing.T) {
	auto := autoForTest()
	if !auto.Params(nil).AllowDCA {
		t.Error("Missing assessment should fall back to DCA parameters")
	}
}

func TestDCAParamsCarryConfig(t *testing.T) {
	cfg := config.DefaultStrategyConfig()
	cfg.ActiveStrategy = config.StrategyDCA
	p := SelectStrategy(cfg).Params(nil)

	if p.MaxDCAOrders != cfg.DCA.MaxDCAOrders {
		t.Errorf("Expected %d DCA orders, got %d", cfg.DCA.MaxDCAOrders, p.MaxDCAOrders)
	}
	if p.DCAMultiplier != cfg.DCA.DCAMultiplier {
		t.Errorf("Expected multiplier %v, got %v", cfg.DCA.DCAMultiplier, p.DCAMultiplier)
	}
	if p.DCAPriceStepPct != cfg.DCA.DCAPriceStepPct {
		t.Errorf("Expected step %v, got %v", cfg.DCA.DCAPriceStepPct, p.DCAPriceStepPct)
	}
}
