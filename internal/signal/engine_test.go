package signal

import (
	"io"
	"testing"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/indicator"
	"futures-trading-engine/internal/regime"

	"github.com/rs/zerolog"
)

func testEngine() *Engine {
	return NewEngine(config.DefaultSignalSettings(), zerolog.New(io.Discard))
}

// bullishSnapshot lines every indicator up behind a long entry.
func bullishSnapshot() *indicator.Snapshot {
	return &indicator.Snapshot{
		RSI:        35,
		MACD:       indicator.MACDResult{Status: indicator.MACDBullish},
		EMAShort:   101,
		EMALong:    99,
		Trend:      indicator.TrendResult{Direction: indicator.TrendUp, Strength: 0.8},
		Momentum:   indicator.MomentumResult{Value: 2.0, Direction: indicator.TrendUp},
		Volatility: indicator.VolatilityResult{ValuePct: 1.0},
		VolumeProfile: indicator.VolumeProfileResult{
			Bias:  indicator.TrendUp,
			Ratio: 1.2,
		},
		Support:    95,
		Resistance: 120,
		LastClose:  100,
		Sufficient: true,
	}
}

func trendingAssessment(snap *indicator.Snapshot) *regime.Assessment {
	return &regime.Assessment{
		Symbol:              "BTCUSDT",
		MarketType:          regime.MarketTrending,
		RecommendedStrategy: regime.StrategyDCA,
		Confidence:          0.8,
		TrendStrength:       snap.Trend.Strength,
		Indicators:          snap,
	}
}

func TestGenerateBuyOnBullishAlignment(t *testing.T) {
	snap := bullishSnapshot()
	sig := testEngine().Generate("BTCUSDT", snap, trendingAssessment(snap), 10000)

	if sig.Action != ActionBuy {
		t.Fatalf("Expected BUY, got %s (%s)", sig.Action, sig.Reason)
	}
	if sig.Confidence < 0.5 || sig.Confidence > 0.9 {
		t.Errorf("Confidence %f outside [0.5, 0.9]", sig.Confidence)
	}
	if sig.Confirmations < 2 {
		t.Errorf("Expected at least 2 confirmations, got %d", sig.Confirmations)
	}
	if sig.StopLoss >= sig.EntryPrice {
		t.Errorf("Long stop loss %f must be below entry %f", sig.StopLoss, sig.EntryPrice)
	}
	if sig.TakeProfit <= sig.EntryPrice {
		t.Errorf("Long take profit %f must be above entry %f", sig.TakeProfit, sig.EntryPrice)
	}
	if sig.Quantity <= 0 {
		t.Errorf("Expected positive quantity, got %f", sig.Quantity)
	}
}

func TestGenerateNotionalWithinBounds(t *testing.T) {
	snap := bullishSnapshot()
	balance := 10000.0

	sig := testEngine().Generate("BTCUSDT", snap, trendingAssessment(snap), balance)

	if sig.Notional < balance*0.02 || sig.Notional > balance*0.30 {
		t.Errorf("Notional %f outside [2%%, 30%%] of balance %f", sig.Notional, balance)
	}
}

func TestGenerateHoldOnSyntheticAssessment(t *testing.T) {
	baseline := regime.Baseline("BTCUSDT", "1h")

	sig := testEngine().Generate("BTCUSDT", bullishSnapshot(), &baseline, 10000)

	if sig.Action != ActionHold {
		t.Errorf("Expected HOLD on synthetic assessment, got %s", sig.Action)
	}
	if !sig.Synthetic {
		t.Error("Signal from synthetic assessment must be flagged synthetic")
	}
	if sig.Reason != "Insufficient market data" {
		t.Errorf("Unexpected reason %q", sig.Reason)
	}
}

func TestGenerateHoldWhenDirectionUnknown(t *testing.T) {
	snap := &indicator.Snapshot{
		RSI:        50,
		MACD:       indicator.MACDResult{Status: indicator.MACDNeutral},
		EMAShort:   100,
		EMALong:    100,
		Trend:      indicator.TrendResult{Direction: indicator.TrendNeutral, Strength: 0.2},
		Volatility: indicator.VolatilityResult{ValuePct: 0.8},
		LastClose:  100,
		Sufficient: true,
	}
	a := &regime.Assessment{MarketType: regime.MarketRanging, Indicators: snap}

	sig := testEngine().Generate("BTCUSDT", snap, a, 10000)

	if sig.Action != ActionHold {
		t.Errorf("Expected HOLD, got %s", sig.Action)
	}
	if sig.Reason != "Direction could not be determined" {
		t.Errorf("Unexpected reason %q", sig.Reason)
	}
}

func TestGenerateHoldOnTooFewConfirmations(t *testing.T) {
	// Trend says up but nothing else agrees.
	snap := &indicator.Snapshot{
		RSI:        55,
		MACD:       indicator.MACDResult{Status: indicator.MACDBearish},
		EMAShort:   99,
		EMALong:    100,
		Trend:      indicator.TrendResult{Direction: indicator.TrendUp, Strength: 0.8},
		Momentum:   indicator.MomentumResult{Direction: indicator.TrendDown},
		Volatility: indicator.VolatilityResult{ValuePct: 1.0},
		LastClose:  100,
		Sufficient: true,
	}
	a := &regime.Assessment{MarketType: regime.MarketTrending, Indicators: snap}

	sig := testEngine().Generate("BTCUSDT", snap, a, 10000)

	if sig.Action != ActionHold {
		t.Errorf("Expected HOLD on unconfirmed direction, got %s", sig.Action)
	}
}

func TestVolumeConfirmationBlocksEntry(t *testing.T) {
	settings := config.DefaultSignalSettings()
	settings.RequireVolumeConfirm = true
	engine := NewEngine(settings, zerolog.New(io.Discard))

	snap := bullishSnapshot()
	snap.VolumeProfile.Bias = indicator.TrendDown

	sig := engine.Generate("BTCUSDT", snap, trendingAssessment(snap), 10000)

	if sig.Action != ActionHold {
		t.Errorf("Expected HOLD when volume confirmation is required but absent, got %s", sig.Action)
	}
}

func TestRegimeAgreementBoostsConfidence(t *testing.T) {
	snap := bullishSnapshot()
	engine := testEngine()

	trending := engine.Generate("BTCUSDT", snap, trendingAssessment(snap), 10000)

	ranging := engine.Generate("BTCUSDT", snap, &regime.Assessment{
		MarketType: regime.MarketRanging,
		Indicators: snap,
	}, 10000)

	if trending.Action != ActionBuy || ranging.Action != ActionBuy {
		t.Fatalf("Expected BUY in both regimes, got %s / %s", trending.Action, ranging.Action)
	}
	if trending.Confidence < ranging.Confidence {
		t.Errorf("Trend agreement should not lower confidence: trending %f, ranging %f",
			trending.Confidence, ranging.Confidence)
	}
}

func TestCounterTrendOverride(t *testing.T) {
	snap := bullishSnapshot()
	snap.RSI = 75 // extreme overbought flips the candidate to SELL
	snap.MACD.Status = indicator.MACDBearish
	snap.EMAShort = 98
	snap.Momentum.Direction = indicator.TrendDown
	snap.VolumeProfile.Bias = indicator.TrendDown

	sig := testEngine().Generate("BTCUSDT", snap, trendingAssessment(snap), 10000)

	if sig.Action != ActionSell {
		t.Errorf("Expected counter-trend SELL at RSI 75, got %s (%s)", sig.Action, sig.Reason)
	}
	if sig.StopLoss <= sig.EntryPrice {
		t.Errorf("Short stop loss %f must be above entry %f", sig.StopLoss, sig.EntryPrice)
	}
}
