package regime

import (
	"io"
	"math"
	"testing"

	"futures-trading-engine/internal/exchange"
	"futures-trading-engine/internal/indicator"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func steadyRise(n int, start, stepPct float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		next := price * (1 + stepPct/100)
		candles[i] = exchange.Candle{
			OpenTime:  int64(i) * 3600_000,
			Open:      price,
			High:      next * 1.001,
			Low:       price * 0.999,
			Close:     next,
			Volume:    1000,
			CloseTime: int64(i)*3600_000 + 3599_999,
		}
		price = next
	}
	return candles
}

func oscillating(n int, center, amplitudePct float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	for i := 0; i < n; i++ {
		offset := center * amplitudePct / 100 * math.Sin(float64(i))
		price := center + offset
		candles[i] = exchange.Candle{
			OpenTime:  int64(i) * 3600_000,
			Open:      price,
			High:      price * 1.0005,
			Low:       price * 0.9995,
			Close:     price,
			Volume:    1000,
			CloseTime: int64(i)*3600_000 + 3599_999,
		}
	}
	return candles
}

func TestClassifyTrendingMarket(t *testing.T) {
	// 60 hourly candles rising ~0.5% per bar with flat volume.
	snap := indicator.Compute(steadyRise(60, 100, 0.5), indicator.DefaultConfig(), testLogger())

	a := Classify(snap, DefaultThresholds())

	if a.MarketType != MarketTrending {
		t.Errorf("Expected TRENDING, got %s", a.MarketType)
	}
	if a.RecommendedStrategy != StrategyDCA {
		t.Errorf("Expected DCA recommendation, got %s", a.RecommendedStrategy)
	}
	if a.Confidence <= 0.6 {
		t.Errorf("Expected confidence above 0.6, got %f", a.Confidence)
	}
	if a.Synthetic {
		t.Error("Full-window assessment must not be synthetic")
	}
}

func TestClassifyRangingMarket(t *testing.T) {
	// Tight oscillation within ±0.2% keeps Bollinger narrow and RSI near 50.
	snap := indicator.Compute(oscillating(60, 100, 0.2), indicator.DefaultConfig(), testLogger())

	a := Classify(snap, DefaultThresholds())

	if a.MarketType != MarketRanging {
		t.Errorf("Expected RANGING, got %s", a.MarketType)
	}
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	fixtures := [][]exchange.Candle{
		steadyRise(60, 100, 0.5),
		steadyRise(60, 100, 2.5),
		oscillating(60, 100, 0.2),
		oscillating(60, 100, 3.0),
	}

	for i, candles := range fixtures {
		snap := indicator.Compute(candles, indicator.DefaultConfig(), testLogger())
		a := Classify(snap, DefaultThresholds())
		if a.Confidence < 0.5 || a.Confidence > 0.95 {
			t.Errorf("fixture %d: confidence %f outside [0.5, 0.95]", i, a.Confidence)
		}
	}
}

func TestClassifyInsufficientDataSynthetic(t *testing.T) {
	snap := indicator.Compute(steadyRise(5, 100, 0.5), indicator.DefaultConfig(), testLogger())

	a := Classify(snap, DefaultThresholds())

	if !a.Synthetic {
		t.Error("Short-window assessment must be synthetic")
	}
	if a.MarketType != MarketRanging {
		t.Errorf("Synthetic baseline should be RANGING, got %s", a.MarketType)
	}
	if a.RecommendedStrategy != StrategyDCA {
		t.Errorf("Synthetic baseline should recommend DCA, got %s", a.RecommendedStrategy)
	}
	if a.Confidence < 0.5 || a.Confidence > 0.6 {
		t.Errorf("Synthetic confidence should sit in [0.5, 0.6], got %f", a.Confidence)
	}
}

func TestBaseline(t *testing.T) {
	a := Baseline("BTCUSDT", "1h")

	if !a.Synthetic {
		t.Error("Baseline must be synthetic")
	}
	if a.Symbol != "BTCUSDT" || a.Timeframe != "1h" {
		t.Errorf("Baseline should carry symbol/timeframe, got %s/%s", a.Symbol, a.Timeframe)
	}
}
