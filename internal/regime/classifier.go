package regime

import (
	"math"
	"time"

	"futures-trading-engine/internal/indicator"
)

// MarketType labels the classified market regime.
type MarketType string

const (
	MarketTrending MarketType = "TRENDING"
	MarketVolatile MarketType = "VOLATILE"
	MarketRanging  MarketType = "RANGING"
)

// StrategyName identifies a trading strategy.
type StrategyName string

const (
	StrategyDCA      StrategyName = "DCA"
	StrategyScalping StrategyName = "SCALPING"
	StrategyAuto     StrategyName = "AUTO"
)

// Assessment is the classifier output for one symbol+timeframe at one moment.
// Synthetic marks a result derived from insufficient or fallback data;
// consumers must not treat it with full confidence.
type Assessment struct {
	Symbol              string              `json:"symbol"`
	Timeframe           string              `json:"timeframe"`
	MarketType          MarketType          `json:"market_type"`
	RecommendedStrategy StrategyName        `json:"recommended_strategy"`
	Confidence          float64             `json:"confidence"`
	Volatility          float64             `json:"volatility"`
	VolumeRatio         float64             `json:"volume_ratio"`
	TrendStrength       float64             `json:"trend_strength"`
	Indicators          *indicator.Snapshot `json:"indicators,omitempty"`
	Timestamp           time.Time           `json:"timestamp"`
	Synthetic           bool                `json:"synthetic"`
}

// Thresholds configure the regime decision boundaries.
type Thresholds struct {
	Volatility    float64 // ATR% above which the market counts as volatile
	TrendStrength float64 // trend strength above which the market counts as trending
	Volume        float64 // volume ratio above which volume confirms
}

// DefaultThresholds returns the standard classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Volatility:    1.5,
		TrendStrength: 0.6,
		Volume:        2.0,
	}
}

// Classify combines an indicator snapshot into a market regime, a recommended
// strategy, and a clamped confidence score.
func Classify(snap *indicator.Snapshot, th Thresholds) Assessment {
	if snap == nil || !snap.Sufficient {
		a := Baseline("", "")
		a.Indicators = snap
		return a
	}

	volatility := snap.Volatility.ValuePct
	trendStrength := snap.Trend.Strength
	volumeRatio := snap.VolumeProfile.Ratio

	marketType := MarketRanging
	if trendStrength > th.TrendStrength {
		marketType = MarketTrending
	}
	// Volatility overrides a trend call.
	if volatility > th.Volatility || snap.Bollinger.Width > 2.0 {
		marketType = MarketVolatile
	}

	var strategy StrategyName
	var confidence float64

	switch marketType {
	case MarketTrending:
		if volatility <= th.Volatility {
			strategy = StrategyDCA
			confidence = 0.6 + 0.2*trendStrength
			if macdConfirms(snap) {
				confidence += 0.1
			}
		} else {
			strategy = StrategyScalping
			confidence = 0.6
		}

	case MarketVolatile:
		strategy = StrategyScalping
		if volumeRatio > th.Volume {
			confidence = math.Min(0.7+volatility/10, 0.9)
		} else {
			confidence = 0.6
		}

	default: // ranging
		rangeBound := snap.Bollinger.Narrow && snap.RSI >= 40 && snap.RSI <= 60
		if rangeBound || volumeRatio < 1.0 {
			strategy = StrategyScalping
		} else {
			strategy = StrategyDCA
		}
		confidence = 0.65
	}

	// Post-adjustments.
	if snap.RSI < 30 || snap.RSI > 70 {
		confidence *= 0.9
	}
	if snap.VolumeProfile.Consistent {
		confidence *= 1.1
	}
	if nearLevel(snap.LastClose, snap.Support) || nearLevel(snap.LastClose, snap.Resistance) {
		confidence *= 1.05
	}

	return Assessment{
		MarketType:          marketType,
		RecommendedStrategy: strategy,
		Confidence:          clampConfidence(confidence),
		Volatility:          volatility,
		VolumeRatio:         volumeRatio,
		TrendStrength:       trendStrength,
		Indicators:          snap,
		Timestamp:           time.Now(),
	}
}

// Baseline returns the synthetic fallback assessment used when the candle
// window is insufficient or market data could not be fetched.
func Baseline(symbol, timeframe string) Assessment {
	return Assessment{
		Symbol:              symbol,
		Timeframe:           timeframe,
		MarketType:          MarketRanging,
		RecommendedStrategy: StrategyDCA,
		Confidence:          0.55,
		TrendStrength:       indicator.NeutralTrendStrength,
		VolumeRatio:         1,
		Timestamp:           time.Now(),
		Synthetic:           true,
	}
}

// macdConfirms reports whether the MACD state agrees with the trend direction.
func macdConfirms(snap *indicator.Snapshot) bool {
	switch snap.Trend.Direction {
	case indicator.TrendUp:
		return snap.MACD.Status == indicator.MACDBuy || snap.MACD.Status == indicator.MACDBullish
	case indicator.TrendDown:
		return snap.MACD.Status == indicator.MACDSell || snap.MACD.Status == indicator.MACDBearish
	default:
		return false
	}
}

func nearLevel(price, level float64) bool {
	if level <= 0 || price <= 0 {
		return false
	}
	return math.Abs(price-level)/level <= 0.01
}

func clampConfidence(c float64) float64 {
	return math.Min(math.Max(c, 0.5), 0.95)
}
