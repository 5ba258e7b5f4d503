package indicator

import (
	"math"

	"futures-trading-engine/internal/exchange"
)

// Neutral defaults substituted when a window is too short for an indicator.
const (
	NeutralRSI            = 50.0
	NeutralBollingerWidth = 1.5
	NeutralTrendStrength  = 0.5
)

// Config holds indicator periods and thresholds.
type Config struct {
	RSIPeriod         int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	BollingerPeriod   int
	BollingerMult     float64
	ShortPeriod       int
	LongPeriod        int
	MomentumLookback  int
	VolatilityPeriod  int
	HighVolatilityPct float64 // ATR% above which volatility counts as high
}

// DefaultConfig returns the standard indicator configuration.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:         14,
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		BollingerPeriod:   20,
		BollingerMult:     2.0,
		ShortPeriod:       14,
		LongPeriod:        50,
		MomentumLookback:  10,
		VolatilityPeriod:  14,
		HighVolatilityPct: 1.5,
	}
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the Simple Moving Average over the last period closes.
func CalculateSMA(candles []exchange.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// CalculateEMA calculates the Exponential Moving Average, seeded with an SMA.
func CalculateEMA(candles []exchange.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	ema := CalculateSMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// CalculateWMA calculates the Weighted Moving Average with linear weights
// favoring the most recent bars.
func CalculateWMA(candles []exchange.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	weightedSum := 0.0
	weightTotal := 0.0
	start := len(candles) - period
	for i := 0; i < period; i++ {
		weight := float64(i + 1)
		weightedSum += candles[start+i].Close * weight
		weightTotal += weight
	}
	return weightedSum / weightTotal
}

// emaSeries computes an EMA series over arbitrary values. The first period-1
// entries are zero; the series is seeded with an SMA at index period-1.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i] * multiplier) + (out[i-1] * (1 - multiplier))
	}
	return out
}

// ============================================================================
// RSI
// ============================================================================

// CalculateRSI calculates the Relative Strength Index using Wilder smoothing.
// Returns the neutral 50 when the window is too short, 100 when there are no
// losses in the window.
func CalculateRSI(candles []exchange.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return NeutralRSI
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing over the remainder of the window.
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSILabel classifies an RSI value.
func RSILabel(rsi float64) string {
	switch {
	case rsi > 70:
		return "OVERBOUGHT"
	case rsi < 30:
		return "OVERSOLD"
	default:
		return "NEUTRAL"
	}
}

// ============================================================================
// MACD
// ============================================================================

// MACDStatus classifies the current MACD state.
type MACDStatus string

const (
	MACDBuy     MACDStatus = "BUY"     // signal-line cross upward on the last bar
	MACDSell    MACDStatus = "SELL"    // signal-line cross downward on the last bar
	MACDBullish MACDStatus = "BULLISH" // above signal line, no fresh cross
	MACDBearish MACDStatus = "BEARISH" // below signal line, no fresh cross
	MACDNeutral MACDStatus = "NEUTRAL"
)

// MACDResult holds MACD line, signal line, histogram, and the classification.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Status    MACDStatus
}

// CalculateMACD calculates the MACD line (EMA fast − EMA slow), a true
// signal-line EMA over the MACD history, and classifies the last two points
// for crossovers.
func CalculateMACD(candles []exchange.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{Status: MACDNeutral}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	// MACD series is valid from the first index where the slow EMA exists.
	macd := make([]float64, 0, len(closes)-slowPeriod+1)
	for i := slowPeriod - 1; i < len(closes); i++ {
		macd = append(macd, fast[i]-slow[i])
	}

	signal := emaSeries(macd, signalPeriod)

	last := len(macd) - 1
	result := MACDResult{
		MACD:      macd[last],
		Signal:    signal[last],
		Histogram: macd[last] - signal[last],
	}

	prevDiff := macd[last-1] - signal[last-1]
	currDiff := result.Histogram

	switch {
	case prevDiff <= 0 && currDiff > 0:
		result.Status = MACDBuy
	case prevDiff >= 0 && currDiff < 0:
		result.Status = MACDSell
	case currDiff > 0:
		result.Status = MACDBullish
	case currDiff < 0:
		result.Status = MACDBearish
	default:
		result.Status = MACDNeutral
	}
	return result
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Band values and width analysis.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64 // (upper-lower)/middle * 100
	Narrow bool    // width < 0.7 x trailing-10 average width
}

// CalculateBollinger calculates Bollinger Bands with width and squeeze detection.
func CalculateBollinger(candles []exchange.Candle, period int, mult float64) BollingerResult {
	if len(candles) < period {
		return BollingerResult{Width: NeutralBollingerWidth}
	}

	width := func(end int) (upper, middle, lower, w float64) {
		window := candles[:end]
		middle = CalculateSMA(window, period)
		variance := 0.0
		for i := end - period; i < end; i++ {
			diff := candles[i].Close - middle
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(period))
		upper = middle + stdDev*mult
		lower = middle - stdDev*mult
		if middle != 0 {
			w = (upper - lower) / middle * 100
		}
		return upper, middle, lower, w
	}

	upper, middle, lower, w := width(len(candles))
	result := BollingerResult{Upper: upper, Middle: middle, Lower: lower, Width: w}

	// Squeeze: compare against the trailing-10 average width.
	trailing := 0
	sum := 0.0
	for end := len(candles) - 1; end >= period && trailing < 10; end-- {
		_, _, _, tw := width(end)
		sum += tw
		trailing++
	}
	if trailing > 0 {
		avg := sum / float64(trailing)
		result.Narrow = avg > 0 && w < 0.7*avg
	}
	return result
}

// ============================================================================
// TREND
// ============================================================================

// TrendDirection labels the trend slope.
type TrendDirection string

const (
	TrendUp      TrendDirection = "UP"
	TrendDown    TrendDirection = "DOWN"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// TrendResult holds the trend direction and a 0-1 strength score.
type TrendResult struct {
	Direction TrendDirection
	Strength  float64
	Slope     float64 // normalized OLS slope
}

// CalculateTrend fits an OLS line over the window closes, normalizes the slope
// by the price range, and blends it with the short/long EMA ratio into a
// strength score. The direction is overridden to neutral when the raw price
// change disagrees with the slope or a fresh extreme falls against it.
func CalculateTrend(candles []exchange.Candle, shortPeriod, longPeriod int) TrendResult {
	if len(candles) < longPeriod {
		return TrendResult{Direction: TrendNeutral, Strength: NeutralTrendStrength}
	}

	n := float64(len(candles))
	sumX, sumY, sumXY, sumXX := 0.0, 0.0, 0.0, 0.0
	minClose, maxClose := candles[0].Close, candles[0].Close
	for i, c := range candles {
		x := float64(i)
		sumX += x
		sumY += c.Close
		sumXY += x * c.Close
		sumXX += x * x
		if c.Close < minClose {
			minClose = c.Close
		}
		if c.Close > maxClose {
			maxClose = c.Close
		}
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return TrendResult{Direction: TrendNeutral, Strength: NeutralTrendStrength}
	}
	slope := (n*sumXY - sumX*sumY) / denom

	priceRange := maxClose - minClose
	normSlope := 0.0
	if priceRange > 0 {
		normSlope = slope / priceRange
	}

	direction := TrendNeutral
	if normSlope > 0.001 {
		direction = TrendUp
	} else if normSlope < -0.001 {
		direction = TrendDown
	}

	// EMA ratio contributes the second half of the strength score.
	emaShort := CalculateEMA(candles, shortPeriod)
	emaLong := CalculateEMA(candles, longPeriod)
	emaComponent := 0.0
	if emaLong > 0 {
		emaComponent = math.Abs(emaShort-emaLong) / emaLong * 50
	}

	strength := math.Min(math.Abs(normSlope)*float64(len(candles))*0.5+emaComponent, 1.0)

	// Corroboration: the realized price change must agree with the slope.
	first, last := candles[0].Close, candles[len(candles)-1].Close
	change := last - first
	if (direction == TrendUp && change < 0) || (direction == TrendDown && change > 0) {
		direction = TrendNeutral
		strength *= 0.5
	}

	// A new extreme against the claimed direction also invalidates it.
	if direction == TrendUp && last <= minClose {
		direction = TrendNeutral
	}
	if direction == TrendDown && last >= maxClose {
		direction = TrendNeutral
	}

	return TrendResult{Direction: direction, Strength: strength, Slope: normSlope}
}

// ============================================================================
// MOMENTUM
// ============================================================================

// MomentumResult holds momentum, its direction, and acceleration.
type MomentumResult struct {
	Value        float64 // % change over the lookback
	Direction    TrendDirection
	Acceleration float64 // change vs the prior lookback's momentum
}

// CalculateMomentum computes the percent change over a fixed lookback and its
// rate of change against the prior lookback.
func CalculateMomentum(candles []exchange.Candle, lookback int) MomentumResult {
	if lookback <= 0 || len(candles) < lookback+1 {
		return MomentumResult{Direction: TrendNeutral}
	}

	last := candles[len(candles)-1].Close
	past := candles[len(candles)-1-lookback].Close
	value := 0.0
	if past != 0 {
		value = (last - past) / past * 100
	}

	direction := TrendNeutral
	if value > 0.1 {
		direction = TrendUp
	} else if value < -0.1 {
		direction = TrendDown
	}

	accel := 0.0
	if len(candles) >= 2*lookback+1 {
		prevLast := candles[len(candles)-1-lookback].Close
		prevPast := candles[len(candles)-1-2*lookback].Close
		if prevPast != 0 {
			prevValue := (prevLast - prevPast) / prevPast * 100
			accel = value - prevValue
		}
	}

	return MomentumResult{Value: value, Direction: direction, Acceleration: accel}
}

// ============================================================================
// VOLATILITY (ATR)
// ============================================================================

// VolatilityResult holds ATR-based volatility as a percent of the last close.
type VolatilityResult struct {
	ValuePct float64
	ATR      float64
	IsHigh   bool
}

// CalculateATR calculates the Average True Range over a period.
func CalculateATR(candles []exchange.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}
	return trSum / float64(period)
}

// CalculateVolatility normalizes ATR to a percent of the last close.
func CalculateVolatility(candles []exchange.Candle, period int, highThreshold float64) VolatilityResult {
	atr := CalculateATR(candles, period)
	if atr == 0 || len(candles) == 0 {
		return VolatilityResult{}
	}

	last := candles[len(candles)-1].Close
	pct := 0.0
	if last > 0 {
		pct = atr / last * 100
	}
	return VolatilityResult{ValuePct: pct, ATR: atr, IsHigh: pct > highThreshold}
}

// ============================================================================
// VOLUME PROFILE
// ============================================================================

// VolumeProfileResult summarizes up-candle vs down-candle volume behavior.
type VolumeProfileResult struct {
	UpAverage   float64
	DownAverage float64
	Ratio       float64 // last volume vs window average
	Consistent  bool
	Bias        TrendDirection // whichever side dominates by at least 20%
}

// CalculateVolumeProfile averages volume of up vs down candles over the last
// 20 bars and derives consistency and directional bias.
func CalculateVolumeProfile(candles []exchange.Candle) VolumeProfileResult {
	const window = 20
	if len(candles) < 2 {
		return VolumeProfileResult{Bias: TrendNeutral, Ratio: 1}
	}

	start := 0
	if len(candles) > window {
		start = len(candles) - window
	}

	upSum, downSum := 0.0, 0.0
	upCount, downCount := 0, 0
	total := 0.0
	values := make([]float64, 0, window)
	for i := start; i < len(candles); i++ {
		v := candles[i].Volume
		total += v
		values = append(values, v)
		if candles[i].Close >= candles[i].Open {
			upSum += v
			upCount++
		} else {
			downSum += v
			downCount++
		}
	}

	result := VolumeProfileResult{Bias: TrendNeutral, Ratio: 1}
	if upCount > 0 {
		result.UpAverage = upSum / float64(upCount)
	}
	if downCount > 0 {
		result.DownAverage = downSum / float64(downCount)
	}

	mean := total / float64(len(values))
	if mean > 0 {
		variance := 0.0
		for _, v := range values {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float64(len(values))
		// Coefficient of variation below 0.5 counts as consistent.
		result.Consistent = math.Sqrt(variance)/mean < 0.5
		result.Ratio = candles[len(candles)-1].Volume / mean
	}

	if result.DownAverage > 0 && result.UpAverage >= result.DownAverage*1.2 {
		result.Bias = TrendUp
	} else if result.UpAverage > 0 && result.DownAverage >= result.UpAverage*1.2 {
		result.Bias = TrendDown
	}
	return result
}

// ============================================================================
// SUPPORT / RESISTANCE
// ============================================================================

// levelCluster groups nearby extrema into one price level.
type levelCluster struct {
	price   float64
	touches int
}

// FindSupportResistance identifies support and resistance from clustered local
// extrema (5-point window, 0.5% clustering tolerance, most touches wins).
// Falls back to the window's global min/max when no cluster forms.
func FindSupportResistance(candles []exchange.Candle) (support, resistance float64) {
	if len(candles) == 0 {
		return 0, 0
	}

	globalMin, globalMax := candles[0].Low, candles[0].High
	for _, c := range candles {
		if c.Low < globalMin {
			globalMin = c.Low
		}
		if c.High > globalMax {
			globalMax = c.High
		}
	}

	lows, highs := localExtrema(candles)

	support = bestCluster(lows)
	if support == 0 {
		support = globalMin
	}
	resistance = bestCluster(highs)
	if resistance == 0 {
		resistance = globalMax
	}
	return support, resistance
}

// localExtrema returns local minima lows and local maxima highs using a
// 5-point window (two bars on each side).
func localExtrema(candles []exchange.Candle) (lows, highs []float64) {
	for i := 2; i < len(candles)-2; i++ {
		low := candles[i].Low
		if low <= candles[i-1].Low && low <= candles[i-2].Low &&
			low <= candles[i+1].Low && low <= candles[i+2].Low {
			lows = append(lows, low)
		}
		high := candles[i].High
		if high >= candles[i-1].High && high >= candles[i-2].High &&
			high >= candles[i+1].High && high >= candles[i+2].High {
			highs = append(highs, high)
		}
	}
	return lows, highs
}

// bestCluster groups extrema within 0.5% of each other and returns the mean
// price of the cluster with the most touches, or 0 when none form.
func bestCluster(levels []float64) float64 {
	const tolerance = 0.005

	var best levelCluster
	for _, anchor := range levels {
		sum := 0.0
		touches := 0
		for _, level := range levels {
			if math.Abs(level-anchor)/anchor <= tolerance {
				sum += level
				touches++
			}
		}
		if touches > best.touches {
			best = levelCluster{price: sum / float64(touches), touches: touches}
		}
	}

	if best.touches < 2 {
		return 0
	}
	return best.price
}
