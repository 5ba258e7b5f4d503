package indicator

import (
	"math"

	"futures-trading-engine/internal/exchange"
)

// PatternType labels a detected reversal pattern.
type PatternType string

const (
	PatternDoubleTop    PatternType = "DOUBLE_TOP"
	PatternDoubleBottom PatternType = "DOUBLE_BOTTOM"
)

// Pattern is a detected chart pattern with a 0-0.9 strength score.
type Pattern struct {
	Type     PatternType
	Level    float64 // the matched extremum price
	Strength float64
}

// DetectDoublePattern scans the window for a double top or double bottom:
// two extrema of near-equal value (within 1%) separated by an opposing
// extremum at least 1% away. Strength blends the separation between the two
// extrema and the depth of the opposing extremum, capped at 0.9.
func DetectDoublePattern(candles []exchange.Candle) *Pattern {
	if len(candles) < 10 {
		return nil
	}

	lows, highs := extremaWithIndex(candles)

	if p := matchDouble(highs, lows, true); p != nil {
		return p
	}
	return matchDouble(lows, highs, false)
}

type indexedLevel struct {
	index int
	price float64
}

func extremaWithIndex(candles []exchange.Candle) (lows, highs []indexedLevel) {
	for i := 2; i < len(candles)-2; i++ {
		low := candles[i].Low
		if low <= candles[i-1].Low && low <= candles[i-2].Low &&
			low <= candles[i+1].Low && low <= candles[i+2].Low {
			lows = append(lows, indexedLevel{index: i, price: low})
		}
		high := candles[i].High
		if high >= candles[i-1].High && high >= candles[i-2].High &&
			high >= candles[i+1].High && high >= candles[i+2].High {
			highs = append(highs, indexedLevel{index: i, price: high})
		}
	}
	return lows, highs
}

// matchDouble looks for two near-equal primary extrema with an opposing
// extremum between them. top selects double-top (primaries are highs).
func matchDouble(primary, opposing []indexedLevel, top bool) *Pattern {
	for i := 0; i < len(primary); i++ {
		for j := i + 1; j < len(primary); j++ {
			a, b := primary[i], primary[j]
			if a.price == 0 {
				continue
			}
			equality := math.Abs(a.price-b.price) / a.price
			if equality > 0.01 {
				continue
			}

			// Opposing extremum strictly between the two primaries.
			var between *indexedLevel
			for k := range opposing {
				o := opposing[k]
				if o.index > a.index && o.index < b.index {
					if between == nil ||
						(top && o.price < between.price) ||
						(!top && o.price > between.price) {
						between = &opposing[k]
					}
				}
			}
			if between == nil {
				continue
			}

			depth := math.Abs(a.price-between.price) / a.price
			if depth < 0.01 {
				continue
			}

			separation := float64(b.index-a.index) / 20.0
			strength := math.Min(0.3+separation*0.3+depth*10*0.3, 0.9)

			level := (a.price + b.price) / 2
			if top {
				return &Pattern{Type: PatternDoubleTop, Level: level, Strength: strength}
			}
			return &Pattern{Type: PatternDoubleBottom, Level: level, Strength: strength}
		}
	}
	return nil
}
