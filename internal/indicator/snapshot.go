package indicator

import (
	"time"

	"futures-trading-engine/internal/exchange"

	"github.com/rs/zerolog"
)

// Snapshot is an immutable bundle of indicator values computed from one
// candle window. It is produced fresh each tick and never mutated.
type Snapshot struct {
	RSI           float64             `json:"rsi"`
	RSIState      string              `json:"rsi_state"`
	MACD          MACDResult          `json:"macd"`
	Bollinger     BollingerResult     `json:"bollinger"`
	SMA           float64             `json:"sma"`
	EMAShort      float64             `json:"ema_short"`
	EMALong       float64             `json:"ema_long"`
	WMA           float64             `json:"wma"`
	Trend         TrendResult         `json:"trend"`
	Momentum      MomentumResult      `json:"momentum"`
	Volatility    VolatilityResult    `json:"volatility"`
	VolumeProfile VolumeProfileResult `json:"volume_profile"`
	Support       float64             `json:"support"`
	Resistance    float64             `json:"resistance"`
	Pattern       *Pattern            `json:"pattern,omitempty"`
	LastClose     float64             `json:"last_close"`
	Sufficient    bool                `json:"sufficient"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Compute builds a Snapshot from the candle window. Each indicator is
// computed in isolation: a panic in one sub-computation is recovered and
// replaced with that indicator's neutral default so one bad indicator never
// blocks the others.
func Compute(candles []exchange.Candle, cfg Config, logger zerolog.Logger) *Snapshot {
	snap := &Snapshot{
		RSI:       NeutralRSI,
		RSIState:  "NEUTRAL",
		MACD:      MACDResult{Status: MACDNeutral},
		Bollinger: BollingerResult{Width: NeutralBollingerWidth},
		Trend:     TrendResult{Direction: TrendNeutral, Strength: NeutralTrendStrength},
		Momentum:  MomentumResult{Direction: TrendNeutral},
		VolumeProfile: VolumeProfileResult{
			Bias:  TrendNeutral,
			Ratio: 1,
		},
		Sufficient: len(candles) >= cfg.LongPeriod,
		Timestamp:  time.Now(),
	}
	if len(candles) == 0 {
		return snap
	}
	snap.LastClose = candles[len(candles)-1].Close

	safely(logger, "rsi", func() {
		snap.RSI = CalculateRSI(candles, cfg.RSIPeriod)
		snap.RSIState = RSILabel(snap.RSI)
	})
	safely(logger, "macd", func() {
		snap.MACD = CalculateMACD(candles, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	})
	safely(logger, "bollinger", func() {
		snap.Bollinger = CalculateBollinger(candles, cfg.BollingerPeriod, cfg.BollingerMult)
	})
	safely(logger, "moving_averages", func() {
		snap.SMA = CalculateSMA(candles, cfg.ShortPeriod)
		snap.EMAShort = CalculateEMA(candles, cfg.ShortPeriod)
		snap.EMALong = CalculateEMA(candles, cfg.LongPeriod)
		snap.WMA = CalculateWMA(candles, cfg.ShortPeriod)
	})
	safely(logger, "trend", func() {
		snap.Trend = CalculateTrend(candles, cfg.ShortPeriod, cfg.LongPeriod)
	})
	safely(logger, "momentum", func() {
		snap.Momentum = CalculateMomentum(candles, cfg.MomentumLookback)
	})
	safely(logger, "volatility", func() {
		snap.Volatility = CalculateVolatility(candles, cfg.VolatilityPeriod, cfg.HighVolatilityPct)
	})
	safely(logger, "volume_profile", func() {
		snap.VolumeProfile = CalculateVolumeProfile(candles)
	})
	safely(logger, "support_resistance", func() {
		snap.Support, snap.Resistance = FindSupportResistance(candles)
	})
	safely(logger, "pattern", func() {
		snap.Pattern = DetectDoublePattern(candles)
	})

	return snap
}

// safely runs fn, recovering any panic so the remaining indicators still run.
func safely(logger zerolog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Str("indicator", name).Interface("panic", r).Msg("indicator calculation failed, using neutral default")
		}
	}()
	fn()
}
