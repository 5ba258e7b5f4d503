package signal

import (
	"strings"
	"testing"
	"time"

	"futures-trading-engine/internal/indicator"
)

func neutralSnapshot() *indicator.Snapshot {
	return &indicator.Snapshot{
		RSI:        50,
		MACD:       indicator.MACDResult{Status: indicator.MACDNeutral},
		Trend:      indicator.TrendResult{Direction: indicator.TrendUp, Strength: 0.7},
		Sufficient: true,
	}
}

func longContext() ExitContext {
	return ExitContext{
		Direction:        DirLong,
		EntryPrice:       100,
		StopLoss:         95,
		TakeProfit:       110,
		EntryTime:        time.Now().Add(-5 * time.Minute),
		MaxTradeDuration: 4 * time.Hour,
	}
}

func TestExitStopLossBreachLong(t *testing.T) {
	dec := EvaluateExit(longContext(), 94.5, neutralSnapshot(), time.Now())

	if !dec.ShouldClose {
		t.Fatal("Expected close on stop loss breach")
	}
	if !strings.Contains(dec.Reason, "stop loss") {
		t.Errorf("Expected stop loss reason, got %q", dec.Reason)
	}
}

func TestExitTakeProfitBreachLong(t *testing.T) {
	dec := EvaluateExit(longContext(), 111, neutralSnapshot(), time.Now())

	if !dec.ShouldClose {
		t.Fatal("Expected close on take profit breach")
	}
	if !strings.Contains(dec.Reason, "take profit") {
		t.Errorf("Expected take profit reason, got %q", dec.Reason)
	}
}

func TestExitStopLossBreachShort(t *testing.T) {
	ctx := ExitContext{
		Direction:  DirShort,
		EntryPrice: 100,
		StopLoss:   105,
		TakeProfit: 92,
		EntryTime:  time.Now().Add(-5 * time.Minute),
	}

	dec := EvaluateExit(ctx, 106, neutralSnapshot(), time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "stop loss") {
		t.Errorf("Expected short stop loss close, got %+v", dec)
	}
}

func TestExitTrailingStopBreach(t *testing.T) {
	ctx := longContext()
	ctx.TrailingActive = true
	ctx.TrailingStop = 103

	// Price above SL and below TP but through the trailing stop.
	dec := EvaluateExit(ctx, 102.5, neutralSnapshot(), time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "trailing stop") {
		t.Errorf("Expected trailing stop close, got %+v", dec)
	}
}

func TestExitStopLossBeatsTrailing(t *testing.T) {
	ctx := longContext()
	ctx.TrailingActive = true
	ctx.TrailingStop = 96

	dec := EvaluateExit(ctx, 94, neutralSnapshot(), time.Now())
	if !strings.Contains(dec.Reason, "stop loss") {
		t.Errorf("Stop loss should take priority over trailing, got %q", dec.Reason)
	}
}

func TestExitMaxDuration(t *testing.T) {
	ctx := longContext()
	ctx.EntryTime = time.Now().Add(-5 * time.Hour)

	dec := EvaluateExit(ctx, 101, neutralSnapshot(), time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "duration") {
		t.Errorf("Expected duration close, got %+v", dec)
	}
}

func TestExitMinimumProfit(t *testing.T) {
	ctx := longContext()
	ctx.MinProfitPct = 1.0

	dec := EvaluateExit(ctx, 101.5, neutralSnapshot(), time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "profit") {
		t.Errorf("Expected minimum profit close, got %+v", dec)
	}
}

func TestExitReversalRSI(t *testing.T) {
	snap := neutralSnapshot()
	snap.RSI = 75

	dec := EvaluateExit(longContext(), 101, snap, time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "RSI") {
		t.Errorf("Expected RSI reversal close, got %+v", dec)
	}
}

func TestExitReversalMACD(t *testing.T) {
	snap := neutralSnapshot()
	snap.MACD.Status = indicator.MACDSell

	dec := EvaluateExit(longContext(), 101, snap, time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "MACD") {
		t.Errorf("Expected MACD reversal close, got %+v", dec)
	}
}

func TestExitWeakTrendTimeout(t *testing.T) {
	snap := neutralSnapshot()
	snap.Trend.Strength = 0.2

	ctx := longContext()
	ctx.EntryTime = time.Now().Add(-45 * time.Minute)

	dec := EvaluateExit(ctx, 101, snap, time.Now())
	if !dec.ShouldClose || !strings.Contains(dec.Reason, "weak trend") {
		t.Errorf("Expected weak trend close, got %+v", dec)
	}
}

func TestNoExitWhileHealthy(t *testing.T) {
	dec := EvaluateExit(longContext(), 101, neutralSnapshot(), time.Now())
	if dec.ShouldClose {
		t.Errorf("Expected position to stay open, got close: %q", dec.Reason)
	}
}

func TestProfitPercentSigns(t *testing.T) {
	if p := ProfitPercent(DirLong, 100, 105); p != 5 {
		t.Errorf("Expected +5%% for long gain, got %f", p)
	}
	if p := ProfitPercent(DirShort, 100, 105); p != -5 {
		t.Errorf("Expected -5%% for short loss, got %f", p)
	}
	if p := ProfitPercent(DirShort, 100, 95); p != 5 {
		t.Errorf("Expected +5%% for short gain, got %f", p)
	}
}
