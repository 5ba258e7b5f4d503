package position

import (
	"math"
	"testing"
	"time"
)

func TestRecordCloseCounters(t *testing.T) {
	stats := NewBotStats(10000)
	closedAt := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

	stats.RecordClose("DCA", 2.0, 1000, 1.0, closedAt)
	stats.RecordClose("DCA", -1.0, 1000, 1.0, closedAt.Add(time.Hour))
	stats.RecordClose("SCALPING", 0.5, 500, 1.0, closedAt.Add(2*time.Hour))

	d := stats.Snapshot()
	if d.TotalTrades != 3 || d.WinTrades != 2 || d.LossTrades != 1 {
		t.Errorf("Unexpected counters: total %d win %d loss %d", d.TotalTrades, d.WinTrades, d.LossTrades)
	}

	dca := d.ByStrategy["DCA"]
	if dca == nil {
		t.Fatal("Expected DCA strategy stats")
	}
	if dca.Trades != 2 || dca.Wins != 1 || dca.Losses != 1 {
		t.Errorf("Unexpected DCA stats: %+v", dca)
	}
	if dca.WinRate != 50 {
		t.Errorf("Expected 50%% DCA win rate, got %f", dca.WinRate)
	}
	if dca.AvgProfit != 2.0 || dca.AvgLoss != -1.0 {
		t.Errorf("Unexpected DCA averages: profit %f loss %f", dca.AvgProfit, dca.AvgLoss)
	}

	// 14h bucket gets the first trade, 15h the second.
	if d.HourlyPnl[14] != 2.0 || d.HourlyPnl[15] != -1.0 {
		t.Errorf("Unexpected hourly buckets: %v", d.HourlyPnl)
	}
}

func TestRecordCloseBalanceAndDrawdown(t *testing.T) {
	stats := NewBotStats(10000)
	now := time.Now()

	// +2% of 1000 notional with 50% reinvestment adds 10.
	stats.RecordClose("DCA", 2.0, 1000, 0.5, now)
	if b := stats.Balance(); math.Abs(b-10010) > 1e-9 {
		t.Errorf("Expected balance 10010 after reinvested win, got %f", b)
	}

	// Losses hit the balance in full.
	stats.RecordClose("DCA", -5.0, 1000, 0.5, now)
	if b := stats.Balance(); math.Abs(b-9960) > 1e-9 {
		t.Errorf("Expected balance 9960 after loss, got %f", b)
	}

	d := stats.Snapshot()
	wantDD := (10010.0 - 9960.0) / 10010.0 * 100
	if math.Abs(d.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("Expected max drawdown %f, got %f", wantDD, d.MaxDrawdown)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	stats := NewBotStats(1000)
	stats.RecordClose("DCA", 1.0, 100, 1.0, time.Now())

	snap := stats.Snapshot()
	snap.HourlyPnl[0] = 999
	snap.ByStrategy["DCA"].Wins = 999

	fresh := stats.Snapshot()
	if fresh.HourlyPnl[0] == 999 {
		t.Error("Mutating a snapshot leaked into the live hourly map")
	}
	if fresh.ByStrategy["DCA"].Wins == 999 {
		t.Error("Mutating a snapshot leaked into live strategy stats")
	}
}
