package position

import (
	"sync"
	"time"
)

// StrategyStats accumulates per-strategy outcomes.
type StrategyStats struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"win_rate"`
	AvgProfit float64 `json:"avg_profit"` // mean pnl % of winning trades
	AvgLoss   float64 `json:"avg_loss"`   // mean pnl % of losing trades

	profitSum float64
	lossSum   float64
}

// StatsData is the plain counter set; safe to copy and serialize.
type StatsData struct {
	TotalTrades    int     `json:"total_trades"`
	WinTrades      int     `json:"win_trades"`
	LossTrades     int     `json:"loss_trades"`
	TotalPnlPct    float64 `json:"total_pnl_pct"`
	CurrentBalance float64 `json:"current_balance"`
	PeakBalance    float64 `json:"peak_balance"`
	MaxDrawdown    float64 `json:"max_drawdown"` // worst peak-to-trough %, positive number

	HourlyPnl     map[int]float64           `json:"hourly_pnl"` // hour of day -> cumulative pnl %
	ByStrategy    map[string]*StrategyStats `json:"by_strategy"`
	LastTradeTime time.Time                 `json:"last_trade_time"`
}

// BotStats holds the running counters for one symbol's manager. All mutation
// happens through RecordClose, called by the owning manager after a trade
// closes, so a single update is atomic from the caller's point of view.
type BotStats struct {
	mu   sync.RWMutex
	data StatsData
}

// NewBotStats seeds stats with the configured starting balance.
func NewBotStats(initialBalance float64) *BotStats {
	return &BotStats{
		data: StatsData{
			CurrentBalance: initialBalance,
			PeakBalance:    initialBalance,
			HourlyPnl:      make(map[int]float64),
			ByStrategy:     make(map[string]*StrategyStats),
		},
	}
}

// RecordClose folds a closed trade into the running counters. pnlPct is the
// realized percentage result, notional the quote-asset size of the trade, and
// reinvestment the fraction of profit added back to the working balance.
func (s *BotStats) RecordClose(strategy string, pnlPct, notional, reinvestment float64, closedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &s.data
	d.TotalTrades++
	d.TotalPnlPct += pnlPct
	d.LastTradeTime = closedAt
	d.HourlyPnl[closedAt.Hour()] += pnlPct

	ss, ok := d.ByStrategy[strategy]
	if !ok {
		ss = &StrategyStats{}
		d.ByStrategy[strategy] = ss
	}
	ss.Trades++

	if pnlPct > 0 {
		d.WinTrades++
		ss.Wins++
		ss.profitSum += pnlPct
	} else {
		d.LossTrades++
		ss.Losses++
		ss.lossSum += pnlPct
	}
	if ss.Wins > 0 {
		ss.AvgProfit = ss.profitSum / float64(ss.Wins)
	}
	if ss.Losses > 0 {
		ss.AvgLoss = ss.lossSum / float64(ss.Losses)
	}
	ss.WinRate = float64(ss.Wins) / float64(ss.Trades) * 100

	pnl := notional * pnlPct / 100
	if pnl > 0 {
		d.CurrentBalance += pnl * reinvestment
	} else {
		d.CurrentBalance += pnl
	}

	if d.CurrentBalance > d.PeakBalance {
		d.PeakBalance = d.CurrentBalance
	}
	if d.PeakBalance > 0 {
		drawdown := (d.PeakBalance - d.CurrentBalance) / d.PeakBalance * 100
		if drawdown > d.MaxDrawdown {
			d.MaxDrawdown = drawdown
		}
	}
}

// Balance returns the current working balance.
func (s *BotStats) Balance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.CurrentBalance
}

// Snapshot returns a deep copy of the counters for reporting.
func (s *BotStats) Snapshot() StatsData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.data
	out.HourlyPnl = make(map[int]float64, len(s.data.HourlyPnl))
	for h, v := range s.data.HourlyPnl {
		out.HourlyPnl[h] = v
	}
	out.ByStrategy = make(map[string]*StrategyStats, len(s.data.ByStrategy))
	for name, ss := range s.data.ByStrategy {
		cp := *ss
		out.ByStrategy[name] = &cp
	}
	return out
}
