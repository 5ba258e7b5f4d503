package journal

import (
	"context"
	"time"
)

// TradeRecord is one journaled trade. Open trades have no exit fields.
type TradeRecord struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Direction  string     `json:"direction"` // LONG or SHORT
	Strategy   string     `json:"strategy"`
	EntryPrice float64    `json:"entry_price"`
	Quantity   float64    `json:"quantity"`
	DCACount   int        `json:"dca_count"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	PnLPercent *float64   `json:"pnl_percent,omitempty"`
	ExitReason *string    `json:"exit_reason,omitempty"`
	Status     string     `json:"status"` // OPEN or CLOSED
}

// Journal persists trade records. Implementations are best-effort: callers
// log failures and continue, a journal error is never fatal to trading.
type Journal interface {
	Append(ctx context.Context, trade *TradeRecord) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Close()
}

// Noop is a journal that discards everything. Used in tests and backtests.
type Noop struct{}

func (Noop) Append(context.Context, *TradeRecord) error                   { return nil }
func (Noop) Update(context.Context, string, map[string]interface{}) error { return nil }
func (Noop) Close()                                                       {}

var _ Journal = Noop{}
