package position

import (
	"time"

	"futures-trading-engine/internal/signal"
)

// State names the lifecycle phase of a symbol's manager.
type State string

const (
	StateIdle    State = "IDLE"
	StateOpen    State = "OPEN"
	StateClosing State = "CLOSING"
)

// Position is the single open trade a manager may hold. It is owned and
// mutated exclusively by the Manager for its symbol.
type Position struct {
	Symbol             string           `json:"symbol"`
	Direction          signal.Direction `json:"direction"`
	Strategy           string           `json:"strategy"`
	InitialEntry       float64          `json:"initial_entry"` // first fill price, DCA triggers measure from here
	EntryPrice         float64          `json:"entry_price"`
	Quantity           float64          `json:"quantity"`
	BaseQuantity       float64          `json:"base_quantity"` // size of the initial fill, before DCA
	DCACount           int              `json:"dca_count"`
	StopLoss           float64          `json:"stop_loss"`
	TakeProfit         float64          `json:"take_profit"`
	TrailingStopActive bool             `json:"trailing_stop_active"`
	TrailingStopPrice  float64          `json:"trailing_stop_price"`
	HighWaterMark      float64          `json:"high_water_mark"`
	LowWaterMark       float64          `json:"low_water_mark"`
	EntryTime          time.Time        `json:"entry_time"`
	TradeID            string           `json:"trade_id"`
}

// applyFill folds an additional fill into the position, recomputing the
// quantity-weighted average entry.
func (p *Position) applyFill(price, quantity float64) {
	total := p.Quantity + quantity
	if total <= 0 {
		return
	}
	p.EntryPrice = (p.EntryPrice*p.Quantity + price*quantity) / total
	p.Quantity = total
}

// Clone returns a copy safe to hand outside the manager.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
