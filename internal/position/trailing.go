package position

import "futures-trading-engine/internal/signal"

// updateTrailing advances the position's water marks and ratchets the trailing
// stop once activated. The stop only ever moves in the position's favor.
// Returns true when the current price has breached the trailing stop.
func updateTrailing(p *Position, price, activationPct, distancePct float64) bool {
	if p.TrailingStopActive && trailingBreached(p, price) {
		return true
	}

	if p.Direction == signal.DirLong {
		if price > p.HighWaterMark {
			p.HighWaterMark = price
		}
		profitPct := (price - p.EntryPrice) / p.EntryPrice * 100
		if !p.TrailingStopActive && profitPct >= activationPct {
			p.TrailingStopActive = true
		}
		if p.TrailingStopActive {
			stop := p.HighWaterMark * (1 - distancePct/100)
			if stop > p.TrailingStopPrice {
				p.TrailingStopPrice = stop
			}
		}
	} else {
		if p.LowWaterMark == 0 || price < p.LowWaterMark {
			p.LowWaterMark = price
		}
		profitPct := (p.EntryPrice - price) / p.EntryPrice * 100
		if !p.TrailingStopActive && profitPct >= activationPct {
			p.TrailingStopActive = true
		}
		if p.TrailingStopActive {
			stop := p.LowWaterMark * (1 + distancePct/100)
			if p.TrailingStopPrice == 0 || stop < p.TrailingStopPrice {
				p.TrailingStopPrice = stop
			}
		}
	}

	return p.TrailingStopActive && trailingBreached(p, price)
}

func trailingBreached(p *Position, price float64) bool {
	if p.TrailingStopPrice == 0 {
		return false
	}
	if p.Direction == signal.DirLong {
		return price <= p.TrailingStopPrice
	}
	return price >= p.TrailingStopPrice
}

// resetTrailing re-seeds the water marks and stop after the average entry
// changes, so the ratchet restarts from the new basis.
func resetTrailing(p *Position, price float64) {
	p.TrailingStopActive = false
	p.TrailingStopPrice = 0
	p.HighWaterMark = price
	p.LowWaterMark = price
}
