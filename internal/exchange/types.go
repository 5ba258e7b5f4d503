package exchange

import "time"

// Candle represents a single OHLCV candlestick.
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// Time returns the candle open time as a time.Time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the closing side for this side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderRequest describes an order to be placed on the exchange.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64 // only for LIMIT orders
	ReduceOnly bool
}

// OrderAck is the exchange acknowledgement for a placed order.
type OrderAck struct {
	Symbol        string  `json:"symbol"`
	OrderID       int64   `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	TransactTime  int64   `json:"transactTime"`
	Price         float64 `json:"price,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	Status        string  `json:"status"`
}

// IntervalDuration maps an exchange interval string to a duration.
// Unknown intervals default to one minute.
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
