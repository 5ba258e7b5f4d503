package exchange

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development and paper trading.
type MockClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	balance    float64
	lastUpdate time.Time
	nextOrder  int64
	rng        *rand.Rand
}

// NewMockClient creates a mock client seeded with realistic base prices.
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT":  104500.00,
			"ETHUSDT":  3900.00,
			"BNBUSDT":  710.00,
			"SOLUSDT":  220.00,
			"XRPUSDT":  2.35,
			"ADAUSDT":  1.05,
			"AVAXUSDT": 50.00,
			"LINKUSDT": 28.00,
		},
		balance:    10000.0,
		lastUpdate: time.Now(),
		nextOrder:  1,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// updatePrices applies a small random walk, at most once per second.
func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}
	for symbol, price := range mc.prices {
		change := (mc.rng.Float64() - 0.5) * 0.01
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

func (mc *MockClient) basePrice(symbol string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if p, ok := mc.prices[symbol]; ok {
		return p
	}
	return 100.0
}

// GetTicker returns the simulated last price.
func (mc *MockClient) GetTicker(_ context.Context, symbol string) (float64, error) {
	mc.updatePrices()
	return mc.basePrice(symbol), nil
}

// GetKlines generates a simulated candle history ending at the current price.
func (mc *MockClient) GetKlines(_ context.Context, symbol, interval string, limit int) ([]Candle, error) {
	mc.updatePrices()

	base := mc.basePrice(symbol)
	step := IntervalDuration(interval)
	now := time.Now().Truncate(step)

	mc.mu.Lock()
	rng := mc.rng
	candles := make([]Candle, limit)
	price := base
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(limit-i) * step)

		volatility := 0.02
		open := price
		change := (rng.Float64() - 0.5) * volatility
		closePrice := open * (1 + change)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*volatility*0.25)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*volatility*0.25)
		volume := base * (1000 + rng.Float64()*5000)

		candles[i] = Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: openTime.Add(step).UnixMilli() - 1,
		}
		price = closePrice
	}
	mc.mu.Unlock()

	return candles, nil
}

// PlaceOrder simulates an immediate fill at the current price.
func (mc *MockClient) PlaceOrder(_ context.Context, req OrderRequest) (*OrderAck, error) {
	mc.updatePrices()
	price := req.Price
	if req.Type == OrderMarket || price == 0 {
		price = mc.basePrice(req.Symbol)
	}

	mc.mu.Lock()
	id := mc.nextOrder
	mc.nextOrder++
	mc.mu.Unlock()

	return &OrderAck{
		Symbol:       req.Symbol,
		OrderID:      id,
		TransactTime: time.Now().UnixMilli(),
		Price:        price,
		AvgPrice:     price,
		ExecutedQty:  req.Quantity,
		Status:       "FILLED",
	}, nil
}

// GetAccountBalance returns the simulated balance.
func (mc *MockClient) GetAccountBalance(_ context.Context) (float64, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.balance, nil
}
