package exchange

import (
	"context"
	"testing"
)

func TestMockKlinesAreOrdered(t *testing.T) {
	mc := NewMockClient()

	candles, err := mc.GetKlines(context.Background(), "BTCUSDT", "1h", 100)
	if err != nil {
		t.Fatalf("GetKlines failed: %v", err)
	}
	if len(candles) != 100 {
		t.Fatalf("Expected 100 candles, got %d", len(candles))
	}

	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			t.Fatalf("Candle %d opens at %d, not after %d", i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	for i, c := range candles {
		if c.High < c.Open || c.High < c.Close {
			t.Errorf("Candle %d high %v below open/close", i, c.High)
		}
		if c.Low > c.Open || c.Low > c.Close {
			t.Errorf("Candle %d low %v above open/close", i, c.Low)
		}
		if c.CloseTime <= c.OpenTime {
			t.Errorf("Candle %d closes at %d, before it opens", i, c.CloseTime)
		}
	}
}

func TestMockOrdersFillAtMarket(t *testing.T) {
	mc := NewMockClient()

	ack, err := mc.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     SideBuy,
		Type:     OrderMarket,
		Quantity: 0.5,
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if ack.Status != "FILLED" {
		t.Errorf("Expected FILLED, got %s", ack.Status)
	}
	if ack.ExecutedQty != 0.5 {
		t.Errorf("Expected executed quantity 0.5, got %v", ack.ExecutedQty)
	}
	if ack.AvgPrice <= 0 {
		t.Errorf("Expected a positive fill price, got %v", ack.AvgPrice)
	}

	second, _ := mc.PlaceOrder(context.Background(), OrderRequest{Symbol: "ETHUSDT", Side: SideSell, Type: OrderMarket, Quantity: 0.5})
	if second.OrderID <= ack.OrderID {
		t.Errorf("Order IDs must increase: %d then %d", ack.OrderID, second.OrderID)
	}
}

func TestMockTickerUnknownSymbol(t *testing.T) {
	mc := NewMockClient()

	price, err := mc.GetTicker(context.Background(), "DOGEUSDT")
	if err != nil {
		t.Fatalf("GetTicker failed: %v", err)
	}
	if price <= 0 {
		t.Errorf("Expected a positive fallback price, got %v", price)
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]int64{
		"1m":  60_000,
		"5m":  300_000,
		"15m": 900_000,
		"1h":  3_600_000,
		"4h":  14_400_000,
		"1d":  86_400_000,
	}
	for interval, wantMillis := range cases {
		if got := IntervalDuration(interval).Milliseconds(); got != wantMillis {
			t.Errorf("%s: expected %dms, got %dms", interval, wantMillis, got)
		}
	}
}
