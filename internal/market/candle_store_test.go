package market

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"futures-trading-engine/internal/exchange"

	"github.com/rs/zerolog"
)

type stubClient struct {
	mu      sync.Mutex
	candles []exchange.Candle
	err     error
	calls   int
}

func (s *stubClient) GetTicker(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (s *stubClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

func (s *stubClient) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) GetAccountBalance(ctx context.Context) (float64, error) {
	return 0, errors.New("not implemented")
}

func makeCandles(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = exchange.Candle{
			OpenTime:  int64(i) * 3600_000,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1000,
			CloseTime: int64(i)*3600_000 + 3599_999,
		}
	}
	return out
}

func TestSnapshotFetchesOnce(t *testing.T) {
	client := &stubClient{candles: makeCandles(50)}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	first, err := store.Snapshot(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(first) != 50 {
		t.Fatalf("Expected 50 candles, got %d", len(first))
	}

	// A second call within the TTL must not refetch.
	_, _ = store.Snapshot(context.Background(), "BTCUSDT", "1h")
	if client.calls != 1 {
		t.Errorf("Expected a single fetch within TTL, got %d", client.calls)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	client := &stubClient{candles: makeCandles(10)}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	snap, _ := store.Snapshot(context.Background(), "BTCUSDT", "1h")
	snap[0].Close = 99999

	fresh, _ := store.Snapshot(context.Background(), "BTCUSDT", "1h")
	if fresh[0].Close == 99999 {
		t.Error("Mutating a snapshot leaked into the store")
	}
}

func TestSnapshotExpiredWindowNotServedOnFailure(t *testing.T) {
	client := &stubClient{candles: makeCandles(20)}
	store := NewCandleStore(client, zerolog.New(io.Discard))
	store.SetTTL(time.Nanosecond)

	if _, err := store.Snapshot(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("Initial snapshot failed: %v", err)
	}

	client.mu.Lock()
	client.err = errors.New("exchange down")
	client.mu.Unlock()
	time.Sleep(time.Millisecond)

	// The cached window is past its TTL; a failed refresh must surface
	// ErrStale rather than hand back expired candles.
	if _, err := store.Snapshot(context.Background(), "BTCUSDT", "1h"); !errors.Is(err, ErrStale) {
		t.Fatalf("Expected ErrStale for an expired window, got %v", err)
	}
}

func TestSnapshotWithinTTLNeverRefetches(t *testing.T) {
	client := &stubClient{candles: makeCandles(20)}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	if _, err := store.Snapshot(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("Initial snapshot failed: %v", err)
	}

	// A broken exchange is invisible while the cached window is fresh.
	client.mu.Lock()
	client.err = errors.New("exchange down")
	client.mu.Unlock()

	snap, err := store.Snapshot(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("Fresh window must be served without touching the exchange: %v", err)
	}
	if len(snap) != 20 {
		t.Errorf("Expected the cached 20 candles, got %d", len(snap))
	}
}

func TestSnapshotErrStaleWithNoCache(t *testing.T) {
	client := &stubClient{err: errors.New("exchange down")}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	_, err := store.Snapshot(context.Background(), "BTCUSDT", "1h")
	if !errors.Is(err, ErrStale) {
		t.Errorf("Expected ErrStale, got %v", err)
	}
}

func TestValidateOrderRejectsRegression(t *testing.T) {
	candles := makeCandles(5)
	candles[3].OpenTime = candles[1].OpenTime - 1

	if _, err := validateOrder(candles); err == nil {
		t.Error("Expected out-of-order candles to be rejected")
	}
}

func TestValidateOrderDropsDuplicates(t *testing.T) {
	candles := makeCandles(5)
	candles[2].OpenTime = candles[1].OpenTime

	out, err := validateOrder(candles)
	if err != nil {
		t.Fatalf("Duplicates should be dropped, not rejected: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("Expected 4 candles after dropping the duplicate, got %d", len(out))
	}
}

func TestAppendEnforcesOrder(t *testing.T) {
	client := &stubClient{candles: makeCandles(5)}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	_, _ = store.Snapshot(context.Background(), "BTCUSDT", "1h")

	next := exchange.Candle{OpenTime: 10 * 3600_000, Close: 100}
	if err := store.Append("BTCUSDT", "1h", next); err != nil {
		t.Fatalf("Append of a newer candle failed: %v", err)
	}
	if store.Len("BTCUSDT", "1h") != 6 {
		t.Errorf("Expected 6 candles, got %d", store.Len("BTCUSDT", "1h"))
	}

	stale := exchange.Candle{OpenTime: 3600_000, Close: 100}
	if err := store.Append("BTCUSDT", "1h", stale); err == nil {
		t.Error("Expected append of an older candle to fail")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	client := &stubClient{candles: makeCandles(5)}
	store := NewCandleStore(client, zerolog.New(io.Discard))

	_, _ = store.Snapshot(context.Background(), "BTCUSDT", "1h")
	store.Invalidate("BTCUSDT", "1h")
	_, _ = store.Snapshot(context.Background(), "BTCUSDT", "1h")

	if client.calls != 2 {
		t.Errorf("Expected refetch after invalidate, got %d calls", client.calls)
	}
}
