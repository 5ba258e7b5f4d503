package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PriceStream subscribes to mark-price updates over the exchange websocket.
// It keeps the latest price per symbol so tick evaluation can read prices
// without an extra REST round trip; the REST ticker remains the fallback.
type PriceStream struct {
	mu        sync.RWMutex
	baseURL   string
	symbols   []string
	conn      *websocket.Conn
	prices    map[string]float64
	updatedAt map[string]time.Time
	stopChan  chan struct{}
	running   bool
	log       zerolog.Logger
}

type markPriceEvent struct {
	EventType string  `json:"e"`
	Symbol    string  `json:"s"`
	MarkPrice float64 `json:"p,string"`
	EventTime int64   `json:"E"`
}

// NewPriceStream creates a stream for the given symbols.
func NewPriceStream(baseURL string, symbols []string, logger zerolog.Logger) *PriceStream {
	return &PriceStream{
		baseURL:   strings.TrimRight(baseURL, "/"),
		symbols:   symbols,
		prices:    make(map[string]float64),
		updatedAt: make(map[string]time.Time),
		stopChan:  make(chan struct{}),
		log:       logger.With().Str("component", "price_stream").Logger(),
	}
}

// Start connects and begins reading events. Reconnects with backoff on failure.
func (ps *PriceStream) Start() error {
	ps.mu.Lock()
	if ps.running {
		ps.mu.Unlock()
		return fmt.Errorf("price stream already running")
	}
	ps.running = true
	ps.mu.Unlock()

	if err := ps.connect(); err != nil {
		ps.mu.Lock()
		ps.running = false
		ps.mu.Unlock()
		return err
	}

	go ps.readLoop()
	return nil
}

func (ps *PriceStream) connect() error {
	streams := make([]string, len(ps.symbols))
	for i, s := range ps.symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	endpoint := ps.baseURL + "/stream?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing price stream: %w", err)
	}

	ps.mu.Lock()
	ps.conn = conn
	ps.mu.Unlock()

	ps.log.Info().Int("symbols", len(ps.symbols)).Msg("price stream connected")
	return nil
}

func (ps *PriceStream) readLoop() {
	backoff := time.Second
	for {
		select {
		case <-ps.stopChan:
			return
		default:
		}

		ps.mu.RLock()
		conn := ps.conn
		ps.mu.RUnlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ps.stopChan:
				return
			default:
			}
			ps.log.Warn().Err(err).Dur("backoff", backoff).Msg("price stream read failed, reconnecting")
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			if err := ps.connect(); err != nil {
				ps.log.Error().Err(err).Msg("price stream reconnect failed")
			}
			continue
		}
		backoff = time.Second

		var wrapper struct {
			Data markPriceEvent `json:"data"`
		}
		if err := json.Unmarshal(msg, &wrapper); err != nil || wrapper.Data.Symbol == "" {
			continue
		}

		ps.mu.Lock()
		ps.prices[wrapper.Data.Symbol] = wrapper.Data.MarkPrice
		ps.updatedAt[wrapper.Data.Symbol] = time.Now()
		ps.mu.Unlock()
	}
}

// LastPrice returns the most recent streamed price for a symbol and whether
// it is fresh (updated within maxAge).
func (ps *PriceStream) LastPrice(symbol string, maxAge time.Duration) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	price, ok := ps.prices[symbol]
	if !ok {
		return 0, false
	}
	if time.Since(ps.updatedAt[symbol]) > maxAge {
		return 0, false
	}
	return price, true
}

// Stop closes the stream connection.
func (ps *PriceStream) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.running {
		return
	}
	ps.running = false
	close(ps.stopChan)
	if ps.conn != nil {
		ps.conn.Close()
	}
	ps.log.Info().Msg("price stream stopped")
}
