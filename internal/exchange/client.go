package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrCredentialsMissing is returned when a signed endpoint is called without keys.
var ErrCredentialsMissing = errors.New("exchange: api credentials missing")

// Client defines the exchange operations the engine depends on.
// All calls may fail or time out; callers never assume success without an ack.
type Client interface {
	GetTicker(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	GetAccountBalance(ctx context.Context) (float64, error)
}

// RESTClient talks to the exchange futures REST API.
type RESTClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewRESTClient creates a REST client. The limiter caps outbound requests at
// roughly the exchange's request-weight budget.
func NewRESTClient(apiKey, secretKey, baseURL string, logger zerolog.Logger) *RESTClient {
	return &RESTClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		log:        logger.With().Str("component", "exchange").Logger(),
	}
}

// GetTicker fetches the latest traded price for a symbol.
func (c *RESTClient) GetTicker(ctx context.Context, symbol string) (float64, error) {
	body, err := c.get(ctx, "/fapi/v1/ticker/price", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing ticker: %w", err)
	}
	return resp.Price, nil
}

// GetKlines fetches up to limit candles for a symbol and interval.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := c.get(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:  asInt64(row[0]),
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    asFloat(row[5]),
			CloseTime: asInt64(row[6]),
		})
	}
	return candles, nil
}

// PlaceOrder submits a signed order and returns the exchange ack.
func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, ErrCredentialsMissing
	}

	params := url.Values{
		"symbol":           {req.Symbol},
		"side":             {string(req.Side)},
		"type":             {string(req.Type)},
		"quantity":         {strconv.FormatFloat(req.Quantity, 'f', 8, 64)},
		"newClientOrderId": {"eng-" + uuid.NewString()[:18]},
	}
	if req.Type == OrderLimit {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', 8, 64))
		params.Set("timeInForce", "GTC")
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var ack OrderAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("parsing order ack: %w", err)
	}
	c.log.Debug().
		Str("symbol", ack.Symbol).
		Int64("order_id", ack.OrderID).
		Str("status", ack.Status).
		Msg("order placed")
	return &ack, nil
}

// GetAccountBalance returns the available quote-asset balance.
func (c *RESTClient) GetAccountBalance(ctx context.Context) (float64, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return 0, ErrCredentialsMissing
	}

	body, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return 0, err
	}

	var balances []struct {
		Asset            string  `json:"asset"`
		AvailableBalance float64 `json:"availableBalance,string"`
	}
	if err := json.Unmarshal(body, &balances); err != nil {
		return 0, fmt.Errorf("parsing balances: %w", err)
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			return b.AvailableBalance, nil
		}
	}
	return 0, nil
}

func (c *RESTClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()

	return c.do(req)
}

func (c *RESTClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", c.sign(params))

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	return c.do(req)
}

func (c *RESTClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// sign produces the HMAC-SHA256 signature over the sorted query string.
func (c *RESTClient) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params.Get(k))
	}

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	default:
		return 0
	}
}

var _ Client = (*RESTClient)(nil)
var _ Client = (*MockClient)(nil)
