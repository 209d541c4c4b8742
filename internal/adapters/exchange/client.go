// Package exchange implements the exchange adapter consumed by the core
// decision pipeline (spec.md §6): market search, quote reads, order
// placement/close, resolved outcomes, sports-market discovery, and a
// push feed — grounded on the teacher's kalshi_http/kalshi_ws/kalshi_auth
// adapters, generalized from Kalshi's specific wire format to the
// interface SPEC_FULL.md's core depends on.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/quotes"
	"github.com/tradecore/inplay/internal/telemetry"
)

// Adapter is the full exchange surface core depends on, per spec.md §6.
type Adapter interface {
	SearchMarkets(ctx context.Context, home, away, league string) ([]model.Market, error)
	GetTokenPrice(ctx context.Context, marketID string, side model.Side) (float64, error)
	GetMarketPrices(ctx context.Context, marketID string) (yes, no *float64, err error)
	GetMarketAssetID(ctx context.Context, marketID string, side model.Side) (string, error)
	GetMarketResolvedOutcome(ctx context.Context, marketID string) (*model.Side, error)
	PlaceOrder(ctx context.Context, marketID string, side model.Side, sizeUSD, price float64) (orderID string, err error)
	ClosePosition(ctx context.Context, marketID string, side model.Side, sizeUSD float64) error
	FetchSportsMarkets(ctx context.Context) ([]model.Market, error)
}

// Client implements Adapter plus quotes.Exchange (ResolveAssetID,
// Subscribe, RESTPrice), so a single Client wires both EntryExecutor's
// order path and quotes.Resolver's price path.
type Client struct {
	http *httpClient
	ws   *wsClient

	mu          sync.RWMutex
	assetIDs    map[string]string // marketID|side -> asset_id, populated from REST lookups
}

// New wires a Client to the exchange's REST and WS endpoints. sink
// receives every push-fed quote; pass quotes.Resolver.UpdateFromPush.
func New(restBaseURL, wsURL string, signer *Signer, sink func(assetID string, q quotes.Quote)) *Client {
	return &Client{
		http:     newHTTPClient(restBaseURL, signer),
		ws:       newWSClient(wsURL, signer, sink),
		assetIDs: make(map[string]string),
	}
}

// Connect dials the push feed. Call once at startup; no-op to call
// Subscribe before Connect, the ids queue and flush on connect.
func (c *Client) Connect(ctx context.Context) error { return c.ws.Connect(ctx) }
func (c *Client) Close() error                       { return c.ws.Close() }

// BindSink rebinds the push-quote callback, for callers that construct
// the Client before the quotes.Resolver it feeds exists. Must be called
// before Connect.
func (c *Client) BindSink(sink func(assetID string, q quotes.Quote)) {
	c.ws.setSink(sink)
}

func assetCacheKey(marketID string, side model.Side) string { return marketID + "|" + string(side) }

// apiMarket is the wire shape of one market from the search/discovery
// endpoints.
type apiMarket struct {
	ID        string  `json:"id"`
	Slug      string  `json:"slug"`
	Status    string  `json:"status"`
	Question  string  `json:"question"`
	Sport     string  `json:"sport"`
	League    string  `json:"league"`
	EventID   string  `json:"event_id"`
	YesPrice  *string `json:"yes_price"`
	NoPrice   *string `json:"no_price"`
	Volume    float64 `json:"volume"`
	Liquidity float64 `json:"liquidity"`
}

func (m apiMarket) toModel() model.Market {
	mkt := model.Market{
		ID:        m.ID,
		Slug:      m.Slug,
		Status:    model.MarketStatus(m.Status),
		Question:  m.Question,
		Sport:     model.Sport(m.Sport),
		League:    m.League,
		EventID:   m.EventID,
		Volume:    m.Volume,
		Liquidity: m.Liquidity,
	}
	if m.YesPrice != nil {
		if v, err := strconv.ParseFloat(*m.YesPrice, 64); err == nil {
			mkt.YesPrice = &v
		}
	}
	if m.NoPrice != nil {
		if v, err := strconv.ParseFloat(*m.NoPrice, 64); err == nil {
			mkt.NoPrice = &v
		}
	}
	return mkt
}

// SearchMarkets performs an unfiltered full-text search; core must
// post-filter by team containment per spec.md §6.
func (c *Client) SearchMarkets(ctx context.Context, home, away, league string) ([]model.Market, error) {
	q := fmt.Sprintf("/v1/markets/search?q=%s", strings.TrimSpace(home+" "+away+" "+league))
	body, status, err := c.http.get(ctx, q)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("search_markets: status=%d body=%s", status, string(body))
	}
	var resp struct {
		Markets []apiMarket `json:"markets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}
	out := make([]model.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, m.toModel())
	}
	return out, nil
}

func (c *Client) GetTokenPrice(ctx context.Context, marketID string, side model.Side) (float64, error) {
	path := fmt.Sprintf("/v1/markets/%s/price?side=%s", marketID, side)
	body, status, err := c.http.get(ctx, path)
	if err != nil {
		return 0, err
	}
	if status != 200 {
		return 0, fmt.Errorf("get_token_price: status=%d body=%s", status, string(body))
	}
	var resp struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("unmarshal price: %w", err)
	}
	if resp.Price <= 0 || resp.Price >= 1 {
		return 0, fmt.Errorf("get_token_price: price %v out of (0,1)", resp.Price)
	}
	return resp.Price, nil
}

func (c *Client) GetMarketPrices(ctx context.Context, marketID string) (yes, no *float64, err error) {
	path := fmt.Sprintf("/v1/markets/%s", marketID)
	body, status, e := c.http.get(ctx, path)
	if e != nil {
		return nil, nil, e
	}
	if status != 200 {
		return nil, nil, fmt.Errorf("get_market_prices: status=%d body=%s", status, string(body))
	}
	var m apiMarket
	if e := json.Unmarshal(body, &m); e != nil {
		return nil, nil, fmt.Errorf("unmarshal market: %w", e)
	}
	mkt := m.toModel()
	return mkt.YesPrice, mkt.NoPrice, nil
}

func (c *Client) GetMarketAssetID(ctx context.Context, marketID string, side model.Side) (string, error) {
	key := assetCacheKey(marketID, side)
	c.mu.RLock()
	if id, ok := c.assetIDs[key]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("/v1/markets/%s/asset_id?side=%s", marketID, side)
	body, status, err := c.http.get(ctx, path)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("get_market_asset_id: status=%d body=%s", status, string(body))
	}
	var resp struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal asset id: %w", err)
	}
	c.mu.Lock()
	c.assetIDs[key] = resp.AssetID
	c.mu.Unlock()
	return resp.AssetID, nil
}

func (c *Client) GetMarketResolvedOutcome(ctx context.Context, marketID string) (*model.Side, error) {
	path := fmt.Sprintf("/v1/markets/%s/resolution", marketID)
	body, status, err := c.http.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("get_market_resolved_outcome: status=%d body=%s", status, string(body))
	}
	var resp struct {
		Outcome string `json:"outcome"` // "YES", "NO", or ""
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal resolution: %w", err)
	}
	switch strings.ToUpper(resp.Outcome) {
	case "YES":
		s := model.SideYes
		return &s, nil
	case "NO":
		s := model.SideNo
		return &s, nil
	default:
		return nil, nil
	}
}

type placeOrderRequest struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	Action   string `json:"action"` // always "buy" for entries
	SizeUSD  string `json:"size_usd"`
	Price    string `json:"price"`
	Type     string `json:"type"` // "limit"
}

func (c *Client) PlaceOrder(ctx context.Context, marketID string, side model.Side, sizeUSD, price float64) (string, error) {
	req := placeOrderRequest{
		MarketID: marketID,
		Side:     string(side),
		Action:   "buy",
		SizeUSD:  strconv.FormatFloat(model.RoundUSD(sizeUSD), 'f', 2, 64),
		Price:    strconv.FormatFloat(price, 'f', 4, 64),
		Type:     "limit",
	}
	body, status, err := c.http.post(ctx, "/v1/orders", req)
	if err != nil {
		telemetry.Warnf("exchange: place_order failed: %v", err)
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("place_order rejected: status=%d body=%s", status, string(body))
	}
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal order response: %w", err)
	}
	telemetry.Infof("exchange: order placed market=%s side=%s size=$%.2f -> %s", marketID, side, sizeUSD, resp.OrderID)
	return resp.OrderID, nil
}

func (c *Client) ClosePosition(ctx context.Context, marketID string, side model.Side, sizeUSD float64) error {
	req := map[string]string{
		"market_id": marketID,
		"side":      string(side),
		"size_usd":  strconv.FormatFloat(model.RoundUSD(sizeUSD), 'f', 2, 64),
	}
	body, status, err := c.http.post(ctx, "/v1/orders/close", req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("close_position rejected: status=%d body=%s", status, string(body))
	}
	return nil
}

func (c *Client) FetchSportsMarkets(ctx context.Context) ([]model.Market, error) {
	var all []model.Market
	cursor := ""
	for {
		path := "/v1/markets/sports?limit=1000"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		body, status, err := c.http.get(ctx, path)
		if err != nil {
			return nil, err
		}
		if status != 200 {
			return nil, fmt.Errorf("fetch_sports_markets: status=%d body=%s", status, string(body))
		}
		var resp struct {
			Markets []apiMarket `json:"markets"`
			Cursor  string      `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal sports markets: %w", err)
		}
		for _, m := range resp.Markets {
			all = append(all, m.toModel())
		}
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

// ResolveAssetID and Subscribe/RESTPrice satisfy quotes.Exchange, so a
// *Client can be passed directly to quotes.NewResolver.

func (c *Client) ResolveAssetID(ctx context.Context, marketID string, side model.Side) (string, error) {
	return c.GetMarketAssetID(ctx, marketID, side)
}

func (c *Client) Subscribe(ctx context.Context, assetID string) error {
	return c.ws.Subscribe([]string{assetID})
}

func (c *Client) RESTPrice(ctx context.Context, marketID string, side model.Side) (float64, error) {
	return c.GetTokenPrice(ctx, marketID, side)
}
