package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradecore/inplay/internal/quotes"
	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/telemetry"
)

// priceSink receives a push-fed quote keyed by asset id. In practice this
// is quotes.Resolver.UpdateFromPush.
type priceSink func(assetID string, q quotes.Quote)

// wsClient connects to the exchange's push feed and forwards best-bid/
// best-ask updates to a priceSink. One reader, one writer; writes are
// serialized through mu, matching the Gorilla websocket concurrency
// contract.
type wsClient struct {
	url    string
	signer *Signer
	sink   priceSink
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	assetIDs map[string]bool
	subID   int
}

func newWSClient(wsURL string, signer *Signer, sink priceSink) *wsClient {
	return &wsClient{
		url:      wsURL,
		signer:   signer,
		sink:     sink,
		done:     make(chan struct{}),
		assetIDs: make(map[string]bool),
	}
}

// setSink rebinds the push-quote callback. Used when the caller
// constructs the Client before the quotes.Resolver that ultimately
// consumes its updates exists yet.
func (c *wsClient) setSink(sink priceSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *wsClient) currentSink() priceSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

func (c *wsClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.runLoop(ctx)
	return nil
}

func (c *wsClient) dial(ctx context.Context) error {
	parsed, _ := url.Parse(c.url)
	path := parsed.Path
	if path == "" {
		path = "/ws/v2"
	}
	header := c.signer.Headers("GET", path)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Subscribe adds an asset id and subscribes on the live connection. Safe
// to call from any goroutine at any time; if not yet connected, the id
// is stored and subscribed on connect.
func (c *wsClient) Subscribe(assetIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, id := range assetIDs {
		if !c.assetIDs[id] {
			c.assetIDs[id] = true
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 || c.conn == nil {
		return nil
	}
	return c.sendSubscribe(fresh)
}

func (c *wsClient) sendSubscribe(assetIDs []string) error {
	c.subID++
	cmd := subscribeCmd{
		ID:  c.subID,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels: []string{"ticker", "orderbook_delta"},
			AssetIDs: assetIDs,
		},
	}
	telemetry.Debugf("exchange_ws: subscribing to %d assets (sid=%d)", len(assetIDs), c.subID)
	return c.conn.WriteJSON(cmd)
}

type subscribeCmd struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels []string `json:"channels"`
	AssetIDs []string `json:"asset_ids,omitempty"`
}

func (c *wsClient) runLoop(ctx context.Context) {
	defer close(c.done)

	for {
		c.resubscribeAll()
		c.readLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		backoff := 1 * time.Second
		const maxBackoff = 30 * time.Second
		for attempt := 1; ; attempt++ {
			telemetry.Warnf("exchange_ws: reconnecting (attempt %d) in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("exchange_ws: dial failed: %v", err)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			break
		}
	}
}

func (c *wsClient) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.assetIDs) == 0 {
		return
	}
	all := make([]string, 0, len(c.assetIDs))
	for id := range c.assetIDs {
		all = append(all, id)
	}
	if err := c.sendSubscribe(all); err != nil {
		telemetry.Warnf("exchange_ws: resubscribe failed: %v", err)
	}
}

func (c *wsClient) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	defer conn.Close()

	const pingWait = 30 * time.Second
	conn.SetReadDeadline(time.Now().Add(pingWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pingWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("exchange_ws: read error: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pingWait))
		c.handle(msg)
	}
}

type wsMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type bookMsg struct {
	AssetID string  `json:"asset_id"`
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
}

func (c *wsClient) handle(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("exchange_ws: parse error: %v", err)
		return
	}
	switch msg.Type {
	case "price_change", "best_bid_ask", "book":
		var b bookMsg
		if err := json.Unmarshal(msg.Msg, &b); err != nil {
			return
		}
		if b.AssetID == "" {
			return
		}
		mid := b.BestBid
		switch {
		case b.BestBid > 0 && b.BestAsk > 0:
			mid = (b.BestBid + b.BestAsk) / 2
		case b.BestAsk > 0:
			mid = b.BestAsk
		}
		if sink := c.currentSink(); sink != nil {
			sink(b.AssetID, quotes.Quote{
				BestBid:       b.BestBid,
				BestAsk:       b.BestAsk,
				Mid:           mid,
				LastUpdatedMs: time.Now().UnixMilli(),
				Source:        model.QuoteWS,
			})
		}
	case "error":
		telemetry.Warnf("exchange_ws: server error: %s", string(msg.Msg))
	}
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *wsClient) Done() <-chan struct{} { return c.done }
