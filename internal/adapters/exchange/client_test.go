package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/quotes"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(srv.URL, "ws://unused", nil, func(string, quotes.Quote) {})
	return c, srv
}

func TestSearchMarketsParsesAndConvertsPrices(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"markets": []map[string]any{
				{"id": "m1", "slug": "nfl-kc-buf", "status": "active", "sport": "football", "league": "nfl", "yes_price": "0.62", "no_price": "0.38"},
			},
		})
	}))
	defer srv.Close()

	markets, err := c.SearchMarkets(context.Background(), "Chiefs", "Bills", "nfl")
	if err != nil {
		t.Fatalf("search markets: %v", err)
	}
	if len(markets) != 1 || markets[0].ID != "m1" {
		t.Fatalf("unexpected markets: %+v", markets)
	}
	if markets[0].YesPrice == nil || *markets[0].YesPrice != 0.62 {
		t.Errorf("yes price = %v, want 0.62", markets[0].YesPrice)
	}
}

func TestGetTokenPriceRejectsOutOfRangePrice(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"price": 1.5})
	}))
	defer srv.Close()

	if _, err := c.GetTokenPrice(context.Background(), "m1", model.SideYes); err == nil {
		t.Fatalf("expected error for a price outside (0,1)")
	}
}

func TestPlaceOrderReturnsOrderID(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"order_id": "ord-123"})
	}))
	defer srv.Close()

	id, err := c.PlaceOrder(context.Background(), "m1", model.SideYes, 50, 0.55)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if id != "ord-123" {
		t.Errorf("order id = %q, want ord-123", id)
	}
}

func TestPlaceOrderReturnsErrorOnRejection(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient balance"}`))
	}))
	defer srv.Close()

	if _, err := c.PlaceOrder(context.Background(), "m1", model.SideYes, 50, 0.55); err == nil {
		t.Fatalf("expected error on a rejected order")
	}
}

func TestGetMarketResolvedOutcomeParsesSides(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"outcome": "YES"})
	}))
	defer srv.Close()

	outcome, err := c.GetMarketResolvedOutcome(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get resolved outcome: %v", err)
	}
	if outcome == nil || *outcome != model.SideYes {
		t.Fatalf("outcome = %v, want YES", outcome)
	}
}

func TestGetMarketAssetIDCachesAfterFirstLookup(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"asset_id": "asset-1"})
	}))
	defer srv.Close()

	for i := 0; i < 3; i++ {
		id, err := c.GetMarketAssetID(context.Background(), "m1", model.SideYes)
		if err != nil {
			t.Fatalf("get market asset id: %v", err)
		}
		if id != "asset-1" {
			t.Fatalf("asset id = %q, want asset-1", id)
		}
	}
	if calls != 1 {
		t.Errorf("expected the REST lookup to happen once and then be cached, got %d calls", calls)
	}
}
