// Package quotes implements QuoteResolver (spec.md §4.7): a WS-fed price
// table with REST fallback and NO-price derivation, and the divergence
// cross-check used to gate entries in §4.9.
package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/tradecore/inplay/internal/model"
)

// Quote is one asset's latest known price snapshot.
type Quote struct {
	BestBid       float64
	BestAsk       float64
	Mid           float64
	LastUpdatedMs int64
	Source        model.QuoteSource
}

func inUnitInterval(p float64) bool { return p > 0 && p < 1 }

// Exchange is the subset of the exchange adapter QuoteResolver needs.
type Exchange interface {
	ResolveAssetID(ctx context.Context, marketID string, side model.Side) (string, error)
	Subscribe(ctx context.Context, assetID string) error
	RESTPrice(ctx context.Context, marketID string, side model.Side) (float64, error)
}

// Resolver maintains the per-asset latest-quote map fed by a push
// subscription, plus REST fallback and asset-id resolution caching.
type Resolver struct {
	exchange Exchange

	mu            sync.RWMutex
	quotes        map[string]Quote // asset_id -> quote
	assetIDByKey  map[string]string // market_id|side -> asset_id
	subscribed    map[string]struct{}
}

func NewResolver(exchange Exchange) *Resolver {
	return &Resolver{
		exchange:     exchange,
		quotes:       make(map[string]Quote),
		assetIDByKey: make(map[string]string),
		subscribed:   make(map[string]struct{}),
	}
}

func assetKey(marketID string, side model.Side) string {
	return marketID + "|" + string(side)
}

// EnsureSubscription resolves the asset id for (marketID, side) — using
// assetHint if non-empty — and subscribes to its push feed exactly once.
func (r *Resolver) EnsureSubscription(ctx context.Context, marketID string, side model.Side, assetHint string) (string, error) {
	key := assetKey(marketID, side)

	r.mu.RLock()
	if assetID, ok := r.assetIDByKey[key]; ok {
		r.mu.RUnlock()
		return assetID, nil
	}
	r.mu.RUnlock()

	assetID := assetHint
	if assetID == "" {
		resolved, err := r.exchange.ResolveAssetID(ctx, marketID, side)
		if err != nil {
			return "", err
		}
		assetID = resolved
	}

	r.mu.Lock()
	r.assetIDByKey[key] = assetID
	_, already := r.subscribed[assetID]
	if !already {
		r.subscribed[assetID] = struct{}{}
	}
	r.mu.Unlock()

	if !already {
		if err := r.exchange.Subscribe(ctx, assetID); err != nil {
			return "", err
		}
	}
	return assetID, nil
}

// UpdateFromPush records a push-fed quote, called by the WS ingester.
func (r *Resolver) UpdateFromPush(assetID string, q Quote) {
	q.Source = model.QuoteWS
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[assetID] = q
}

// GetMark returns the cached quote if it is fresh enough and its mid is
// in the open unit interval, per spec.md §4.7.
func (r *Resolver) GetMark(assetID string, nowMs int64, maxWSAgeMs int64) (Quote, bool) {
	r.mu.RLock()
	q, ok := r.quotes[assetID]
	r.mu.RUnlock()
	if !ok {
		return Quote{}, false
	}
	if nowMs-q.LastUpdatedMs > maxWSAgeMs {
		return Quote{}, false
	}
	if !inUnitInterval(q.Mid) {
		return Quote{}, false
	}
	return q, true
}

// RefreshPairREST fetches YES and NO prices from REST as a fallback and
// caches them as QuoteREST-sourced quotes.
func (r *Resolver) RefreshPairREST(ctx context.Context, marketID string, nowMs int64) (yes, no Quote, err error) {
	yesPrice, err := r.exchange.RESTPrice(ctx, marketID, model.SideYes)
	if err != nil {
		return Quote{}, Quote{}, err
	}
	noPrice, err := r.exchange.RESTPrice(ctx, marketID, model.SideNo)
	if err != nil {
		return Quote{}, Quote{}, err
	}

	yes = Quote{Mid: yesPrice, LastUpdatedMs: nowMs, Source: model.QuoteREST}
	no = Quote{Mid: noPrice, LastUpdatedMs: nowMs, Source: model.QuoteREST}

	r.mu.Lock()
	if assetID, ok := r.assetIDByKey[assetKey(marketID, model.SideYes)]; ok {
		r.quotes[assetID] = yes
	}
	if assetID, ok := r.assetIDByKey[assetKey(marketID, model.SideNo)]; ok {
		r.quotes[assetID] = no
	}
	r.mu.Unlock()

	return yes, no, nil
}

// DeriveNo derives the NO price from YES per spec.md §4.7:
// clamp(1-yes, 0.01, 0.99), tagged as a derived quote.
func DeriveNo(yes float64) Quote {
	no := 1 - yes
	if no < 0.01 {
		no = 0.01
	}
	if no > 0.99 {
		no = 0.99
	}
	return Quote{Mid: no, Source: model.QuoteDerived}
}

// UnsubscribeUnused drops cached asset-id mappings not present in
// requiredAssetIDs, called after each PositionManager sweep.
func (r *Resolver) UnsubscribeUnused(requiredAssetIDs map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, assetID := range r.assetIDByKey {
		if _, required := requiredAssetIDs[assetID]; !required {
			delete(r.assetIDByKey, key)
			delete(r.subscribed, assetID)
			delete(r.quotes, assetID)
		}
	}
}

// Diverges reports whether a WS-sourced price diverges from its REST
// counterpart by more than limit, per the cross-check in spec.md §4.7.
func Diverges(ws, rest, limit float64) bool {
	diff := ws - rest
	if diff < 0 {
		diff = -diff
	}
	return diff > limit
}

// NowMs is a small helper so callers consistently produce millisecond
// timestamps for GetMark/RefreshPairREST.
func NowMs(t time.Time) int64 { return t.UnixMilli() }
