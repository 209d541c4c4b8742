// Package positions implements PositionManager (spec.md §4.13): the
// sweep loop that marks every open position (WS-first, REST fallback
// batched per sweep), feeds FeedHealth, force-flattens on feed
// degradation, evaluates take-profit/stop-loss/time exits, and commits
// closes to cash and the durable store.
package positions

import (
	"context"
	"sync"
	"time"

	"github.com/tradecore/inplay/internal/clv"
	"github.com/tradecore/inplay/internal/feedhealth"
	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/quotes"
	"github.com/tradecore/inplay/internal/telemetry"
)

// Exchange is the subset of the exchange adapter PositionManager needs
// for live-mode closes.
type Exchange interface {
	ClosePosition(ctx context.Context, marketID string, side model.Side, sizeUSD float64) error
}

// Store is the subset of the durable store PositionManager needs.
type Store interface {
	OpenPositions(ctx context.Context) ([]model.Position, error)
	ClosePosition(ctx context.Context, id int64, status model.PositionStatus, exitPrice, pnl float64, closedAt time.Time) error
	AppendBalanceSnapshot(ctx context.Context, snap model.BalanceSnapshot) error
}

// CashLedger is the tiny subset of the executor's cash accounting
// PositionManager needs to credit proceeds back to cash.
type CashLedger interface {
	Credit(amount float64) (newBalance float64)
}

// Manager runs the periodic position sweep.
type Manager struct {
	exchange Exchange
	store    Store
	quotes   *quotes.Resolver
	health   *feedhealth.FeedHealth
	cash     CashLedger
	clv      *clv.Tracker

	wsMaxAgeMs        int64
	maxPositionAgeSecs int64
}

func New(exchange Exchange, store Store, resolver *quotes.Resolver, health *feedhealth.FeedHealth, cash CashLedger, wsMaxAgeMs, maxPositionAgeSecs int64) *Manager {
	return &Manager{
		exchange:           exchange,
		store:              store,
		quotes:             resolver,
		health:             health,
		cash:               cash,
		clv:                clv.NewTracker(),
		wsMaxAgeMs:         wsMaxAgeMs,
		maxPositionAgeSecs: maxPositionAgeSecs,
	}
}

// CLVSamples returns the closing-line-value samples captured so far for
// an open position, for telemetry/CLI reporting. A position's samples
// are dropped when it closes.
func (m *Manager) CLVSamples(positionID int64) []clv.Sample {
	return m.clv.Samples(positionID)
}

type markedPosition struct {
	position model.Position
	mark     float64
	source   model.QuoteSource
	wsAgeMs  int64
	ok       bool
}

// Sweep runs one iteration of the position sweep, per spec.md §4.13.
func (m *Manager) Sweep(ctx context.Context, now time.Time) error {
	open, err := m.store.OpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	marked := m.markAll(ctx, open, now)

	wsMarks, restMarks := 0, 0
	var wsAgeSum int64
	for _, mp := range marked {
		switch mp.source {
		case model.QuoteWS:
			wsMarks++
			wsAgeSum += mp.wsAgeMs
		case model.QuoteREST:
			restMarks++
		}
	}
	avgWSAge := 0.0
	if wsMarks > 0 {
		avgWSAge = float64(wsAgeSum) / float64(wsMarks)
	}
	m.health.RecordSweep(wsMarks, restMarks, avgWSAge, now)

	forceFlatten := m.health.ShouldForceFlatten(now)

	required := make(map[string]struct{}, len(open))
	for _, mp := range marked {
		if !mp.ok {
			continue
		}
		required[assetRef(mp.position)] = struct{}{}
		m.clv.Observe(mp.position.ID, mp.position.EntryPrice, mp.position.OpenedAt, mp.mark, now)

		action := m.decide(mp, now, forceFlatten)
		if action.Kind == model.ExitHold {
			continue
		}
		if err := m.close(ctx, mp.position, action); err != nil {
			telemetry.Warnf("positions: close failed id=%d: %v", mp.position.ID, err)
		}
	}

	m.quotes.UnsubscribeUnused(required)
	return nil
}

func assetRef(p model.Position) string { return p.AssetID }

// markAll resolves a mark for every open position: WS first, batching
// the REST fallback lookups concurrently per spec.md §4.13.
func (m *Manager) markAll(ctx context.Context, open []model.Position, now time.Time) []markedPosition {
	nowMs := quotes.NowMs(now)
	marked := make([]markedPosition, len(open))

	var needsREST []int
	for i, p := range open {
		marked[i].position = p
		if q, ok := m.quotes.GetMark(p.AssetID, nowMs, m.wsMaxAgeMs); ok {
			marked[i].mark = q.Mid
			marked[i].source = model.QuoteWS
			marked[i].wsAgeMs = nowMs - q.LastUpdatedMs
			marked[i].ok = true
			continue
		}
		needsREST = append(needsREST, i)
	}

	if len(needsREST) == 0 {
		return marked
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, idx := range needsREST {
		idx := idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := marked[idx].position
			yes, no, err := m.quotes.RefreshPairREST(ctx, p.MarketID, nowMs)
			if err != nil {
				telemetry.Warnf("positions: REST fallback failed market=%s: %v", p.MarketID, err)
				return
			}
			q := yes
			if p.Side == model.SideNo {
				q = no
			}
			mu.Lock()
			marked[idx].mark = q.Mid
			marked[idx].source = model.QuoteREST
			marked[idx].ok = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	return marked
}

func (m *Manager) decide(mp markedPosition, now time.Time, forceFlatten bool) model.ExitAction {
	p := mp.position
	mark := mp.mark

	if forceFlatten {
		return model.ExitAction{Kind: model.ExitFeedHealth, Price: mark, PnL: p.NetPnL(mark)}
	}
	deadline := p.OpenedAt.Add(time.Duration(m.maxPositionAgeSecs) * time.Second)
	if !now.Before(deadline) {
		return model.ExitAction{Kind: model.ExitTimeExit, Price: mark, PnL: p.NetPnL(mark)}
	}
	if mark >= p.TakeProfitPrice {
		return model.ExitAction{Kind: model.ExitTakeProfit, Price: mark, PnL: p.NetPnL(mark)}
	}
	if mark <= p.StopLossPrice {
		return model.ExitAction{Kind: model.ExitStopLoss, Price: mark, PnL: p.NetPnL(mark)}
	}
	return model.ExitAction{Kind: model.ExitHold}
}

func statusFor(kind model.ExitKind) model.PositionStatus {
	switch kind {
	case model.ExitTakeProfit:
		return model.PositionClosedProfit
	case model.ExitStopLoss:
		return model.PositionClosedStopLoss
	case model.ExitFeedHealth:
		return model.PositionClosedFeedHealth
	case model.ExitTimeExit:
		return model.PositionClosedTimeExit
	default:
		return model.PositionOpen
	}
}

// close executes the live-mode exchange close (when not dry-run), and
// on success commits the local close: credit size+pnl to cash, append a
// balance snapshot, and mark the position closed in the store. A
// failed live-mode close does not commit the local state, per
// spec.md §4.13.
func (m *Manager) close(ctx context.Context, p model.Position, action model.ExitAction) error {
	if !p.DryRun {
		if err := m.exchange.ClosePosition(ctx, p.MarketID, p.Side, p.SizeUSD); err != nil {
			return err
		}
	}

	status := statusFor(action.Kind)
	now := time.Now()
	if err := m.store.ClosePosition(ctx, p.ID, status, action.Price, action.PnL, now); err != nil {
		return err
	}

	newCash := m.cash.Credit(p.SizeUSD + action.PnL)
	if err := m.store.AppendBalanceSnapshot(ctx, model.BalanceSnapshot{BalanceUSD: newCash, RecordedAt: now}); err != nil {
		telemetry.Warnf("positions: append balance snapshot failed: %v", err)
	}

	telemetry.Infof("positions: closed id=%d status=%s mark=%.4f pnl=%.2f", p.ID, status, action.Price, action.PnL)
	m.clv.Clear(p.ID)
	return nil
}
