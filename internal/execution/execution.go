// Package execution implements EntryExecutor (spec.md §4.12): order
// placement via the exchange adapter (or a dry-run skip), stop-loss/
// take-profit level computation, Position persistence, cash debit, and
// balance-snapshot append.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/telemetry"
)

// Exchange is the subset of the exchange adapter EntryExecutor needs.
type Exchange interface {
	PlaceOrder(ctx context.Context, marketID string, side model.Side, sizeUSD, price float64) (orderID string, err error)
}

// Store is the subset of the durable store EntryExecutor needs.
type Store interface {
	AppendPosition(ctx context.Context, p model.Position) (int64, error)
	AppendBalanceSnapshot(ctx context.Context, snap model.BalanceSnapshot) error
}

// Request carries everything EntryExecutor needs to open one position.
type Request struct {
	DryRun bool

	MarketID   string
	MarketSlug string
	Side       model.Side
	SizeUSD    float64
	EntryPrice float64

	QuoteSource model.QuoteSource
	QuoteWSAgeMs int64

	RawProbability        float64
	CalibratedProbability float64

	FeeBps      float64
	SlippageBps float64

	StopLossFraction   float64
	TakeProfitFraction float64

	Sport   model.Sport
	League  string
	EventID string
}

// Result is what EntryExecutor reports back to the engine loop.
type Result struct {
	Position model.Position
	OrderID  string
	Skipped  bool
	Reason   string
}

// Executor wires Exchange, Store, and cash/trade-count accounting. The
// LatencyGate baseline (spec.md §4.12's "replace market's last-yes-price
// in the LatencyGate baseline") is advanced inside latency.Gate.Evaluate
// itself, unconditionally, so it tracks the market regardless of whether
// this event resulted in an entry.
type Executor struct {
	exchange Exchange
	store    Store

	mu          sync.Mutex
	cash        float64
	tradesToday int
}

func New(exchange Exchange, store Store, startingCash float64) *Executor {
	return &Executor{exchange: exchange, store: store, cash: startingCash}
}

func (e *Executor) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

func (e *Executor) TradesToday() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradesToday
}

// Credit adds amount to cash, returning the new balance. Used by
// PositionManager (positions.CashLedger) to settle a position close.
func (e *Executor) Credit(amount float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cash = model.RoundUSD(e.cash + amount)
	return e.cash
}

// ResetTradesToday is called by the daily-rollover task.
func (e *Executor) ResetTradesToday() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradesToday = 0
}

// Execute places the order (or skips the network call in dry-run mode),
// computes the stop-loss/take-profit levels and round-trip cost, records
// the Position, debits cash, and appends a balance snapshot, per
// spec.md §4.12.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	var orderID string
	if req.DryRun {
		orderID = "dryrun-" + uuid.New().String()
	} else {
		id, err := e.exchange.PlaceOrder(ctx, req.MarketID, req.Side, req.SizeUSD, req.EntryPrice)
		if err != nil {
			telemetry.Warnf("execution: place_order failed market=%s side=%s: %v", req.MarketID, req.Side, err)
			return Result{Skipped: true, Reason: fmt.Sprintf("adapter error: %v", err)}, nil
		}
		orderID = id
	}

	stopLoss, takeProfit := model.ComputeLevels(req.EntryPrice, req.StopLossFraction, req.TakeProfitFraction)
	costBps := 2 * (req.FeeBps + req.SlippageBps)

	pos := model.Position{
		MarketID:   req.MarketID,
		MarketSlug: req.MarketSlug,
		Side:       req.Side,
		SizeUSD:    req.SizeUSD,
		EntryPrice: req.EntryPrice,

		EntryQuoteSource: req.QuoteSource,
		EntryWSAgeMs:     req.QuoteWSAgeMs,

		RawProbability:        req.RawProbability,
		CalibratedProbability: req.CalibratedProbability,

		EstRoundTripCostBps: costBps,

		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,

		Status: model.PositionOpen,

		OpenedAt: time.Now(),
		DryRun:   req.DryRun,

		Sport:   req.Sport,
		League:  req.League,
		EventID: req.EventID,
	}

	id, err := e.store.AppendPosition(ctx, pos)
	if err != nil {
		return Result{}, fmt.Errorf("append position: %w", err)
	}
	pos.ID = id

	e.mu.Lock()
	e.cash = model.RoundUSD(e.cash - req.SizeUSD)
	cash := e.cash
	e.tradesToday++
	e.mu.Unlock()

	if err := e.store.AppendBalanceSnapshot(ctx, model.BalanceSnapshot{BalanceUSD: cash, RecordedAt: time.Now()}); err != nil {
		telemetry.Warnf("execution: append balance snapshot failed: %v", err)
	}

	telemetry.Infof("execution: opened position market=%s side=%s size=$%s entry=%.4f sl=%.4f tp=%.4f cash_remaining=$%s",
		req.MarketID, req.Side, humanize.Commaf(req.SizeUSD), req.EntryPrice, stopLoss, takeProfit, humanize.Commaf(cash))

	return Result{Position: pos, OrderID: orderID}, nil
}
