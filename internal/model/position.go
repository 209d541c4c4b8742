package model

import "time"

// Position is the record of one entry and its subsequent management.
// Created by EntryExecutor, mutated only by PositionManager, never
// re-opened.
type Position struct {
	ID int64

	MarketID string
	AssetID  string
	Side     Side

	SizeUSD    float64
	EntryPrice float64

	EntryQuoteSource QuoteSource
	EntryWSAgeMs     int64

	RawProbability        float64
	CalibratedProbability float64

	EstRoundTripCostBps float64

	StopLossPrice   float64
	TakeProfitPrice float64

	Status PositionStatus

	OpenedAt time.Time
	ClosedAt time.Time
	ExitPrice float64
	RealizedPnL float64

	DryRun bool

	Sport    Sport
	League   string
	EventID  string
	MarketSlug string

	WSMarkCount   int
	RESTMarkCount int
	LastWSAgeMs   int64
}

// ComputeLevels derives (stop_loss, take_profit) from entry price and
// fractional distances. take_profit never exceeds 0.99.
func ComputeLevels(entry, slFrac, tpFrac float64) (stopLoss, takeProfit float64) {
	stopLoss = entry * (1 - slFrac)
	takeProfit = entry * (1 + tpFrac)
	if takeProfit > 0.99 {
		takeProfit = 0.99
	}
	return stopLoss, takeProfit
}

// NetPnL computes realized PnL at close per spec.md §4.13:
// (size/entry)*mark - size - size*(cost_bps/10_000).
func (p *Position) NetPnL(mark float64) float64 {
	contracts := p.SizeUSD / p.EntryPrice
	gross := contracts*mark - p.SizeUSD
	cost := p.SizeUSD * (p.EstRoundTripCostBps / 10_000)
	return gross - cost
}

// CalibrationModel holds a per-sport Platt fit.
type CalibrationModel struct {
	Sport Sport
	A, B  float64

	Samples int

	LogLossBefore, LogLossAfter float64
	BrierBefore, BrierAfter     float64

	FittedAt time.Time
}

// BalanceSnapshot is an append-only record of a USD balance at a point in time.
type BalanceSnapshot struct {
	BalanceUSD float64
	RecordedAt time.Time
}
