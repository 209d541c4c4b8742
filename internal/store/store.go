// Package store implements the durable store (spec.md §6): a single
// SQLite connection guarded by a mutex holding Position, Market,
// ScoreEvent, CalibrationModel, and BalanceSnapshot, with append/upsert
// writes and the query surface the engine needs — grounded on the
// teacher's training.Store (single modernc.org/sqlite connection, WAL
// mode, mutex-guarded exec).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/telemetry"
)

// Store is the engine's single durable connection. All mutations are
// idempotent or append-only, per spec.md §5.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	telemetry.Infof("store: opened %s", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id TEXT PRIMARY KEY,
			slug TEXT,
			status TEXT,
			question TEXT,
			sport TEXT,
			league TEXT,
			event_id TEXT,
			yes_price REAL,
			no_price REAL,
			volume REAL,
			liquidity REAL,
			last_fetched_at TEXT,
			resolution TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id TEXT NOT NULL,
			asset_id TEXT,
			side TEXT,
			size_usd REAL,
			entry_price REAL,
			entry_quote_source TEXT,
			entry_ws_age_ms INTEGER,
			raw_probability REAL,
			calibrated_probability REAL,
			est_round_trip_cost_bps REAL,
			stop_loss_price REAL,
			take_profit_price REAL,
			status TEXT,
			opened_at TEXT,
			closed_at TEXT,
			exit_price REAL,
			realized_pnl REAL,
			dry_run INTEGER,
			sport TEXT,
			league TEXT,
			event_id TEXT,
			market_slug TEXT,
			ws_mark_count INTEGER,
			rest_mark_count INTEGER,
			last_ws_age_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_opened_at ON positions(opened_at)`,
		`CREATE TABLE IF NOT EXISTS score_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT,
			sport TEXT,
			league TEXT,
			home_team TEXT,
			away_team TEXT,
			prev_home_score INTEGER,
			prev_away_score INTEGER,
			home_score INTEGER,
			away_score INTEGER,
			minute REAL,
			type TEXT,
			provider TEXT,
			consensus_count INTEGER,
			detected_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_detected_at ON score_events(detected_at)`,
		`CREATE TABLE IF NOT EXISTS calibration_models (
			sport TEXT PRIMARY KEY,
			a REAL,
			b REAL,
			samples INTEGER,
			log_loss_before REAL,
			log_loss_after REAL,
			brier_before REAL,
			brier_after REAL,
			fitted_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS balance_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			balance_usd REAL,
			recorded_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balance_snapshots_recorded_at ON balance_snapshots(recorded_at)`,
		`CREATE TABLE IF NOT EXISTS resolved_outcomes (
			market_id TEXT PRIMARY KEY,
			outcome TEXT,
			resolved_at TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema (%s): %w", stmt, err)
		}
	}
	return nil
}

const timeFmt = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFmt)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFmt, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Markets ---

// UpsertMarket inserts or replaces a Market row by id.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolution string
	if m.Resolution != nil {
		resolution = string(*m.Resolution)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (id, slug, status, question, sport, league, event_id, yes_price, no_price, volume, liquidity, last_fetched_at, resolution)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			slug=excluded.slug, status=excluded.status, question=excluded.question,
			sport=excluded.sport, league=excluded.league, event_id=excluded.event_id,
			yes_price=excluded.yes_price, no_price=excluded.no_price,
			volume=excluded.volume, liquidity=excluded.liquidity,
			last_fetched_at=excluded.last_fetched_at, resolution=excluded.resolution
	`, m.ID, m.Slug, string(m.Status), m.Question, string(m.Sport), m.League, m.EventID,
		nullableFloat(m.YesPrice), nullableFloat(m.NoPrice), m.Volume, m.Liquidity,
		formatTime(m.LastFetchedAt), resolution)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// AllActiveMarkets returns every market MarketIndex should load on
// startup / refresh.
func (s *Store) AllActiveMarkets(ctx context.Context) ([]model.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, slug, status, question, sport, league, event_id, yes_price, no_price, volume, liquidity, last_fetched_at, resolution FROM markets WHERE status = ?`, string(model.MarketActive))
	if err != nil {
		return nil, fmt.Errorf("query active markets: %w", err)
	}
	defer rows.Close()

	var out []model.Market
	for rows.Next() {
		var m model.Market
		var status, sport, lastFetched, resolution string
		var yesPrice, noPrice sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Slug, &status, &m.Question, &sport, &m.League, &m.EventID, &yesPrice, &noPrice, &m.Volume, &m.Liquidity, &lastFetched, &resolution); err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		m.Status = model.MarketStatus(status)
		m.Sport = model.Sport(sport)
		m.LastFetchedAt = parseTime(lastFetched)
		if yesPrice.Valid {
			v := yesPrice.Float64
			m.YesPrice = &v
		}
		if noPrice.Valid {
			v := noPrice.Float64
			m.NoPrice = &v
		}
		if resolution != "" {
			side := model.Side(resolution)
			m.Resolution = &side
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Score events ---

// AppendScoreEvent persists one ScoreEvent; append-only per spec.md §5.
func (s *Store) AppendScoreEvent(ctx context.Context, e model.ScoreEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_events (event_id, sport, league, home_team, away_team, prev_home_score, prev_away_score, home_score, away_score, minute, type, provider, consensus_count, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, e.EventID, string(e.Sport), e.League, e.HomeTeam, e.AwayTeam, e.PrevHomeScore, e.PrevAwayScore, e.HomeScore, e.AwayScore, e.Minute, string(e.Type), e.Provider, e.ConsensusCount, formatTime(e.DetectedAt))
	if err != nil {
		return fmt.Errorf("append score event: %w", err)
	}
	return nil
}

// PruneScoreEvents deletes score events older than cutoff, per spec.md §4.15.
func (s *Store) PruneScoreEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM score_events WHERE detected_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune score events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Positions ---

func (s *Store) AppendPosition(ctx context.Context, p model.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			market_id, asset_id, side, size_usd, entry_price,
			entry_quote_source, entry_ws_age_ms, raw_probability, calibrated_probability,
			est_round_trip_cost_bps, stop_loss_price, take_profit_price, status,
			opened_at, dry_run, sport, league, event_id, market_slug,
			ws_mark_count, rest_mark_count, last_ws_age_ms
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, p.MarketID, p.AssetID, string(p.Side), p.SizeUSD, p.EntryPrice,
		string(p.EntryQuoteSource), p.EntryWSAgeMs, p.RawProbability, p.CalibratedProbability,
		p.EstRoundTripCostBps, p.StopLossPrice, p.TakeProfitPrice, string(model.PositionOpen),
		formatTime(p.OpenedAt), boolToInt(p.DryRun), string(p.Sport), p.League, p.EventID, p.MarketSlug,
		0, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("append position: %w", err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanPosition(row interface{ Scan(...any) error }) (model.Position, error) {
	var p model.Position
	var side, entryQuoteSource, status, sport, openedAt, closedAt string
	var dryRun int
	var exitPrice, realizedPnL sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.MarketID, &p.AssetID, &side, &p.SizeUSD, &p.EntryPrice,
		&entryQuoteSource, &p.EntryWSAgeMs, &p.RawProbability, &p.CalibratedProbability,
		&p.EstRoundTripCostBps, &p.StopLossPrice, &p.TakeProfitPrice, &status,
		&openedAt, &closedAt, &exitPrice, &realizedPnL, &dryRun,
		&sport, &p.League, &p.EventID, &p.MarketSlug,
		&p.WSMarkCount, &p.RESTMarkCount, &p.LastWSAgeMs,
	)
	if err != nil {
		return model.Position{}, err
	}
	p.Side = model.Side(side)
	p.EntryQuoteSource = model.QuoteSource(entryQuoteSource)
	p.Status = model.PositionStatus(status)
	p.Sport = model.Sport(sport)
	p.OpenedAt = parseTime(openedAt)
	p.ClosedAt = parseTime(closedAt)
	p.DryRun = dryRun != 0
	if exitPrice.Valid {
		p.ExitPrice = exitPrice.Float64
	}
	if realizedPnL.Valid {
		p.RealizedPnL = realizedPnL.Float64
	}
	return p, nil
}

const positionColumns = `id, market_id, asset_id, side, size_usd, entry_price,
	entry_quote_source, entry_ws_age_ms, raw_probability, calibrated_probability,
	est_round_trip_cost_bps, stop_loss_price, take_profit_price, status,
	opened_at, closed_at, exit_price, realized_pnl, dry_run,
	sport, league, event_id, market_slug,
	ws_mark_count, rest_mark_count, last_ws_age_ms`

// OpenPositions returns every position PositionManager should sweep.
func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE status = ?`, string(model.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClosePosition transitions a position to a terminal status and records
// the exit price/realized pnl/close time. Idempotent: closing an
// already-closed position is a no-op (WHERE status = 'open' guards it).
func (s *Store) ClosePosition(ctx context.Context, id int64, status model.PositionStatus, exitPrice, pnl float64, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, exit_price = ?, realized_pnl = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`, string(status), exitPrice, pnl, formatTime(closedAt), id, string(model.PositionOpen))
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	return nil
}

// ClosedPositionsWithModelProbability returns closed positions that
// carry a raw model probability, for OnlineCalibration (spec.md §4.14).
func (s *Store) ClosedPositionsWithModelProbability(ctx context.Context) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE status != ? AND status != ?`, string(model.PositionOpen), "")
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPositionsOpenedSince returns how many positions were opened at or
// after since, used by DailyBreaker's max_trades_per_day check.
func (s *Store) CountPositionsOpenedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE opened_at >= ?`, formatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count positions opened since: %w", err)
	}
	return n, nil
}

// --- Resolved outcomes (calibration cache) ---

// CacheResolvedOutcome records a market's resolved outcome so repeated
// OnlineCalibration runs don't re-query the exchange adapter.
func (s *Store) CacheResolvedOutcome(ctx context.Context, marketID string, outcome model.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolved_outcomes (market_id, outcome, resolved_at) VALUES (?,?,?)
		ON CONFLICT(market_id) DO UPDATE SET outcome=excluded.outcome, resolved_at=excluded.resolved_at
	`, marketID, string(outcome), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("cache resolved outcome: %w", err)
	}
	return nil
}

func (s *Store) CachedResolvedOutcome(ctx context.Context, marketID string) (model.Side, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var outcome string
	err := s.db.QueryRowContext(ctx, `SELECT outcome FROM resolved_outcomes WHERE market_id = ?`, marketID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cached resolved outcome: %w", err)
	}
	return model.Side(outcome), true, nil
}

// --- Calibration models ---

func (s *Store) SaveCalibrationModel(ctx context.Context, m model.CalibrationModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_models (sport, a, b, samples, log_loss_before, log_loss_after, brier_before, brier_after, fitted_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(sport) DO UPDATE SET
			a=excluded.a, b=excluded.b, samples=excluded.samples,
			log_loss_before=excluded.log_loss_before, log_loss_after=excluded.log_loss_after,
			brier_before=excluded.brier_before, brier_after=excluded.brier_after, fitted_at=excluded.fitted_at
	`, string(m.Sport), m.A, m.B, m.Samples, m.LogLossBefore, m.LogLossAfter, m.BrierBefore, m.BrierAfter, formatTime(m.FittedAt))
	if err != nil {
		return fmt.Errorf("save calibration model: %w", err)
	}
	return nil
}

func (s *Store) CalibrationModel(ctx context.Context, sport model.Sport) (model.CalibrationModel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m model.CalibrationModel
	var sportTag, fittedAt string
	err := s.db.QueryRowContext(ctx, `SELECT sport, a, b, samples, log_loss_before, log_loss_after, brier_before, brier_after, fitted_at FROM calibration_models WHERE sport = ?`, string(sport)).
		Scan(&sportTag, &m.A, &m.B, &m.Samples, &m.LogLossBefore, &m.LogLossAfter, &m.BrierBefore, &m.BrierAfter, &fittedAt)
	if err == sql.ErrNoRows {
		return model.CalibrationModel{}, false, nil
	}
	if err != nil {
		return model.CalibrationModel{}, false, fmt.Errorf("read calibration model: %w", err)
	}
	m.Sport = model.Sport(sportTag)
	m.FittedAt = parseTime(fittedAt)
	return m, true, nil
}

// --- Balance history ---

func (s *Store) AppendBalanceSnapshot(ctx context.Context, snap model.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO balance_snapshots (balance_usd, recorded_at) VALUES (?,?)`, snap.BalanceUSD, formatTime(snap.RecordedAt))
	if err != nil {
		return fmt.Errorf("append balance snapshot: %w", err)
	}
	return nil
}

func (s *Store) BalanceHistory(ctx context.Context, since time.Time) ([]model.BalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT balance_usd, recorded_at FROM balance_snapshots WHERE recorded_at >= ? ORDER BY recorded_at ASC`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	defer rows.Close()

	var out []model.BalanceSnapshot
	for rows.Next() {
		var snap model.BalanceSnapshot
		var recordedAt string
		if err := rows.Scan(&snap.BalanceUSD, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan balance snapshot: %w", err)
		}
		snap.RecordedAt = parseTime(recordedAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DayStartBalance returns the earliest balance snapshot at or after
// dayStart, i.e. the balance DailyBreaker measures drawdown against.
func (s *Store) DayStartBalance(ctx context.Context, dayStart time.Time) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var balance float64
	err := s.db.QueryRowContext(ctx, `SELECT balance_usd FROM balance_snapshots WHERE recorded_at >= ? ORDER BY recorded_at ASC LIMIT 1`, formatTime(dayStart)).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read day start balance: %w", err)
	}
	return balance, true, nil
}

// PruneBalanceSnapshots deletes snapshots older than cutoff, per spec.md §4.15.
func (s *Store) PruneBalanceSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM balance_snapshots WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune balance snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
