// Package engine wires every decision-pipeline component into the
// control flow of spec.md §2/§5: a bounded ScoreEvent channel drains
// into a sequential per-event pipeline (consensus → shift gate → per-
// market semantics/quotes/latency/sizing/risk → execution), while
// position sweeping, market discovery, calibration, retention, and the
// daily breaker roll concurrently in the background.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradecore/inplay/internal/adapters/exchange"
	"github.com/tradecore/inplay/internal/adapters/scoreprovider"
	"github.com/tradecore/inplay/internal/calibration"
	"github.com/tradecore/inplay/internal/config"
	"github.com/tradecore/inplay/internal/execution"
	"github.com/tradecore/inplay/internal/feedhealth"
	"github.com/tradecore/inplay/internal/lanes"
	"github.com/tradecore/inplay/internal/latency"
	"github.com/tradecore/inplay/internal/marketindex"
	"github.com/tradecore/inplay/internal/model"
	"github.com/tradecore/inplay/internal/positions"
	"github.com/tradecore/inplay/internal/quotes"
	"github.com/tradecore/inplay/internal/risk"
	"github.com/tradecore/inplay/internal/scores"
	"github.com/tradecore/inplay/internal/scores/overturn"
	"github.com/tradecore/inplay/internal/semantics"
	"github.com/tradecore/inplay/internal/sizing"
	"github.com/tradecore/inplay/internal/store"
	"github.com/tradecore/inplay/internal/telemetry"
	"github.com/tradecore/inplay/internal/winprob"
)

// defaultOverturnConfirmSamples is how many repeated corrections
// confirm a score drop, per the overturn supplement in SPEC_FULL.md.
const defaultOverturnConfirmSamples = 3

var knownSports = []model.Sport{
	model.SportSoccer, model.SportBasketball, model.SportFootball,
	model.SportBaseball, model.SportHockey, model.SportTennis,
}

// Engine owns every stateful component of the decision pipeline and
// drives its background tasks.
type Engine struct {
	cfg       *config.Config
	store     *store.Store
	exchange  *exchange.Client
	providers []scoreprovider.Provider

	quotes      *quotes.Resolver
	marketIndex *marketindex.Index
	hub         *scores.Hub
	shiftGate   *scores.ShiftGate
	overturn    *overturn.Tracker
	calibration *calibration.Registry
	latencyGate *latency.Gate
	feedHealth  *feedhealth.FeedHealth
	dailyBreak  *feedhealth.DailyBreaker
	lanes       *lanes.Manager
	executor    *execution.Executor
	positions   *positions.Manager

	riskLimits config.RiskLimits
	baseRisk   risk.Limits

	gamesMu   sync.Mutex
	prevGames map[string]model.LiveGame

	dayMu      sync.Mutex
	currentDay time.Time
}

// New wires every component from cfg and returns a ready-to-run Engine.
func New(cfg *config.Config, st *store.Store, exch *exchange.Client, providers []scoreprovider.Provider) (*Engine, error) {
	riskLimits, err := config.LoadRiskLimits(cfg.RiskLimitsPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load risk limits: %w", err)
	}

	resolver := quotes.NewResolver(exch)
	exch.BindSink(resolver.UpdateFromPush)
	idx := marketindex.New(st.AllActiveMarkets)
	executor := execution.New(exch, st, cfg.InitialBalance)
	health := feedhealth.New(feedhealth.Config{
		MaxRestFallbackRate: cfg.FeedHealthMaxRestFallbackRate,
		MaxWSAgeMs:          cfg.FeedHealthMaxWSAgeMs,
		MinSamples:          cfg.FeedHealthMinSamples,
		CooldownSecs:        cfg.FeedHealthCooldownSecs,
		FlattenAfterSecs:    cfg.FeedHealthFlattenAfterSecs,
	})

	e := &Engine{
		cfg:       cfg,
		store:     st,
		exchange:  exch,
		providers: providers,

		quotes:      resolver,
		marketIndex: idx,
		hub:         scores.NewHub(),
		shiftGate:   scores.NewShiftGate(time.Duration(cfg.ScoreEventDedupWindowSecs) * time.Second),
		overturn:    overturn.NewTracker(defaultOverturnConfirmSamples, time.Duration(cfg.ScoreDropConfirmSecs)*time.Second),
		calibration: calibration.NewRegistry(),
		latencyGate: latency.NewGate(latency.Config{
			MaxScoreAgeMs:    cfg.LatencyMaxScoreAgeMs,
			MinExpectedMove:  cfg.LatencyMinExpectedMove,
			MinResidualMove:  cfg.LatencyMinResidualMove,
			MaxPricedInRatio: cfg.LatencyMaxPricedInRatio,
		}),
		feedHealth: health,
		dailyBreak: feedhealth.NewDailyBreaker(cfg.MaxDailyDrawdownFraction, cfg.MaxTradesPerDay),
		lanes:      lanes.NewManager(cfg.LaneMaxOpenOrders, cfg.LaneMaxSpendCents, cfg.LaneThrottleMs),
		executor:   executor,

		riskLimits: riskLimits,
		baseRisk: risk.Limits{
			MaxEventExposureFraction:     cfg.MaxEventExposureFraction,
			MaxSportExposureFraction:     cfg.MaxSportExposureFraction,
			MaxLeagueExposureFraction:    cfg.MaxLeagueExposureFraction,
			MaxTeamExposureFraction:      cfg.MaxTeamExposureFraction,
			MaxPositionsPerEvent:         cfg.MaxPositionsPerEvent,
			MaxEffectiveExposureFraction: cfg.MaxEffectiveExposureFraction,
			CorrelationSameEvent:         cfg.CorrelationSameEvent,
			CorrelationSameTeam:          cfg.CorrelationSameTeam,
			CorrelationSameLeague:        cfg.CorrelationSameLeague,
			CorrelationSameSport:         cfg.CorrelationSameSport,
		},

		prevGames: make(map[string]model.LiveGame),
	}
	e.positions = positions.New(exch, st, resolver, health, executor, cfg.WSPriceMaxAgeMs, cfg.MaxPositionAgeSecs)

	ctx := context.Background()
	if err := idx.Refresh(ctx); err != nil {
		telemetry.Warnf("engine: initial market index refresh failed: %v", err)
	}
	if err := e.restoreCalibration(ctx); err != nil {
		telemetry.Warnf("engine: restore calibration models failed: %v", err)
	}

	return e, nil
}

func (e *Engine) restoreCalibration(ctx context.Context) error {
	for _, sport := range knownSports {
		cm, ok, err := e.store.CalibrationModel(ctx, sport)
		if err != nil {
			return err
		}
		if ok {
			e.calibration.Promote(cm)
		}
	}
	return nil
}

// Run connects the push feed and runs every background loop until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.exchange.Connect(ctx); err != nil {
		return fmt.Errorf("engine: connect exchange feed: %w", err)
	}
	defer e.exchange.Close()

	loops := []func(context.Context){
		e.pollLoop, e.decisionLoop, e.sweepLoop, e.retentionLoop,
		e.dailyRollLoop, e.marketDiscoveryLoop,
	}
	if e.cfg.CalibrationEnabled {
		loops = append(loops, e.calibrationLoop)
	}

	var wg sync.WaitGroup
	for _, loop := range loops {
		loop := loop
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	wg.Wait()
	return nil
}

// pollLoop fetches every score provider at most every 2s (spec.md §5's
// cancellation/timeout rule), folds the round into per-event consensus,
// and emits ScoreEvents for any event whose score changed.
func (e *Engine) pollLoop(ctx context.Context) {
	interval := time.Duration(e.cfg.PollIntervalSecs) * time.Second
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	now := time.Now()
	perEvent := make(map[string][]scores.Snapshot)

	for _, p := range e.providers {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		games, err := p.FetchLiveGames(pctx)
		cancel()
		if err != nil {
			telemetry.Warnf("engine: provider %s fetch failed: %v", p.Name(), err)
			continue
		}
		for _, g := range games {
			perEvent[g.EventID] = append(perEvent[g.EventID], scores.Snapshot{
				Provider:  p.Name(),
				EventID:   g.EventID,
				Sport:     g.Sport,
				League:    g.League,
				HomeTeam:  g.HomeTeam,
				AwayTeam:  g.AwayTeam,
				HomeScore: g.HomeScore,
				AwayScore: g.AwayScore,
				Minute:    g.Minute,
				Status:    g.Status,
				PolledAt:  now,
			})
		}
	}

	for eventID, snaps := range perEvent {
		winner, count, ok := scores.Consensus(snaps)
		if !ok {
			continue
		}
		e.observeGame(eventID, winner, count)
	}
}

// observeGame diffs a consensus snapshot against the last known state
// for eventID and publishes a ScoreEvent when the score changed. The
// very first observation of an event only seeds the baseline: there is
// no prior state to diff against yet.
func (e *Engine) observeGame(eventID string, winner scores.Snapshot, consensusCount int) {
	cur := model.LiveGame{
		EventID: eventID, Sport: winner.Sport, League: winner.League,
		HomeTeam: winner.HomeTeam, AwayTeam: winner.AwayTeam,
		HomeScore: winner.HomeScore, AwayScore: winner.AwayScore,
		Minute: winner.Minute, Status: winner.Status, UpdatedAt: winner.PolledAt,
	}

	e.gamesMu.Lock()
	prev, hasPrev := e.prevGames[eventID]
	e.prevGames[eventID] = cur
	e.gamesMu.Unlock()

	if !hasPrev || !scores.Changed(prev, cur) {
		return
	}

	e.hub.Publish(scores.BuildEvent(prev, winner, consensusCount))
}

// decisionLoop is the engine's single decision-processing goroutine:
// events are handled strictly one at a time, per spec.md §5's ordering
// guarantee.
func (e *Engine) decisionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.hub.Events():
			if !ok {
				return
			}
			e.processEvent(ctx, ev)
		}
	}
}

// processEvent implements the per-event pipeline of spec.md §2/§4.3-4.4:
// persist, confirm-or-drop a correction, apply the shift gate, then run
// the per-market loop for every accepted event.
func (e *Engine) processEvent(ctx context.Context, ev model.ScoreEvent) {
	now := time.Now()
	processingMs := now.Sub(ev.DetectedAt).Milliseconds()

	if err := e.store.AppendScoreEvent(ctx, ev); err != nil {
		telemetry.Warnf("engine: append score event failed event=%s: %v", ev.EventID, err)
	}

	if ev.Type == model.EventCorrection {
		if e.overturn.Observe(ev, now) {
			e.lanes.Lane(string(ev.Sport), ev.League).ClearIdempotency()
			telemetry.Infof("engine: score drop confirmed event=%s, idempotency state cleared", ev.EventID)
		}
		return
	}

	prevGame := model.LiveGame{Sport: ev.Sport, HomeScore: ev.PrevHomeScore, AwayScore: ev.PrevAwayScore, Minute: ev.Minute}
	curGame := model.LiveGame{Sport: ev.Sport, HomeScore: ev.HomeScore, AwayScore: ev.AwayScore, Minute: ev.Minute}

	pPrevRaw := winprob.PHome(prevGame, true)
	pNowRaw := winprob.PHome(curGame, true)
	pPrevHome := e.calibration.Apply(ev.Sport, pPrevRaw)
	pNowHome := e.calibration.Apply(ev.Sport, pNowRaw)

	if !e.shiftGate.Accept(ev, pPrevHome, pNowHome, true) {
		return
	}

	markets := e.marketIndex.Search(ev.HomeTeam, ev.AwayTeam, ev.League)
	if len(markets) == 0 {
		if err := e.marketIndex.Refresh(ctx); err != nil {
			telemetry.Warnf("engine: market index refresh failed: %v", err)
		}
		markets = e.marketIndex.Search(ev.HomeTeam, ev.AwayTeam, ev.League)
	}

	for _, mkt := range markets {
		e.considerMarket(ctx, ev, mkt, pPrevHome, pNowHome, pNowRaw, processingMs, now)
	}
}

// considerMarket runs §4.6-4.12 for one matched market: semantics
// inference, quote resolution, the latency gate, net-edge sizing,
// portfolio risk and lane checks, and finally order placement.
func (e *Engine) considerMarket(ctx context.Context, ev model.ScoreEvent, mkt model.Market, calibPrevHome, calibNowHome, rawNowHome float64, processingMs int64, now time.Time) {
	yesIsHome, ok := semantics.Infer(mkt.Question, ev.HomeTeam, ev.AwayTeam)
	if !ok {
		return
	}

	pYesPrev, pYesNow, pYesNowRaw := calibPrevHome, calibNowHome, rawNowHome
	if !yesIsHome {
		pYesPrev, pYesNow, pYesNowRaw = 1-calibPrevHome, 1-calibNowHome, 1-rawNowHome
	}

	yesAssetID, err := e.quotes.EnsureSubscription(ctx, mkt.ID, model.SideYes, "")
	if err != nil {
		telemetry.Warnf("engine: ensure yes subscription failed market=%s: %v", mkt.ID, err)
		return
	}
	noAssetID, err := e.quotes.EnsureSubscription(ctx, mkt.ID, model.SideNo, "")
	if err != nil {
		telemetry.Warnf("engine: ensure no subscription failed market=%s: %v", mkt.ID, err)
		return
	}

	nowMs := quotes.NowMs(now)
	yesQuote, okYes := e.quotes.GetMark(yesAssetID, nowMs, e.cfg.WSPriceMaxAgeMs)
	noQuote, okNo := e.quotes.GetMark(noAssetID, nowMs, e.cfg.WSPriceMaxAgeMs)

	crossChecked := false
	var restYes, restNo quotes.Quote
	if !okYes || !okNo {
		ry, rn, err := e.quotes.RefreshPairREST(ctx, mkt.ID, nowMs)
		if err != nil {
			telemetry.Warnf("engine: REST quote refresh failed market=%s: %v", mkt.ID, err)
			return
		}
		restYes, restNo, crossChecked = ry, rn, true
		if !okYes {
			yesQuote, okYes = ry, true
		}
		if !okNo {
			noQuote, okNo = rn, true
		}
	}
	if !okYes {
		return
	}
	if !okNo {
		noQuote = quotes.DeriveNo(yesQuote.Mid)
	}

	decision := e.latencyGate.Evaluate(ev.Sport, ev.EventID, processingMs, pYesNow, pYesPrev, yesQuote.Mid)

	fallbackRate, wsAgeMs := e.feedHealth.Signals()
	if crossChecked {
		limit := feedhealth.DivergenceLimit(e.cfg.MaxEntryQuoteDivergence, e.cfg.AdaptiveDivergenceTightening, fallbackRate, decision.PricedInRatio)
		if yesQuote.Source == model.QuoteWS && quotes.Diverges(yesQuote.Mid, restYes.Mid, limit) {
			telemetry.Warnf("engine: yes quote ws/rest divergence exceeds limit market=%s", mkt.ID)
			return
		}
		if noQuote.Source == model.QuoteWS && quotes.Diverges(noQuote.Mid, restNo.Mid, limit) {
			telemetry.Warnf("engine: no quote ws/rest divergence exceeds limit market=%s", mkt.ID)
			return
		}
	}

	if !decision.Accepted {
		return
	}
	if e.feedHealth.BlockEntries(now) {
		return
	}
	if !e.dailyBreak.Allow(e.executor.Cash()) {
		return
	}

	edgeAddon := feedhealth.EdgeAddon(decision.PricedInRatio, e.cfg.LatencyMinResidualMove, decision.ResidualMove, fallbackRate, wsAgeMs, e.cfg.FeedHealthMaxWSAgeMs, e.cfg.AdaptiveMinEdgeMaxAddon)

	sideDecision := sizing.ChooseSide(
		sizing.Side{Name: "YES", Prob: pYesNow, Price: yesQuote.Mid},
		sizing.Side{Name: "NO", Prob: 1 - pYesNow, Price: noQuote.Mid},
		e.cfg.ExpectedFeeBps, e.cfg.ExpectedSlippageBps, mkt.Volume, e.cfg.MinEdge, edgeAddon,
	)
	if sideDecision.Rejected {
		return
	}

	side := model.SideYes
	chosenQuote := yesQuote
	chosenRawProb := pYesNowRaw
	if sideDecision.Chosen.Name == "NO" {
		side = model.SideNo
		chosenQuote = noQuote
		chosenRawProb = 1 - pYesNowRaw
	}

	cash := e.executor.Cash()
	stakeUSD := sizing.StakeUSD(sideDecision.Chosen.Prob, sideDecision.Chosen.Price, e.cfg.KellyFraction, cash)
	if stakeUSD < 1 {
		return
	}

	lane := e.lanes.Lane(string(ev.Sport), ev.League)
	costCents := int64(stakeUSD * 100)
	if !lane.Allow(now, ev.EventID, ev.HomeScore, ev.AwayScore, costCents) {
		return
	}

	open, equity, err := e.openExposuresAndEquity(ctx, cash)
	if err != nil {
		telemetry.Warnf("engine: load open exposures failed: %v", err)
		return
	}

	candidate := risk.Candidate{
		SizeUSD:   stakeUSD,
		EventID:   ev.EventID,
		EventName: ev.HomeTeam + " vs " + ev.AwayTeam,
		Sport:     ev.Sport,
		League:    ev.League,
		MarketID:  mkt.ID,
	}
	verdict := risk.Evaluate(open, candidate, cash, equity, e.riskLimitsFor(ev.Sport, ev.League))
	if !verdict.Allowed {
		return
	}

	wsAge := int64(0)
	if chosenQuote.Source == model.QuoteWS {
		wsAge = nowMs - chosenQuote.LastUpdatedMs
	}

	result, err := e.executor.Execute(ctx, execution.Request{
		DryRun:                 e.cfg.DryRun,
		MarketID:               mkt.ID,
		MarketSlug:             mkt.Slug,
		Side:                   side,
		SizeUSD:                stakeUSD,
		EntryPrice:             chosenQuote.Mid,
		QuoteSource:            chosenQuote.Source,
		QuoteWSAgeMs:           wsAge,
		RawProbability:         chosenRawProb,
		CalibratedProbability:  sideDecision.Chosen.Prob,
		FeeBps:                 e.cfg.ExpectedFeeBps,
		SlippageBps:            e.cfg.ExpectedSlippageBps,
		StopLossFraction:       e.cfg.StopLossFraction,
		TakeProfitFraction:     e.cfg.TakeProfitFraction,
		Sport:                  ev.Sport,
		League:                 ev.League,
		EventID:                ev.EventID,
	})
	if err != nil {
		telemetry.Warnf("engine: execute entry failed market=%s: %v", mkt.ID, err)
		return
	}
	if result.Skipped {
		return
	}

	lane.RecordOrder(now, ev.EventID, ev.HomeScore, ev.AwayScore, costCents)
	e.dailyBreak.RecordTrade()
}

// openExposuresAndEquity loads the current open book and approximates
// equity as cash plus the notional of every open position (entry-cost
// basis, not mark-to-market — PositionManager already tracks live marks
// for exit decisions; this is only used to size exposure fractions).
func (e *Engine) openExposuresAndEquity(ctx context.Context, cash float64) ([]risk.OpenExposure, float64, error) {
	open, err := e.store.OpenPositions(ctx)
	if err != nil {
		return nil, 0, err
	}
	exposures := make([]risk.OpenExposure, 0, len(open))
	var sum float64
	for _, p := range open {
		sum += p.SizeUSD
		exposures = append(exposures, risk.OpenExposure{
			SizeUSD:   p.SizeUSD,
			EventID:   p.EventID,
			EventName: p.MarketSlug,
			Sport:     p.Sport,
			League:    p.League,
			MarketID:  p.MarketID,
		})
	}
	return exposures, cash + sum, nil
}

// riskLimitsFor overlays the risk-limits YAML's per-sport/per-league
// overrides onto the config-derived base limits.
func (e *Engine) riskLimitsFor(sport model.Sport, league string) risk.Limits {
	lim := e.baseRisk
	sl, ok := e.riskLimits.SportLimit(string(sport))
	if !ok {
		return lim
	}
	if sl.MaxSportExposureFraction != nil {
		lim.MaxSportExposureFraction = *sl.MaxSportExposureFraction
	}
	if lo, ok := sl.Leagues[league]; ok && lo.MaxEventExposureFraction != nil {
		lim.MaxEventExposureFraction = *lo.MaxEventExposureFraction
	}
	return lim
}

// sweepLoop drives PositionManager on a fixed interval.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := e.positions.Sweep(ctx, now); err != nil {
				telemetry.Warnf("engine: position sweep failed: %v", err)
			}
		}
	}
}

// marketDiscoveryLoop refreshes the full sports-market catalog from the
// exchange adapter, per spec.md §6's background discovery endpoint.
func (e *Engine) marketDiscoveryLoop(ctx context.Context) {
	interval := 6 * e.cfg.SweepInterval()
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.discoverMarkets(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.discoverMarkets(ctx)
		}
	}
}

func (e *Engine) discoverMarkets(ctx context.Context) {
	markets, err := e.exchange.FetchSportsMarkets(ctx)
	if err != nil {
		telemetry.Warnf("engine: fetch sports markets failed: %v", err)
		return
	}
	for _, m := range markets {
		if err := e.store.UpsertMarket(ctx, m); err != nil {
			telemetry.Warnf("engine: upsert market failed id=%s: %v", m.ID, err)
		}
	}
	e.marketIndex.InsertMany(markets)
	telemetry.Infof("engine: discovered %d markets", len(markets))
}

// retentionLoop prunes score events and balance snapshots daily, per
// spec.md §4.15.
func (e *Engine) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	e.runRetention(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.runRetention(ctx, now)
		}
	}
}

func (e *Engine) runRetention(ctx context.Context, now time.Time) {
	scoreCutoff := now.AddDate(0, 0, -e.cfg.ScoreEventsRetentionDays)
	if n, err := e.store.PruneScoreEvents(ctx, scoreCutoff); err != nil {
		telemetry.Warnf("engine: prune score events failed: %v", err)
	} else if n > 0 {
		telemetry.Infof("engine: pruned %d score events older than %s", n, scoreCutoff.Format(time.RFC3339))
	}

	balCutoff := now.AddDate(0, 0, -e.cfg.BalanceHistoryRetentionDays)
	if n, err := e.store.PruneBalanceSnapshots(ctx, balCutoff); err != nil {
		telemetry.Warnf("engine: prune balance snapshots failed: %v", err)
	} else if n > 0 {
		telemetry.Infof("engine: pruned %d balance snapshots older than %s", n, balCutoff.Format(time.RFC3339))
	}
}

// dailyRollLoop rolls the daily breaker's equity/trade-count baseline
// at UTC midnight.
func (e *Engine) dailyRollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	e.rollDay(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.rollDay(ctx, now)
		}
	}
}

func utcDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Engine) rollDay(ctx context.Context, now time.Time) {
	today := utcDayStart(now)

	e.dayMu.Lock()
	isNewDay := !today.Equal(e.currentDay)
	if isNewDay {
		e.currentDay = today
	}
	e.dayMu.Unlock()

	e.dailyBreak.RollDay(now, e.executor.Cash())
	if !isNewDay {
		return
	}

	if start, ok, err := e.store.DayStartBalance(ctx, today); err == nil && ok {
		e.dailyBreak.SetDayStartEquity(start)
	}
	e.executor.ResetTradesToday()
	telemetry.Infof("engine: rolled to new trading day %s", today.Format("2006-01-02"))
}

// calibrationLoop runs OnlineCalibration at calibration_interval_secs,
// per spec.md §4.14.
func (e *Engine) calibrationLoop(ctx context.Context) {
	interval := time.Duration(e.cfg.CalibrationIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCalibration(ctx)
		}
	}
}

// RunCalibrationOnce runs a single OnlineCalibration pass on demand, for
// the offline `trader calibrate` command.
func (e *Engine) RunCalibrationOnce(ctx context.Context) {
	e.runCalibration(ctx)
}

func (e *Engine) runCalibration(ctx context.Context) {
	closed, err := e.store.ClosedPositionsWithModelProbability(ctx)
	if err != nil {
		telemetry.Warnf("engine: load closed positions for calibration failed: %v", err)
		return
	}

	bySport := make(map[model.Sport][]calibration.Sample)
	for _, p := range closed {
		outcome, ok, err := e.resolveOutcome(ctx, p.MarketID)
		if err != nil || !ok {
			continue
		}
		bySport[p.Sport] = append(bySport[p.Sport], calibration.Sample{
			PRaw:    p.RawProbability,
			Outcome: outcome == p.Side,
		})
	}

	for sport, samples := range bySport {
		if len(samples) < e.cfg.CalibrationMinSamplesPerSport {
			continue
		}
		result, err := calibration.Fit(sport, samples, e.cfg.CalibrationMaxIters, e.cfg.CalibrationLearningRate, e.cfg.CalibrationL2, e.cfg.CalibrationMinRelativeImprove)
		if err != nil {
			telemetry.Warnf("engine: calibration fit failed sport=%s: %v", sport, err)
			continue
		}
		if !result.Promoted {
			telemetry.Infof("engine: calibration fit for %s not promoted: %s", sport, result.Reason)
			continue
		}

		result.Model.FittedAt = time.Now()
		e.calibration.Promote(result.Model)
		if err := e.store.SaveCalibrationModel(ctx, result.Model); err != nil {
			telemetry.Warnf("engine: save calibration model failed sport=%s: %v", sport, err)
		}
		telemetry.Infof("engine: promoted calibration model sport=%s a=%.4f b=%.4f samples=%d", sport, result.Model.A, result.Model.B, result.Model.Samples)
	}
}

func (e *Engine) resolveOutcome(ctx context.Context, marketID string) (model.Side, bool, error) {
	if outcome, ok, err := e.store.CachedResolvedOutcome(ctx, marketID); err == nil && ok {
		return outcome, true, nil
	}
	outcome, err := e.exchange.GetMarketResolvedOutcome(ctx, marketID)
	if err != nil {
		return "", false, err
	}
	if outcome == nil {
		return "", false, nil
	}
	if err := e.store.CacheResolvedOutcome(ctx, marketID, *outcome); err != nil {
		telemetry.Warnf("engine: cache resolved outcome failed market=%s: %v", marketID, err)
	}
	return *outcome, true, nil
}
