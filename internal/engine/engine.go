package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/metrics"
	"turtle-trader/internal/pricewindow"
	"turtle-trader/internal/store"
	"turtle-trader/internal/tradelog"
	"turtle-trader/internal/types"
	"turtle-trader/internal/universe"
)

const (
	decisionSubmitted = "submitted"
	decisionZeroSize  = "zero_size"
	decisionNoSize    = "size_error"
	decisionFailed    = "submit_failed"

	dropDataQuality = "data quality"

	skipEmptyUniverse = "empty universe"
	skipNoMarketData  = "no market data"
)

var _ interfaces.Engine = (*Engine)(nil)

// Engine runs one trading cycle at a time against a platform. All per-market
// state lives here and is only touched from inside Cycle.
type Engine struct {
	cfg      *store.Config
	platform interfaces.Platform
	state    interfaces.StateStore
	recorder interfaces.Recorder
	loc      *time.Location

	universe *universe.Manager
	prices   *pricewindow.Store
	sizer    *positionSizer
	risk     *riskManager
	stops    *stopManager
	recon    *orderReconciler
	exec     *orderExecutor

	cycleMu sync.Mutex
}

// New builds an engine. st and rec may be nil.
func New(cfg *store.Config, p interfaces.Platform, st interfaces.StateStore, rec interfaces.Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		platform: p,
		state:    st,
		recorder: rec,
		loc:      cfg.Location(),
		universe: universe.NewManager(p),
		prices:   pricewindow.NewStore(p),
		sizer:    newPositionSizer(cfg.Sizing.RiskFraction),
		risk:     newRiskManager(cfg),
		stops:    newStopManager(cfg.Stop.ATRMult),
		recon:    newOrderReconciler(),
		exec:     newOrderExecutor(p),
	}
}

// Restore loads persisted stop, order and counter state, if any.
func (e *Engine) Restore(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	snap, found, err := e.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load engine state: %w", err)
	}
	if !found {
		logger.Info(ctx, "No saved engine state, starting fresh")
		return nil
	}
	e.stops.restore(snap.Stops, snap.LastResetDay)
	e.recon.restore(snap.Pending, snap.Counters)
	metrics.PendingOrders.Set(float64(len(snap.Pending)))
	logger.Info(ctx, "Engine state restored",
		"saved_at", snap.SavedAt,
		"last_reset_day", snap.LastResetDay,
		"stops", len(snap.Stops),
		"pending_orders", len(snap.Pending),
		"long_fills", snap.Counters.Long,
		"short_fills", snap.Counters.Short,
	)
	return nil
}

// ResetSession zeroes the fill counters, starting a new risk session.
func (e *Engine) ResetSession(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.recon.resetCounters()
	logger.Info(ctx, "Risk session reset")
	return e.persist(ctx, time.Now())
}

// Cycle runs one full pass: reset, reconcile, universe, prices, volatility and
// breakouts, capital, stops, entries. Overlapping calls fail fast.
func (e *Engine) Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error) {
	if !e.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	start := time.Now()
	res := &types.CycleResult{ID: uuid.NewString(), AsOf: now, Day: tradingDay(now, e.loc)}

	err := e.run(ctx, now, res)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case res.Skipped != "":
		outcome = "skipped"
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	if perr := e.persist(ctx, now); perr != nil {
		logger.ErrorWithErr(ctx, "Failed to persist engine state", perr, "cycle_id", res.ID)
	}
	if e.recorder != nil {
		if rerr := e.recorder.RecordCycle(ctx, res); rerr != nil {
			logger.ErrorWithErr(ctx, "Failed to record cycle", rerr, "cycle_id", res.ID)
		}
	}
	return res, err
}

// marketState is the per-market analytics of one cycle.
type marketState struct {
	market   types.Market
	contract types.Contract
	vol      types.VolatilityState
	levels   types.BreakoutLevels
}

func (e *Engine) run(ctx context.Context, now time.Time, res *types.CycleResult) error {
	res.StopsReset = e.stops.resetIfNewDay(ctx, res.Day)

	outcomes, err := e.recon.reconcile(ctx, e.platform)
	if err != nil {
		logger.ErrorWithErr(ctx, "Order reconciliation failed, retrying next cycle", err)
	}
	res.Outcomes = outcomes

	markets, dropped := e.universe.Refresh(ctx, e.cfg.Universe.Symbols, now)
	e.recordDrops(res, dropped)
	if len(markets) == 0 {
		res.Skipped = skipEmptyUniverse
		metrics.ActiveMarkets.Set(0)
		logger.Info(ctx, "Active universe empty, skipping cycle", "day", res.Day)
		return nil
	}

	windows, rejects, err := e.prices.Load(ctx, markets, e.cfg.Strategy.LookbackBars)
	if err != nil {
		res.Skipped = skipNoMarketData
		return fmt.Errorf("%w: %v", ErrNoMarketData, err)
	}
	markets, dropped = universe.Validate(ctx, markets, windows, rejects)
	e.recordDrops(res, dropped)
	if len(markets) == 0 {
		res.Skipped = skipNoMarketData
		metrics.ActiveMarkets.Set(0)
		return ErrNoMarketData
	}
	res.Markets = universe.Symbols(markets)
	metrics.ActiveMarkets.Set(float64(len(markets)))

	contracts, err := e.platform.CurrentContracts(ctx, res.Markets)
	if err != nil {
		logger.Warn(ctx, "Current contracts unavailable, using market metadata", "error", err)
	}

	states := e.analyse(ctx, markets, contracts, res)

	portfolio, err := e.platform.Portfolio(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: %w", err)
	}
	capital := riskCapital(portfolio, e.cfg.Sizing.LossMultiplier)
	res.RiskCapital = capital
	metrics.RiskCapital.Set(capital)
	if capital <= 0 {
		logger.Risk(ctx, "", "CAPITAL_EXHAUSTED",
			"error", ErrCapitalExhausted,
			"capital", capital,
			"value", portfolio.Value,
			"starting_cash", portfolio.StartingCash,
		)
	}

	quotes, err := e.platform.CurrentPrices(ctx, res.Markets)
	if err != nil {
		logger.Warn(ctx, "Current prices unavailable", "error", err)
		quotes = map[string]float64{}
	}

	positions := e.refreshStops(ctx, portfolio, states, quotes, res)
	e.evaluateEntries(ctx, states, quotes, portfolio.Cash, capital, positions, res)

	logger.Info(ctx, "Trading cycle summary",
		"cycle_id", res.ID,
		"day", res.Day,
		"markets", len(res.Markets),
		"dropped", len(res.Dropped),
		"signals", len(res.Signals),
		"orders", len(res.Orders),
		"outcomes", len(res.Outcomes),
		"risk_capital", capital,
		"active_stops", e.stops.activeSymbols(),
	)
	return nil
}

// analyse computes volatility and breakout levels per market from the windows
// held by the price store. Markets with bad data are excluded for this cycle only.
func (e *Engine) analyse(ctx context.Context, markets []types.Market, contracts map[string]types.Contract, res *types.CycleResult) map[string]marketState {
	states := make(map[string]marketState, len(markets))
	for _, m := range markets {
		c := contractFor(m, contracts)

		var vol types.VolatilityState
		w, err := e.prices.Window(m.Symbol)
		if err == nil {
			vol, err = estimateVolatility(w, e.cfg.Strategy.ATRPeriod, c.Multiplier)
		}
		if err == nil {
			var lv types.BreakoutLevels
			lv, err = computeLevels(w, e.cfg.Strategy.BreakoutShort, e.cfg.Strategy.BreakoutLong)
			if err == nil {
				states[m.Symbol] = marketState{market: m, contract: c, vol: vol, levels: lv}
				continue
			}
		}

		metrics.DataQuality.Inc()
		logger.Warn(ctx, "Market excluded for this cycle", "symbol", m.Symbol, "error", err)
		e.recordDrops(res, []types.Drop{{Symbol: m.Symbol, Reason: dropDataQuality}})
	}
	return states
}

// refreshStops places at most one protective stop per open position and
// returns net quantity per symbol.
func (e *Engine) refreshStops(ctx context.Context, p types.Portfolio, states map[string]marketState, quotes map[string]float64, res *types.CycleResult) map[string]int {
	positions := append([]types.Position(nil), p.Positions...)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	open := make(map[string]bool, len(positions))
	net := make(map[string]int, len(positions))
	for _, pos := range positions {
		if pos.Qty == 0 {
			continue
		}
		open[pos.Symbol] = true
		net[pos.Symbol] += pos.Qty

		ms, ok := states[pos.Symbol]
		if !ok {
			logger.Debug(ctx, "No volatility for open position, stop deferred", "symbol", pos.Symbol, "qty", pos.Qty)
			continue
		}
		price, have := quotes[pos.Symbol]
		placed, err := e.stops.refresh(ctx, e.exec, stopInput{
			Position:  pos,
			Contract:  ms.contract,
			Price:     price,
			HavePrice: have,
			ATR:       ms.vol.ATR,
		})
		if err != nil || placed == nil {
			continue
		}
		res.Orders = append(res.Orders, *placed)
	}
	e.stops.prune(open)
	return net
}

// evaluateEntries walks markets in symbol order so exposure counters are
// consumed deterministically.
func (e *Engine) evaluateEntries(ctx context.Context, states map[string]marketState, quotes map[string]float64, cash, capital float64, positions map[string]int, res *types.CycleResult) {
	symbols := make([]string, 0, len(states))
	for sym := range states {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		ms := states[sym]
		price, ok := quotes[sym]
		if !ok {
			logger.Debug(ctx, "No current price, entry skipped", "symbol", sym)
			continue
		}

		sig := detect(price, ms.levels)
		if sig == types.SignalNone {
			continue
		}
		metrics.SignalsTotal.WithLabelValues(sig.String()).Inc()
		logger.Signal(ctx, sym, sig.String(), price,
			"short_high", ms.levels.ShortHigh,
			"short_low", ms.levels.ShortLow,
			"long_high", ms.levels.LongHigh,
			"long_low", ms.levels.LongLow,
			"atr", ms.vol.ATR,
		)

		ev := types.SignalEvent{
			Symbol:    sym,
			Signal:    sig,
			Price:     price,
			ATR:       ms.vol.ATR,
			DollarVol: ms.vol.DollarVol,
			Levels:    ms.levels,
		}
		ev.Decision = e.enter(ctx, ms, sig, price, cash, capital, positions[sym], &ev, res)
		res.Signals = append(res.Signals, ev)

		if err := tradelog.AppendSignal(tradelog.SignalEntry{
			Symbol:    sym,
			Signal:    sig.String(),
			Decision:  ev.Decision,
			Price:     price,
			Size:      ev.Size,
			ATR:       ev.ATR,
			DollarVol: ev.DollarVol,
			Levels: map[string]float64{
				"short_high": ms.levels.ShortHigh,
				"short_low":  ms.levels.ShortLow,
				"long_high":  ms.levels.LongHigh,
				"long_low":   ms.levels.LongLow,
			},
		}); err != nil {
			logger.Warn(ctx, "Signal log append failed", "error", err)
		}
	}
}

func (e *Engine) enter(ctx context.Context, ms marketState, sig types.Signal, price, cash, capital float64, positionQty int, ev *types.SignalEvent, res *types.CycleResult) string {
	sym := ms.market.Symbol

	size, err := e.sizer.size(capital, ms.vol.DollarVol)
	if err != nil {
		logger.Warn(ctx, "Position size unavailable", "symbol", sym, "error", err)
		return decisionNoSize
	}
	ev.Size = size

	ok, reason := e.risk.allowEntry(ctx, entryCheck{
		Symbol:      sym,
		Direction:   sig,
		Price:       price,
		Cash:        cash,
		Capital:     capital,
		PositionQty: positionQty,
		Outstanding: e.recon.hasOutstanding(sym),
	}, e.recon.counters)
	if !ok {
		return "denied:" + reason
	}
	if size == 0 {
		logger.Debug(ctx, "Entry sized to zero contracts", "symbol", sym, "capital", capital, "dollar_volatility", ms.vol.DollarVol)
		return decisionZeroSize
	}

	placed, err := e.exec.submit(ctx, sym, types.OrderReq{
		Contract: ms.contract,
		Qty:      size * sig.Sign(),
		Style:    types.Limit(price),
		Tag:      tagEntry,
	})
	if err != nil {
		return decisionFailed
	}
	e.recon.track(placed.OrderID, sym, sig)
	res.Orders = append(res.Orders, placed)
	return decisionSubmitted
}

func (e *Engine) recordDrops(res *types.CycleResult, dropped []types.Drop) {
	for _, d := range dropped {
		metrics.MarketsDropped.WithLabelValues(d.Reason).Inc()
	}
	res.Dropped = append(res.Dropped, dropped...)
}

func (e *Engine) persist(ctx context.Context, now time.Time) error {
	if e.state == nil {
		return nil
	}
	return e.state.Save(ctx, e.snapshot(now))
}

func (e *Engine) snapshot(now time.Time) types.EngineSnapshot {
	return types.EngineSnapshot{
		SavedAt:      now,
		LastResetDay: e.stops.lastResetDay,
		Stops:        e.stops.snapshot(),
		Pending:      e.recon.pendingOrders(),
		Counters:     e.recon.snapshotCounters(),
	}
}

// contractFor prefers the platform's current contract and falls back to the
// market's own metadata.
func contractFor(m types.Market, contracts map[string]types.Contract) types.Contract {
	c, ok := contracts[m.Symbol]
	if !ok {
		c = types.Contract{Symbol: m.Symbol, ID: m.Symbol}
	}
	if c.Symbol == "" {
		c.Symbol = m.Symbol
	}
	if c.ID == "" {
		c.ID = m.Symbol
	}
	if c.TickSize <= 0 {
		c.TickSize = m.TickSize
	}
	if c.Multiplier <= 0 {
		c.Multiplier = m.Multiplier
	}
	return c
}
