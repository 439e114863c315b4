package engine

import (
	"context"

	"turtle-trader/internal/logger"
	"turtle-trader/internal/metrics"
	"turtle-trader/internal/store"
	"turtle-trader/internal/types"
)

const (
	denyNoCash           = "no_cash"
	denyNoCapital        = "no_capital"
	denyBelowMinPrice    = "below_min_price"
	denyOrderOutstanding = "order_outstanding"
	denyOppositePosition = "opposite_position"
	denyMarketLimit      = "market_limit"
	denyLongLimit        = "long_limit"
	denyShortLimit       = "short_limit"
)

// entryCheck is everything the gate needs to judge one candidate entry.
type entryCheck struct {
	Symbol      string
	Direction   types.Signal
	Price       float64
	Cash        float64
	Capital     float64
	PositionQty int
	Outstanding bool
}

// riskManager gates entries against capital and exposure ceilings.
// It never mutates the counters it reads.
type riskManager struct {
	marketLimit   int
	longLimit     int
	shortLimit    int
	scope         string
	minPrice      float64
	allowOpposite bool
}

func newRiskManager(cfg *store.Config) *riskManager {
	return &riskManager{
		marketLimit:   cfg.Risk.MarketLimit,
		longLimit:     cfg.Risk.LongLimit,
		shortLimit:    cfg.Risk.ShortLimit,
		scope:         cfg.Risk.DirectionScope,
		minPrice:      cfg.Risk.MinPrice,
		allowOpposite: cfg.Risk.AllowOpposite,
	}
}

// allowEntry returns false and the denial reason when any limit is hit.
func (rm *riskManager) allowEntry(ctx context.Context, chk entryCheck, counters types.RiskCounters) (bool, string) {
	reason := rm.denyReason(chk, counters)
	if reason == "" {
		return true, ""
	}

	logger.Risk(ctx, chk.Symbol, "ENTRY_DENIED",
		"reason", reason,
		"direction", chk.Direction.String(),
		"price", chk.Price,
		"cash", chk.Cash,
		"capital", chk.Capital,
		"market_fills", counters.Market[chk.Symbol],
		"long_fills", counters.Long,
		"short_fills", counters.Short,
	)
	metrics.GateDenials.WithLabelValues(reason).Inc()
	return false, reason
}

func (rm *riskManager) denyReason(chk entryCheck, counters types.RiskCounters) string {
	switch {
	case chk.Cash <= 0:
		return denyNoCash
	case chk.Capital <= 0:
		return denyNoCapital
	case chk.Price < rm.minPrice:
		return denyBelowMinPrice
	case chk.Outstanding:
		return denyOrderOutstanding
	case !rm.allowOpposite && chk.PositionQty*chk.Direction.Sign() < 0:
		return denyOppositePosition
	case counters.Market[chk.Symbol] >= rm.marketLimit:
		return denyMarketLimit
	}

	long, short := rm.directionFills(chk.Symbol, counters)
	switch chk.Direction {
	case types.SignalLong:
		if rm.scope != store.DirectionScopeOff && long >= rm.longLimit {
			return denyLongLimit
		}
	case types.SignalShort:
		if rm.scope != store.DirectionScopeOff && short >= rm.shortLimit {
			return denyShortLimit
		}
	}
	return ""
}

func (rm *riskManager) directionFills(symbol string, counters types.RiskCounters) (long, short int) {
	if rm.scope == store.DirectionScopeMarket {
		return counters.MarketLong[symbol], counters.MarketShort[symbol]
	}
	return counters.Long, counters.Short
}
