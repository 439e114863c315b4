package universe

import (
	"context"
	"errors"
	"sort"
	"time"

	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

const (
	ReasonStoppedTrading      = "stopped trading"
	ReasonContractUnavailable = "contract unavailable"
	ReasonNullPrices          = "null prices"
)

// ContractSource resolves root symbols to market metadata.
type ContractSource interface {
	ActiveContract(ctx context.Context, symbol string) (types.Market, error)
}

// Manager curates the set of markets a cycle trades.
type Manager struct {
	src ContractSource
}

func NewManager(src ContractSource) *Manager {
	return &Manager{src: src}
}

// Refresh resolves candidates and drops markets whose listing ended before asOf.
// Duplicate symbols are collapsed; output keeps the first-seen order.
func (m *Manager) Refresh(ctx context.Context, symbols []string, asOf time.Time) ([]types.Market, []types.Drop) {
	seen := make(map[string]bool, len(symbols))
	markets := make([]types.Market, 0, len(symbols))
	var dropped []types.Drop

	for _, sym := range symbols {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true

		mkt, err := m.src.ActiveContract(ctx, sym)
		if err != nil {
			dropped = append(dropped, drop(ctx, sym, ReasonContractUnavailable, "error", err))
			continue
		}
		if mkt.Symbol == "" {
			mkt.Symbol = sym
		}
		if !mkt.EndDate.IsZero() && mkt.EndDate.Before(asOf) {
			dropped = append(dropped, drop(ctx, sym, ReasonStoppedTrading, "end_date", mkt.EndDate.Format("2006-01-02")))
			continue
		}
		markets = append(markets, mkt)
	}
	return markets, dropped
}

// Validate keeps only markets that came back with a usable window. Markets missing
// from windows are dropped with the reason recorded in rejects, if any.
func Validate(ctx context.Context, markets []types.Market, windows map[string]types.PriceWindow, rejects map[string]error) ([]types.Market, []types.Drop) {
	kept := make([]types.Market, 0, len(markets))
	missing := make([]string, 0)
	for _, mkt := range markets {
		if _, ok := windows[mkt.Symbol]; ok {
			kept = append(kept, mkt)
			continue
		}
		missing = append(missing, mkt.Symbol)
	}
	sort.Strings(missing)

	dropped := make([]types.Drop, 0, len(missing))
	for _, sym := range missing {
		if err, ok := rejects[sym]; ok && err != nil {
			dropped = append(dropped, drop(ctx, sym, ReasonNullPrices, "error", err))
			continue
		}
		dropped = append(dropped, drop(ctx, sym, ReasonNullPrices, "error", errors.New("no price history returned")))
	}
	return kept, dropped
}

// Symbols lists market symbols in order.
func Symbols(markets []types.Market) []string {
	out := make([]string, len(markets))
	for i, m := range markets {
		out[i] = m.Symbol
	}
	return out
}

func drop(ctx context.Context, symbol, reason string, fields ...any) types.Drop {
	logger.Info(ctx, "Market dropped", append([]any{"symbol", symbol, "reason", reason}, fields...)...)
	return types.Drop{Symbol: symbol, Reason: reason}
}
