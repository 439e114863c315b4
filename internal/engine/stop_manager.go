package engine

import (
	"context"
	"sort"

	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

// computeStopPrice offsets the stop by mult ATRs against the position. The base
// is the current price when it is known and at or above cost basis, otherwise
// the cost basis. That rule is the same for both sides, so a short stop sits
// at max(price, cost) + atr*mult.
func computeStopPrice(qty int, costBasis, price float64, havePrice bool, atr, mult float64) float64 {
	base := costBasis
	if havePrice && price >= costBasis {
		base = price
	}
	if qty > 0 {
		return base - atr*mult
	}
	return base + atr*mult
}

// stopManager owns one StopState per market. A stop is placed at most once per
// trading day; the daily reset re-arms every market.
type stopManager struct {
	atrMult      float64
	states       map[string]types.StopState
	lastResetDay string
}

func newStopManager(atrMult float64) *stopManager {
	return &stopManager{atrMult: atrMult, states: map[string]types.StopState{}}
}

// resetIfNewDay clears every Active flag the first time it sees day.
func (sm *stopManager) resetIfNewDay(ctx context.Context, day string) bool {
	if day == sm.lastResetDay {
		return false
	}
	for sym, st := range sm.states {
		st.Active = false
		sm.states[sym] = st
	}
	logger.Debug(ctx, "Stop flags reset", "day", day, "previous_day", sm.lastResetDay, "markets", len(sm.states))
	sm.lastResetDay = day
	return true
}

// stopInput is the per-position data needed to place a protective stop.
type stopInput struct {
	Position  types.Position
	Contract  types.Contract
	Price     float64
	HavePrice bool
	ATR       float64
}

// refresh places a stop for in when none is active today. State only changes
// after the platform accepts the order.
func (sm *stopManager) refresh(ctx context.Context, exec *orderExecutor, in stopInput) (*types.PlacedOrder, error) {
	sym := in.Position.Symbol
	if in.Position.Qty == 0 {
		return nil, nil
	}
	if st := sm.states[sym]; st.Active {
		return nil, nil
	}

	raw := computeStopPrice(in.Position.Qty, in.Position.CostBasis, in.Price, in.HavePrice, in.ATR, sm.atrMult)
	price := roundToTick(raw, in.Contract.TickSize)
	if in.Position.Qty > 0 && price <= 0 {
		logger.Warn(ctx, "Stop price not positive, skipping",
			"symbol", sym, "qty", in.Position.Qty, "cost_basis", in.Position.CostBasis, "atr", in.ATR, "stop", price)
		return nil, nil
	}

	req := types.OrderReq{
		Contract: in.Contract,
		Qty:      -in.Position.Qty,
		Style:    types.Stop(price),
		Tag:      tagStop,
	}
	placed, err := exec.submit(ctx, sym, req)
	if err != nil {
		return nil, err
	}

	sm.states[sym] = types.StopState{Price: price, Active: true, OrderID: placed.OrderID}
	logger.Info(ctx, "Protective stop placed",
		"symbol", sym,
		"qty", req.Qty,
		"stop", price,
		"cost_basis", in.Position.CostBasis,
		"price", in.Price,
		"atr", in.ATR,
	)
	return &placed, nil
}

// prune forgets stop state for markets without an open position.
func (sm *stopManager) prune(open map[string]bool) {
	for sym := range sm.states {
		if !open[sym] {
			delete(sm.states, sym)
		}
	}
}

func (sm *stopManager) snapshot() map[string]types.StopState {
	out := make(map[string]types.StopState, len(sm.states))
	for k, v := range sm.states {
		out[k] = v
	}
	return out
}

func (sm *stopManager) restore(states map[string]types.StopState, lastResetDay string) {
	sm.states = make(map[string]types.StopState, len(states))
	for k, v := range states {
		sm.states[k] = v
	}
	sm.lastResetDay = lastResetDay
}

func (sm *stopManager) activeSymbols() []string {
	var out []string
	for sym, st := range sm.states {
		if st.Active {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
