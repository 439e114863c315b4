package engine

import (
	"context"
	"sort"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/metrics"
	"turtle-trader/internal/types"
)

// orderReconciler tracks entry orders until they reach a terminal status and is
// the only writer of the fill counters.
type orderReconciler struct {
	pending  map[string]types.PendingOrder
	counters types.RiskCounters
}

func newOrderReconciler() *orderReconciler {
	return &orderReconciler{
		pending:  map[string]types.PendingOrder{},
		counters: types.NewRiskCounters(),
	}
}

func (r *orderReconciler) track(id, symbol string, dir types.Signal) {
	r.pending[id] = types.PendingOrder{ID: id, Symbol: symbol, Direction: dir, Status: types.OrderPending}
	metrics.PendingOrders.Set(float64(len(r.pending)))
}

func (r *orderReconciler) hasOutstanding(symbol string) bool {
	for _, po := range r.pending {
		if po.Symbol == symbol {
			return true
		}
	}
	return false
}

// reconcile resolves every tracked order that is no longer working on the
// platform. Fills bump the market and direction counters; cancels and rejects
// are dropped without touching them. Orders whose status cannot be read stay
// tracked for the next cycle.
func (r *orderReconciler) reconcile(ctx context.Context, p interfaces.Platform) ([]types.OrderOutcome, error) {
	if len(r.pending) == 0 {
		return nil, nil
	}

	ids, err := p.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	open := make(map[string]bool, len(ids))
	for _, id := range ids {
		open[id] = true
	}

	tracked := make([]string, 0, len(r.pending))
	for id := range r.pending {
		tracked = append(tracked, id)
	}
	sort.Strings(tracked)

	next := make(map[string]types.PendingOrder, len(r.pending))
	var outcomes []types.OrderOutcome
	for _, id := range tracked {
		po := r.pending[id]
		if open[id] {
			next[id] = po
			continue
		}

		status, err := p.OrderStatus(ctx, id)
		if err != nil {
			logger.Warn(ctx, "Order status unavailable, keeping order tracked", "order_id", id, "symbol", po.Symbol, "error", err)
			next[id] = po
			continue
		}

		switch status {
		case types.OrderFilled:
			r.recordFill(po)
		case types.OrderCanceled, types.OrderRejected:
		default:
			po.Status = status
			next[id] = po
			continue
		}

		out := types.OrderOutcome{OrderID: id, Symbol: po.Symbol, Direction: po.Direction, Status: status}
		outcomes = append(outcomes, out)
		metrics.OrdersReconciled.WithLabelValues(status.String()).Inc()
		logger.Info(ctx, "Entry order resolved",
			"order_id", id,
			"symbol", po.Symbol,
			"direction", po.Direction.String(),
			"status", status.String(),
		)
	}

	r.pending = next
	metrics.PendingOrders.Set(float64(len(r.pending)))
	return outcomes, nil
}

func (r *orderReconciler) recordFill(po types.PendingOrder) {
	r.counters.Market[po.Symbol]++
	switch po.Direction {
	case types.SignalLong:
		r.counters.Long++
		r.counters.MarketLong[po.Symbol]++
	case types.SignalShort:
		r.counters.Short++
		r.counters.MarketShort[po.Symbol]++
	}
}

func (r *orderReconciler) pendingOrders() []types.PendingOrder {
	out := make([]types.PendingOrder, 0, len(r.pending))
	for _, po := range r.pending {
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *orderReconciler) snapshotCounters() types.RiskCounters {
	return copyCounters(r.counters)
}

func (r *orderReconciler) restore(pending []types.PendingOrder, counters types.RiskCounters) {
	r.pending = make(map[string]types.PendingOrder, len(pending))
	for _, po := range pending {
		r.pending[po.ID] = po
	}
	r.counters = copyCounters(counters)
}

func (r *orderReconciler) resetCounters() {
	r.counters = types.NewRiskCounters()
}

func copyCounters(c types.RiskCounters) types.RiskCounters {
	out := types.NewRiskCounters()
	out.Long, out.Short = c.Long, c.Short
	for k, v := range c.Market {
		out.Market[k] = v
	}
	for k, v := range c.MarketLong {
		out.MarketLong[k] = v
	}
	for k, v := range c.MarketShort {
		out.MarketShort[k] = v
	}
	return out
}
