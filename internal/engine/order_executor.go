package engine

import (
	"context"
	"fmt"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/metrics"
	"turtle-trader/internal/tradelog"
	"turtle-trader/internal/types"
)

const (
	tagEntry = "ENTRY"
	tagStop  = "STOP"
)

// orderExecutor hands orders to the platform and writes the trade log.
type orderExecutor struct {
	platform interfaces.Platform
}

func newOrderExecutor(p interfaces.Platform) *orderExecutor {
	return &orderExecutor{platform: p}
}

// submit places req for the market symbol. An error or an empty id both mean
// the order was not placed.
func (oe *orderExecutor) submit(ctx context.Context, symbol string, req types.OrderReq) (types.PlacedOrder, error) {
	kind := req.Style.Kind.String()

	id, err := oe.platform.SubmitOrder(ctx, req)
	if err == nil && id == "" {
		err = ErrOrderSubmission
	}
	if err != nil {
		metrics.OrdersFailed.WithLabelValues(kind).Inc()
		logger.ErrorWithErr(ctx, "Order submission failed", err,
			"symbol", symbol,
			"contract", req.Contract.ID,
			"kind", kind,
			"qty", req.Qty,
			"price", req.Style.Price,
			"tag", req.Tag,
		)
		return types.PlacedOrder{}, fmt.Errorf("submit %s %s: %w", kind, symbol, err)
	}

	placed := types.PlacedOrder{
		OrderID:  id,
		Symbol:   symbol,
		Contract: req.Contract.ID,
		Kind:     kind,
		Qty:      req.Qty,
		Price:    req.Style.Price,
		Tag:      req.Tag,
	}
	metrics.OrdersSubmitted.WithLabelValues(kind).Inc()
	logger.Trade(ctx, symbol, kind, req.Qty, req.Style.Price, id, "contract", req.Contract.ID, "tag", req.Tag)

	if err := tradelog.Append(tradelog.Entry{
		Symbol:   symbol,
		Contract: req.Contract.ID,
		Kind:     kind,
		Qty:      req.Qty,
		Price:    req.Style.Price,
		OrderID:  id,
		Tag:      req.Tag,
	}); err != nil {
		logger.Warn(ctx, "Trade log append failed", "error", err)
	}
	return placed, nil
}
