package brokerobs

import (
	"context"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/trace"
	"turtle-trader/internal/types"
)

// observablePlatform wraps a Platform with observability (logging & tracing)
type observablePlatform struct {
	platform interfaces.Platform
}

// Compile-time interface check
var _ interfaces.Platform = (*observablePlatform)(nil)

// Wrap wraps a platform with observability middleware
func Wrap(p interfaces.Platform) interfaces.Platform {
	return &observablePlatform{
		platform: p,
	}
}

func (op *observablePlatform) ActiveContract(ctx context.Context, symbol string) (types.Market, error) {
	ctx, span := trace.StartSpan(ctx, "platform.ActiveContract")
	defer span.End()

	mkt, err := op.platform.ActiveContract(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to resolve active contract", err, "symbol", symbol)
		return types.Market{}, err
	}

	logger.DebugSkip(ctx, 1, "Active contract resolved", "symbol", symbol, "end_date", mkt.EndDate)
	return mkt, nil
}

func (op *observablePlatform) CurrentContracts(ctx context.Context, symbols []string) (map[string]types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "platform.CurrentContracts")
	defer span.End()

	contracts, err := op.platform.CurrentContracts(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch current contracts", err, "count", len(symbols))
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Current contracts fetched", "requested", len(symbols), "resolved", len(contracts))
	return contracts, nil
}

// PriceHistory fetches daily bars with observability
func (op *observablePlatform) PriceHistory(ctx context.Context, symbols []string, bars int) (map[string][]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "platform.PriceHistory")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching price history", "count", len(symbols), "bars", bars)

	hist, err := op.platform.PriceHistory(ctx, symbols, bars)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price history", err, "count", len(symbols), "bars", bars)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Price history fetched", "requested", len(symbols), "returned", len(hist))
	return hist, nil
}

func (op *observablePlatform) CurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	ctx, span := trace.StartSpan(ctx, "platform.CurrentPrices")
	defer span.End()

	prices, err := op.platform.CurrentPrices(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch current prices", err, "count", len(symbols))
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Current prices fetched", "requested", len(symbols), "returned", len(prices))
	return prices, nil
}

// SubmitOrder places an order with observability
func (op *observablePlatform) SubmitOrder(ctx context.Context, req types.OrderReq) (string, error) {
	ctx, span := trace.StartSpan(ctx, "platform.SubmitOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"symbol", req.Contract.Symbol,
		"contract", req.Contract.ID,
		"kind", req.Style.Kind.String(),
		"qty", req.Qty,
		"price", req.Style.Price,
		"tag", req.Tag,
	)

	id, err := op.platform.SubmitOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"symbol", req.Contract.Symbol,
			"kind", req.Style.Kind.String(),
			"qty", req.Qty,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Order submitted successfully",
		"symbol", req.Contract.Symbol,
		"order_id", id,
	)
	return id, nil
}

func (op *observablePlatform) OpenOrders(ctx context.Context) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "platform.OpenOrders")
	defer span.End()

	ids, err := op.platform.OpenOrders(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list open orders", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Open orders listed", "count", len(ids))
	return ids, nil
}

func (op *observablePlatform) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	ctx, span := trace.StartSpan(ctx, "platform.OrderStatus")
	defer span.End()

	st, err := op.platform.OrderStatus(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return st, err
	}

	logger.DebugSkip(ctx, 1, "Order status fetched", "order_id", orderID, "status", st.String())
	return st, nil
}

func (op *observablePlatform) Portfolio(ctx context.Context) (types.Portfolio, error) {
	ctx, span := trace.StartSpan(ctx, "platform.Portfolio")
	defer span.End()

	pf, err := op.platform.Portfolio(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch portfolio", err)
		return types.Portfolio{}, err
	}

	logger.DebugSkip(ctx, 1, "Portfolio fetched",
		"value", pf.Value,
		"cash", pf.Cash,
		"positions", len(pf.Positions),
	)
	return pf, nil
}
