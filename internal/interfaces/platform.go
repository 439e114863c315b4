package interfaces

import (
	"context"

	"turtle-trader/internal/types"
)

// Platform is the host trading platform the engine runs against.
type Platform interface {
	// ActiveContract resolves a root symbol to its continuous market metadata.
	ActiveContract(ctx context.Context, symbol string) (types.Market, error)

	// CurrentContracts returns the tradable contract per root symbol.
	CurrentContracts(ctx context.Context, symbols []string) (map[string]types.Contract, error)

	// PriceHistory returns up to bars daily bars per symbol, oldest first.
	// Symbols without data are absent from the result.
	PriceHistory(ctx context.Context, symbols []string, bars int) (map[string][]types.Bar, error)

	// CurrentPrices returns the latest price per symbol. Missing symbols have no quote.
	CurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// SubmitOrder places an order and returns its id. An empty id means not placed.
	SubmitOrder(ctx context.Context, req types.OrderReq) (string, error)

	// OpenOrders lists ids of orders that are still working.
	OpenOrders(ctx context.Context) ([]string, error)

	// OrderStatus reports the lifecycle status of a single order.
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)

	// Portfolio returns the account snapshot.
	Portfolio(ctx context.Context) (types.Portfolio, error)
}
