package broker

import (
	"context"
	"fmt"
	"os"

	"turtle-trader/internal/broker/brokerobs"
	"turtle-trader/internal/broker/kite"
	"turtle-trader/internal/broker/paper"
	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/store"
)

// New builds the configured trading platform wrapped with observability.
// Kite credentials come from KITE_API_KEY and KITE_ACCESS_TOKEN.
func New(ctx context.Context, cfg *store.Config) (interfaces.Platform, error) {
	var p interfaces.Platform
	switch cfg.Platform {
	case "PAPER":
		p = paper.New(paper.Params{
			StartingCash: cfg.Paper.StartingCash,
			Seed:         cfg.Paper.Seed,
			Location:     cfg.Location(),
		})
	case "KITE":
		k, err := kite.New(kite.Params{
			APIKey:         os.Getenv("KITE_API_KEY"),
			AccessToken:    os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:       cfg.Kite.Exchange,
			Product:        cfg.Kite.Product,
			StartingCash:   cfg.Kite.StartingCash,
			QuantityInLots: cfg.Kite.QuantityInLots,
			Location:       cfg.Location(),
		})
		if err != nil {
			return nil, fmt.Errorf("kite platform: %w", err)
		}
		p = k
	default:
		return nil, fmt.Errorf("unsupported platform '%s'", cfg.Platform)
	}

	logger.Info(ctx, "Trading platform ready", "platform", cfg.Platform, "mode", cfg.Mode)
	return brokerobs.Wrap(p), nil
}
