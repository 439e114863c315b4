package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/trace"
	"turtle-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting trading cycle",
		"as_of", now,
	)

	result, err := oe.engine.Cycle(ctx, now)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trading cycle failed", err,
			"as_of", now,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	span.SetAttributes(
		attribute.String("cycle.id", result.ID),
		attribute.String("cycle.day", result.Day),
		attribute.Int("cycle.markets", len(result.Markets)),
		attribute.Int("cycle.orders", len(result.Orders)),
	)
	logger.InfoSkip(ctx, 1, "Trading cycle completed",
		"cycle_id", result.ID,
		"day", result.Day,
		"markets", len(result.Markets),
		"dropped", len(result.Dropped),
		"signals", len(result.Signals),
		"orders", len(result.Orders),
		"skipped", result.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
