package interfaces

import (
	"context"
	"time"

	"turtle-trader/internal/types"
)

type Engine interface {
	Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error)
}
