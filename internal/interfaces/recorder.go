package interfaces

import (
	"context"

	"turtle-trader/internal/types"
)

// Recorder persists cycle history for later analysis.
type Recorder interface {
	RecordCycle(ctx context.Context, res *types.CycleResult) error
	Close() error
}

// StateStore keeps engine state across restarts.
type StateStore interface {
	// Load returns found=false when nothing has been saved yet.
	Load(ctx context.Context) (snap types.EngineSnapshot, found bool, err error)
	Save(ctx context.Context, snap types.EngineSnapshot) error
	Close() error
}
