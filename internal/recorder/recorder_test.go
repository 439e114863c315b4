package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-trader/internal/types"
)

func openTestRecorder(t *testing.T) *SQLRecorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "turtle.db")
	r, err := NewSQLRecorder(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleCycle(id string, at time.Time) *types.CycleResult {
	return &types.CycleResult{
		ID:          id,
		AsOf:        at,
		Day:         at.Format("2006-01-02"),
		Markets:     []string{"CL", "GC"},
		RiskCapital: 2000,
		Dropped: []types.Drop{
			{Symbol: "HU", Reason: "stopped trading"},
			{Symbol: "SB", Reason: "null prices"},
		},
		Signals: []types.SignalEvent{
			{Symbol: "CL", Signal: types.SignalLong, Price: 105, ATR: 2, DollarVol: 2000, Size: 1, Decision: "submitted"},
		},
		Orders: []types.PlacedOrder{
			{OrderID: "o-1", Symbol: "CL", Contract: "CLZ6", Kind: "LIMIT", Qty: 1, Price: 105, Tag: "ENTRY"},
		},
		Outcomes: []types.OrderOutcome{
			{OrderID: "o-0", Symbol: "GC", Direction: types.SignalShort, Status: types.OrderFilled},
		},
	}
}

func TestRecordCycleRoundTrip(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 13, 31, 0, 0, time.UTC)

	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-1", at)))
	require.NoError(t, r.RecordCycle(ctx, &types.CycleResult{ID: "c-2", AsOf: at.Add(24 * time.Hour), Day: "2026-10-16", Skipped: "empty universe"}))

	cycles, err := r.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	assert.Equal(t, "c-2", cycles[0].CycleID, "newest cycle first")
	assert.Equal(t, "empty universe", cycles[0].Skipped)
	assert.Zero(t, cycles[0].Signals)

	assert.Equal(t, "c-1", cycles[1].CycleID)
	assert.Equal(t, 2000.0, cycles[1].RiskCapital)
	assert.Equal(t, 1, cycles[1].Signals)
	assert.Equal(t, 1, cycles[1].Orders)
	assert.Equal(t, 2, cycles[1].Drops)

	var status string
	require.NoError(t, r.db.GetContext(ctx, &status, `SELECT status FROM outcomes WHERE order_id = ?`, "o-0"))
	assert.Equal(t, "FILLED", status)
}

func TestDropReasonsByDay(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 13, 31, 0, 0, time.UTC)

	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-1", at)))
	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-2", at.Add(time.Hour))))

	reasons, err := r.DropReasons(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"stopped trading": 2, "null prices": 2}, reasons)

	reasons, err = r.DropReasons(ctx, "2026-10-16")
	require.NoError(t, err)
	assert.Empty(t, reasons)
}

func TestDuplicateCycleRollsBack(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 13, 31, 0, 0, time.UTC)

	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-1", at)))
	assert.Error(t, r.RecordCycle(ctx, sampleCycle("c-1", at)))

	var n int
	require.NoError(t, r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 1, n, "failed cycle must not leave partial rows")
}

func TestOpenWithoutDriverIsNoop(t *testing.T) {
	r, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.IsType(t, Noop{}, r)
	assert.NoError(t, r.RecordCycle(context.Background(), sampleCycle("c-1", time.Now())))
	assert.NoError(t, r.Close())
}

func TestLastSession(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	_, _, ok, err := r.LastSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty history")

	at := time.Date(2026, 10, 15, 13, 31, 0, 0, time.UTC)
	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-1", at)))
	require.NoError(t, r.RecordCycle(ctx, sampleCycle("c-2", at.Add(time.Hour))))

	last, drops, ok, err := r.LastSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c-2", last.CycleID)
	assert.Equal(t, 2, last.Drops)
	assert.Equal(t, map[string]int{"stopped trading": 2, "null prices": 2}, drops, "reasons across the whole day")
}
