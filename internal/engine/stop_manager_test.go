package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-trader/internal/types"
)

func TestComputeStopPrice(t *testing.T) {
	cases := []struct {
		name      string
		qty       int
		cost      float64
		price     float64
		havePrice bool
		want      float64
	}{
		{"long below cost uses cost", 1, 50, 48, true, 46},
		{"long above cost trails price", 1, 50, 55, true, 51},
		{"long without price uses cost", 3, 50, 0, false, 46},
		{"short above cost uses price", -1, 50, 52, true, 56},
		{"short below cost uses cost", -2, 50, 48, true, 54},
		{"short without price uses cost", -1, 50, 0, false, 54},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := computeStopPrice(tc.qty, tc.cost, tc.price, tc.havePrice, 2, 2)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func stopFixture(t *testing.T) (*fakePlatform, *orderExecutor, *stopManager) {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	p := newFakePlatform()
	return p, newOrderExecutor(p), newStopManager(2)
}

func longInput() stopInput {
	return stopInput{
		Position:  types.Position{Symbol: "CL", Qty: 2, CostBasis: 50},
		Contract:  types.Contract{Symbol: "CL", ID: "CLZ6", TickSize: 0.01, Multiplier: 1000},
		Price:     48,
		HavePrice: true,
		ATR:       2,
	}
}

func TestRefreshScenarioD(t *testing.T) {
	p, exec, sm := stopFixture(t)
	sm.resetIfNewDay(context.Background(), "2026-10-15")

	placed, err := sm.refresh(context.Background(), exec, longInput())
	require.NoError(t, err)
	require.NotNil(t, placed)

	stops := p.orders(types.OrderStop)
	require.Len(t, stops, 1)
	assert.Equal(t, -2, stops[0].Qty)
	assert.InDelta(t, 46.0, stops[0].Style.Price, 1e-9)
	assert.Equal(t, "CLZ6", stops[0].Contract.ID)

	st := sm.states["CL"]
	assert.True(t, st.Active)
	assert.Equal(t, placed.OrderID, st.OrderID)
}

func TestRefreshOncePerDay(t *testing.T) {
	p, exec, sm := stopFixture(t)
	ctx := context.Background()

	assert.True(t, sm.resetIfNewDay(ctx, "2026-10-15"))
	for i := 0; i < 3; i++ {
		_, err := sm.refresh(ctx, exec, longInput())
		require.NoError(t, err)
	}
	assert.Len(t, p.orders(types.OrderStop), 1)

	assert.False(t, sm.resetIfNewDay(ctx, "2026-10-15"), "same day must not re-arm")
	_, _ = sm.refresh(ctx, exec, longInput())
	assert.Len(t, p.orders(types.OrderStop), 1)

	assert.True(t, sm.resetIfNewDay(ctx, "2026-10-16"))
	_, err := sm.refresh(ctx, exec, longInput())
	require.NoError(t, err)
	assert.Len(t, p.orders(types.OrderStop), 2)
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	p, exec, sm := stopFixture(t)
	ctx := context.Background()
	p.submitErr = errors.New("exchange closed")

	_, err := sm.refresh(ctx, exec, longInput())
	assert.Error(t, err)
	_, ok := sm.states["CL"]
	assert.False(t, ok)

	p.submitErr = nil
	placed, err := sm.refresh(ctx, exec, longInput())
	require.NoError(t, err)
	assert.NotNil(t, placed)
}

func TestRefreshEmptyOrderIDIsFailure(t *testing.T) {
	p, exec, sm := stopFixture(t)
	p.emptyID = true

	_, err := sm.refresh(context.Background(), exec, longInput())
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.False(t, sm.states["CL"].Active)
}

func TestRefreshSkipsNonPositiveLongStop(t *testing.T) {
	p, exec, sm := stopFixture(t)
	in := longInput()
	in.Position.CostBasis = 3
	in.Price = 2

	placed, err := sm.refresh(context.Background(), exec, in)
	assert.NoError(t, err)
	assert.Nil(t, placed)
	assert.Empty(t, p.orders(types.OrderStop))
}

func TestRefreshRoundsToTick(t *testing.T) {
	p, exec, sm := stopFixture(t)
	in := longInput()
	in.Position.CostBasis = 50.03
	in.Price = 49
	in.ATR = 1.013

	_, err := sm.refresh(context.Background(), exec, in)
	require.NoError(t, err)
	stops := p.orders(types.OrderStop)
	require.Len(t, stops, 1)
	assert.InDelta(t, 48.00, stops[0].Style.Price, 1e-9)
}

func TestRefreshShortPosition(t *testing.T) {
	p, exec, sm := stopFixture(t)
	in := longInput()
	in.Position.Qty = -3
	in.Price = 52

	_, err := sm.refresh(context.Background(), exec, in)
	require.NoError(t, err)
	stops := p.orders(types.OrderStop)
	require.Len(t, stops, 1)
	assert.Equal(t, 3, stops[0].Qty)
	assert.InDelta(t, 56.0, stops[0].Style.Price, 1e-9, "short stop bases on max(price, cost)")
}

func TestPruneForgetsClosedPositions(t *testing.T) {
	sm := newStopManager(2)
	sm.states["CL"] = types.StopState{Active: true}
	sm.states["GC"] = types.StopState{Active: true}

	sm.prune(map[string]bool{"GC": true})
	_, cl := sm.states["CL"]
	assert.False(t, cl)
	assert.Equal(t, []string{"GC"}, sm.activeSymbols())
}
