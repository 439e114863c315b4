package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-trader/internal/types"
)

func TestReconcileResolvesTerminalOrders(t *testing.T) {
	p := newFakePlatform()
	p.open = []string{"working"}
	p.statuses["filled"] = types.OrderFilled
	p.statuses["canceled"] = types.OrderCanceled
	p.statuses["rejected"] = types.OrderRejected
	p.statuses["working"] = types.OrderFilled // open set wins over status
	p.statusErr["flaky"] = errors.New("timeout")

	r := newOrderReconciler()
	r.track("filled", "CL", types.SignalLong)
	r.track("canceled", "GC", types.SignalShort)
	r.track("rejected", "GC", types.SignalLong)
	r.track("working", "SB", types.SignalShort)
	r.track("flaky", "HG", types.SignalLong)

	outcomes, err := r.reconcile(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "canceled", outcomes[0].OrderID)
	assert.Equal(t, types.OrderFilled, outcomes[1].Status)
	assert.Equal(t, types.OrderRejected, outcomes[2].Status)

	assert.Equal(t, 1, r.counters.Market["CL"])
	assert.Equal(t, 1, r.counters.Long)
	assert.Equal(t, 1, r.counters.MarketLong["CL"])
	assert.Equal(t, 0, r.counters.Short)
	assert.Equal(t, 0, r.counters.Market["GC"])

	assert.True(t, r.hasOutstanding("SB"))
	assert.True(t, r.hasOutstanding("HG"))
	assert.False(t, r.hasOutstanding("CL"))
	assert.False(t, r.hasOutstanding("GC"))
}

func TestReconcileCountsFillOnce(t *testing.T) {
	p := newFakePlatform()
	p.statuses["a"] = types.OrderFilled

	r := newOrderReconciler()
	r.track("a", "CL", types.SignalShort)

	for i := 0; i < 3; i++ {
		_, err := r.reconcile(context.Background(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.counters.Market["CL"])
	assert.Equal(t, 1, r.counters.Short)
	assert.Equal(t, 1, r.counters.MarketShort["CL"])
}

func TestReconcileKeepsPendingStatus(t *testing.T) {
	p := newFakePlatform()
	p.statuses["a"] = types.OrderPending

	r := newOrderReconciler()
	r.track("a", "CL", types.SignalLong)

	outcomes, err := r.reconcile(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.True(t, r.hasOutstanding("CL"))
}

func TestReconcileOpenOrdersFailureKeepsState(t *testing.T) {
	p := newFakePlatform()
	p.openErr = errors.New("session expired")
	p.statuses["a"] = types.OrderFilled

	r := newOrderReconciler()
	r.track("a", "CL", types.SignalLong)

	_, err := r.reconcile(context.Background(), p)
	assert.Error(t, err)
	assert.True(t, r.hasOutstanding("CL"))
	assert.Equal(t, 0, r.counters.Long)
}

func TestRestoreCopiesCounters(t *testing.T) {
	src := types.NewRiskCounters()
	src.Market["CL"] = 2
	src.Long = 2

	r := newOrderReconciler()
	r.restore([]types.PendingOrder{{ID: "x", Symbol: "GC", Direction: types.SignalShort}}, src)
	src.Market["CL"] = 99

	assert.Equal(t, 2, r.counters.Market["CL"])
	assert.True(t, r.hasOutstanding("GC"))
	assert.Len(t, r.pendingOrders(), 1)

	r.resetCounters()
	assert.Equal(t, 0, r.snapshotCounters().Long)
}
