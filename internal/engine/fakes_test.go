package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"turtle-trader/internal/store"
	"turtle-trader/internal/types"
)

type fakePlatform struct {
	mu sync.Mutex

	markets   map[string]types.Market
	contracts map[string]types.Contract
	history   map[string][]types.Bar
	prices    map[string]float64
	portfolio types.Portfolio

	open      []string
	statuses  map[string]types.OrderStatus
	statusErr map[string]error
	openErr   error

	submitted []types.OrderReq
	submitErr error
	emptyID   bool
	nextID    int

	portfolioErr error
	historyHook  func()
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		markets:   map[string]types.Market{},
		contracts: map[string]types.Contract{},
		history:   map[string][]types.Bar{},
		prices:    map[string]float64{},
		statuses:  map[string]types.OrderStatus{},
		statusErr: map[string]error{},
		portfolio: types.Portfolio{StartingCash: 100000, Value: 100000, Cash: 100000},
	}
}

// addMarket registers a root with a current contract, history and a quote.
func (f *fakePlatform) addMarket(symbol string, multiplier float64, bars []types.Bar, price float64) {
	f.markets[symbol] = types.Market{Symbol: symbol, TickSize: 0.01, Multiplier: multiplier}
	f.contracts[symbol] = types.Contract{Symbol: symbol, ID: symbol + "Z6", TickSize: 0.01, Multiplier: multiplier}
	f.history[symbol] = bars
	f.prices[symbol] = price
}

func (f *fakePlatform) ActiveContract(_ context.Context, symbol string) (types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[symbol]
	if !ok {
		return types.Market{}, fmt.Errorf("unknown root %s", symbol)
	}
	return m, nil
}

func (f *fakePlatform) CurrentContracts(_ context.Context, symbols []string) (map[string]types.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]types.Contract{}
	for _, s := range symbols {
		if c, ok := f.contracts[s]; ok {
			out[s] = c
		}
	}
	return out, nil
}

func (f *fakePlatform) PriceHistory(_ context.Context, symbols []string, bars int) (map[string][]types.Bar, error) {
	if f.historyHook != nil {
		f.historyHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]types.Bar{}
	for _, s := range symbols {
		if b, ok := f.history[s]; ok {
			out[s] = b
		}
	}
	return out, nil
}

func (f *fakePlatform) CurrentPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]float64{}
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakePlatform) SubmitOrder(_ context.Context, req types.OrderReq) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	if f.emptyID {
		return "", nil
	}
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	f.open = append(f.open, id)
	return id, nil
}

func (f *fakePlatform) OpenOrders(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return append([]string(nil), f.open...), nil
}

func (f *fakePlatform) OrderStatus(_ context.Context, id string) (types.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[id]; err != nil {
		return types.OrderPending, err
	}
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return types.OrderPending, errors.New("unknown order")
}

func (f *fakePlatform) Portfolio(context.Context) (types.Portfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.portfolioErr != nil {
		return types.Portfolio{}, f.portfolioErr
	}
	p := f.portfolio
	p.Positions = append([]types.Position(nil), f.portfolio.Positions...)
	return p, nil
}

// settle resolves every open order to status and clears the open book.
func (f *fakePlatform) settle(status types.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.open {
		f.statuses[id] = status
	}
	f.open = nil
}

func (f *fakePlatform) orders(kind types.OrderKind) []types.OrderReq {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.OrderReq
	for _, r := range f.submitted {
		if r.Style.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

type memState struct {
	mu    sync.Mutex
	snap  types.EngineSnapshot
	saved bool
	saves int
}

func (m *memState) Load(context.Context) (types.EngineSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.saved, nil
}

func (m *memState) Save(_ context.Context, snap types.EngineSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap, m.saved = snap, true
	m.saves++
	return nil
}

func (m *memState) Close() error { return nil }

type memRecorder struct {
	cycles []*types.CycleResult
}

func (m *memRecorder) RecordCycle(_ context.Context, res *types.CycleResult) error {
	m.cycles = append(m.cycles, res)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func testConfig(t *testing.T, symbols ...string) *store.Config {
	t.Helper()
	cfg, err := store.ParseConfig([]byte("state: {backend: none}\n"))
	require.NoError(t, err)
	cfg.Universe.Symbols = symbols
	return cfg
}

// rangeBars returns n bars trading 99-101 around 100, a constant true range of 2.
func rangeBars(n int) []types.Bar {
	out := make([]types.Bar, n)
	for i := range out {
		out[i] = types.Bar{High: 101, Low: 99, Close: 100}
	}
	return out
}

func window(bars []types.Bar) types.PriceWindow {
	return types.PriceWindow{Symbol: "TEST", Bars: bars}
}
