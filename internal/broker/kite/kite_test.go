package kite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"

	"turtle-trader/internal/types"
)

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type fakeClient struct {
	instruments kiteconnect.Instruments
	history     map[int][]kiteconnect.HistoricalData
	ltp         kiteconnect.QuoteLTP
	placed      []kiteconnect.OrderParams
	orders      kiteconnect.Orders
	orderHist   map[string][]kiteconnect.Order
	positions   kiteconnect.Positions
	margins     kiteconnect.AllMargins

	instrumentCalls int
	ltpKeys         []string
}

func (f *fakeClient) GetInstrumentsByExchange(string) (kiteconnect.Instruments, error) {
	f.instrumentCalls++
	return f.instruments, nil
}

func (f *fakeClient) GetHistoricalData(token int, _ string, _, _ time.Time, _, _ bool) ([]kiteconnect.HistoricalData, error) {
	h, ok := f.history[token]
	if !ok {
		return nil, errors.New("no data")
	}
	return h, nil
}

func (f *fakeClient) GetLTP(keys ...string) (kiteconnect.QuoteLTP, error) {
	f.ltpKeys = keys
	return f.ltp, nil
}

func (f *fakeClient) PlaceOrder(_ string, p kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	f.placed = append(f.placed, p)
	return kiteconnect.OrderResponse{OrderID: "K1"}, nil
}

func (f *fakeClient) GetOrders() (kiteconnect.Orders, error) { return f.orders, nil }

func (f *fakeClient) GetOrderHistory(id string) ([]kiteconnect.Order, error) {
	return f.orderHist[id], nil
}

func (f *fakeClient) GetPositions() (kiteconnect.Positions, error) { return f.positions, nil }

func (f *fakeClient) GetUserMargins() (kiteconnect.AllMargins, error) { return f.margins, nil }

func future(token int, name, symbol string, expiry time.Time, lot float64) kiteconnect.Instrument {
	return kiteconnect.Instrument{
		InstrumentToken: token,
		Tradingsymbol:   symbol,
		Name:            name,
		Expiry:          models.Time{Time: expiry},
		TickSize:        1,
		LotSize:         lot,
		InstrumentType:  instrumentTypeFuture,
	}
}

func newTestPlatform(fc *fakeClient, lots bool) *Platform {
	return newPlatform(Params{
		Exchange:       "MCX",
		Product:        kiteconnect.ProductNRML,
		QuantityInLots: lots,
	}, fc, func() time.Time { return testNow })
}

func mcxInstruments() kiteconnect.Instruments {
	return kiteconnect.Instruments{
		future(1, "CRUDEOIL", "CRUDEOIL26OCTFUT", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), 100),
		future(2, "CRUDEOIL", "CRUDEOIL26NOVFUT", time.Date(2026, 11, 19, 0, 0, 0, 0, time.UTC), 100),
		future(3, "GOLD", "GOLD26SEPFUT", time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), 100),
		future(4, "GOLD", "GOLD26DECFUT", time.Date(2026, 12, 4, 0, 0, 0, 0, time.UTC), 100),
		{InstrumentToken: 5, Tradingsymbol: "GOLD26DEC80000CE", Name: "GOLD", InstrumentType: "CE"},
	}
}

func TestActiveContractPicksFrontMonth(t *testing.T) {
	fc := &fakeClient{instruments: mcxInstruments()}
	k := newTestPlatform(fc, true)
	ctx := context.Background()

	crude, err := k.ActiveContract(ctx, "CRUDEOIL")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), crude.EndDate)
	assert.Equal(t, 100.0, crude.Multiplier)

	contracts, err := k.CurrentContracts(ctx, []string{"CRUDEOIL", "GOLD", "SILVER"})
	require.NoError(t, err)
	assert.Equal(t, "CRUDEOIL26OCTFUT", contracts["CRUDEOIL"].ID)
	assert.Equal(t, "GOLD26DECFUT", contracts["GOLD"].ID, "expired and option contracts must be skipped")
	assert.NotContains(t, contracts, "SILVER")

	_, err = k.ActiveContract(ctx, "SILVER")
	assert.Error(t, err)
	assert.Equal(t, 1, fc.instrumentCalls, "instrument dump should be fetched once per day")
}

func TestPriceHistoryTrimsAndOrders(t *testing.T) {
	day := func(d int) models.Time { return models.Time{Time: time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)} }
	fc := &fakeClient{
		instruments: mcxInstruments(),
		history: map[int][]kiteconnect.HistoricalData{
			1: {
				{Date: day(14), High: 14, Low: 13, Close: 13.5},
				{Date: day(12), High: 12, Low: 11, Close: 11.5},
				{Date: day(13), High: 13, Low: 12, Close: 12.5},
			},
		},
	}
	k := newTestPlatform(fc, true)

	got, err := k.PriceHistory(context.Background(), []string{"CRUDEOIL", "GOLD"}, 2)
	require.NoError(t, err)
	require.Len(t, got["CRUDEOIL"], 2)
	assert.Equal(t, types.Bar{High: 13, Low: 12, Close: 12.5}, got["CRUDEOIL"][0])
	assert.Equal(t, types.Bar{High: 14, Low: 13, Close: 13.5}, got["CRUDEOIL"][1])
	assert.NotContains(t, got, "GOLD", "failed history request leaves the market out")
}

func TestCurrentPricesKeysByExchange(t *testing.T) {
	fc := &fakeClient{
		instruments: mcxInstruments(),
		ltp: kiteconnect.QuoteLTP{
			"MCX:CRUDEOIL26OCTFUT": {InstrumentToken: 1, LastPrice: 6120},
			"MCX:GOLD26DECFUT":     {InstrumentToken: 4, LastPrice: 0},
		},
	}
	k := newTestPlatform(fc, true)

	prices, err := k.CurrentPrices(context.Background(), []string{"CRUDEOIL", "GOLD"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"MCX:CRUDEOIL26OCTFUT", "MCX:GOLD26DECFUT"}, fc.ltpKeys)
	assert.Equal(t, map[string]float64{"CRUDEOIL": 6120}, prices)
}

func TestSubmitOrderParams(t *testing.T) {
	fc := &fakeClient{instruments: mcxInstruments()}
	k := newTestPlatform(fc, false)
	ctx := context.Background()
	c := types.Contract{Symbol: "CRUDEOIL", ID: "CRUDEOIL26OCTFUT"}

	id, err := k.SubmitOrder(ctx, types.OrderReq{Contract: c, Qty: 2, Style: types.Limit(6100), Tag: "ENTRY"})
	require.NoError(t, err)
	assert.Equal(t, "K1", id)

	_, err = k.SubmitOrder(ctx, types.OrderReq{Contract: c, Qty: -2, Style: types.Stop(5900), Tag: "STOP"})
	require.NoError(t, err)

	require.Len(t, fc.placed, 2)
	entry, stop := fc.placed[0], fc.placed[1]
	assert.Equal(t, kiteconnect.TransactionTypeBuy, entry.TransactionType)
	assert.Equal(t, kiteconnect.OrderTypeLimit, entry.OrderType)
	assert.Equal(t, 200, entry.Quantity, "lots are converted to units")
	assert.Equal(t, 6100.0, entry.Price)
	assert.Equal(t, kiteconnect.ValidityDay, entry.Validity)

	assert.Equal(t, kiteconnect.TransactionTypeSell, stop.TransactionType)
	assert.Equal(t, kiteconnect.OrderTypeSLM, stop.OrderType)
	assert.Equal(t, 5900.0, stop.TriggerPrice)
	assert.Equal(t, "STOP", stop.Tag)

	_, err = k.SubmitOrder(ctx, types.OrderReq{Contract: c, Qty: 0, Style: types.Limit(1)})
	assert.Error(t, err)
}

func TestOrderStatusMapping(t *testing.T) {
	fc := &fakeClient{
		orders: kiteconnect.Orders{
			{OrderID: "a", Status: "OPEN"},
			{OrderID: "b", Status: "COMPLETE"},
			{OrderID: "c", Status: "TRIGGER PENDING"},
			{OrderID: "d", Status: "REJECTED"},
		},
		orderHist: map[string][]kiteconnect.Order{
			"a": {{OrderID: "a", Status: "OPEN PENDING"}, {OrderID: "a", Status: "COMPLETE"}},
			"b": {{OrderID: "b", Status: "CANCELLED"}},
		},
	}
	k := newTestPlatform(fc, true)
	ctx := context.Background()

	open, err := k.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, open)

	st, err := k.OrderStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.OrderFilled, st)

	st, err = k.OrderStatus(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, types.OrderCanceled, st)

	_, err = k.OrderStatus(ctx, "missing")
	assert.Error(t, err)
}

func TestPortfolioMapsPositions(t *testing.T) {
	fc := &fakeClient{
		instruments: mcxInstruments(),
		positions: kiteconnect.Positions{Net: []kiteconnect.Position{
			{Tradingsymbol: "CRUDEOIL26OCTFUT", Exchange: "MCX", Product: "NRML", Quantity: -300, AveragePrice: 6150},
			{Tradingsymbol: "GOLD26DECFUT", Exchange: "MCX", Product: "MIS", Quantity: 100, AveragePrice: 71000},
			{Tradingsymbol: "INFY", Exchange: "NSE", Product: "NRML", Quantity: 10, AveragePrice: 1500},
		}},
		margins: kiteconnect.AllMargins{
			Equity:    kiteconnect.Margins{Net: 1},
			Commodity: kiteconnect.Margins{Net: 500000, Available: kiteconnect.AvailableMargins{Cash: 420000}},
		},
	}
	k := newTestPlatform(fc, false)

	pf, err := k.Portfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500000.0, pf.Value)
	assert.Equal(t, 420000.0, pf.Cash)
	assert.Equal(t, 500000.0, pf.StartingCash, "first observed value seeds starting cash")
	require.Len(t, pf.Positions, 1)
	assert.Equal(t, types.Position{Symbol: "CRUDEOIL", Qty: -3, CostBasis: 6150}, pf.Positions[0])

	fc.margins.Commodity.Net = 450000
	pf, err = k.Portfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500000.0, pf.StartingCash)
	assert.Equal(t, 450000.0, pf.Value)
}

func TestCanceledContextStopsCalls(t *testing.T) {
	fc := &fakeClient{instruments: mcxInstruments()}
	k := newTestPlatform(fc, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := k.Portfolio(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fc.instrumentCalls)
}
