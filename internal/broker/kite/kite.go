package kite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

const (
	statusComplete  = "COMPLETE"
	statusCancelled = "CANCELLED"
	statusRejected  = "REJECTED"

	segmentCommodity = "MCX"
)

type Params struct {
	APIKey         string
	AccessToken    string
	Exchange       string
	Product        string
	StartingCash   float64
	QuantityInLots bool
	Location       *time.Location
}

// Platform trades front-month futures through Kite Connect. Calls to the API
// are synchronous; ctx is checked before each one.
type Platform struct {
	p     Params
	kc    client
	instr *instrumentMapper
	clock func() time.Time

	mu           sync.Mutex
	startingCash float64
}

var _ interfaces.Platform = (*Platform)(nil)

func New(p Params) (*Platform, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	return newPlatform(p, newClient(p.APIKey, p.AccessToken), time.Now), nil
}

func newPlatform(p Params, kc client, clock func() time.Time) *Platform {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Product == "" {
		p.Product = kiteconnect.ProductNRML
	}
	return &Platform{p: p, kc: kc, instr: newInstrumentMapper(), clock: clock, startingCash: p.StartingCash}
}

func (k *Platform) today() (time.Time, string) {
	t := k.clock().In(k.p.Location)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, k.p.Location)
	return d, d.Format("2006-01-02")
}

func (k *Platform) instruments(ctx context.Context) error {
	today, day := k.today()
	if !k.instr.stale(day) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	list, err := k.kc.GetInstrumentsByExchange(k.p.Exchange)
	if err != nil {
		return fmt.Errorf("instruments %s: %w", k.p.Exchange, err)
	}
	k.instr.load(list, today, day)
	logger.Debug(ctx, "Kite instruments loaded", "exchange", k.p.Exchange, "count", len(list))
	return nil
}

func (k *Platform) ActiveContract(ctx context.Context, symbol string) (types.Market, error) {
	if err := k.instruments(ctx); err != nil {
		return types.Market{}, err
	}
	in, err := k.instr.get(symbol)
	if err != nil {
		return types.Market{}, err
	}
	return types.Market{Symbol: symbol, EndDate: in.expiry, TickSize: in.tickSize, Multiplier: in.lotSize}, nil
}

func (k *Platform) CurrentContracts(ctx context.Context, symbols []string) (map[string]types.Contract, error) {
	if err := k.instruments(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]types.Contract, len(symbols))
	for _, sym := range symbols {
		in, err := k.instr.get(sym)
		if err != nil {
			continue
		}
		out[sym] = types.Contract{Symbol: sym, ID: in.tradingsymbol, TickSize: in.tickSize, Multiplier: in.lotSize}
	}
	return out, nil
}

// PriceHistory requests continuous daily candles. A symbol whose request fails
// is left out so the universe drops it.
func (k *Platform) PriceHistory(ctx context.Context, symbols []string, bars int) (map[string][]types.Bar, error) {
	if err := k.instruments(ctx); err != nil {
		return nil, err
	}
	to := k.clock()
	// weekends and exchange holidays
	from := to.AddDate(0, 0, -(bars*2 + 10))

	out := make(map[string][]types.Bar, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := k.instr.get(sym)
		if err != nil {
			continue
		}
		candles, err := k.kc.GetHistoricalData(in.token, "day", from, to, true, false)
		if err != nil {
			logger.Warn(ctx, "Historical data unavailable", "symbol", sym, "token", in.token, "error", err)
			continue
		}
		out[sym] = toBars(candles, bars)
	}
	return out, nil
}

func toBars(candles []kiteconnect.HistoricalData, bars int) []types.Bar {
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Date.Time.Before(candles[j].Date.Time) })
	if len(candles) > bars {
		candles = candles[len(candles)-bars:]
	}
	out := make([]types.Bar, len(candles))
	for i, c := range candles {
		out[i] = types.Bar{High: c.High, Low: c.Low, Close: c.Close}
	}
	return out
}

func (k *Platform) CurrentPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if err := k.instruments(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(symbols))
	rootByKey := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		in, err := k.instr.get(sym)
		if err != nil {
			continue
		}
		key := k.p.Exchange + ":" + in.tradingsymbol
		keys = append(keys, key)
		rootByKey[key] = sym
	}
	out := make(map[string]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ltp, err := k.kc.GetLTP(keys...)
	if err != nil {
		return nil, fmt.Errorf("ltp: %w", err)
	}
	for key, q := range ltp {
		if root, ok := rootByKey[key]; ok && q.LastPrice > 0 {
			out[root] = q.LastPrice
		}
	}
	return out, nil
}

func (k *Platform) SubmitOrder(ctx context.Context, req types.OrderReq) (string, error) {
	if err := k.instruments(ctx); err != nil {
		return "", err
	}
	in, err := k.instr.get(req.Contract.Symbol)
	if err != nil {
		return "", err
	}
	params, err := k.orderParams(in, req)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	return resp.OrderID, nil
}

func (k *Platform) orderParams(in instrument, req types.OrderReq) (kiteconnect.OrderParams, error) {
	if req.Qty == 0 {
		return kiteconnect.OrderParams{}, errors.New("order quantity is zero")
	}
	qty := req.Qty
	side := kiteconnect.TransactionTypeBuy
	if qty < 0 {
		qty = -qty
		side = kiteconnect.TransactionTypeSell
	}
	if !k.p.QuantityInLots {
		qty *= int(math.Max(in.lotSize, 1))
	}

	params := kiteconnect.OrderParams{
		Exchange:        k.p.Exchange,
		Tradingsymbol:   in.tradingsymbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         k.p.Product,
		TransactionType: side,
		Quantity:        qty,
		Tag:             req.Tag,
	}
	switch req.Style.Kind {
	case types.OrderStop:
		params.OrderType = kiteconnect.OrderTypeSLM
		params.TriggerPrice = req.Style.Price
	default:
		params.OrderType = kiteconnect.OrderTypeLimit
		params.Price = req.Style.Price
	}
	return params, nil
}

func (k *Platform) OpenOrders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders, err := k.kc.GetOrders()
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	var ids []string
	for _, o := range orders {
		if mapStatus(o.Status) == types.OrderPending {
			ids = append(ids, o.OrderID)
		}
	}
	return ids, nil
}

// OrderStatus reads the last state in the order's history.
func (k *Platform) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return types.OrderPending, err
	}
	hist, err := k.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.OrderPending, fmt.Errorf("order history %s: %w", orderID, err)
	}
	if len(hist) == 0 {
		return types.OrderPending, fmt.Errorf("order %s has no history", orderID)
	}
	return mapStatus(hist[len(hist)-1].Status), nil
}

func mapStatus(s string) types.OrderStatus {
	switch s {
	case statusComplete:
		return types.OrderFilled
	case statusCancelled:
		return types.OrderCanceled
	case statusRejected:
		return types.OrderRejected
	default:
		return types.OrderPending
	}
}

// Portfolio reports net positions in the configured product. Account value is
// the net margin of the exchange segment; starting cash defaults to the first
// value observed.
func (k *Platform) Portfolio(ctx context.Context) (types.Portfolio, error) {
	if err := k.instruments(ctx); err != nil {
		return types.Portfolio{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Portfolio{}, err
	}
	margins, err := k.kc.GetUserMargins()
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("margins: %w", err)
	}
	seg := margins.Equity
	if k.p.Exchange == segmentCommodity {
		seg = margins.Commodity
	}

	positions, err := k.kc.GetPositions()
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("positions: %w", err)
	}

	k.mu.Lock()
	if k.startingCash <= 0 {
		k.startingCash = seg.Net
	}
	start := k.startingCash
	k.mu.Unlock()

	pf := types.Portfolio{StartingCash: start, Value: seg.Net, Cash: seg.Available.Cash}
	for _, p := range positions.Net {
		if p.Exchange != k.p.Exchange || p.Product != k.p.Product || p.Quantity == 0 {
			continue
		}
		root, ok := k.instr.rootOf(p.Tradingsymbol)
		if !ok {
			continue
		}
		qty := p.Quantity
		if !k.p.QuantityInLots {
			if in, err := k.instr.get(root); err == nil && in.lotSize > 1 {
				qty = int(float64(qty) / in.lotSize)
			}
		}
		pf.Positions = append(pf.Positions, types.Position{Symbol: root, Qty: qty, CostBasis: p.AveragePrice})
	}
	return pf, nil
}
