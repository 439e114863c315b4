package paper

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrUnknownOrder  = errors.New("unknown order")
	ErrInvalidOrder  = errors.New("invalid order")
)

// origin is the first simulated trading day.
var origin = date(2023, time.January, 2)

type Params struct {
	StartingCash float64
	Seed         int64
	Location     *time.Location
	// HistoryCap limits the bars available per symbol, simulating new listings.
	HistoryCap map[string]int
	Clock      func() time.Time
}

type dailyBar struct {
	day                    time.Time
	open, high, low, close float64
}

type series struct {
	rng  *rand.Rand
	bars []dailyBar
	last float64
}

type order struct {
	id     string
	symbol string
	qty    int
	kind   types.OrderKind
	price  float64
	day    time.Time
	status types.OrderStatus
}

type position struct {
	qty  int
	cost float64
}

// Platform is a deterministic in-process market. Daily bars follow a seeded
// random walk; orders are DAY orders settled against the bar of the day they
// were placed once that day is over.
type Platform struct {
	p Params

	mu        sync.Mutex
	series    map[string]*series
	orders    map[string]*order
	sequence  []string
	positions map[string]*position
	realized  float64
}

var _ interfaces.Platform = (*Platform)(nil)

func New(p Params) *Platform {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	return &Platform{
		p:         p,
		series:    map[string]*series{},
		orders:    map[string]*order{},
		positions: map[string]*position{},
	}
}

// today is the current calendar day in the exchange timezone, as a UTC date.
func (pl *Platform) today() time.Time {
	t := pl.p.Clock().In(pl.p.Location)
	return date(t.Year(), t.Month(), t.Day())
}

func isTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (pl *Platform) ActiveContract(_ context.Context, symbol string) (types.Market, error) {
	spec, ok := specs[symbol]
	if !ok {
		return types.Market{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return types.Market{Symbol: symbol, EndDate: spec.endDate, TickSize: spec.tick, Multiplier: spec.multiplier}, nil
}

func (pl *Platform) CurrentContracts(_ context.Context, symbols []string) (map[string]types.Contract, error) {
	today := pl.today()
	out := make(map[string]types.Contract, len(symbols))
	for _, sym := range symbols {
		spec, ok := specs[sym]
		if !ok || pl.delisted(spec, today) {
			continue
		}
		out[sym] = types.Contract{Symbol: sym, ID: frontMonth(sym, today), TickSize: spec.tick, Multiplier: spec.multiplier}
	}
	return out, nil
}

func (pl *Platform) delisted(spec contractSpec, day time.Time) bool {
	return !spec.endDate.IsZero() && spec.endDate.Before(day)
}

// PriceHistory returns up to bars bars per symbol ending with today's bar.
// Today's bar is partial: only the open is known, so high, low and close equal it.
func (pl *Platform) PriceHistory(_ context.Context, symbols []string, bars int) (map[string][]types.Bar, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	today := pl.today()
	out := make(map[string][]types.Bar, len(symbols))
	for _, sym := range symbols {
		spec, ok := specs[sym]
		if !ok || pl.delisted(spec, today) {
			continue
		}
		s := pl.extend(sym, spec, today)
		if len(s.bars) == 0 {
			continue
		}

		n := bars
		if limit, ok := pl.p.HistoryCap[sym]; ok && limit < n {
			n = limit
		}
		if n > len(s.bars) {
			n = len(s.bars)
		}
		if n <= 0 {
			continue
		}

		window := s.bars[len(s.bars)-n:]
		res := make([]types.Bar, len(window))
		for i, b := range window {
			if b.day.Equal(today) {
				res[i] = types.Bar{High: b.open, Low: b.open, Close: b.open}
				continue
			}
			res[i] = types.Bar{High: b.high, Low: b.low, Close: b.close}
		}
		out[sym] = res
	}
	return out, nil
}

// CurrentPrices quotes today's open, or the last close on non-trading days.
func (pl *Platform) CurrentPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	today := pl.today()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if px, ok := pl.quote(sym, today); ok {
			out[sym] = px
		}
	}
	return out, nil
}

func (pl *Platform) quote(sym string, today time.Time) (float64, bool) {
	spec, ok := specs[sym]
	if !ok || pl.delisted(spec, today) {
		return 0, false
	}
	s := pl.extend(sym, spec, today)
	if len(s.bars) == 0 {
		return 0, false
	}
	last := s.bars[len(s.bars)-1]
	if last.day.Equal(today) {
		return last.open, true
	}
	return last.close, true
}

func (pl *Platform) SubmitOrder(ctx context.Context, req types.OrderReq) (string, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	sym := req.Contract.Symbol
	spec, ok := specs[sym]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	if req.Qty == 0 || req.Style.Price <= 0 || math.IsNaN(req.Style.Price) {
		return "", fmt.Errorf("%w: qty %d price %v", ErrInvalidOrder, req.Qty, req.Style.Price)
	}

	today := pl.today()
	o := &order{
		id:     uuid.NewString(),
		symbol: sym,
		qty:    req.Qty,
		kind:   req.Style.Kind,
		price:  req.Style.Price,
		day:    today,
		status: types.OrderPending,
	}
	switch {
	case pl.delisted(spec, today):
		o.status = types.OrderRejected
	case o.kind == types.OrderStop && !pl.reduces(sym, o.qty):
		o.status = types.OrderRejected
	}

	pl.orders[o.id] = o
	pl.sequence = append(pl.sequence, o.id)
	logger.Debug(ctx, "Paper order accepted",
		"order_id", o.id, "symbol", sym, "qty", o.qty, "kind", o.kind.String(), "price", o.price, "status", o.status.String())
	return o.id, nil
}

func (pl *Platform) reduces(sym string, qty int) bool {
	pos := pl.positions[sym]
	return pos != nil && pos.qty != 0 && (pos.qty > 0) != (qty > 0)
}

func (pl *Platform) OpenOrders(context.Context) ([]string, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.settle()
	var ids []string
	for _, id := range pl.sequence {
		if pl.orders[id].status == types.OrderPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (pl *Platform) OrderStatus(_ context.Context, orderID string) (types.OrderStatus, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.settle()
	o, ok := pl.orders[orderID]
	if !ok {
		return types.OrderPending, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return o.status, nil
}

// Portfolio marks open positions to the current quote.
func (pl *Platform) Portfolio(context.Context) (types.Portfolio, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.settle()
	today := pl.today()

	cash := pl.p.StartingCash + pl.realized
	value := cash
	syms := make([]string, 0, len(pl.positions))
	for sym, pos := range pl.positions {
		if pos.qty != 0 {
			syms = append(syms, sym)
		}
	}
	sort.Strings(syms)

	positions := make([]types.Position, 0, len(syms))
	for _, sym := range syms {
		pos := pl.positions[sym]
		positions = append(positions, types.Position{Symbol: sym, Qty: pos.qty, CostBasis: pos.cost})
		if px, ok := pl.quote(sym, today); ok {
			value += (px - pos.cost) * float64(pos.qty) * specs[sym].multiplier
		}
	}
	return types.Portfolio{StartingCash: pl.p.StartingCash, Value: value, Cash: cash, Positions: positions}, nil
}

// settle resolves pending orders whose trading day has closed, in submission order.
func (pl *Platform) settle() {
	today := pl.today()
	for _, id := range pl.sequence {
		o := pl.orders[id]
		if o.status != types.OrderPending || !o.day.Before(today) {
			continue
		}
		bar, ok := pl.barOn(o.symbol, o.day)
		if !ok {
			o.status = types.OrderCanceled
			continue
		}
		px, hit := fillPrice(o, bar)
		if !hit {
			o.status = types.OrderCanceled
			continue
		}
		qty := o.qty
		if o.kind == types.OrderStop {
			qty = pl.clampReduce(o.symbol, qty)
			if qty == 0 {
				o.status = types.OrderCanceled
				continue
			}
		}
		pl.fill(o.symbol, qty, roundTo(px, specs[o.symbol].tick))
		o.status = types.OrderFilled
	}
}

// fillPrice evaluates an order against its day's bar. Gaps through the order
// price fill at the open.
func fillPrice(o *order, b dailyBar) (float64, bool) {
	buy := o.qty > 0
	switch {
	case o.kind == types.OrderLimit && buy:
		return math.Min(o.price, b.open), b.low <= o.price
	case o.kind == types.OrderLimit:
		return math.Max(o.price, b.open), b.high >= o.price
	case buy:
		return math.Max(o.price, b.open), b.high >= o.price
	default:
		return math.Min(o.price, b.open), b.low <= o.price
	}
}

func (pl *Platform) clampReduce(sym string, qty int) int {
	pos := pl.positions[sym]
	if pos == nil || pos.qty == 0 || (pos.qty > 0) == (qty > 0) {
		return 0
	}
	if abs(qty) > abs(pos.qty) {
		return -pos.qty
	}
	return qty
}

func (pl *Platform) fill(sym string, qty int, px float64) {
	pos := pl.positions[sym]
	if pos == nil {
		pos = &position{}
		pl.positions[sym] = pos
	}
	mult := specs[sym].multiplier

	switch {
	case pos.qty == 0 || (pos.qty > 0) == (qty > 0):
		total := pos.cost*float64(abs(pos.qty)) + px*float64(abs(qty))
		pos.qty += qty
		pos.cost = total / float64(abs(pos.qty))
	default:
		closed := qty
		if abs(qty) > abs(pos.qty) {
			closed = -pos.qty
		}
		pl.realized += (px - pos.cost) * float64(-closed) * mult
		pos.qty += qty
		if pos.qty == 0 {
			pos.cost = 0
		} else if abs(qty) > abs(closed) {
			pos.cost = px
		}
	}
}

func (pl *Platform) barOn(sym string, day time.Time) (dailyBar, bool) {
	spec := specs[sym]
	s := pl.extend(sym, spec, day)
	for i := len(s.bars) - 1; i >= 0; i-- {
		if s.bars[i].day.Equal(day) {
			return s.bars[i], true
		}
		if s.bars[i].day.Before(day) {
			break
		}
	}
	return dailyBar{}, false
}

// extend generates bars up to and including through. The walk for a symbol is
// always drawn in the same order, so results do not depend on query order.
func (pl *Platform) extend(sym string, spec contractSpec, through time.Time) *series {
	s, ok := pl.series[sym]
	if !ok {
		h := fnv.New64a()
		_, _ = h.Write([]byte(sym))
		s = &series{rng: rand.New(rand.NewSource(pl.p.Seed ^ int64(h.Sum64()))), last: spec.start}
		pl.series[sym] = s
	}

	next := origin
	if n := len(s.bars); n > 0 {
		next = s.bars[n-1].day.AddDate(0, 0, 1)
	}
	end := through
	if !spec.endDate.IsZero() && spec.endDate.Before(end) {
		end = spec.endDate
	}
	for d := next; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !isTradingDay(d) {
			continue
		}
		s.bars = append(s.bars, s.step(d, spec))
	}
	return s
}

func (s *series) step(d time.Time, spec contractSpec) dailyBar {
	open := s.last * math.Exp(spec.vol*0.25*s.rng.NormFloat64())
	cl := open * math.Exp(spec.vol*s.rng.NormFloat64())
	hi := math.Max(open, cl) * (1 + spec.vol*0.5*math.Abs(s.rng.NormFloat64()))
	lo := math.Min(open, cl) * (1 - spec.vol*0.5*math.Abs(s.rng.NormFloat64()))

	b := dailyBar{
		day:   d,
		open:  roundTo(open, spec.tick),
		high:  roundTo(hi, spec.tick),
		low:   roundTo(lo, spec.tick),
		close: roundTo(cl, spec.tick),
	}
	b.high = math.Max(b.high, math.Max(b.open, b.close))
	b.low = math.Min(b.low, math.Min(b.open, b.close))
	s.last = cl
	return b
}

func roundTo(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
