package types

import (
	"math"
	"time"
)

// Market is a tradable futures root (continuous contract).
type Market struct {
	Symbol     string    `json:"symbol"`
	EndDate    time.Time `json:"end_date"`
	TickSize   float64   `json:"tick_size"`
	Multiplier float64   `json:"multiplier"`
}

// Contract is the currently tradable contract behind a market root.
type Contract struct {
	Symbol     string  `json:"symbol"`
	ID         string  `json:"id"`
	TickSize   float64 `json:"tick_size"`
	Multiplier float64 `json:"multiplier"`
}

// Drop records a market removed from the active universe for one cycle.
type Drop struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

type Bar struct {
	High, Low, Close float64
}

// Valid reports whether every field is finite and high >= low.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.High >= b.Low
}

// PriceWindow is the chronological daily bar window of one market, oldest first.
type PriceWindow struct {
	Symbol string
	Bars   []Bar
}

func (w PriceWindow) Len() int { return len(w.Bars) }

func (w PriceWindow) Highs() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.High
	}
	return out
}

func (w PriceWindow) Lows() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Low
	}
	return out
}

func (w PriceWindow) Closes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Close
	}
	return out
}

// Tail returns the last n bars as a new window. n larger than the window returns it whole.
func (w PriceWindow) Tail(n int) PriceWindow {
	if n >= len(w.Bars) {
		return w
	}
	return PriceWindow{Symbol: w.Symbol, Bars: w.Bars[len(w.Bars)-n:]}
}

type VolatilityState struct {
	ATR       float64 `json:"atr"`
	DollarVol float64 `json:"dollar_volatility"`
}

type BreakoutLevels struct {
	ShortPeriod int     `json:"short_period"`
	LongPeriod  int     `json:"long_period"`
	ShortHigh   float64 `json:"short_high"`
	ShortLow    float64 `json:"short_low"`
	LongHigh    float64 `json:"long_high"`
	LongLow     float64 `json:"long_low"`
	Ready       bool    `json:"ready"`
}

type Signal int

const (
	SignalNone Signal = iota
	SignalLong
	SignalShort
)

func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "LONG"
	case SignalShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Sign returns +1 for long, -1 for short and 0 otherwise.
func (s Signal) Sign() int {
	switch s {
	case SignalLong:
		return 1
	case SignalShort:
		return -1
	default:
		return 0
	}
}

type OrderKind int

const (
	OrderLimit OrderKind = iota
	OrderStop
)

func (k OrderKind) String() string {
	if k == OrderStop {
		return "STOP"
	}
	return "LIMIT"
}

type OrderStyle struct {
	Kind  OrderKind
	Price float64
}

func Limit(price float64) OrderStyle { return OrderStyle{Kind: OrderLimit, Price: price} }
func Stop(price float64) OrderStyle  { return OrderStyle{Kind: OrderStop, Price: price} }

// OrderReq is a command emitted to the host. Qty is signed: positive buys, negative sells.
type OrderReq struct {
	Contract Contract
	Qty      int
	Style    OrderStyle
	Tag      string
}

type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderFilled
	OrderCanceled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderFilled:
		return "FILLED"
	case OrderCanceled:
		return "CANCELED"
	case OrderRejected:
		return "REJECTED"
	default:
		return "PENDING"
	}
}

// Terminal reports whether no further status change is expected.
func (s OrderStatus) Terminal() bool { return s != OrderPending }

// Position is owned by the host portfolio; the engine only reads it.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       int     `json:"qty"`
	CostBasis float64 `json:"cost_basis"`
}

type Portfolio struct {
	StartingCash float64    `json:"starting_cash"`
	Value        float64    `json:"value"`
	Cash         float64    `json:"cash"`
	Positions    []Position `json:"positions"`
}

// StopState tracks the protective stop of one market.
type StopState struct {
	Price   float64 `json:"price"`
	Active  bool    `json:"active"`
	OrderID string  `json:"order_id,omitempty"`
}

// RiskCounters count confirmed entry fills. They only grow within a session.
type RiskCounters struct {
	Market      map[string]int `json:"market"`
	MarketLong  map[string]int `json:"market_long"`
	MarketShort map[string]int `json:"market_short"`
	Long        int            `json:"long"`
	Short       int            `json:"short"`
}

func NewRiskCounters() RiskCounters {
	return RiskCounters{
		Market:      map[string]int{},
		MarketLong:  map[string]int{},
		MarketShort: map[string]int{},
	}
}

type PendingOrder struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Direction Signal      `json:"direction"`
	Status    OrderStatus `json:"status"`
}

// OrderOutcome is a terminal status observed during reconciliation.
type OrderOutcome struct {
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Direction Signal      `json:"direction"`
	Status    OrderStatus `json:"status"`
}

// EngineSnapshot is the persisted engine state between restarts.
type EngineSnapshot struct {
	SavedAt      time.Time            `json:"saved_at"`
	LastResetDay string               `json:"last_reset_day"`
	Stops        map[string]StopState `json:"stops"`
	Pending      []PendingOrder       `json:"pending"`
	Counters     RiskCounters         `json:"counters"`
}

type SignalEvent struct {
	Symbol    string         `json:"symbol"`
	Signal    Signal         `json:"signal"`
	Price     float64        `json:"price"`
	ATR       float64        `json:"atr"`
	DollarVol float64        `json:"dollar_volatility"`
	Levels    BreakoutLevels `json:"levels"`
	Size      int            `json:"size"`
	Decision  string         `json:"decision"`
}

type PlacedOrder struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Contract string  `json:"contract"`
	Kind     string  `json:"kind"`
	Qty      int     `json:"qty"`
	Price    float64 `json:"price"`
	Tag      string  `json:"tag"`
}

// CycleResult summarises one trading cycle.
type CycleResult struct {
	ID          string         `json:"id"`
	AsOf        time.Time      `json:"as_of"`
	Day         string         `json:"day"`
	Markets     []string       `json:"markets"`
	Dropped     []Drop         `json:"dropped"`
	Signals     []SignalEvent  `json:"signals"`
	Orders      []PlacedOrder  `json:"orders"`
	Outcomes    []OrderOutcome `json:"outcomes"`
	RiskCapital float64        `json:"risk_capital"`
	StopsReset  bool           `json:"stops_reset"`
	Skipped     string         `json:"skipped,omitempty"`
}
