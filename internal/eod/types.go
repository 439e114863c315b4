package eod

// tradeLine is one order line of the daily trade log.
type tradeLine struct {
	Time     string  `json:"time"`
	Symbol   string  `json:"symbol"`
	Contract string  `json:"contract"`
	Kind     string  `json:"kind"` // LIMIT or STOP
	Qty      int     `json:"qty"`  // signed
	Price    float64 `json:"price"`
	OrderID  string  `json:"order_id"`
	Tag      string  `json:"tag"` // ENTRY or STOP
}

// signalLine is one evaluated breakout of the daily signal log.
type signalLine struct {
	Symbol   string `json:"symbol"`
	Signal   string `json:"signal"`
	Decision string `json:"decision"`
}

// aggRow holds one market's activity for the day.
type aggRow struct {
	Symbol       string
	Contract     string
	LongSignals  int
	ShortSignals int
	Submitted    int
	Denied       int
	EntryOrders  int
	EntryQty     int     // net signed quantity of entry orders
	EntryValue   float64 // sum of |qty| * limit price
	StopOrders   int
	LastStop     float64
}

// SummaryStats are the headline counts of one written EOD summary.
type SummaryStats struct {
	Markets     int
	EntryOrders int
	StopOrders  int
}
