package kite

import (
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

const instrumentTypeFuture = "FUT"

// instrument is the front-month future resolved for a root.
type instrument struct {
	root          string
	token         int
	tradingsymbol string
	expiry        time.Time
	tickSize      float64
	lotSize       float64
}

// instrumentMapper maps roots to their front-month future and tradingsymbols
// back to roots. It is rebuilt once per trading day.
type instrumentMapper struct {
	mu       sync.RWMutex
	day      string
	byRoot   map[string]instrument
	bySymbol map[string]string
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		byRoot:   make(map[string]instrument),
		bySymbol: make(map[string]string),
	}
}

func (im *instrumentMapper) stale(day string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.day != day
}

// load keeps, per root name, the future with the nearest expiry on or after today.
func (im *instrumentMapper) load(list kiteconnect.Instruments, today time.Time, day string) {
	byRoot := make(map[string]instrument)
	for _, in := range list {
		if in.InstrumentType != instrumentTypeFuture {
			continue
		}
		exp := in.Expiry.Time
		if exp.Before(today) {
			continue
		}
		cur, ok := byRoot[in.Name]
		if ok && !exp.Before(cur.expiry) {
			continue
		}
		byRoot[in.Name] = instrument{
			root:          in.Name,
			token:         in.InstrumentToken,
			tradingsymbol: in.Tradingsymbol,
			expiry:        exp,
			tickSize:      in.TickSize,
			lotSize:       in.LotSize,
		}
	}

	bySymbol := make(map[string]string)
	for _, in := range list {
		if in.InstrumentType == instrumentTypeFuture {
			bySymbol[in.Tradingsymbol] = in.Name
		}
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.byRoot = byRoot
	im.bySymbol = bySymbol
	im.day = day
}

func (im *instrumentMapper) get(root string) (instrument, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	in, ok := im.byRoot[root]
	if !ok {
		return instrument{}, fmt.Errorf("no active future for %s", root)
	}
	return in, nil
}

func (im *instrumentMapper) rootOf(tradingsymbol string) (string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	root, ok := im.bySymbol[tradingsymbol]
	return root, ok
}
