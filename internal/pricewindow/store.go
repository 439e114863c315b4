package pricewindow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"turtle-trader/internal/logger"
	"turtle-trader/internal/types"
)

var (
	ErrMissingSeries = errors.New("no price history returned")
	ErrShortSeries   = errors.New("price history shorter than lookback")
	ErrInvalidBar    = errors.New("price history contains invalid bar")
)

// HistorySource supplies daily bars for a batch of symbols.
type HistorySource interface {
	PriceHistory(ctx context.Context, symbols []string, bars int) (map[string][]types.Bar, error)
}

// Store holds the current cycle's price windows. Every Load replaces the whole set.
type Store struct {
	src HistorySource

	mu      sync.RWMutex
	windows map[string]types.PriceWindow
}

func NewStore(src HistorySource) *Store {
	return &Store{src: src, windows: map[string]types.PriceWindow{}}
}

// Load fetches exactly bars daily bars for every market. Markets whose series is
// absent, short or malformed are returned in rejects and never enter the window set.
func (s *Store) Load(ctx context.Context, markets []types.Market, bars int) (map[string]types.PriceWindow, map[string]error, error) {
	if bars <= 0 {
		return nil, nil, fmt.Errorf("lookback must be positive, got %d", bars)
	}

	symbols := make([]string, len(markets))
	for i, m := range markets {
		symbols[i] = m.Symbol
	}

	windows := make(map[string]types.PriceWindow, len(markets))
	rejects := map[string]error{}

	if len(symbols) > 0 {
		history, err := s.src.PriceHistory(ctx, symbols, bars)
		if err != nil {
			return nil, nil, fmt.Errorf("price history: %w", err)
		}

		for _, sym := range symbols {
			w, err := buildWindow(sym, history[sym], bars)
			if err != nil {
				rejects[sym] = err
				logger.Debug(ctx, "Price window rejected", "symbol", sym, "error", err)
				continue
			}
			windows[sym] = w
		}
	}

	s.mu.Lock()
	s.windows = windows
	s.mu.Unlock()

	return windows, rejects, nil
}

// Window returns the window loaded by the most recent Load, or ErrMissingSeries
// when that load did not produce one for symbol.
func (s *Store) Window(symbol string) (types.PriceWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[symbol]
	if !ok {
		return types.PriceWindow{}, fmt.Errorf("%s: %w", symbol, ErrMissingSeries)
	}
	return w, nil
}

func buildWindow(symbol string, series []types.Bar, bars int) (types.PriceWindow, error) {
	if len(series) == 0 {
		return types.PriceWindow{}, ErrMissingSeries
	}
	if len(series) < bars {
		return types.PriceWindow{}, fmt.Errorf("%w: %d bars, need %d", ErrShortSeries, len(series), bars)
	}
	series = series[len(series)-bars:]
	for i, b := range series {
		if !b.Valid() {
			return types.PriceWindow{}, fmt.Errorf("%w at index %d", ErrInvalidBar, i)
		}
	}

	out := make([]types.Bar, bars)
	copy(out, series)
	return types.PriceWindow{Symbol: symbol, Bars: out}, nil
}
