package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDataQuality marks a market excluded from this cycle for bad price data.
	ErrDataQuality = errors.New("data quality")

	ErrShortWindow           = fmt.Errorf("%w: window shorter than lookback", ErrDataQuality)
	ErrNonPositiveVolatility = fmt.Errorf("%w: non-positive volatility", ErrDataQuality)

	ErrCapitalExhausted = errors.New("risk capital exhausted")
	ErrOrderSubmission  = errors.New("order not accepted by platform")
	ErrNoMarketData     = errors.New("no market produced valid price data")
	ErrCycleInProgress  = errors.New("trading cycle already in progress")
)
