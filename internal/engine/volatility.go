package engine

import (
	"fmt"
	"math"

	"turtle-trader/internal/ta"
	"turtle-trader/internal/types"
)

// estimateVolatility computes ATR over the trailing period+1 bars and scales it
// by the contract multiplier into currency per contract.
func estimateVolatility(w types.PriceWindow, period int, multiplier float64) (types.VolatilityState, error) {
	if w.Len() < period+1 {
		return types.VolatilityState{}, fmt.Errorf("%w: %d bars for ATR(%d)", ErrShortWindow, w.Len(), period)
	}
	tail := w.Tail(period + 1)

	atr := ta.ATR(tail.Highs(), tail.Lows(), tail.Closes(), period)
	if math.IsNaN(atr) || atr <= 0 {
		return types.VolatilityState{ATR: atr}, fmt.Errorf("%w: atr %v", ErrNonPositiveVolatility, atr)
	}

	dv := atr * multiplier
	if math.IsNaN(dv) || math.IsInf(dv, 0) || dv <= 0 {
		return types.VolatilityState{ATR: atr, DollarVol: dv}, fmt.Errorf("%w: dollar volatility %v (multiplier %v)", ErrNonPositiveVolatility, dv, multiplier)
	}
	return types.VolatilityState{ATR: atr, DollarVol: dv}, nil
}
