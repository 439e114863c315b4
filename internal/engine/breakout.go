package engine

import (
	"turtle-trader/internal/ta"
	"turtle-trader/internal/types"
)

// computeLevels returns the short and long channel extremes over the bars that
// precede the most recent one. It is a pure function of the window.
func computeLevels(w types.PriceWindow, short, long int) (types.BreakoutLevels, error) {
	lv := types.BreakoutLevels{ShortPeriod: short, LongPeriod: long}

	need := long
	if short > need {
		need = short
	}
	if short <= 0 || w.Len() < need+1 {
		return lv, ErrShortWindow
	}

	highs, lows := w.Highs(), w.Lows()
	lv.ShortHigh = ta.Highest(ta.Preceding(highs, short))
	lv.ShortLow = ta.Lowest(ta.Preceding(lows, short))
	lv.LongHigh = ta.Highest(ta.Preceding(highs, long))
	lv.LongLow = ta.Lowest(ta.Preceding(lows, long))
	lv.Ready = true
	return lv, nil
}

// detect evaluates the long side first so gapped data never yields a short.
func detect(price float64, lv types.BreakoutLevels) types.Signal {
	if !lv.Ready {
		return types.SignalNone
	}
	if price > lv.ShortHigh || price > lv.LongHigh {
		return types.SignalLong
	}
	if price < lv.ShortLow || price < lv.LongLow {
		return types.SignalShort
	}
	return types.SignalNone
}
