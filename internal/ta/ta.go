package ta

import "math"

// TrueRange is the widest of the bar range and the gaps from the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	tr = math.Max(tr, math.Abs(high-prevClose))
	return math.Max(tr, math.Abs(low-prevClose))
}

// ATR is Wilder's average true range. The first bar only supplies a previous close,
// so at least period+1 bars are needed. The first value is the mean of the first
// period true ranges; every later true range is folded in with factor 1/period.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += TrueRange(highs[i], lows[i], closes[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		tr := TrueRange(highs[i], lows[i], closes[i-1])
		atr += (tr - atr) / float64(period)
	}
	return atr
}

// Highest returns the maximum of vals, or NaN when empty.
func Highest(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	hi := vals[0]
	for _, v := range vals[1:] {
		if v > hi {
			hi = v
		}
	}
	return hi
}

// Lowest returns the minimum of vals, or NaN when empty.
func Lowest(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	lo := vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo
}

// Preceding returns the n values immediately before the last element of vals,
// i.e. vals[len-n-1 : len-1]. It returns nil when vals is too short.
func Preceding(vals []float64, n int) []float64 {
	if n <= 0 || len(vals) < n+1 {
		return nil
	}
	return vals[len(vals)-n-1 : len(vals)-1]
}
