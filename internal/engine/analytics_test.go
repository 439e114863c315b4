package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle-trader/internal/types"
)

func TestEstimateVolatility(t *testing.T) {
	vol, err := estimateVolatility(window(rangeBars(57)), 20, 250)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, vol.ATR, 1e-9)
	assert.InDelta(t, 500.0, vol.DollarVol, 1e-9)
}

func TestEstimateVolatilityRejectsFlatPrices(t *testing.T) {
	flat := make([]types.Bar, 57)
	for i := range flat {
		flat[i] = types.Bar{High: 10, Low: 10, Close: 10}
	}
	_, err := estimateVolatility(window(flat), 20, 250)
	assert.ErrorIs(t, err, ErrNonPositiveVolatility)
	assert.ErrorIs(t, err, ErrDataQuality)
}

func TestEstimateVolatilityRejectsBadMultiplier(t *testing.T) {
	_, err := estimateVolatility(window(rangeBars(57)), 20, 0)
	assert.ErrorIs(t, err, ErrDataQuality)
}

func TestEstimateVolatilityShortWindow(t *testing.T) {
	_, err := estimateVolatility(window(rangeBars(20)), 20, 250)
	assert.ErrorIs(t, err, ErrShortWindow)
}

func TestATRPositiveForMovingPrices(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bars := make([]types.Bar, 57)
	c := 100.0
	for i := range bars {
		c += rng.NormFloat64()
		bars[i] = types.Bar{High: c + rng.Float64() + 0.01, Low: c - rng.Float64() - 0.01, Close: c}
	}
	vol, err := estimateVolatility(window(bars), 20, 1)
	require.NoError(t, err)
	assert.Greater(t, vol.ATR, 0.0)
}

// scenarioABars ends with highs 30, 31, 32 before today's bar.
func scenarioABars() []types.Bar {
	bars := make([]types.Bar, 57)
	for i := range bars {
		bars[i] = types.Bar{High: 10, Low: 8, Close: 9}
	}
	bars[53] = types.Bar{High: 30, Low: 28, Close: 29}
	bars[54] = types.Bar{High: 31, Low: 29, Close: 30}
	bars[55] = types.Bar{High: 32, Low: 30, Close: 31}
	bars[56] = types.Bar{High: 33, Low: 33, Close: 33}
	return bars
}

func TestBreakoutScenarioA(t *testing.T) {
	lv, err := computeLevels(window(scenarioABars()), 20, 55)
	require.NoError(t, err)

	assert.True(t, lv.Ready)
	assert.Equal(t, 32.0, lv.ShortHigh)
	assert.Equal(t, 32.0, lv.LongHigh)
	assert.Equal(t, 8.0, lv.ShortLow)
	assert.Equal(t, types.SignalLong, detect(33, lv))
	assert.Equal(t, types.SignalNone, detect(32, lv), "touching the high is not a breakout")
}

func TestBreakoutExcludesCurrentBar(t *testing.T) {
	bars := rangeBars(57)
	bars[56] = types.Bar{High: 500, Low: 1, Close: 250}

	lv, err := computeLevels(window(bars), 20, 55)
	require.NoError(t, err)
	assert.Equal(t, 101.0, lv.ShortHigh)
	assert.Equal(t, 99.0, lv.LongLow)
}

func TestBreakoutShortSignal(t *testing.T) {
	lv, err := computeLevels(window(rangeBars(57)), 20, 55)
	require.NoError(t, err)
	assert.Equal(t, types.SignalShort, detect(98.5, lv))
	assert.Equal(t, types.SignalNone, detect(100, lv))
}

func TestBreakoutLongTakesPrecedence(t *testing.T) {
	lv := types.BreakoutLevels{ShortHigh: 10, ShortLow: 12, LongHigh: 15, LongLow: 14, Ready: true}
	assert.Equal(t, types.SignalLong, detect(11, lv))
}

func TestBreakoutShortWindowNoSignal(t *testing.T) {
	lv, err := computeLevels(window(rangeBars(55)), 20, 55)
	assert.True(t, errors.Is(err, ErrShortWindow))
	assert.False(t, lv.Ready)
	assert.Equal(t, types.SignalNone, detect(1e9, lv))
}

func TestBreakoutIdempotent(t *testing.T) {
	w := window(scenarioABars())
	first, err := computeLevels(w, 20, 55)
	require.NoError(t, err)
	second, err := computeLevels(w, 20, 55)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBreakoutHighNotBelowLow(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		bars := make([]types.Bar, 57)
		c := 50 + rng.Float64()*50
		for i := range bars {
			c = math.Max(1, c+rng.NormFloat64()*2)
			bars[i] = types.Bar{High: c + rng.Float64(), Low: c - rng.Float64(), Close: c}
		}
		lv, err := computeLevels(window(bars), 20, 55)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, lv.ShortHigh, lv.ShortLow)
		assert.GreaterOrEqual(t, lv.LongHigh, lv.LongLow)
	}
}

func TestRiskCapitalScenarioC(t *testing.T) {
	capital := riskCapital(types.Portfolio{StartingCash: 100000, Value: 90000}, 2)
	assert.InDelta(t, 80000.0, capital, 1e-6)
}

func TestRiskCapitalIgnoresProfit(t *testing.T) {
	capital := riskCapital(types.Portfolio{StartingCash: 100000, Value: 130000}, 2)
	assert.InDelta(t, 100000.0, capital, 1e-6)
}

func TestSizeScenarioB(t *testing.T) {
	s := newPositionSizer(0.01)
	n, err := s.size(100000, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSizeHalvesWhenVolatilityDoubles(t *testing.T) {
	s := newPositionSizer(0.01)
	for _, dv := range []float64{37.5, 125, 250, 333.33, 777, 1234.5} {
		base, err := s.size(100000, dv)
		require.NoError(t, err)
		doubled, err := s.size(100000, 2*dv)
		require.NoError(t, err)
		assert.Equal(t, base/2, doubled, "dollar volatility %v", dv)
	}
}

func TestSizeCapitalExhaustedFreezesEveryMarket(t *testing.T) {
	s := newPositionSizer(0.01)
	capital := riskCapital(types.Portfolio{StartingCash: 100000, Value: 40000}, 2)
	require.LessOrEqual(t, capital, 0.0)

	for _, dv := range []float64{1, 500, 0, -3} {
		n, err := s.size(capital, dv)
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	}
}

func TestSizeRejectsNonPositiveVolatility(t *testing.T) {
	s := newPositionSizer(0.01)
	_, err := s.size(100000, 0)
	assert.ErrorIs(t, err, ErrNonPositiveVolatility)
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 48.00, roundToTick(48.004, 0.01), 1e-9)
	assert.InDelta(t, 1.25, roundToTick(1.2431, 0.25), 1e-9)
	assert.Equal(t, 3.3, roundToTick(3.3, 0))
}
