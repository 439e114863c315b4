package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"turtle-trader/internal/types"
)

// riskCapital is starting cash, reduced by lossMultiplier times any drawdown.
// Profits never increase it.
func riskCapital(p types.Portfolio, lossMultiplier float64) float64 {
	start := decimal.NewFromFloat(p.StartingCash)
	profit := decimal.NewFromFloat(p.Value).Sub(start)
	if profit.IsNegative() {
		return start.Add(profit.Mul(decimal.NewFromFloat(lossMultiplier))).InexactFloat64()
	}
	return start.InexactFloat64()
}

type positionSizer struct {
	riskFraction decimal.Decimal
}

func newPositionSizer(riskFraction float64) *positionSizer {
	return &positionSizer{riskFraction: decimal.NewFromFloat(riskFraction)}
}

// size returns whole contracts risking riskFraction of capital per unit of
// dollar volatility. Exhausted capital sizes every market to zero.
func (s *positionSizer) size(capital, dollarVol float64) (int, error) {
	c := decimal.NewFromFloat(capital)
	if c.Sign() <= 0 {
		return 0, nil
	}
	dv := decimal.NewFromFloat(dollarVol)
	if dv.Sign() <= 0 {
		return 0, fmt.Errorf("%w: dollar volatility %v", ErrNonPositiveVolatility, dollarVol)
	}

	n := c.Mul(s.riskFraction).Div(dv).Floor()
	if n.Sign() < 0 {
		return 0, nil
	}
	return int(n.IntPart()), nil
}
