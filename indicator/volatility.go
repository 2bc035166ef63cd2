// Package indicator implements the pure technical-analysis functions the
// signal, sizing and stop components read. Every function is a function of
// its input window only.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/evdnx/gopyra/types"
)

// Volatility is mean(high) - mean(low) over the last term candles of
// window, rounded half away from zero to precision decimal places. The
// sums are taken in decimal so the result does not depend on float
// accumulation order. It returns 0 when the window is shorter than term.
func Volatility(window []types.Candle, term int, precision int32) float64 {
	if term <= 0 || len(window) < term {
		return 0
	}
	highs, lows := decimal.Zero, decimal.Zero
	for _, c := range window[len(window)-term:] {
		highs = highs.Add(c.High)
		lows = lows.Add(c.Low)
	}
	v := highs.Sub(lows).Div(decimal.NewFromInt(int64(term))).Round(precision)
	return v.InexactFloat64()
}
