package indicator

import (
	"math"

	"github.com/evdnx/gopyra/types"
)

// Donchian returns the highest high of the last buyTerm candles and the
// lowest low of the last sellTerm candles. The window must not contain the
// candle being evaluated. ok is false when the window is too short.
func Donchian(window []types.Candle, buyTerm, sellTerm int) (highest, lowest float64, ok bool) {
	if buyTerm <= 0 || sellTerm <= 0 || len(window) < buyTerm || len(window) < sellTerm {
		return 0, 0, false
	}
	highest = math.Inf(-1)
	for _, c := range window[len(window)-buyTerm:] {
		highest = math.Max(highest, c.H())
	}
	lowest = math.Inf(1)
	for _, c := range window[len(window)-sellTerm:] {
		lowest = math.Min(lowest, c.L())
	}
	return highest, lowest, true
}

// Levels are classic floor-trader pivot levels.
type Levels struct {
	P, R1, R2, R3, S1, S2, S3 float64
}

// Pivot averages the per-candle pivot levels of the last term candles.
func Pivot(window []types.Candle, term int) (Levels, bool) {
	if term <= 0 || len(window) < term {
		return Levels{}, false
	}
	var sum Levels
	for _, c := range window[len(window)-term:] {
		h, l, cl := c.H(), c.L(), c.C()
		p := (h + l + cl) / 3
		sum.P += p
		sum.R1 += 2*p - l
		sum.S1 += 2*p - h
		sum.R2 += p + (h - l)
		sum.S2 += p - (h - l)
		sum.R3 += h + 2*(p-l)
		sum.S3 += l - 2*(h-p)
	}
	n := float64(term)
	return Levels{
		P:  sum.P / n,
		R1: sum.R1 / n,
		R2: sum.R2 / n,
		R3: sum.R3 / n,
		S1: sum.S1 / n,
		S2: sum.S2 / n,
		S3: sum.S3 / n,
	}, true
}
