package indicator

import (
	"math"

	"github.com/evdnx/gopyra/types"
)

// PSARResult holds the Parabolic SAR series. Bull is NaN where the trend
// was bearish and Bear is NaN where it was bullish.
type PSARResult struct {
	PSAR []float64
	Bull []float64
	Bear []float64
	// AF and EP are the acceleration factor and extreme point after the
	// last candle.
	AF float64
	EP float64
}

// LastBull returns the final bullish SAR value, if the window ends in an uptrend.
func (r PSARResult) LastBull() (float64, bool) { return last(r.Bull) }

// LastBear returns the final bearish SAR value, if the window ends in a downtrend.
func (r PSARResult) LastBear() (float64, bool) { return last(r.Bear) }

func last(s []float64) (float64, bool) {
	if len(s) == 0 || math.IsNaN(s[len(s)-1]) {
		return 0, false
	}
	return s[len(s)-1], true
}

// PSAR runs the classic Parabolic SAR recurrence over window. The trend
// starts bullish; the acceleration factor starts at iaf, grows by iaf on
// every new extreme and is capped at maxaf.
func PSAR(window []types.Candle, iaf, maxaf float64) PSARResult {
	n := len(window)
	res := PSARResult{
		PSAR: make([]float64, n),
		Bull: make([]float64, n),
		Bear: make([]float64, n),
	}
	for i, c := range window {
		res.PSAR[i] = c.C()
		res.Bull[i] = math.NaN()
		res.Bear[i] = math.NaN()
	}
	res.AF = iaf
	if n < 3 {
		return res
	}

	bull := true
	af := iaf
	hp, lp := window[0].H(), window[0].L()
	psar := res.PSAR

	for i := 2; i < n; i++ {
		hi, lo := window[i].H(), window[i].L()
		if bull {
			psar[i] = psar[i-1] + af*(hp-psar[i-1])
		} else {
			psar[i] = psar[i-1] + af*(lp-psar[i-1])
		}

		reverse := false
		if bull && lo < psar[i] {
			bull, reverse = false, true
			psar[i] = hp
			lp = lo
			af = iaf
		} else if !bull && hi > psar[i] {
			bull, reverse = true, true
			psar[i] = lp
			hp = hi
			af = iaf
		}

		if !reverse {
			if bull {
				if hi > hp {
					hp = hi
					af = math.Min(af+iaf, maxaf)
				}
				psar[i] = math.Min(psar[i], math.Min(window[i-1].L(), window[i-2].L()))
			} else {
				if lo < lp {
					lp = lo
					af = math.Min(af+iaf, maxaf)
				}
				psar[i] = math.Max(psar[i], math.Max(window[i-1].H(), window[i-2].H()))
			}
		}

		if bull {
			res.Bull[i] = psar[i]
		} else {
			res.Bear[i] = psar[i]
		}
	}
	res.AF = af
	res.EP = lp
	if bull {
		res.EP = hp
	}
	return res
}
