package indicator

import "math"

// SMA is the simple mean of the last term values.
func SMA(values []float64, term int) (float64, bool) {
	if term <= 0 || len(values) < term {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-term:] {
		sum += v
	}
	return sum / float64(term), true
}

// SMAWithCurrent averages the last term-1 history values together with the
// still-forming current value.
func SMAWithCurrent(history []float64, term int, current float64) (float64, bool) {
	if term <= 0 || len(history) < term-1 {
		return 0, false
	}
	sum := current
	for _, v := range history[len(history)-(term-1):] {
		sum += v
	}
	return sum / float64(term), true
}

// EMASeries returns the exponential moving average at every index. The
// first term points are the running simple average of the inputs so far;
// afterwards E(t) = E(t-1) + 2/(term+1) * (x(t) - E(t-1)).
func EMASeries(values []float64, term int) []float64 {
	if term <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	alpha := 2 / float64(term+1)
	sum := 0.0
	for i, v := range values {
		if i < term {
			sum += v
			out[i] = sum / float64(i+1)
			continue
		}
		out[i] = out[i-1] + alpha*(v-out[i-1])
	}
	return out
}

// EMA is the last point of EMASeries.
func EMA(values []float64, term int) (float64, bool) {
	if term <= 0 || len(values) == 0 {
		return 0, false
	}
	s := EMASeries(values, term)
	return s[len(s)-1], true
}

// PVO is the percentage volume oscillator:
// (EMA_short - EMA_long) / EMA_long * 100.
func PVO(volumes []float64, shortTerm, longTerm int) (float64, bool) {
	if len(volumes) < longTerm || len(volumes) < shortTerm {
		return 0, false
	}
	s, ok1 := EMA(volumes, shortTerm)
	l, ok2 := EMA(volumes, longTerm)
	if !ok1 || !ok2 || l == 0 {
		return 0, false
	}
	return (s - l) / l * 100, true
}

const (
	vrocCeil  = 500
	vrocFloor = -200
)

// VROC is the volume rate of change of current against the volume term-1
// bars back in history, in percent, clamped to [-200, 500].
func VROC(history []float64, term int, current float64) (float64, bool) {
	if term < 2 || len(history) < term-1 {
		return 0, false
	}
	prev := history[len(history)-(term-1)]
	if prev == 0 {
		return 0, false
	}
	v := (current - prev) * 100 / prev
	v = math.Round(v*100) / 100
	return math.Max(vrocFloor, math.Min(vrocCeil, v)), true
}
