package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/gopyra/types"
)

func mk(high, low, close float64) types.Candle {
	return types.NewCandle(time.Time{}, close, high, low, close, 1)
}

func TestVolatilityExample(t *testing.T) {
	// highs sum to 500, lows sum to 300 over five candles
	w := []types.Candle{
		mk(1000, 1, 50), // outside the window
		mk(100, 60, 80), mk(90, 50, 70), mk(110, 70, 90), mk(100, 60, 80), mk(100, 60, 80),
	}
	if got := Volatility(w, 5, 0); got != 40 {
		t.Fatalf("expected volatility 40, got %v", got)
	}
	if got := Volatility(w[:3], 5, 0); got != 0 {
		t.Fatalf("short window should yield 0, got %v", got)
	}
}

func TestVolatilityRoundsToPrecision(t *testing.T) {
	w := []types.Candle{mk(10.25, 10, 10), mk(10.5, 10, 10), mk(10.3, 10, 10)}
	// (31.05 - 30) / 3 = 0.35
	if got := Volatility(w, 3, 1); got != 0.4 {
		t.Fatalf("expected 0.4 after half-up rounding, got %v", got)
	}
	if got := Volatility(w, 3, 2); got != 0.35 {
		t.Fatalf("expected 0.35, got %v", got)
	}
}

func TestDonchianExtremes(t *testing.T) {
	w := []types.Candle{mk(50, 1, 10), mk(10, 8, 9), mk(12, 9, 11), mk(11, 7, 10)}
	hi, lo, ok := Donchian(w, 3, 2)
	if !ok || hi != 12 || lo != 7 {
		t.Fatalf("unexpected donchian: hi=%v lo=%v ok=%v", hi, lo, ok)
	}
	if _, _, ok := Donchian(w, 5, 2); ok {
		t.Fatalf("expected !ok for short window")
	}
}

func TestPivotLevels(t *testing.T) {
	w := []types.Candle{mk(110, 90, 100)}
	lv, ok := Pivot(w, 1)
	if !ok {
		t.Fatalf("expected pivot")
	}
	want := Levels{P: 100, R1: 110, S1: 90, R2: 120, S2: 80, R3: 130, S3: 70}
	if lv != want {
		t.Fatalf("expected %+v, got %+v", want, lv)
	}

	w = append(w, mk(130, 110, 120))
	lv, _ = Pivot(w, 2)
	if lv.P != 110 || lv.S2 != 90 {
		t.Fatalf("averaged pivot wrong: %+v", lv)
	}
}

func TestSMAAndSMAWithCurrent(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if v, ok := SMA(vals, 5); !ok || v != 3 {
		t.Fatalf("expected 3, got %v", v)
	}
	if v, ok := SMAWithCurrent(vals, 3, 6); !ok || v != 5 {
		t.Fatalf("expected (4+5+6)/3 = 5, got %v", v)
	}
	if _, ok := SMA(vals, 6); ok {
		t.Fatalf("expected !ok for short input")
	}
}

func TestEMASeedAndConvergence(t *testing.T) {
	s := EMASeries([]float64{2, 4, 6}, 5)
	if s[0] != 2 || s[1] != 3 || s[2] != 4 {
		t.Fatalf("seed should be running average, got %v", s)
	}

	constant := make([]float64, 60)
	for i := range constant {
		constant[i] = 7.5
	}
	if v, _ := EMA(constant, 10); math.Abs(v-7.5) > 1e-12 {
		t.Fatalf("EMA of constant series should be 7.5, got %v", v)
	}

	// start away from v and converge to it
	series := append([]float64{100, 0, 50}, constant...)
	if v, _ := EMA(series, 5); math.Abs(v-7.5) > 1e-6 {
		t.Fatalf("EMA did not converge: %v", v)
	}
}

func TestPVO(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100, 100}
	if v, ok := PVO(flat, 2, 4); !ok || v != 0 {
		t.Fatalf("flat volume should give PVO 0, got %v", v)
	}
	rising := []float64{100, 100, 100, 100, 400, 800}
	if v, ok := PVO(rising, 2, 4); !ok || v <= 0 {
		t.Fatalf("rising volume should give positive PVO, got %v", v)
	}
	if _, ok := PVO([]float64{1, 2}, 2, 4); ok {
		t.Fatalf("expected !ok for short input")
	}
}

func TestVROCClamped(t *testing.T) {
	hist := []float64{10, 20, 30}
	if v, ok := VROC(hist, 3, 40); !ok || v != 100 {
		t.Fatalf("expected 100, got %v", v)
	}
	if v, _ := VROC(hist, 3, 1000); v != 500 {
		t.Fatalf("expected clamp to 500, got %v", v)
	}
}

func rampCandles() []types.Candle {
	var w []types.Candle
	for i := 0; i < 12; i++ {
		p := 100 + float64(i)*2
		w = append(w, mk(p+1, p-1, p))
	}
	for i := 0; i < 8; i++ {
		p := 122 - float64(i)*3
		w = append(w, mk(p+1, p-1, p))
	}
	return w
}

func TestPSARIsDeterministic(t *testing.T) {
	w := rampCandles()
	a := PSAR(w, 0.02, 0.2)
	b := PSAR(w, 0.02, 0.2)
	for i := range a.PSAR {
		if math.Float64bits(a.PSAR[i]) != math.Float64bits(b.PSAR[i]) ||
			math.Float64bits(a.Bull[i]) != math.Float64bits(b.Bull[i]) ||
			math.Float64bits(a.Bear[i]) != math.Float64bits(b.Bear[i]) {
			t.Fatalf("replay differs at %d", i)
		}
	}
}

func TestPSARTracksTrend(t *testing.T) {
	w := rampCandles()
	r := PSAR(w[:12], 0.02, 0.2)
	bull, ok := r.LastBull()
	if !ok {
		t.Fatalf("uptrend should end bullish")
	}
	if bull >= w[11].L() {
		t.Fatalf("bull SAR %v should sit below the last low %v", bull, w[11].L())
	}
	if _, ok := r.LastBear(); ok {
		t.Fatalf("bear series should be empty at the end of an uptrend")
	}

	r = PSAR(w, 0.02, 0.2)
	if _, ok := r.LastBear(); !ok {
		t.Fatalf("downtrend should flip the SAR bearish")
	}
}
