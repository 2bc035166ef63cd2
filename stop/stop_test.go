package stop

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/types"
)

func bar(high, low, close float64) types.Candle {
	return types.NewCandle(time.Time{}, close, high, low, close, 1)
}

func flatWindow(n int, price float64) []types.Candle {
	w := make([]types.Candle, n)
	for i := range w {
		w[i] = bar(price+1, price-1, price)
	}
	return w
}

func TestStopPrice(t *testing.T) {
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 10}
	if st.Price() != 90 {
		t.Fatalf("expected BUY stop 90, got %v", st.Price())
	}
	st.Side = types.Sell
	if st.Price() != 110 {
		t.Fatalf("expected SELL stop 110, got %v", st.Price())
	}
}

func TestFixedAFTrailerRecurrence(t *testing.T) {
	tr := FixedAFTrailer{Step: 0.15, Max: 0.2}
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 10, AF: 0.01}

	c, ok := tr.Candidate(st, Input{Current: bar(120, 110, 115)})
	if !ok {
		t.Fatalf("new extreme should produce a candidate")
	}
	if math.Abs(c.Offset-9.7) > 1e-9 || math.Abs(c.AF-0.16) > 1e-9 || c.EP != 20 {
		t.Fatalf("unexpected candidate %+v", c)
	}

	st.Offset, st.AF, st.EP = c.Offset, c.AF, c.EP
	if _, ok := tr.Candidate(st, Input{Current: bar(115, 105, 110)}); ok {
		t.Fatalf("no new extreme, no candidate expected")
	}

	c, _ = tr.Candidate(st, Input{Current: bar(130, 120, 125)})
	if c.AF != 0.2 {
		t.Fatalf("AF should cap at 0.2, got %v", c.AF)
	}
}

func TestFixedAFTrailerSellSide(t *testing.T) {
	tr := FixedAFTrailer{Step: 0.15, Max: 0.2}
	st := State{Side: types.Sell, AvgPrice: 100, Offset: 10, AF: 0.01}
	c, ok := tr.Candidate(st, Input{Current: bar(95, 80, 85)})
	if !ok || c.EP != 20 || math.Abs(c.Offset-9.7) > 1e-9 {
		t.Fatalf("unexpected sell candidate %+v ok=%v", c, ok)
	}
}

func TestEngineNeverWidens(t *testing.T) {
	e := Engine{Trailer: SMATrailer{Term: 3}, Tick: 1}
	// SMA at 50 is far below a BUY avg of 100: candidate 50 > current 10
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 10}
	up := e.Next(st, Input{Window: flatWindow(3, 50), Current: bar(101, 99, 100)})
	if up.Offset != 10 || up.Source != "" {
		t.Fatalf("offset must stay 10, got %+v", up)
	}
}

func TestEngineFloorsAtTick(t *testing.T) {
	e := Engine{Trailer: SMATrailer{Term: 3}, Tick: 1}
	// SMA above a BUY avg proposes a negative offset
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 10}
	up := e.Next(st, Input{Window: flatWindow(3, 120), Current: bar(121, 119, 120)})
	if up.Offset != 1 {
		t.Fatalf("expected offset floored at one tick, got %v", up.Offset)
	}

	// an offset already under one tick is never raised back up
	st.Offset = 0.5
	up = e.Next(st, Input{Window: flatWindow(3, 120), Current: bar(121, 119, 120)})
	if up.Offset != 0.5 {
		t.Fatalf("floor must not widen the stop, got %v", up.Offset)
	}
}

func TestSurgeRuleTightens(t *testing.T) {
	e := Engine{Surge: SurgeRule{Threshold: 0.1, Fraction: 0.02}, Tick: 0.01}
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 10}

	up := e.Next(st, Input{Current: bar(121, 119, 120)})
	if math.Abs(up.Offset-2.4) > 1e-9 || up.Source != "surge" {
		t.Fatalf("expected surge offset 2.4, got %+v", up)
	}
	up = e.Next(st, Input{Current: bar(106, 104, 105)})
	if up.Offset != 10 {
		t.Fatalf("5%% profit is under the threshold, got %+v", up)
	}
}

func TestPSARTrailerMatchesIndicator(t *testing.T) {
	var w []types.Candle
	for i := 0; i < 10; i++ {
		p := 100 + float64(i)*3
		w = append(w, bar(p+1, p-1, p))
	}
	cur := bar(132, 128, 130)
	tr := PSARTrailer{Term: 11, IAF: 0.02, MaxAF: 0.2}
	st := State{Side: types.Buy, AvgPrice: 110, Offset: 40}

	c, ok := tr.Candidate(st, Input{Window: w, Current: cur})
	if !ok {
		t.Fatalf("uptrend should give a bull candidate")
	}
	ref := indicator.PSAR(append(append([]types.Candle(nil), w...), cur), 0.02, 0.2)
	sar, _ := ref.LastBull()
	if c.Offset != 110-sar {
		t.Fatalf("expected offset %v, got %v", 110-sar, c.Offset)
	}
	if _, ok := tr.Candidate(State{Side: types.Sell, AvgPrice: 110, Offset: 40}, Input{Window: w, Current: cur}); ok {
		t.Fatalf("a SELL position has no bear SAR in an uptrend")
	}
}

func TestOffsetIsMonotonicOverAWalk(t *testing.T) {
	cfg := config.Default()
	cfg.Stop.PSARTerm = 8
	cfg.Stop.SurgeThreshold = 0.05
	cfg.Stop.SurgeFraction = 0.03
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	prices := []float64{100, 102, 101, 104, 108, 107, 111, 109, 115, 118, 114, 120, 119, 125, 122, 117, 121}
	var hist []types.Candle
	st := State{Side: types.Buy, AvgPrice: 100, Offset: 20, AF: cfg.Stop.AFInit}
	for _, p := range prices {
		cur := bar(p+1.5, p-1.5, p)
		up := e.Next(st, Input{Window: hist, Current: cur})
		if up.Offset > st.Offset {
			t.Fatalf("offset widened from %v to %v at price %v", st.Offset, up.Offset, p)
		}
		if up.Offset <= 0 {
			t.Fatalf("offset must stay positive, got %v", up.Offset)
		}
		st.Offset, st.AF, st.EP = up.Offset, up.AF, up.EP
		hist = append(hist, cur)
	}
}

func TestNewEngineModes(t *testing.T) {
	cfg := config.Default()
	for _, mode := range []string{config.StopPSAR, config.StopFixedAF, config.StopSMA} {
		cfg.Stop.Mode = mode
		e, err := NewEngine(cfg)
		if err != nil || e.Trailer.Name() != mode {
			t.Fatalf("mode %s: engine %+v err %v", mode, e, err)
		}
	}
	cfg.Stop.Mode = "atr"
	if _, err := NewEngine(cfg); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
