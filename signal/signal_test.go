package signal

import (
	"testing"
	"time"

	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/types"
)

func bar(high, low, close, volume float64) types.Candle {
	return types.NewCandle(time.Time{}, close, high, low, close, volume)
}

func closeBar(c float64) types.Candle { return bar(c+0.5, c-0.5, c, 100) }

/*
Donchian example: buy_term=3 with highs [10,12,11] and a close of 13 fires
BUY at the broken channel level 12.
*/
func TestDonchianBreakoutExample(t *testing.T) {
	d := &DonchianBreakout{BuyTerm: 3, SellTerm: 3, BuyJudge: JudgeClose, SellJudge: JudgeClose, Tie: BuyFirst}
	in := Input{
		Window:  []types.Candle{bar(10, 8, 9, 1), bar(12, 9, 11, 1), bar(11, 9, 10, 1)},
		Current: bar(13.5, 12, 13, 1),
	}
	sig := d.Evaluate(in)
	if sig.Side != types.Buy || sig.Price != 12 {
		t.Fatalf("expected BUY@12, got %+v", sig)
	}

	in.Current = bar(9, 7, 7.5, 1)
	sig = d.Evaluate(in)
	if sig.Side != types.Sell || sig.Price != 8 {
		t.Fatalf("expected SELL@8, got %+v", sig)
	}
}

func TestDonchianTieBreakPolicy(t *testing.T) {
	window := []types.Candle{bar(10, 8, 9, 1), bar(12, 9, 11, 1), bar(11, 9, 10, 1)}
	// outside bar: high breaks the channel top, low breaks the bottom
	outside := bar(13, 7, 10, 1)

	cases := []struct {
		tie  TieBreak
		want types.Side
	}{
		{BuyFirst, types.Buy},
		{SellFirst, types.Sell},
		{NoTrade, types.None},
	}
	for _, tc := range cases {
		d := &DonchianBreakout{BuyTerm: 3, SellTerm: 3, BuyJudge: JudgeHigh, SellJudge: JudgeLow, Tie: tc.tie}
		got := d.Evaluate(Input{Window: window, Current: outside})
		if got.Side != tc.want {
			t.Fatalf("tie %s: expected %s, got %s", tc.tie, tc.want, got.Side)
		}
	}
}

func TestPivotReversion(t *testing.T) {
	p := &PivotReversion{Term: 1, BuyLine: "S2", SellLine: "R2"}
	window := []types.Candle{bar(110, 90, 100, 1)} // S2=80 S3=70 R2=120 R3=130

	cases := []struct {
		close float64
		want  types.Side
	}{
		{75, types.Buy},
		{65, types.None}, // beyond S3
		{100, types.None},
		{125, types.Sell},
		{135, types.None}, // beyond R3
	}
	for _, tc := range cases {
		got := p.Evaluate(Input{Window: window, Current: closeBar(tc.close)})
		if got.Side != tc.want {
			t.Fatalf("close %v: expected %s, got %s", tc.close, tc.want, got.Side)
		}
		if got.Fired() && got.Price != tc.close {
			t.Fatalf("pivot price should be the close, got %v", got.Price)
		}
	}
}

func TestMovingAverageCrossNeedsPreviousPair(t *testing.T) {
	m := &MovingAverageCross{Fast: 2, Slow: 3}
	window := []types.Candle{closeBar(10), closeBar(9), closeBar(8), closeBar(7)}

	step := func(c float64) types.Signal {
		cur := closeBar(c)
		sig := m.Evaluate(Input{Window: window, Current: cur})
		window = append(window, cur)
		return sig
	}

	if sig := step(6); sig.Fired() {
		t.Fatalf("first evaluation must not signal, got %+v", sig)
	}
	if sig := step(12); sig.Side != types.Buy {
		t.Fatalf("expected golden cross BUY, got %+v", sig)
	}
	if sig := step(3); sig.Fired() {
		t.Fatalf("no cross expected, got %+v", sig)
	}
	if sig := step(1); sig.Side != types.Sell {
		t.Fatalf("expected dead cross SELL, got %+v", sig)
	}
}

func TestDetectorOnlyReturnsSidesOwnedByFamily(t *testing.T) {
	buy := &DonchianBreakout{BuyTerm: 3, SellTerm: 3, BuyJudge: JudgeClose, SellJudge: JudgeClose, Tie: BuyFirst}
	sell := &MovingAverageCross{Fast: 2, Slow: 3}
	d := NewDetector(buy, sell)

	window := []types.Candle{closeBar(10), closeBar(10), closeBar(10)}
	// donchian SELL break is ignored because SELL is driven by the SMA cross
	if sig := d.Evaluate(Input{Window: window, Current: closeBar(5)}); sig.Fired() {
		t.Fatalf("expected NONE, got %+v", sig)
	}
	if sig := d.Evaluate(Input{Window: window, Current: closeBar(15)}); sig.Side != types.Buy || sig.Source != string(Donchian) {
		t.Fatalf("expected donchian BUY, got %+v", sig)
	}
}

func TestDetectorFromConfigSharesFamily(t *testing.T) {
	cfg := config.Default().Signal
	cfg.BuyFamily = config.FamilySMACross
	cfg.SellFamily = config.FamilySMACross
	cfg.SMAFastTerm, cfg.SMASlowTerm = 2, 3
	d, err := DetectorFromConfig(cfg)
	if err != nil {
		t.Fatalf("DetectorFromConfig: %v", err)
	}
	if len(d.strategies) != 1 {
		t.Fatalf("expected one shared strategy, got %d", len(d.strategies))
	}
	if _, err := NewStrategy("macd", cfg); err == nil {
		t.Fatalf("expected error for unknown family")
	}
}

func TestVolatilityRatioGate(t *testing.T) {
	g := VolatilityRatioGate{Term: 5, MaxRatio: 0.1}
	var window []types.Candle
	for i := 0; i < 5; i++ {
		window = append(window, bar(105, 95, 100, 1)) // volatility 10
	}
	if ok, _ := g.Allow(Input{Window: window, Current: closeBar(100)}, types.Signal{Side: types.Buy}); !ok {
		t.Fatalf("ratio 0.1 should pass")
	}
	if ok, reason := g.Allow(Input{Window: window, Current: closeBar(50)}, types.Signal{Side: types.Buy}); ok || reason == "" {
		t.Fatalf("ratio 0.2 should be rejected with a reason")
	}
}

func TestPVOGate(t *testing.T) {
	g := PVOGate{Short: 2, Long: 4, Threshold: 0}
	var window []types.Candle
	for i := 0; i < 6; i++ {
		window = append(window, bar(101, 99, 100, 100))
	}
	if ok, _ := g.Allow(Input{Window: window, Current: bar(101, 99, 100, 1000)}, types.Signal{Side: types.Buy}); !ok {
		t.Fatalf("volume surge should pass")
	}
	if ok, _ := g.Allow(Input{Window: window, Current: bar(101, 99, 100, 100)}, types.Signal{Side: types.Buy}); ok {
		t.Fatalf("flat volume should be rejected")
	}
}

func TestGateFromConfig(t *testing.T) {
	cfg := config.Default()
	for _, name := range []string{config.GateNone, config.GateVolatility, config.GatePVO, config.GateVROC} {
		cfg.Signal.Gate = name
		g, err := GateFromConfig(cfg)
		if err != nil {
			t.Fatalf("gate %s: %v", name, err)
		}
		if g.Name() != name {
			t.Fatalf("expected gate %s, got %s", name, g.Name())
		}
	}
	cfg.Signal.Gate = "moon"
	if _, err := GateFromConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown gate")
	}
}

func TestRSIGateDeniesBeforeWarmUp(t *testing.T) {
	g, err := NewRSIGate(70, 30)
	if err != nil {
		t.Fatalf("NewRSIGate: %v", err)
	}
	if ok, reason := g.Allow(Input{}, types.Signal{Side: types.Buy}); ok || reason != "rsi_unavailable" {
		t.Fatalf("expected rsi_unavailable before any candle, got ok=%v reason=%q", ok, reason)
	}
}
