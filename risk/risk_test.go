package risk

import (
	"math"
	"testing"

	"github.com/evdnx/gopyra/config"
)

func testSizer() Sizer {
	return Sizer{
		RiskPercentage:    2,
		Leverage:          100,
		EntryTimes:        5,
		EntryRange:        2,
		StopRange:         4,
		MinBalance:        10,
		QuantityPrecision: 7,
	}
}

/*
Flat position, balance=10000, risk=2 %, stop_range=4, volatility=50:
stop_distance=200, total_size=1.0, entry_times=5 -> unit_size=0.2.
*/
func TestSizePositionExample(t *testing.T) {
	s := testSizer().SizePosition(10_000, 20_000, 50)
	if s.StopDistance != 200 {
		t.Fatalf("expected stop distance 200, got %v", s.StopDistance)
	}
	if math.Abs(s.UnitSize-0.2) > 1e-12 {
		t.Fatalf("expected unit size 0.2, got %v", s.UnitSize)
	}
	if s.Qty != 0.2 {
		t.Fatalf("expected qty 0.2, got %v", s.Qty)
	}
	if s.AddRange != 100 {
		t.Fatalf("expected add range 100, got %v", s.AddRange)
	}
	if s.Reason != "" {
		t.Fatalf("unexpected reason %q", s.Reason)
	}
}

func TestSizePositionClampsToAffordable(t *testing.T) {
	sz := testSizer()
	sz.Leverage = 1
	// affordable = 10000 * 1 / 100000 = 0.1 < unit 0.2
	s := sz.SizePosition(10_000, 100_000, 50)
	if s.Qty != 0.1 {
		t.Fatalf("expected qty clamped to 0.1, got %v", s.Qty)
	}
}

func TestSizePositionBelowMinimumBalance(t *testing.T) {
	s := testSizer().SizePosition(5, 20_000, 50)
	if s.Qty != 0 || s.Reason != ReasonBalanceTooLow {
		t.Fatalf("expected zero size with %q, got %+v", ReasonBalanceTooLow, s)
	}
	if s.StopDistance != 200 {
		t.Fatalf("stop distance should still be reported, got %v", s.StopDistance)
	}
}

func TestSizePositionZeroVolatility(t *testing.T) {
	s := testSizer().SizePosition(10_000, 20_000, 0)
	if s.Qty != 0 || s.Reason != ReasonNoVolatility {
		t.Fatalf("expected zero size for zero volatility, got %+v", s)
	}
}

func TestSizeAddDeductsCommittedMargin(t *testing.T) {
	sz := testSizer()
	sz.Leverage = 10
	// free = 1000 - 100*50/10 = 500 -> affordable = 500*10/100 = 50
	s := sz.SizeAdd(1000, 100, 80, 100, 50)
	if s.Qty != 50 {
		t.Fatalf("expected qty 50, got %v", s.Qty)
	}
	// fully committed margin leaves nothing
	s = sz.SizeAdd(1000, 100, 80, 100, 100)
	if s.Qty != 0 || s.Reason != ReasonNoMargin {
		t.Fatalf("expected no margin, got %+v", s)
	}
}

func TestRoundQtyFloors(t *testing.T) {
	if got := RoundQty(66.6666, 2); got != 66.66 {
		t.Fatalf("expected 66.66, got %v", got)
	}
	if got := RoundQty(0.123456789, 7); got != 0.1234567 {
		t.Fatalf("expected 0.1234567, got %v", got)
	}
	if got := RoundQty(-1, 2); got != 0 {
		t.Fatalf("negative quantities round to 0, got %v", got)
	}
}

func TestNewSizerFromConfig(t *testing.T) {
	cfg := config.Default()
	s := NewSizer(cfg)
	if s.EntryTimes != 6 || s.StopRange != 4 || s.QuantityPrecision != 7 {
		t.Fatalf("unexpected sizer %+v", s)
	}
	if !(Sizing{Qty: 0.1}).Tradable(0.09) || (Sizing{Qty: 0.05}).Tradable(0.09) {
		t.Fatalf("Tradable threshold wrong")
	}
}
