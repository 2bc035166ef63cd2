package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gopyra/config"
)

// Reasons a Sizing carries when it returns a zero quantity.
const (
	ReasonBalanceTooLow = "balance_below_minimum"
	ReasonNoVolatility  = "zero_volatility"
	ReasonNoMargin      = "no_free_margin"
)

// Sizing is the sizer's answer for one entry. A zero Qty is not an error:
// Reason says why nothing should be traded.
type Sizing struct {
	Qty          float64 // quantity to trade now
	UnitSize     float64 // per-entry size, fixed at open
	StopDistance float64 // initial stop offset, fixed at open
	AddRange     float64 // favorable move that triggers an add, fixed at open
	Volatility   float64
	Reason       string
}

func (s Sizing) Tradable(minOrder float64) bool { return s.Qty > 0 && s.Qty >= minOrder }

// Sizer converts balance and volatility into order sizes under a fixed
// per-trade risk budget split across EntryTimes entries.
type Sizer struct {
	RiskPercentage    float64
	Leverage          float64
	EntryTimes        int
	EntryRange        float64
	StopRange         float64
	MinBalance        float64
	QuantityPrecision int32
}

// NewSizer reads the sizing parameters from configuration.
func NewSizer(cfg config.Config) Sizer {
	return Sizer{
		RiskPercentage:    cfg.Risk.RiskPercentage,
		Leverage:          cfg.Risk.Leverage,
		EntryTimes:        cfg.Risk.EntryTimes,
		EntryRange:        cfg.Risk.EntryRange,
		StopRange:         cfg.Risk.StopRange,
		MinBalance:        cfg.Risk.MinBalance,
		QuantityPrecision: cfg.Market.QuantityPrecision,
	}
}

// SizePosition sizes the first entry of a new position:
//
//	stop_distance = stop_range * volatility
//	total_size    = balance * risk% / stop_distance
//	unit_size     = total_size / entry_times
//	qty           = min(unit_size, balance * leverage / price)
func (s Sizer) SizePosition(balance, price, volatility float64) Sizing {
	out := Sizing{
		Volatility:   volatility,
		StopDistance: s.StopRange * volatility,
		AddRange:     s.EntryRange * volatility,
	}
	if balance < s.MinBalance {
		out.Reason = ReasonBalanceTooLow
		return out
	}
	if volatility <= 0 || out.StopDistance <= 0 || price <= 0 {
		out.Reason = ReasonNoVolatility
		return out
	}
	total := balance * s.RiskPercentage / 100 / out.StopDistance
	out.UnitSize = total / float64(s.entryTimes())
	out.Qty = s.clamp(out.UnitSize, balance, price)
	if out.Qty == 0 {
		out.Reason = ReasonNoMargin
	}
	return out
}

// SizeAdd sizes a pyramiding add. The margin already committed to the open
// quantity is deducted from balance before the affordability clamp.
func (s Sizer) SizeAdd(balance, price, unitSize, avgPrice, openQty float64) Sizing {
	out := Sizing{UnitSize: unitSize}
	if balance < s.MinBalance {
		out.Reason = ReasonBalanceTooLow
		return out
	}
	free := balance - avgPrice*openQty/s.Leverage
	out.Qty = s.clamp(unitSize, free, price)
	if out.Qty == 0 {
		out.Reason = ReasonNoMargin
	}
	return out
}

func (s Sizer) clamp(unit, balance, price float64) float64 {
	if price <= 0 || balance <= 0 {
		return 0
	}
	affordable := balance * s.Leverage / price
	return RoundQty(math.Min(unit, affordable), s.QuantityPrecision)
}

func (s Sizer) entryTimes() int {
	if s.EntryTimes < 1 {
		return 1
	}
	return s.EntryTimes
}

// RoundQty rounds a quantity down to precision decimals so an order never
// exceeds what was sized.
func RoundQty(qty float64, precision int32) float64 {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return decimal.NewFromFloat(qty).RoundFloor(precision).InexactFloat64()
}
