// Package stop computes the trailing stop offset of an open position. The
// engine only proposes values; the position manager decides when to commit
// them.
package stop

import (
	"fmt"
	"math"

	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/types"
)

// State is the read-only view of the position the trailers work from.
type State struct {
	Side     types.Side
	AvgPrice float64
	Offset   float64
	AF       float64
	EP       float64
}

// Price is the stop level implied by the state: avg - offset for BUY,
// avg + offset for SELL.
func (s State) Price() float64 { return Price(s.Side, s.AvgPrice, s.Offset) }

// Price converts an offset into a stop level for side.
func Price(side types.Side, avg, offset float64) float64 {
	if side == types.Sell {
		return avg + offset
	}
	return avg - offset
}

// Input is the closed history and the candle being processed.
type Input struct {
	Window  []types.Candle
	Current types.Candle
}

// Candidate is a proposed offset plus the trailer's bookkeeping after this
// candle.
type Candidate struct {
	Offset float64
	AF     float64
	EP     float64
}

// Trailer proposes a stop offset for one candle. ok is false when the
// trailer has nothing to propose.
type Trailer interface {
	Name() string
	Candidate(st State, in Input) (c Candidate, ok bool)
}

// PSARTrailer trails the stop on the Parabolic SAR of the last Term candles.
type PSARTrailer struct {
	Term  int
	IAF   float64
	MaxAF float64
}

func (p PSARTrailer) Name() string { return config.StopPSAR }

func (p PSARTrailer) Candidate(st State, in Input) (Candidate, bool) {
	w := append(append([]types.Candle(nil), tail(in.Window, p.Term-1)...), in.Current)
	res := indicator.PSAR(w, p.IAF, p.MaxAF)
	switch st.Side {
	case types.Buy:
		if sar, ok := res.LastBull(); ok {
			return Candidate{Offset: st.AvgPrice - sar, AF: res.AF, EP: res.EP}, true
		}
	case types.Sell:
		if sar, ok := res.LastBear(); ok {
			return Candidate{Offset: sar - st.AvgPrice, AF: res.AF, EP: res.EP}, true
		}
	}
	return Candidate{}, false
}

// FixedAFTrailer pulls the stop in by a growing fraction of the favorable
// excursion every time the excursion makes a new extreme:
//
//	offset' = offset - (moved + offset) * af
//	af'     = min(af + Step, Max)
type FixedAFTrailer struct {
	Step float64
	Max  float64
}

func (f FixedAFTrailer) Name() string { return config.StopFixedAF }

func (f FixedAFTrailer) Candidate(st State, in Input) (Candidate, bool) {
	var moved float64
	switch st.Side {
	case types.Buy:
		moved = in.Current.H() - st.AvgPrice
	case types.Sell:
		moved = st.AvgPrice - in.Current.L()
	default:
		return Candidate{}, false
	}
	if moved < 0 || st.EP >= moved {
		return Candidate{}, false
	}
	return Candidate{
		Offset: st.Offset - (moved+st.Offset)*st.AF,
		AF:     math.Min(st.AF+f.Step, f.Max),
		EP:     moved,
	}, true
}

// SMATrailer keeps the stop at the slow moving average of the closed
// candles.
type SMATrailer struct {
	Term int
}

func (s SMATrailer) Name() string { return config.StopSMA }

func (s SMATrailer) Candidate(st State, in Input) (Candidate, bool) {
	sma, ok := indicator.SMA(candle.Closes(in.Window), s.Term)
	if !ok {
		return Candidate{}, false
	}
	c := Candidate{AF: st.AF, EP: st.EP}
	switch st.Side {
	case types.Buy:
		c.Offset = st.AvgPrice - sma
	case types.Sell:
		c.Offset = sma - st.AvgPrice
	default:
		return Candidate{}, false
	}
	return c, true
}

// SurgeRule tightens the offset to Fraction of the current price once the
// unrealized profit ratio exceeds Threshold. A zero Threshold disables it.
type SurgeRule struct {
	Threshold float64
	Fraction  float64
}

func (r SurgeRule) Candidate(st State, price float64) (float64, bool) {
	if r.Threshold <= 0 || st.AvgPrice <= 0 || !st.Side.Valid() {
		return 0, false
	}
	profit := st.Side.Sign() * (price - st.AvgPrice) / st.AvgPrice
	if profit <= r.Threshold {
		return 0, false
	}
	return r.Fraction * price, true
}

// Update is the engine's proposal for the next candle.
type Update struct {
	Offset float64
	AF     float64
	EP     float64
	// Source names the rule that set Offset, empty when it did not change.
	Source string
}

func (u Update) Tightened(prev float64) bool { return u.Offset < prev }

// Engine combines a trailer with the surge rule. The proposed offset is
// min(current, trailer, surge) and never falls below one tick, so the stop
// can only tighten and an open position always keeps a positive offset.
type Engine struct {
	Trailer Trailer
	Surge   SurgeRule
	Tick    float64
}

// NewEngine builds the engine selected by the stop section.
func NewEngine(cfg config.Config) (Engine, error) {
	e := Engine{
		Surge: SurgeRule{Threshold: cfg.Stop.SurgeThreshold, Fraction: cfg.Stop.SurgeFraction},
		Tick:  cfg.Market.TickSize,
	}
	switch cfg.Stop.Mode {
	case config.StopPSAR:
		e.Trailer = PSARTrailer{Term: cfg.Stop.PSARTerm, IAF: cfg.Stop.AFInit, MaxAF: cfg.Stop.AFMax}
	case config.StopFixedAF:
		e.Trailer = FixedAFTrailer{Step: cfg.Stop.AFStep, Max: cfg.Stop.AFMax}
	case config.StopSMA:
		e.Trailer = SMATrailer{Term: cfg.Signal.SMASlowTerm}
	default:
		return Engine{}, fmt.Errorf("stop: unknown mode %q", cfg.Stop.Mode)
	}
	return e, nil
}

// Next proposes the offset and bookkeeping after processing in.Current.
func (e Engine) Next(st State, in Input) Update {
	up := Update{Offset: st.Offset, AF: st.AF, EP: st.EP}
	if e.Trailer != nil {
		if c, ok := e.Trailer.Candidate(st, in); ok {
			up.AF, up.EP = c.AF, c.EP
			if c.Offset < up.Offset {
				up.Offset, up.Source = c.Offset, e.Trailer.Name()
			}
		}
	}
	if off, ok := e.Surge.Candidate(st, in.Current.C()); ok && off < up.Offset {
		up.Offset, up.Source = off, "surge"
	}
	if up.Offset < e.Tick {
		up.Offset = math.Min(st.Offset, e.Tick)
	}
	return up
}

func tail(w []types.Candle, n int) []types.Candle {
	if n <= 0 {
		return nil
	}
	if len(w) > n {
		return w[len(w)-n:]
	}
	return w
}
