// Package signal turns indicator readings into BUY/SELL/NONE decisions.
package signal

import (
	"fmt"

	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/types"
)

// Family identifies an indicator family a side can be driven by.
type Family string

const (
	Donchian Family = config.FamilyDonchian
	Pivot    Family = config.FamilyPivot
	SMACross Family = config.FamilySMACross
)

// priority is the fixed evaluation order of the families.
var priority = []Family{Donchian, Pivot, SMACross}

// Input is what a strategy sees for one candle: the closed history before
// the candle and the candle itself.
type Input struct {
	Window  []types.Candle
	Current types.Candle
}

// Strategy evaluates one indicator family. Implementations may carry state
// between candles, so Evaluate must be called exactly once per candle.
type Strategy interface {
	Family() Family
	Evaluate(in Input) types.Signal
}

// TieBreak decides what a Donchian breakout does when the candle breaks both
// channel sides at once.
type TieBreak string

const (
	BuyFirst  TieBreak = config.TieBuyFirst
	SellFirst TieBreak = config.TieSellFirst
	NoTrade   TieBreak = config.TieNone
)

// JudgePrice selects the candle field compared against a channel.
type JudgePrice string

const (
	JudgeClose JudgePrice = "close"
	JudgeHigh  JudgePrice = "high"
	JudgeLow   JudgePrice = "low"
)

func (j JudgePrice) of(c types.Candle) float64 {
	switch j {
	case JudgeHigh:
		return c.H()
	case JudgeLow:
		return c.L()
	}
	return c.C()
}

// DonchianBreakout fires BUY above the highest high of BuyTerm candles and
// SELL below the lowest low of SellTerm candles. The signal price is the
// broken channel level.
type DonchianBreakout struct {
	BuyTerm, SellTerm int
	BuyJudge          JudgePrice
	SellJudge         JudgePrice
	Tie               TieBreak
}

func (d *DonchianBreakout) Family() Family { return Donchian }

func (d *DonchianBreakout) Evaluate(in Input) types.Signal {
	highest, lowest, ok := indicator.Donchian(in.Window, d.BuyTerm, d.SellTerm)
	if !ok {
		return types.NoSignal
	}
	buy := types.Signal{Side: types.Buy, Price: highest, Source: string(Donchian)}
	sell := types.Signal{Side: types.Sell, Price: lowest, Source: string(Donchian)}
	up := d.BuyJudge.of(in.Current) > highest
	down := d.SellJudge.of(in.Current) < lowest

	switch {
	case up && down:
		switch d.Tie {
		case SellFirst:
			return sell
		case NoTrade:
			return types.NoSignal
		}
		return buy
	case up:
		return buy
	case down:
		return sell
	}
	return types.NoSignal
}

// PivotReversion buys a close at or under the configured support line that
// has not reached S3, and sells a close at or over the resistance line that
// has not reached R3.
type PivotReversion struct {
	Term     int
	BuyLine  string // S1 | S2
	SellLine string // R1 | R2
}

func (p *PivotReversion) Family() Family { return Pivot }

func (p *PivotReversion) Evaluate(in Input) types.Signal {
	lv, ok := indicator.Pivot(in.Window, p.Term)
	if !ok {
		return types.NoSignal
	}
	close := in.Current.C()
	support := lv.S2
	if p.BuyLine == "S1" {
		support = lv.S1
	}
	if close <= support && close > lv.S3 {
		return types.Signal{Side: types.Buy, Price: close, Source: string(Pivot)}
	}
	resistance := lv.R2
	if p.SellLine == "R1" {
		resistance = lv.R1
	}
	if close >= resistance && close < lv.R3 {
		return types.Signal{Side: types.Sell, Price: close, Source: string(Pivot)}
	}
	return types.NoSignal
}

// MovingAverageCross signals a golden cross (BUY) or dead cross (SELL)
// between a fast and a slow SMA that both include the current close. It
// carries the previous SMA pair and stays silent until one is recorded.
type MovingAverageCross struct {
	Fast, Slow int

	prevFast, prevSlow float64
	primed             bool
}

func (m *MovingAverageCross) Family() Family { return SMACross }

func (m *MovingAverageCross) Evaluate(in Input) types.Signal {
	closes := candle.Closes(in.Window)
	cur := in.Current.C()
	fast, ok1 := indicator.SMAWithCurrent(closes, m.Fast, cur)
	slow, ok2 := indicator.SMAWithCurrent(closes, m.Slow, cur)
	if !ok1 || !ok2 {
		return types.NoSignal
	}
	prevFast, prevSlow, primed := m.prevFast, m.prevSlow, m.primed
	m.prevFast, m.prevSlow, m.primed = fast, slow, true
	if !primed {
		return types.NoSignal
	}

	switch {
	case prevFast >= prevSlow && fast < slow:
		return types.Signal{Side: types.Sell, Price: cur, Source: string(SMACross)}
	case prevFast <= prevSlow && fast > slow:
		return types.Signal{Side: types.Buy, Price: cur, Source: string(SMACross)}
	}
	return types.NoSignal
}

// NewStrategy builds the strategy for one family from configuration.
func NewStrategy(f Family, cfg config.Signal) (Strategy, error) {
	switch f {
	case Donchian:
		return &DonchianBreakout{
			BuyTerm:   cfg.BuyTerm,
			SellTerm:  cfg.SellTerm,
			BuyJudge:  JudgePrice(cfg.BuyJudgePrice),
			SellJudge: JudgePrice(cfg.SellJudgePrice),
			Tie:       TieBreak(cfg.TieBreak),
		}, nil
	case Pivot:
		return &PivotReversion{Term: cfg.PivotTerm, BuyLine: cfg.PivotBuyLine, SellLine: cfg.PivotSellLine}, nil
	case SMACross:
		return &MovingAverageCross{Fast: cfg.SMAFastTerm, Slow: cfg.SMASlowTerm}, nil
	}
	return nil, fmt.Errorf("signal: unknown family %q", f)
}
