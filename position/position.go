// Package position owns the single open position and drives its lifecycle:
// entry, pyramiding adds, trailing stop, stop exit and reversal exit.
package position

import (
	"fmt"
	"time"

	"github.com/evdnx/gopyra/stop"
	"github.com/evdnx/gopyra/types"
)

// Position is the engine's view of the open position. The zero value is
// flat. Only Manager mutates it; everyone else gets copies.
type Position struct {
	Side       types.Side
	Qty        float64
	AvgPrice   float64
	StopOffset float64
	StopAF     float64
	StopEP     float64

	AddCount       int // entries taken so far, the first one included
	LastEntryPrice float64
	UnitSize       float64
	AddRange       float64

	OpenedAt time.Time
	Candles  int // candles processed while open
}

func (p Position) IsFlat() bool { return p.Side == types.None || p.Side == "" }

// StopPrice is avg - offset for BUY and avg + offset for SELL.
func (p Position) StopPrice() float64 { return stop.Price(p.Side, p.AvgPrice, p.StopOffset) }

func (p Position) stopState() stop.State {
	return stop.State{Side: p.Side, AvgPrice: p.AvgPrice, Offset: p.StopOffset, AF: p.StopAF, EP: p.StopEP}
}

// Invariant checks qty == 0 <=> side == NONE <=> offset == 0 <=> add_count == 0.
func (p Position) Invariant() error {
	flat := p.IsFlat()
	if flat != (p.Qty == 0) || flat != (p.StopOffset == 0) || flat != (p.AddCount == 0) {
		return fmt.Errorf("position: inconsistent state side=%s qty=%v offset=%v adds=%d",
			p.Side, p.Qty, p.StopOffset, p.AddCount)
	}
	if !flat && (p.Qty < 0 || p.StopOffset < 0) {
		return fmt.Errorf("position: negative qty %v or offset %v", p.Qty, p.StopOffset)
	}
	return nil
}

func flat() Position { return Position{Side: types.None} }

// ExitKind says why a position was closed.
type ExitKind string

const (
	ExitStop     ExitKind = "stop"
	ExitReversal ExitKind = "reversal"
)

// TradeRecord is one closed position.
type TradeRecord struct {
	Side          types.Side
	EntryTime     time.Time
	ExitTime      time.Time
	EntryPrice    float64 // average entry price
	ExitPrice     float64
	Qty           float64
	Entries       int
	Profit        float64 // net of Cost
	ReturnPct     float64 // Profit / entry notional * 100
	Candles       int
	StopTriggered bool
	Exit          ExitKind
	Cost          float64
}

func newTrade(p Position, exitTime time.Time, exit float64, cost float64, kind ExitKind) TradeRecord {
	entryNotional := p.AvgPrice * p.Qty
	gross := p.Side.Sign() * (exit*p.Qty - entryNotional)
	profit := gross - cost
	ret := 0.0
	if entryNotional != 0 {
		ret = profit / entryNotional * 100
	}
	return TradeRecord{
		Side:          p.Side,
		EntryTime:     p.OpenedAt,
		ExitTime:      exitTime,
		EntryPrice:    p.AvgPrice,
		ExitPrice:     exit,
		Qty:           p.Qty,
		Entries:       p.AddCount,
		Profit:        profit,
		ReturnPct:     ret,
		Candles:       p.Candles,
		StopTriggered: kind == ExitStop,
		Exit:          kind,
		Cost:          cost,
	}
}
