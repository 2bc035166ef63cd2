// Package candle holds the ordered OHLCV history every indicator reads from.
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/evdnx/gopyra/types"
)

var (
	ErrOutOfOrder    = errors.New("candle: close time not after last candle")
	ErrInvalidCandle = errors.New("candle: zero-valued OHLC row")
)

// Series is an append-only, strictly time-ordered candle history.
type Series struct {
	candles []types.Candle
	// max bounds memory in live runs; 0 keeps everything.
	max int
}

// NewSeries creates a series that retains at most max candles (0 = unbounded).
func NewSeries(max int) *Series {
	return &Series{max: max}
}

// Append adds c at the end. Duplicates and older candles are rejected.
func (s *Series) Append(c types.Candle) error {
	if c.IsZero() {
		return ErrInvalidCandle
	}
	if n := len(s.candles); n > 0 && !c.CloseTime.After(s.candles[n-1].CloseTime) {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder,
			c.CloseTime.Format(time.RFC3339), s.candles[n-1].CloseTime.Format(time.RFC3339))
	}
	s.candles = append(s.candles, c)
	if s.max > 0 && len(s.candles) > s.max {
		s.candles = append(s.candles[:0:0], s.candles[len(s.candles)-s.max:]...)
	}
	return nil
}

func (s *Series) Len() int { return len(s.candles) }

// Window returns the last n candles (fewer if the series is shorter).
// The slice shares storage with the series and must not be modified.
func (s *Series) Window(n int) []types.Candle {
	if n <= 0 {
		return nil
	}
	if n > len(s.candles) {
		n = len(s.candles)
	}
	return s.candles[len(s.candles)-n:]
}

// Last returns the most recent candle.
func (s *Series) Last() (types.Candle, bool) {
	if len(s.candles) == 0 {
		return types.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// All returns the whole retained history (read-only).
func (s *Series) All() []types.Candle { return s.candles }

// Clean sorts raw rows by close time, drops zero-valued rows and keeps the
// first occurrence of each close time.
func Clean(raw []types.Candle) []types.Candle {
	out := make([]types.Candle, 0, len(raw))
	for _, c := range raw {
		if !c.IsZero() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CloseTime.Before(out[j].CloseTime) })
	dedup := out[:0]
	for i, c := range out {
		if i > 0 && c.CloseTime.Equal(dedup[len(dedup)-1].CloseTime) {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// Filter keeps candles strictly inside (from, to). Zero bounds are open.
func Filter(candles []types.Candle, from, to time.Time) []types.Candle {
	out := make([]types.Candle, 0, len(candles))
	for _, c := range candles {
		if !from.IsZero() && !c.CloseTime.After(from) {
			continue
		}
		if !to.IsZero() && !c.CloseTime.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Highs, Lows, Closes and Volumes project a window onto one field.
func Highs(w []types.Candle) []float64   { return project(w, types.Candle.H) }
func Lows(w []types.Candle) []float64    { return project(w, types.Candle.L) }
func Closes(w []types.Candle) []float64  { return project(w, types.Candle.C) }
func Volumes(w []types.Candle) []float64 { return project(w, types.Candle.V) }

func project(w []types.Candle, f func(types.Candle) float64) []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = f(c)
	}
	return out
}
