package testutils

import (
	"time"

	"github.com/evdnx/gopyra/types"
)

// Epoch is the close time of the first synthetic candle.
var Epoch = time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC)

// Bar is a compact OHLCV description for building test series.
type Bar struct {
	High, Low, Close, Volume float64
}

// Candles turns bars into candles spaced step apart starting at Epoch.
// Open equals the previous close (or Close for the first bar).
func Candles(step time.Duration, bars ...Bar) []types.Candle {
	out := make([]types.Candle, len(bars))
	prev := 0.0
	for i, b := range bars {
		open := prev
		if i == 0 {
			open = b.Close
		}
		vol := b.Volume
		if vol == 0 {
			vol = 100
		}
		out[i] = types.NewCandle(Epoch.Add(time.Duration(i)*step), open, b.High, b.Low, b.Close, vol)
		prev = b.Close
	}
	return out
}

// Flat returns n bars around price with the given half range.
func Flat(n int, price, halfRange float64) []Bar {
	out := make([]Bar, n)
	for i := range out {
		out[i] = Bar{High: price + halfRange, Low: price - halfRange, Close: price}
	}
	return out
}

// Ramp returns n bars whose close moves by step per bar from start.
func Ramp(n int, start, step, halfRange float64) []Bar {
	out := make([]Bar, n)
	for i := range out {
		p := start + float64(i+1)*step
		out[i] = Bar{High: p + halfRange, Low: p - halfRange, Close: p}
	}
	return out
}
