package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
	None Side = "NONE"
)

// Opposite returns the other trading side; None stays None.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return None
}

// Sign is +1 for Buy, -1 for Sell and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	}
	return 0
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Candle is one closed OHLCV bar. Prices are kept as decimals so that
// aggregates over a window are exact; the float accessors feed the
// indicator math.
type Candle struct {
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// NewCandle builds a candle from float inputs (tests, CSV, exchange adapters).
func NewCandle(closeTime time.Time, open, high, low, close, volume float64) Candle {
	return Candle{
		CloseTime: closeTime,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    decimal.NewFromFloat(volume),
	}
}

// IsZero reports a row the market-data source failed to fill.
func (c Candle) IsZero() bool {
	return c.Open.IsZero() || c.High.IsZero() || c.Low.IsZero() || c.Close.IsZero()
}

func (c Candle) H() float64 { return c.High.InexactFloat64() }
func (c Candle) L() float64 { return c.Low.InexactFloat64() }
func (c Candle) C() float64 { return c.Close.InexactFloat64() }
func (c Candle) O() float64 { return c.Open.InexactFloat64() }
func (c Candle) V() float64 { return c.Volume.InexactFloat64() }

// Signal is the per-candle trading decision of a signal strategy.
type Signal struct {
	Side   Side
	Price  float64
	Source string
}

// NoSignal is the zero decision.
var NoSignal = Signal{Side: None}

func (s Signal) Fired() bool { return s.Side.Valid() }

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

type Order struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    float64
	Price  float64 // reference price for market orders, limit price otherwise
	// meta
	Reason     string
	ReduceOnly bool
}

// Fill is the executor's confirmation of an order.
type Fill struct {
	Side  Side
	Qty   float64
	Price float64
	Fee   float64
}

// Balance is the account snapshot returned by the order collaborator.
type Balance struct {
	Total float64
	Used  float64
	Free  float64
}

// ExchangePosition is the position as the venue reports it.
type ExchangePosition struct {
	Side Side
	Qty  float64
}
