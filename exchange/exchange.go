// Package exchange defines the market-data and order collaborators the
// engine talks to, plus retrying decorators for both.
package exchange

import (
	"context"
	"time"

	"github.com/evdnx/gopyra/types"
)

// MarketData supplies candles and prices. FetchOHLCV must return closed,
// gap-free candles ordered by close time.
type MarketData interface {
	FetchOHLCV(ctx context.Context, symbol string, timeframe time.Duration, since, until time.Time) ([]types.Candle, error)
	// FetchLatestOHLCV returns the still-forming candle.
	FetchLatestOHLCV(ctx context.Context, symbol string, timeframe time.Duration) (types.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (float64, error)
}

// Confirmation is the venue's acknowledgement of an order.
type Confirmation struct {
	OrderID string
	Side    types.Side
	Qty     float64
	Price   float64
	Fee     float64
}

// Gateway places orders and reports account state.
type Gateway interface {
	PlaceOrder(ctx context.Context, o types.Order) (Confirmation, error)
	GetPosition(ctx context.Context, symbol string) (types.ExchangePosition, error)
	GetBalance(ctx context.Context) (types.Balance, error)
}
