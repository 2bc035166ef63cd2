package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gopyra/exchange"
	"github.com/evdnx/gopyra/types"
)

// MockMarket serves a scripted candle history. Each FetchOHLCV call reveals
// one more candle, simulating time passing between polls.
type MockMarket struct {
	mu       sync.Mutex
	candles  []types.Candle
	revealed int
	// Failures is the number of calls that fail before any succeeds.
	Failures int
	Calls    int
}

// NewMockMarket reveals the first `initial` candles immediately.
func NewMockMarket(candles []types.Candle, initial int) *MockMarket {
	return &MockMarket{candles: candles, revealed: initial}
}

func (m *MockMarket) fail() error {
	m.Calls++
	if m.Failures > 0 {
		m.Failures--
		return fmt.Errorf("%w: transport", ErrInjected)
	}
	return nil
}

// Advance reveals the next candle; false once the script is exhausted.
func (m *MockMarket) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revealed >= len(m.candles) {
		return false
	}
	m.revealed++
	return true
}

func (m *MockMarket) FetchOHLCV(_ context.Context, _ string, _ time.Duration, since, until time.Time) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []types.Candle
	for _, c := range m.candles[:m.revealed] {
		if !since.IsZero() && c.CloseTime.Before(since) {
			continue
		}
		if !until.IsZero() && c.CloseTime.After(until) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MockMarket) FetchLatestOHLCV(context.Context, string, time.Duration) (types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return types.Candle{}, err
	}
	if m.revealed == 0 {
		return types.Candle{}, fmt.Errorf("no candles")
	}
	return m.candles[m.revealed-1], nil
}

func (m *MockMarket) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	c, err := m.FetchLatestOHLCV(ctx, symbol, 0)
	if err != nil {
		return 0, err
	}
	return c.C(), nil
}

// MockGateway is an in-memory order venue with scripted failures.
type MockGateway struct {
	mu       sync.Mutex
	Failures int
	Calls    int
	Orders   []types.Order
	Pos      types.ExchangePosition
	Bal      types.Balance
	// Reject makes PlaceOrder fail permanently.
	Reject bool
}

func (g *MockGateway) fail() error {
	g.Calls++
	if g.Failures > 0 {
		g.Failures--
		return fmt.Errorf("%w: transport", ErrInjected)
	}
	return nil
}

func (g *MockGateway) PlaceOrder(_ context.Context, o types.Order) (exchange.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Reject {
		g.Calls++
		return exchange.Confirmation{}, exchange.Permanent(fmt.Errorf("%w: rejected", ErrInjected))
	}
	if err := g.fail(); err != nil {
		return exchange.Confirmation{}, err
	}
	g.Orders = append(g.Orders, o)
	return exchange.Confirmation{
		OrderID: fmt.Sprintf("mock-%d", len(g.Orders)),
		Side:    o.Side,
		Qty:     o.Qty,
		Price:   o.Price,
	}, nil
}

func (g *MockGateway) GetPosition(context.Context, string) (types.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(); err != nil {
		return types.ExchangePosition{}, err
	}
	return g.Pos, nil
}

func (g *MockGateway) GetBalance(context.Context) (types.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(); err != nil {
		return types.Balance{}, err
	}
	return g.Bal, nil
}
