package testutils

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/evdnx/gopyra/types"
)

// ErrInjected is returned by mocks when a failure was scripted.
var ErrInjected = errors.New("testutils: injected failure")

// MockExecutor implements the Executor interface in-memory. Fills are
// immediate at the order price; no fees are charged.
type MockExecutor struct {
	mu       sync.RWMutex
	balance  float64
	position map[string]float64 // signed qty
	orders   []types.Order      // captured for assertions

	// FailNext makes the next n Submit calls fail.
	failNext int
	// hidePosition makes Position report flat regardless of fills.
	hidePosition bool
}

// NewMockExecutor creates a fresh executor with the supplied balance.
func NewMockExecutor(balance float64) *MockExecutor {
	return &MockExecutor{
		balance:  balance,
		position: make(map[string]float64),
	}
}

// FailNext scripts the next n submissions to fail with ErrInjected.
func (m *MockExecutor) FailNext(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// HidePosition makes the executor report no position, as a venue would
// after a liquidation the engine did not see.
func (m *MockExecutor) HidePosition(hide bool) {
	m.mu.Lock()
	m.hidePosition = hide
	m.mu.Unlock()
}

// Submit records the order and updates the signed position.
func (m *MockExecutor) Submit(_ context.Context, o types.Order) (types.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return types.Fill{}, ErrInjected
	}
	m.position[o.Symbol] += o.Side.Sign() * o.Qty
	m.orders = append(m.orders, o)
	return types.Fill{Side: o.Side, Qty: o.Qty, Price: o.Price}, nil
}

// Balance reports the fixed starting balance as fully free.
func (m *MockExecutor) Balance(context.Context) (types.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.Balance{Total: m.balance, Free: m.balance}, nil
}

// SetBalance changes the reported balance.
func (m *MockExecutor) SetBalance(b float64) {
	m.mu.Lock()
	m.balance = b
	m.mu.Unlock()
}

// Position returns side and absolute qty for a symbol.
func (m *MockExecutor) Position(_ context.Context, symbol string) (types.ExchangePosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.position[symbol]
	if m.hidePosition || q == 0 {
		return types.ExchangePosition{Side: types.None}, nil
	}
	side := types.Buy
	if q < 0 {
		side = types.Sell
	}
	return types.ExchangePosition{Side: side, Qty: math.Abs(q)}, nil
}

// Orders returns a copy of all submitted orders (useful for assertions).
func (m *MockExecutor) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}
