package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/evdnx/gopyra/exchange"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/metrics"
	"github.com/evdnx/gopyra/types"
)

var (
	ErrZeroQty            = errors.New("executor: order quantity must be positive")
	ErrInsufficientMargin = errors.New("executor: insufficient margin")
)

// Executor fills orders and reports account state. Submit either fills the
// whole order or returns an error; partial fills are not modelled.
type Executor interface {
	Submit(ctx context.Context, o types.Order) (types.Fill, error)
	Balance(ctx context.Context) (types.Balance, error)
	Position(ctx context.Context, symbol string) (types.ExchangePosition, error)
}

type book struct {
	qty float64 // signed: positive = long, negative = short
	avg float64
}

// PaperExecutor is the back-test venue: fills at the order price, charges
// CostRate on the notional of every reducing fill and books realized P&L
// into the balance.
type PaperExecutor struct {
	mu        sync.Mutex
	start     float64
	realized  float64
	fees      float64
	leverage  float64
	costRate  float64
	positions map[string]*book
	log       logger.Logger
}

// NewPaperExecutor creates a paper venue with startFunds of collateral.
func NewPaperExecutor(startFunds, leverage, costRate float64, log logger.Logger) *PaperExecutor {
	if leverage <= 0 {
		leverage = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PaperExecutor{
		start:     startFunds,
		leverage:  leverage,
		costRate:  costRate,
		positions: make(map[string]*book),
		log:       log,
	}
}

func (p *PaperExecutor) Submit(_ context.Context, o types.Order) (types.Fill, error) {
	if o.Qty <= 0 {
		return types.Fill{}, ErrZeroQty
	}
	if !o.Side.Valid() {
		return types.Fill{}, fmt.Errorf("executor: invalid side %q", o.Side)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.positions[o.Symbol]
	if b == nil {
		b = &book{}
		p.positions[o.Symbol] = b
	}
	delta := o.Side.Sign() * o.Qty
	fill := types.Fill{Side: o.Side, Qty: o.Qty, Price: o.Price}

	switch {
	case b.qty == 0 || math.Signbit(b.qty) == math.Signbit(delta):
		// opening or adding
		equity := p.start + p.realized
		used := math.Abs(b.qty) * b.avg / p.leverage
		need := o.Qty * o.Price / p.leverage
		if used+need > equity*(1+1e-9) {
			return types.Fill{}, fmt.Errorf("%w: need %.4f, free %.4f", ErrInsufficientMargin, need, equity-used)
		}
		newQty := b.qty + delta
		b.avg = (b.avg*math.Abs(b.qty) + o.Price*o.Qty) / math.Abs(newQty)
		b.qty = newQty
	default:
		// reducing, possibly flipping
		closed := math.Min(math.Abs(b.qty), o.Qty)
		dir := 1.0
		if b.qty < 0 {
			dir = -1
		}
		pnl := dir * (o.Price - b.avg) * closed
		fee := o.Price * closed * p.costRate
		p.realized += pnl - fee
		p.fees += fee
		fill.Fee = fee
		b.qty += delta
		if math.Abs(b.qty) < 1e-12 {
			b.qty, b.avg = 0, 0
		} else if math.Signbit(b.qty) != math.Signbit(-delta) {
			// the remainder opened a position on the other side
			b.avg = o.Price
		}
	}

	metrics.EquityGauge.Set(p.start + p.realized)
	p.log.Debug("paper_fill",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Float64("fee", fill.Fee),
		logger.Float64("equity", p.start+p.realized),
	)
	return fill, nil
}

// Balance reports collateral: Total is start funds plus realized P&L, Used
// is the margin held by open positions.
func (p *PaperExecutor) Balance(context.Context) (types.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := 0.0
	for _, b := range p.positions {
		used += math.Abs(b.qty) * b.avg / p.leverage
	}
	total := p.start + p.realized
	return types.Balance{Total: total, Used: used, Free: total - used}, nil
}

func (p *PaperExecutor) Position(_ context.Context, symbol string) (types.ExchangePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.positions[symbol]
	if b == nil || b.qty == 0 {
		return types.ExchangePosition{Side: types.None}, nil
	}
	side := types.Buy
	if b.qty < 0 {
		side = types.Sell
	}
	return types.ExchangePosition{Side: side, Qty: math.Abs(b.qty)}, nil
}

// Fees returns the total cost charged so far.
func (p *PaperExecutor) Fees() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fees
}

// GatewayExecutor forwards orders to a live venue.
type GatewayExecutor struct {
	Gateway exchange.Gateway
}

func (g GatewayExecutor) Submit(ctx context.Context, o types.Order) (types.Fill, error) {
	if o.Qty <= 0 {
		return types.Fill{}, ErrZeroQty
	}
	conf, err := g.Gateway.PlaceOrder(ctx, o)
	if err != nil {
		return types.Fill{}, err
	}
	price := conf.Price
	if price == 0 {
		price = o.Price
	}
	qty := conf.Qty
	if qty == 0 {
		qty = o.Qty
	}
	return types.Fill{Side: o.Side, Qty: qty, Price: price, Fee: conf.Fee}, nil
}

func (g GatewayExecutor) Balance(ctx context.Context) (types.Balance, error) {
	return g.Gateway.GetBalance(ctx)
}

func (g GatewayExecutor) Position(ctx context.Context, symbol string) (types.ExchangePosition, error) {
	return g.Gateway.GetPosition(ctx, symbol)
}
