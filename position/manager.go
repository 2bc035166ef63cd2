package position

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/executor"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/metrics"
	"github.com/evdnx/gopyra/risk"
	"github.com/evdnx/gopyra/signal"
	"github.com/evdnx/gopyra/stop"
	"github.com/evdnx/gopyra/types"
)

// Action is one transition taken while processing a candle.
type Action string

const (
	ActionEntry    Action = "entry"
	ActionAdd      Action = "add"
	ActionStop     Action = "stop"
	ActionReversal Action = "reversal"
	ActionReset    Action = "reset"
	ActionSkip     Action = "skip"
)

const reasonBelowMinOrder = "below_min_order_size"

// Step reports what one candle did.
type Step struct {
	Time       time.Time
	Signal     types.Signal
	Volatility float64
	Actions    []Action
	SkipReason string
	Trade      *TradeRecord
	Position   Position // after the candle
}

// Alerter receives user-visible alerts (state inconsistencies).
type Alerter interface {
	Alert(ctx context.Context, msg string)
}

// LogAlerter raises alerts as error-level log lines.
type LogAlerter struct{ Log logger.Logger }

func (a LogAlerter) Alert(_ context.Context, msg string) {
	a.Log.Error("alert", logger.String("msg", msg))
}

// Manager owns the position and processes one candle at a time. Each
// transition submits its order first and commits state only after the fill,
// so a failed order leaves the position exactly as it was.
type Manager struct {
	symbol   string
	cfg      config.Config
	detector *signal.Detector
	gate     signal.Gate
	sizer    risk.Sizer
	stops    stop.Engine
	exec     executor.Executor
	log      logger.Logger
	alert    Alerter

	pos    Position
	ledger []TradeRecord
}

// NewManager validates cfg and builds the signal, gate, sizing and stop
// components it names.
func NewManager(cfg config.Config, exec executor.Executor, log logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := signal.DetectorFromConfig(cfg.Signal)
	if err != nil {
		return nil, err
	}
	gate, err := signal.GateFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	stops, err := stop.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		symbol:   cfg.Market.Symbol,
		cfg:      cfg,
		detector: det,
		gate:     gate,
		sizer:    risk.NewSizer(cfg),
		stops:    stops,
		exec:     exec,
		log:      log,
		alert:    LogAlerter{Log: log},
		pos:      flat(),
	}, nil
}

// SetAlerter replaces the default log alerter.
func (m *Manager) SetAlerter(a Alerter) { m.alert = a }

// SetGate replaces the configured entry gate.
func (m *Manager) SetGate(g signal.Gate) { m.gate = g }

// Position returns a copy of the current position.
func (m *Manager) Position() Position { return m.pos }

// Trades returns a copy of the closed-trade ledger.
func (m *Manager) Trades() []TradeRecord {
	out := make([]TradeRecord, len(m.ledger))
	copy(out, m.ledger)
	return out
}

// OnCandle processes in.Current against the closed history in.Window.
// While open the order is trail, stop check, reversal check, add; while
// flat it is the entry check. An error means the candle's action was
// aborted and the position was not changed by it.
func (m *Manager) OnCandle(ctx context.Context, in signal.Input) (Step, error) {
	if obs, ok := m.gate.(signal.Observer); ok {
		if err := obs.Observe(in.Current); err != nil {
			m.log.Warn("gate_observe_failed", logger.String("gate", m.gate.Name()), logger.Err(err))
		}
	}
	step := Step{
		Time:       in.Current.CloseTime,
		Signal:     m.detector.Evaluate(in),
		Volatility: indicator.Volatility(in.Window, m.cfg.Signal.VolatilityTerm, m.cfg.Market.PricePrecision),
	}

	var err error
	if !m.pos.IsFlat() {
		err = m.manageOpen(ctx, in, &step)
	} else {
		err = m.tryEntry(ctx, in, &step)
	}
	step.Position = m.pos
	metrics.PositionOpen.WithLabelValues(m.symbol).Set(boolGauge(!m.pos.IsFlat()))
	metrics.StopOffset.WithLabelValues(m.symbol).Set(m.pos.StopOffset)
	if err != nil {
		return step, err
	}
	if ierr := m.pos.Invariant(); ierr != nil {
		return step, ierr
	}
	return step, nil
}

// CheckStop runs only the stop check, against a candle that has not closed
// yet. It neither trails nor counts the candle; live trading calls it
// between closes so a crossed stop is not held until the bar completes.
func (m *Manager) CheckStop(ctx context.Context, in signal.Input) (Step, error) {
	step := Step{
		Time:       in.Current.CloseTime,
		Volatility: indicator.Volatility(in.Window, m.cfg.Signal.VolatilityTerm, m.cfg.Market.PricePrecision),
	}
	var err error
	if !m.pos.IsFlat() {
		if exit, hit := m.stopExit(m.pos, in.Current, step.Volatility); hit {
			err = m.close(ctx, m.pos, in.Current.CloseTime, exit, ExitStop, &step)
		}
	}
	step.Position = m.pos
	return step, err
}

func (m *Manager) manageOpen(ctx context.Context, in signal.Input, step *Step) error {
	next := m.pos
	next.Candles++

	// trail
	up := m.stops.Next(next.stopState(), stop.Input{Window: in.Window, Current: in.Current})
	if up.Tightened(next.StopOffset) {
		m.log.Debug("stop_trailed",
			logger.String("source", up.Source),
			logger.Float64("from", next.StopOffset),
			logger.Float64("to", up.Offset),
		)
	}
	next.StopOffset, next.StopAF, next.StopEP = up.Offset, up.AF, up.EP

	// stop check
	if exit, hit := m.stopExit(next, in.Current, step.Volatility); hit {
		return m.close(ctx, next, in.Current.CloseTime, exit, ExitStop, step)
	}

	// reversal check
	if step.Signal.Side == next.Side.Opposite() {
		ep, err := m.exec.Position(ctx, m.symbol)
		if err != nil {
			return fmt.Errorf("reversal: read venue position: %w", err)
		}
		if ep.Side != next.Side || ep.Qty <= 0 {
			m.reset(ctx, next, ep, step)
		} else if err := m.close(ctx, next, in.Current.CloseTime, in.Current.C(), ExitReversal, step); err != nil {
			return err
		}
		if m.cfg.Risk.FlipOnReversal {
			return m.tryEntry(ctx, in, step)
		}
		return nil
	}

	// add
	if next.AddCount < m.cfg.Risk.EntryTimes && m.favorableMove(next, in.Current.C()) > next.AddRange {
		return m.add(ctx, next, in, step)
	}

	m.pos = next
	return nil
}

// stopExit reports whether the candle's adverse extreme crossed the stop and
// the slipped exit price: stop -/+ StopSlippage * volatility / timeframe minutes.
func (m *Manager) stopExit(p Position, c types.Candle, vol float64) (float64, bool) {
	level := p.StopPrice()
	slip := m.cfg.Risk.StopSlippage * vol / (float64(m.cfg.Market.Timeframe) / 60)
	switch p.Side {
	case types.Buy:
		if c.L() < level {
			return level - slip, true
		}
	case types.Sell:
		if c.H() > level {
			return level + slip, true
		}
	}
	return 0, false
}

func (m *Manager) favorableMove(p Position, price float64) float64 {
	return p.Side.Sign() * (price - p.LastEntryPrice)
}

func (m *Manager) close(ctx context.Context, p Position, at time.Time, price float64, kind ExitKind, step *Step) error {
	fill, err := m.submit(ctx, types.Order{
		Symbol:     m.symbol,
		Side:       p.Side.Opposite(),
		Type:       types.Market,
		Qty:        p.Qty,
		Price:      price,
		Reason:     string(kind),
		ReduceOnly: true,
	})
	if err != nil {
		return err
	}
	tr := newTrade(p, at, fill.Price, fill.Fee, kind)
	m.ledger = append(m.ledger, tr)
	m.pos = flat()
	step.Trade = &tr
	if kind == ExitStop {
		step.Actions = append(step.Actions, ActionStop)
		m.log.Info("stop_triggered",
			logger.String("side", string(p.Side)),
			logger.Float64("stop_price", p.StopPrice()),
			logger.Float64("exit", fill.Price),
		)
	} else {
		step.Actions = append(step.Actions, ActionReversal)
	}
	metrics.TradesClosed.WithLabelValues(string(p.Side), string(kind)).Inc()
	m.log.Info("position_closed",
		logger.String("side", string(p.Side)),
		logger.String("exit_kind", string(kind)),
		logger.Float64("qty", p.Qty),
		logger.Float64("avg_price", p.AvgPrice),
		logger.Float64("exit_price", fill.Price),
		logger.Float64("profit", tr.Profit),
		logger.Int("candles", tr.Candles),
	)
	return nil
}

// reset drops a position the venue no longer reports. No trade is booked
// because the exit was never observed.
func (m *Manager) reset(ctx context.Context, p Position, ep types.ExchangePosition, step *Step) {
	m.pos = flat()
	step.Actions = append(step.Actions, ActionReset)
	metrics.StateResets.Inc()
	m.log.Error("state_inconsistent",
		logger.String("side", string(p.Side)),
		logger.Float64("qty", p.Qty),
		logger.String("venue_side", string(ep.Side)),
		logger.Float64("venue_qty", ep.Qty),
	)
	m.alert.Alert(ctx, fmt.Sprintf("%s: internal %s position of %v not found on the venue; reset to flat",
		m.symbol, p.Side, p.Qty))
}

func (m *Manager) add(ctx context.Context, next Position, in signal.Input, step *Step) error {
	price := in.Current.C()
	bal, err := m.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("add: read balance: %w", err)
	}
	sz := m.sizer.SizeAdd(bal.Total, price, next.UnitSize, next.AvgPrice, next.Qty)
	if !sz.Tradable(m.cfg.Market.MinOrderSize) {
		// the slot is used up even though nothing was bought
		next.AddCount++
		m.skip(step, skipReason(sz), "add")
		m.pos = next
		return nil
	}
	fill, err := m.submit(ctx, types.Order{
		Symbol: m.symbol,
		Side:   next.Side,
		Type:   types.Market,
		Qty:    sz.Qty,
		Price:  price,
		Reason: string(ActionAdd),
	})
	if err != nil {
		return err
	}
	qty := next.Qty + fill.Qty
	next.AvgPrice = (next.AvgPrice*next.Qty + fill.Price*fill.Qty) / qty
	next.Qty = qty
	next.AddCount++
	next.LastEntryPrice = fill.Price

	// re-trail against the new average
	up := m.stops.Next(next.stopState(), stop.Input{Window: in.Window, Current: in.Current})
	next.StopOffset, next.StopAF, next.StopEP = up.Offset, up.AF, up.EP

	m.pos = next
	step.Actions = append(step.Actions, ActionAdd)
	m.log.Info("position_added",
		logger.String("side", string(next.Side)),
		logger.Int("entry", next.AddCount),
		logger.Float64("qty", fill.Qty),
		logger.Float64("price", fill.Price),
		logger.Float64("avg_price", next.AvgPrice),
		logger.Float64("stop_price", next.StopPrice()),
	)
	return nil
}

func (m *Manager) tryEntry(ctx context.Context, in signal.Input, step *Step) error {
	sig := step.Signal
	if !sig.Fired() {
		return nil
	}
	price := in.Current.C()
	bal, err := m.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("entry: read balance: %w", err)
	}
	sz := m.sizer.SizePosition(bal.Total, price, step.Volatility)
	if !sz.Tradable(m.cfg.Market.MinOrderSize) {
		m.skip(step, skipReason(sz), "entry")
		return nil
	}
	if ok, reason := m.gate.Allow(in, sig); !ok {
		m.skip(step, m.gate.Name(), "entry", logger.String("detail", reason))
		return nil
	}
	fill, err := m.submit(ctx, types.Order{
		Symbol: m.symbol,
		Side:   sig.Side,
		Type:   types.Market,
		Qty:    sz.Qty,
		Price:  price,
		Reason: string(ActionEntry),
	})
	if err != nil {
		return err
	}
	m.pos = Position{
		Side:           sig.Side,
		Qty:            fill.Qty,
		AvgPrice:       fill.Price,
		StopOffset:     sz.StopDistance,
		StopAF:         m.cfg.Stop.AFInit,
		AddCount:       1,
		LastEntryPrice: fill.Price,
		UnitSize:       sz.UnitSize,
		AddRange:       sz.AddRange,
		OpenedAt:       in.Current.CloseTime,
	}
	step.Actions = append(step.Actions, ActionEntry)
	m.log.Info("position_opened",
		logger.String("side", string(sig.Side)),
		logger.String("signal", sig.Source),
		logger.Float64("qty", fill.Qty),
		logger.Float64("price", fill.Price),
		logger.Float64("stop_price", m.pos.StopPrice()),
		logger.Float64("unit_size", sz.UnitSize),
		logger.Float64("volatility", sz.Volatility),
	)
	return nil
}

func (m *Manager) skip(step *Step, reason, what string, extra ...logger.Field) {
	step.Actions = append(step.Actions, ActionSkip)
	step.SkipReason = reason
	metrics.EntriesSkipped.WithLabelValues(reason).Inc()
	fields := append([]logger.Field{logger.String("what", what), logger.String("reason", reason)}, extra...)
	m.log.Info("entry_skipped", fields...)
}

func skipReason(sz risk.Sizing) string {
	if sz.Reason != "" {
		return sz.Reason
	}
	return reasonBelowMinOrder
}

// submit is a thin wrapper that records metrics and logs.
func (m *Manager) submit(ctx context.Context, o types.Order) (types.Fill, error) {
	fill, err := m.exec.Submit(ctx, o)
	if err != nil {
		metrics.OrdersFailed.WithLabelValues(o.Reason).Inc()
		m.log.Error("order_submit_failed",
			logger.String("symbol", o.Symbol),
			logger.String("side", string(o.Side)),
			logger.Float64("qty", o.Qty),
			logger.String("reason", o.Reason),
			logger.Err(err),
		)
		return fill, fmt.Errorf("%s order: %w", o.Reason, err)
	}
	m.log.Info("order_submitted",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.Float64("qty", fill.Qty),
		logger.Float64("price", fill.Price),
		logger.String("reason", o.Reason),
	)
	metrics.OrdersSubmitted.WithLabelValues(string(o.Side), o.Reason).Inc()
	return fill, nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
