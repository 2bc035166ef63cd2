// Package live drives the position manager from a real venue: it polls for
// newly closed candles, processes each exactly once, and checks the stop
// against the forming candle in between.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/exchange"
	"github.com/evdnx/gopyra/executor"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/position"
	"github.com/evdnx/gopyra/signal"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Trader is the poll loop. It is not safe for concurrent use; Run owns it.
type Trader struct {
	cfg    config.Config
	market exchange.MarketData
	exec   executor.Executor
	mgr    *position.Manager
	log    logger.Logger
	alert  position.Alerter
	sleep  Sleeper
	now    func() time.Time

	window        int
	history       *candle.Series
	last          time.Time
	processed     int
	profitAlerted bool
}

// NewTrader wraps market and gw in the configured retry policy and builds
// the position manager on top of the gateway.
func NewTrader(cfg config.Config, market exchange.MarketData, gw exchange.Gateway, log logger.Logger) (*Trader, error) {
	if log == nil {
		log = logger.NewNop()
	}
	policy := exchange.PolicyFromConfig(cfg.Exchange)
	exec := executor.GatewayExecutor{Gateway: exchange.RetryingGateway{Inner: gw, Policy: policy, Log: log}}
	mgr, err := position.NewManager(cfg, exec, log)
	if err != nil {
		return nil, err
	}
	w := cfg.WindowSize()
	alert := position.LogAlerter{Log: log}
	return &Trader{
		cfg:     cfg,
		market:  exchange.RetryingMarket{Inner: market, Policy: policy, Log: log},
		exec:    exec,
		mgr:     mgr,
		log:     log,
		alert:   alert,
		sleep:   SleepContext,
		now:     time.Now,
		window:  w,
		history: candle.NewSeries(w),
	}, nil
}

// SetSleeper replaces the real sleep, for tests.
func (t *Trader) SetSleeper(s Sleeper) { t.sleep = s }

// SetAlerter routes state and profit alerts to a.
func (t *Trader) SetAlerter(a position.Alerter) {
	t.alert = a
	t.mgr.SetAlerter(a)
}

// Manager exposes the position manager for inspection.
func (t *Trader) Manager() *position.Manager { return t.mgr }

// Processed is the number of closed candles handed to the manager.
func (t *Trader) Processed() int { return t.processed }

func (t *Trader) timeframe() time.Duration {
	return time.Duration(t.cfg.Market.Timeframe) * time.Second
}

// Run polls until ctx is cancelled. Transport and order failures are
// logged and the loop carries on with the next poll.
func (t *Trader) Run(ctx context.Context) error {
	t.log.Info("trader_started",
		logger.String("symbol", t.cfg.Market.Symbol),
		logger.Int("window", t.window),
		logger.String("poll_every", t.cfg.Exchange.PollEvery.String()),
	)
	for {
		if _, err := t.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Error("poll_failed", logger.Err(err))
		}
		if err := t.sleep(ctx, t.cfg.Exchange.PollEvery); err != nil {
			break
		}
	}
	t.log.Info("trader_stopped", logger.Int("processed", t.processed))
	return nil
}

// Poll fetches closed candles newer than the last one seen and processes
// them in order. On the first poll everything but the most recent closed
// candle only fills the history, so a restart never trades a stale bar.
// It returns how many candles reached the manager.
func (t *Trader) Poll(ctx context.Context) (int, error) {
	since := t.last
	if since.IsZero() {
		since = t.now().Add(-time.Duration(t.window+2) * t.timeframe())
	}
	raw, err := t.market.FetchOHLCV(ctx, t.cfg.Market.Symbol, t.timeframe(), since, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("fetch candles: %w", err)
	}
	n := 0
	startup := t.last.IsZero()
	fresh := candle.Clean(raw)
	for i, c := range fresh {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !c.CloseTime.After(t.last) {
			continue
		}
		if t.history.Len() >= t.window && (!startup || i == len(fresh)-1) {
			in := signal.Input{Window: t.history.Window(t.window), Current: c}
			if _, err := t.mgr.OnCandle(ctx, in); err != nil {
				// the candle's action is aborted; it is not retried
				t.log.Error("candle_failed", logger.Time("close_time", c.CloseTime), logger.Err(err))
			}
			n++
			t.processed++
		}
		if err := t.history.Append(c); err != nil {
			return n, err
		}
		t.last = c.CloseTime
	}
	if n == 0 {
		t.log.Debug("no_new_candle", logger.Time("last", t.last))
	}
	if err := t.watchOpen(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// watchOpen checks the stop against the forming candle and raises the
// one-shot profit alert.
func (t *Trader) watchOpen(ctx context.Context) error {
	pos := t.mgr.Position()
	if pos.IsFlat() {
		t.profitAlerted = false
		return nil
	}
	if t.history.Len() < t.window {
		return nil
	}
	latest, err := t.market.FetchLatestOHLCV(ctx, t.cfg.Market.Symbol, t.timeframe())
	if err != nil {
		return fmt.Errorf("fetch forming candle: %w", err)
	}
	// a closed candle was already stop-checked by OnCandle
	if !latest.IsZero() && latest.CloseTime.After(t.last) {
		st, err := t.mgr.CheckStop(ctx, signal.Input{Window: t.history.Window(t.window), Current: latest})
		if err != nil {
			return fmt.Errorf("intrabar stop: %w", err)
		}
		if st.Trade != nil {
			t.profitAlerted = false
			return nil
		}
	}
	return t.profitAlert(ctx, pos)
}

func (t *Trader) profitAlert(ctx context.Context, pos position.Position) error {
	if t.cfg.Exchange.ProfitAlertPct <= 0 || t.profitAlerted {
		return nil
	}
	price, err := t.market.FetchTicker(ctx, t.cfg.Market.Symbol)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	bal, err := t.exec.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if bal.Total <= 0 {
		return errors.New("live: non-positive balance")
	}
	profit := pos.Side.Sign()*(price-pos.AvgPrice)*pos.Qty - price*pos.Qty*t.cfg.Risk.CostRate
	pct := profit / bal.Total * 100
	if pct < t.cfg.Exchange.ProfitAlertPct {
		return nil
	}
	t.profitAlerted = true
	t.alert.Alert(ctx, fmt.Sprintf("%s %s position up %.1f%% of balance (profit %.2f at %.2f)",
		t.cfg.Market.Symbol, pos.Side, pct, profit, price))
	return nil
}
