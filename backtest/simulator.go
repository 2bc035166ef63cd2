// Package backtest replays historical candles through the position manager
// against a paper venue, and runs parameter sweeps of such replays.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/gopyra/analytics"
	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/executor"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/position"
	"github.com/evdnx/gopyra/signal"
	"github.com/evdnx/gopyra/types"
)

// ErrInsufficientHistory is returned when the candles (after date filtering)
// do not cover the warm-up window plus one decision candle.
var ErrInsufficientHistory = errors.New("backtest: insufficient history")

// ChartRow is the state of the run after one processed candle. Indicator
// columns that are unavailable for the window are NaN.
type ChartRow struct {
	Time          time.Time  `json:"time"`
	Close         float64    `json:"close"`
	Volume        float64    `json:"volume"`
	Volatility    float64    `json:"volatility"`
	DonchianHigh  float64    `json:"donchian_high"`
	DonchianLow   float64    `json:"donchian_low"`
	Pivot         float64    `json:"pivot"`
	R1, R2, R3    float64    `json:"-"`
	S1, S2, S3    float64    `json:"-"`
	SMAFast       float64    `json:"sma_fast"`
	SMASlow       float64    `json:"sma_slow"`
	VROC          float64    `json:"vroc"`
	Side          types.Side `json:"side"`
	Qty           float64    `json:"qty"`
	PositionPrice float64    `json:"position_price"`
	StopPrice     float64    `json:"stop_price"`
	Actions       string     `json:"actions"`
}

// Result is one complete replay.
type Result struct {
	RunID   string                 `json:"run_id"`
	Config  config.Config          `json:"-"`
	Start   time.Time              `json:"start"`
	End     time.Time              `json:"end"`
	Trades  []position.TradeRecord `json:"trades"`
	Chart   []ChartRow             `json:"-"`
	Summary analytics.Summary      `json:"summary"`
	// Open is the position left open after the last candle; it is not
	// part of the ledger.
	Open position.Position `json:"open_position"`
	// Aborted counts candles whose action the paper venue refused.
	Aborted int `json:"aborted"`
}

// Simulator replays candles for one configuration.
type Simulator struct {
	cfg config.Config
	log logger.Logger
}

// NewSimulator validates cfg. A nil log discards output.
func NewSimulator(cfg config.Config, log logger.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Simulator{cfg: cfg, log: log}, nil
}

// Run cleans and date-filters candles, warms up on the first WindowSize()
// candles and then feeds every remaining candle, with the WindowSize()
// candles before it as history, to a fresh position manager. The run is
// sequential and deterministic; ctx is checked between candles.
func (s *Simulator) Run(ctx context.Context, candles []types.Candle) (Result, error) {
	cfg := s.cfg
	series := candle.Filter(candle.Clean(candles), cfg.Backtest.From, cfg.Backtest.To)
	if err := cfg.ValidateHistory(len(series)); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInsufficientHistory, err)
	}

	paper := executor.NewPaperExecutor(cfg.Backtest.StartFunds, cfg.Risk.Leverage, cfg.Risk.CostRate, s.log)
	mgr, err := position.NewManager(cfg, paper, s.log)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:  uuid.New().String(),
		Config: cfg,
		Start:  series[0].CloseTime,
		End:    series[len(series)-1].CloseTime,
	}
	w := cfg.WindowSize()
	s.log.Info("backtest_started",
		logger.String("run_id", res.RunID),
		logger.String("symbol", cfg.Market.Symbol),
		logger.Int("candles", len(series)),
		logger.Int("warmup", w),
	)

	res.Chart = make([]ChartRow, 0, len(series)-w)
	for i := w; i < len(series); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		in := signal.Input{Window: series[i-w : i], Current: series[i]}
		step, err := mgr.OnCandle(ctx, in)
		if err != nil {
			if !errors.Is(err, executor.ErrInsufficientMargin) {
				return Result{}, fmt.Errorf("backtest: candle %s: %w", in.Current.CloseTime.Format(time.RFC3339), err)
			}
			// the venue refused; the candle's action is dropped
			res.Aborted++
			s.log.Warn("candle_aborted",
				logger.Time("close_time", in.Current.CloseTime),
				logger.Err(err),
			)
		}
		res.Chart = append(res.Chart, s.chartRow(in, step))
	}

	res.Trades = mgr.Trades()
	res.Open = mgr.Position()
	res.Summary = analytics.Compute(res.Trades, res.Start, res.End, cfg.Backtest.StartFunds, cfg.Backtest.OutlierPct)
	s.log.Info("backtest_finished",
		logger.String("run_id", res.RunID),
		logger.Int("trades", res.Summary.Trades),
		logger.Float64("win_rate", res.Summary.WinRate),
		logger.Float64("final_funds", res.Summary.FinalFunds),
		logger.Float64("max_drawdown", res.Summary.MaxDrawdown),
		logger.Float64("fees", paper.Fees()),
	)
	return res, nil
}

func (s *Simulator) chartRow(in signal.Input, st position.Step) ChartRow {
	sc := s.cfg.Signal
	nan := math.NaN()
	row := ChartRow{
		Time:         in.Current.CloseTime,
		Close:        in.Current.C(),
		Volume:       in.Current.V(),
		Volatility:   st.Volatility,
		DonchianHigh: nan, DonchianLow: nan,
		Pivot: nan, R1: nan, R2: nan, R3: nan, S1: nan, S2: nan, S3: nan,
		SMAFast: nan, SMASlow: nan, VROC: nan,
		Side:    st.Position.Side,
		Qty:     st.Position.Qty,
	}
	if hi, lo, ok := indicator.Donchian(in.Window, sc.BuyTerm, sc.SellTerm); ok {
		row.DonchianHigh, row.DonchianLow = hi, lo
	}
	if lv, ok := indicator.Pivot(in.Window, sc.PivotTerm); ok {
		row.Pivot, row.R1, row.R2, row.R3 = lv.P, lv.R1, lv.R2, lv.R3
		row.S1, row.S2, row.S3 = lv.S1, lv.S2, lv.S3
	}
	closes := candle.Closes(in.Window)
	if v, ok := indicator.SMAWithCurrent(closes, sc.SMAFastTerm, in.Current.C()); ok {
		row.SMAFast = v
	}
	if v, ok := indicator.SMAWithCurrent(closes, sc.SMASlowTerm, in.Current.C()); ok {
		row.SMASlow = v
	}
	if v, ok := indicator.VROC(candle.Volumes(in.Window), sc.VROCTerm, in.Current.V()); ok {
		row.VROC = v
	}
	if !st.Position.IsFlat() {
		row.PositionPrice = st.Position.AvgPrice
		row.StopPrice = st.Position.StopPrice()
	}
	for i, a := range st.Actions {
		if i > 0 {
			row.Actions += "+"
		}
		row.Actions += string(a)
	}
	return row
}
