package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/types"
)

// Param is one swept parameter. Values wins over the From/To/Step range.
type Param struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
	From   float64   `yaml:"from"`
	To     float64   `yaml:"to"` // inclusive
	Step   float64   `yaml:"step"`
}

// Expand lists the values to try.
func (p Param) Expand() []float64 {
	if len(p.Values) > 0 {
		return p.Values
	}
	if p.Step <= 0 || p.To < p.From {
		return []float64{p.From}
	}
	n := int(math.Floor((p.To-p.From)/p.Step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		// round away the accumulated step error
		out[i] = math.Round((p.From+float64(i)*p.Step)*1e9) / 1e9
	}
	return out
}

// Grid is the cartesian product of its params, first param varying slowest.
type Grid []Param

// LoadGrid reads a YAML document of the form
//
//	params:
//	  - {name: buy_term, from: 10, to: 20, step: 1}
//	  - {name: stop_range, values: [2, 4, 6]}
func LoadGrid(path string) (Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Params Grid `yaml:"params"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("backtest: parse grid %s: %w", path, err)
	}
	return doc.Params, doc.Params.Validate()
}

// Validate rejects unknown parameter names.
func (g Grid) Validate() error {
	for _, p := range g {
		if _, ok := setters[p.Name]; !ok {
			return fmt.Errorf("backtest: unknown sweep parameter %q (known: %s)", p.Name, strings.Join(ParamNames(), ", "))
		}
	}
	return nil
}

// Size is the number of combinations.
func (g Grid) Size() int {
	n := 1
	for _, p := range g {
		n *= len(p.Expand())
	}
	return n
}

// Combinations enumerates every assignment in a stable order.
func (g Grid) Combinations() [][]ParamValue {
	out := [][]ParamValue{nil}
	for _, p := range g {
		vals := p.Expand()
		next := make([][]ParamValue, 0, len(out)*len(vals))
		for _, prefix := range out {
			for _, v := range vals {
				combo := append(append([]ParamValue(nil), prefix...), ParamValue{Name: p.Name, Value: v})
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

// ParamValue is one parameter assignment of a sweep row.
type ParamValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

var setters = map[string]func(*config.Config, float64){
	"buy_term":         func(c *config.Config, v float64) { c.Signal.BuyTerm = int(v) },
	"sell_term":        func(c *config.Config, v float64) { c.Signal.SellTerm = int(v) },
	"volatility_term":  func(c *config.Config, v float64) { c.Signal.VolatilityTerm = int(v) },
	"pivot_term":       func(c *config.Config, v float64) { c.Signal.PivotTerm = int(v) },
	"sma_fast_term":    func(c *config.Config, v float64) { c.Signal.SMAFastTerm = int(v) },
	"sma_slow_term":    func(c *config.Config, v float64) { c.Signal.SMASlowTerm = int(v) },
	"volatility_ratio": func(c *config.Config, v float64) { c.Signal.VolatilityRate = v },
	"stop_range":       func(c *config.Config, v float64) { c.Risk.StopRange = v },
	"risk_percentage":  func(c *config.Config, v float64) { c.Risk.RiskPercentage = v },
	"entry_times":      func(c *config.Config, v float64) { c.Risk.EntryTimes = int(v) },
	"entry_range":      func(c *config.Config, v float64) { c.Risk.EntryRange = v },
	"af_init":          func(c *config.Config, v float64) { c.Stop.AFInit = v },
	"af_step":          func(c *config.Config, v float64) { c.Stop.AFStep = v },
	"af_max":           func(c *config.Config, v float64) { c.Stop.AFMax = v },
	"psar_term":        func(c *config.Config, v float64) { c.Stop.PSARTerm = int(v) },
	"min_order_size":   func(c *config.Config, v float64) { c.Market.MinOrderSize = v },
}

// ParamNames lists the sweepable parameters.
func ParamNames() []string {
	out := make([]string, 0, len(setters))
	for k := range setters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Apply returns base with the assignment applied.
func Apply(base config.Config, combo []ParamValue) config.Config {
	cfg := base
	for _, pv := range combo {
		setters[pv.Name](&cfg, pv.Value)
	}
	return cfg
}

// SweepRow is the headline result of one combination. Err is set, and the
// figures are zero, when the combination is not a valid configuration or
// has too little history.
type SweepRow struct {
	Index        int          `json:"index"`
	Params       []ParamValue `json:"params"`
	RunID        string       `json:"run_id"`
	Trades       int          `json:"trades"`
	WinRate      float64      `json:"win_rate"`
	AvgReturn    float64      `json:"avg_return_pct"`
	MaxDrawdown  float64      `json:"max_drawdown"`
	ProfitFactor float64      `json:"profit_factor"`
	FinalFunds   float64      `json:"final_funds"`
	Err          string       `json:"error,omitempty"`
}

// Sweep runs one back-test per grid combination, at most parallel at a
// time. Each run stays sequential; only independent runs overlap. Rows
// come back in combination order. Only ctx cancellation or an engine error
// fails the sweep.
func Sweep(ctx context.Context, base config.Config, grid Grid, candles []types.Candle, parallel int, log logger.Logger) ([]SweepRow, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	if parallel < 1 {
		parallel = 1
	}
	combos := grid.Combinations()
	rows := make([]SweepRow, len(combos))
	log.Info("sweep_started", logger.Int("combinations", len(combos)), logger.Int("parallel", parallel))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, combo := range combos {
		g.Go(func() error {
			row := SweepRow{Index: i, Params: combo}
			sim, err := NewSimulator(Apply(base, combo), logger.NewNop())
			if err != nil {
				row.Err = err.Error()
				rows[i] = row
				return nil
			}
			res, err := sim.Run(gctx, candles)
			switch {
			case err == nil:
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, ErrInsufficientHistory):
				row.Err = err.Error()
				rows[i] = row
				return nil
			default:
				return fmt.Errorf("sweep combination %d: %w", i, err)
			}
			row.RunID = res.RunID
			row.Trades = res.Summary.Trades
			row.WinRate = res.Summary.WinRate
			row.AvgReturn = res.Summary.AvgReturn
			row.MaxDrawdown = res.Summary.MaxDrawdown
			row.ProfitFactor = res.Summary.ProfitFactor
			row.FinalFunds = res.Summary.FinalFunds
			rows[i] = row
			log.Debug("sweep_row", logger.Int("index", i), logger.Int("trades", row.Trades),
				logger.Float64("final_funds", row.FinalFunds))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("sweep_finished", logger.Int("combinations", len(rows)))
	return rows, nil
}

// FilterProfitable keeps the rows whose profit factor reaches minPF.
func FilterProfitable(rows []SweepRow, minPF float64) []SweepRow {
	var out []SweepRow
	for _, r := range rows {
		if r.Err == "" && r.ProfitFactor >= minPF {
			out = append(out, r)
		}
	}
	return out
}
