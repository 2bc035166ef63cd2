package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration problem reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Signal families selectable per side.
const (
	FamilyDonchian = "donchian"
	FamilyPivot    = "pivot"
	FamilySMACross = "sma_cross"
)

// Entry gates.
const (
	GateNone       = "none"
	GateVolatility = "volatility"
	GatePVO        = "pvo"
	GateVROC       = "vroc"
	GateRSI        = "rsi"
)

// Stop trailing modes.
const (
	StopPSAR    = "psar"
	StopFixedAF = "fixed_af"
	StopSMA     = "sma"
)

// Donchian tie-break policies.
const (
	TieBuyFirst  = "buy_first"
	TieSellFirst = "sell_first"
	TieNone      = "none"
)

// Config is the full parameter set of a run. It is read once at start-up
// and never mutated by the engine.
type Config struct {
	Market   Market   `yaml:"market"`
	Risk     Risk     `yaml:"risk"`
	Signal   Signal   `yaml:"signal"`
	Stop     Stop     `yaml:"stop"`
	Backtest Backtest `yaml:"backtest"`
	Exchange Exchange `yaml:"exchange"`
	Log      Log      `yaml:"log"`
	Store    Store    `yaml:"store"`
}

type Market struct {
	Symbol string `yaml:"symbol"`
	// Timeframe is the candle length in seconds.
	Timeframe         int     `yaml:"timeframe_sec"`
	PricePrecision    int32   `yaml:"price_precision"`
	QuantityPrecision int32   `yaml:"quantity_precision"`
	MinOrderSize      float64 `yaml:"min_order_size"`
	TickSize          float64 `yaml:"tick_size"`
}

// Risk holds the sizing and pyramiding parameters.
type Risk struct {
	RiskPercentage float64 `yaml:"risk_percentage"` // % of balance lost at the initial stop
	Leverage       float64 `yaml:"leverage"`
	EntryTimes     int     `yaml:"entry_times"` // total entries including the first one
	EntryRange     float64 `yaml:"entry_range"` // add trigger, in volatility units
	StopRange      float64 `yaml:"stop_range"`  // initial stop, in volatility units
	MinBalance     float64 `yaml:"min_balance"`
	// StopSlippage scales the volatility-proportional slip applied to stop exits.
	StopSlippage float64 `yaml:"stop_slippage"`
	// CostRate is charged on the exit notional of every closed trade.
	CostRate       float64 `yaml:"cost_rate"`
	FlipOnReversal bool    `yaml:"flip_on_reversal"`
}

type Signal struct {
	BuyFamily      string  `yaml:"buy_family"`
	SellFamily     string  `yaml:"sell_family"`
	BuyTerm        int     `yaml:"buy_term"`
	SellTerm       int     `yaml:"sell_term"`
	BuyJudgePrice  string  `yaml:"buy_judge_price"`  // close | high
	SellJudgePrice string  `yaml:"sell_judge_price"` // close | low
	TieBreak       string  `yaml:"tie_break"`
	VolatilityTerm int     `yaml:"volatility_term"`
	PivotTerm      int     `yaml:"pivot_term"`
	PivotBuyLine   string  `yaml:"pivot_buy_line"`  // S1 | S2
	PivotSellLine  string  `yaml:"pivot_sell_line"` // R1 | R2
	SMAFastTerm    int     `yaml:"sma_fast_term"`
	SMASlowTerm    int     `yaml:"sma_slow_term"`
	Gate           string  `yaml:"gate"`
	VolatilityRate float64 `yaml:"volatility_ratio"`
	PVOShortTerm   int     `yaml:"pvo_short_term"`
	PVOLongTerm    int     `yaml:"pvo_long_term"`
	PVOThreshold   float64 `yaml:"pvo_threshold"`
	VROCTerm       int     `yaml:"vroc_term"`
	VROCThreshold  float64 `yaml:"vroc_threshold"`
	RSIOverbought  float64 `yaml:"rsi_overbought"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
}

type Stop struct {
	Mode           string  `yaml:"mode"`
	AFInit         float64 `yaml:"af_init"`
	AFStep         float64 `yaml:"af_step"`
	AFMax          float64 `yaml:"af_max"`
	PSARTerm       int     `yaml:"psar_term"`
	SurgeThreshold float64 `yaml:"surge_threshold"` // unrealized profit ratio, 0 disables
	SurgeFraction  float64 `yaml:"surge_fraction"`
}

type Backtest struct {
	StartFunds float64   `yaml:"start_funds"`
	From       time.Time `yaml:"from"`
	To         time.Time `yaml:"to"`
	OutputDir  string    `yaml:"output_dir"`
	// Parallel bounds concurrent runs in a parameter sweep.
	Parallel int `yaml:"parallel"`
	// OutlierPct flags trades whose return exceeds ±OutlierPct.
	OutlierPct float64 `yaml:"outlier_pct"`
}

type Exchange struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	PollEvery  time.Duration `yaml:"poll_every"`
	// ProfitAlertPct raises one alert per position once its unrealized
	// profit reaches this share of the balance. Zero disables it.
	ProfitAlertPct float64 `yaml:"profit_alert_pct"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Store struct {
	DSN string `yaml:"dsn"`
}

// Default returns the reference parameter set (2h candles, 16-bar Donchian).
func Default() Config {
	return Config{
		Market: Market{
			Symbol:            "BTC/USD",
			Timeframe:         7200,
			PricePrecision:    0,
			QuantityPrecision: 7,
			MinOrderSize:      0.09,
			TickSize:          1,
		},
		Risk: Risk{
			RiskPercentage: 1.9,
			Leverage:       100,
			EntryTimes:     6,
			EntryRange:     2,
			StopRange:      4,
			MinBalance:     10,
			StopSlippage:   2,
			CostRate:       0.001,
		},
		Signal: Signal{
			BuyFamily:      FamilyDonchian,
			SellFamily:     FamilyDonchian,
			BuyTerm:        16,
			SellTerm:       16,
			BuyJudgePrice:  "close",
			SellJudgePrice: "close",
			TieBreak:       TieBuyFirst,
			VolatilityTerm: 5,
			PivotTerm:      1,
			PivotBuyLine:   "S2",
			PivotSellLine:  "R2",
			SMAFastTerm:    9,
			SMASlowTerm:    180,
			Gate:           GateVolatility,
			VolatilityRate: 0.1,
			PVOShortTerm:   12,
			PVOLongTerm:    26,
			PVOThreshold:   0,
			VROCTerm:       50,
			VROCThreshold:  200,
			RSIOverbought:  70,
			RSIOversold:    30,
		},
		Stop: Stop{
			Mode:     StopPSAR,
			AFInit:   0.01,
			AFStep:   0.15,
			AFMax:    0.20,
			PSARTerm: 30,
		},
		Backtest: Backtest{
			StartFunds: 1720,
			OutputDir:  "out",
			Parallel:   4,
			OutlierPct: 20,
		},
		Exchange: Exchange{
			MaxRetries: 2,
			RetryDelay: 60 * time.Second,
			PollEvery:  60 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads an optional .env file and a YAML file layered over Default,
// then applies GOPYRA_* environment overrides. An empty path skips YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
	str("GOPYRA_SYMBOL", &c.Market.Symbol)
	str("GOPYRA_LOG_LEVEL", &c.Log.Level)
	str("GOPYRA_STORE_DSN", &c.Store.DSN)
	str("GOPYRA_OUTPUT_DIR", &c.Backtest.OutputDir)
	num("GOPYRA_START_FUNDS", &c.Backtest.StartFunds)
	num("GOPYRA_RISK_PERCENTAGE", &c.Risk.RiskPercentage)
	num("GOPYRA_LEVERAGE", &c.Risk.Leverage)
	return errs
}

// WindowSize is the number of prior candles the enabled components need
// before the first decision can be taken.
func (c Config) WindowSize() int {
	w := c.Signal.VolatilityTerm
	grow := func(n int) {
		if n > w {
			w = n
		}
	}
	for _, fam := range []string{c.Signal.BuyFamily, c.Signal.SellFamily} {
		switch fam {
		case FamilyDonchian:
			grow(c.Signal.BuyTerm)
			grow(c.Signal.SellTerm)
		case FamilyPivot:
			grow(c.Signal.PivotTerm)
		case FamilySMACross:
			grow(c.Signal.SMAFastTerm)
			grow(c.Signal.SMASlowTerm)
		}
	}
	switch c.Signal.Gate {
	case GatePVO:
		grow(c.Signal.PVOLongTerm)
		grow(c.Signal.PVOShortTerm)
	case GateVROC:
		grow(c.Signal.VROCTerm)
	}
	switch c.Stop.Mode {
	case StopPSAR:
		grow(c.Stop.PSARTerm)
	case StopSMA:
		grow(c.Signal.SMASlowTerm)
	}
	return w
}

// Validate checks every field and reports all violations at once.
func (c Config) Validate() error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Market.Symbol == "" {
		add("market.symbol must be set")
	}
	if c.Market.Timeframe < 60 {
		add("market.timeframe_sec (%d) must be at least 60", c.Market.Timeframe)
	}
	if c.Market.PricePrecision < 0 || c.Market.QuantityPrecision < 0 {
		add("market precisions cannot be negative")
	}
	if c.Market.MinOrderSize < 0 {
		add("market.min_order_size cannot be negative")
	}
	if c.Market.TickSize <= 0 {
		add("market.tick_size must be positive")
	}

	if c.Risk.RiskPercentage <= 0 || c.Risk.RiskPercentage > 100 {
		add("risk.risk_percentage (%f) must be >0 and <=100", c.Risk.RiskPercentage)
	}
	if c.Risk.Leverage <= 0 {
		add("risk.leverage must be positive")
	}
	if c.Risk.EntryTimes < 1 {
		add("risk.entry_times (%d) must be at least 1", c.Risk.EntryTimes)
	}
	if c.Risk.EntryRange <= 0 {
		add("risk.entry_range must be positive")
	}
	if c.Risk.StopRange <= 0 {
		add("risk.stop_range must be positive")
	}
	if c.Risk.MinBalance < 0 {
		add("risk.min_balance cannot be negative")
	}
	if c.Risk.StopSlippage < 0 || c.Risk.CostRate < 0 || c.Risk.CostRate >= 1 {
		add("risk.stop_slippage and risk.cost_rate must be in range")
	}

	s := c.Signal
	for _, f := range [...]struct{ side, fam string }{{"buy", s.BuyFamily}, {"sell", s.SellFamily}} {
		switch f.fam {
		case FamilyDonchian, FamilyPivot, FamilySMACross:
		default:
			add("signal.%s_family %q unknown", f.side, f.fam)
		}
	}
	if s.BuyTerm < 1 || s.SellTerm < 1 {
		add("signal buy/sell terms must be positive")
	}
	if s.BuyJudgePrice != "close" && s.BuyJudgePrice != "high" {
		add("signal.buy_judge_price %q must be close or high", s.BuyJudgePrice)
	}
	if s.SellJudgePrice != "close" && s.SellJudgePrice != "low" {
		add("signal.sell_judge_price %q must be close or low", s.SellJudgePrice)
	}
	switch s.TieBreak {
	case TieBuyFirst, TieSellFirst, TieNone:
	default:
		add("signal.tie_break %q unknown", s.TieBreak)
	}
	if s.VolatilityTerm < 1 {
		add("signal.volatility_term must be positive")
	}
	if s.PivotTerm < 1 {
		add("signal.pivot_term must be positive")
	}
	if s.PivotBuyLine != "S1" && s.PivotBuyLine != "S2" {
		add("signal.pivot_buy_line %q must be S1 or S2", s.PivotBuyLine)
	}
	if s.PivotSellLine != "R1" && s.PivotSellLine != "R2" {
		add("signal.pivot_sell_line %q must be R1 or R2", s.PivotSellLine)
	}
	if s.SMAFastTerm < 1 || s.SMASlowTerm <= s.SMAFastTerm {
		add("signal sma terms (%d/%d) need 0 < fast < slow", s.SMAFastTerm, s.SMASlowTerm)
	}
	switch s.Gate {
	case GateNone, GateRSI:
	case GateVolatility:
		if s.VolatilityRate <= 0 {
			add("signal.volatility_ratio must be positive")
		}
	case GatePVO:
		if s.PVOShortTerm < 1 || s.PVOLongTerm <= s.PVOShortTerm {
			add("signal pvo terms (%d/%d) need 0 < short < long", s.PVOShortTerm, s.PVOLongTerm)
		}
	case GateVROC:
		if s.VROCTerm < 2 {
			add("signal.vroc_term must be at least 2")
		}
	default:
		add("signal.gate %q unknown", s.Gate)
	}
	if s.Gate == GateRSI && s.RSIOverbought <= s.RSIOversold {
		add("signal rsi overbought must exceed oversold")
	}

	switch c.Stop.Mode {
	case StopPSAR, StopFixedAF, StopSMA:
	default:
		add("stop.mode %q unknown", c.Stop.Mode)
	}
	if c.Stop.AFInit <= 0 || c.Stop.AFMax < c.Stop.AFInit || c.Stop.AFStep < 0 {
		add("stop acceleration factors need 0 < af_init <= af_max and af_step >= 0")
	}
	if c.Stop.Mode == StopPSAR && c.Stop.PSARTerm < 3 {
		add("stop.psar_term must be at least 3")
	}
	if c.Stop.SurgeThreshold < 0 || c.Stop.SurgeFraction < 0 || c.Stop.SurgeFraction >= 1 {
		add("stop surge threshold/fraction out of range")
	}
	if c.Stop.SurgeThreshold > 0 && c.Stop.SurgeFraction == 0 {
		add("stop.surge_fraction must be set when surge_threshold is")
	}

	if c.Backtest.StartFunds <= 0 {
		add("backtest.start_funds must be positive")
	}
	if !c.Backtest.From.IsZero() && !c.Backtest.To.IsZero() && !c.Backtest.From.Before(c.Backtest.To) {
		add("backtest.from must be before backtest.to")
	}
	if c.Exchange.PollEvery < 0 || c.Exchange.ProfitAlertPct < 0 {
		add("exchange poll interval and profit alert cannot be negative")
	}
	if c.Exchange.MaxRetries < 0 || c.Exchange.RetryDelay < 0 {
		add("exchange retry policy cannot be negative")
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, errs)
	}
	return nil
}

// ValidateHistory fails when fewer than WindowSize()+1 candles are available.
func (c Config) ValidateHistory(available int) error {
	need := c.WindowSize() + 1
	if available < need {
		return fmt.Errorf("%w: need at least %d candles, have %d", ErrInvalid, need, available)
	}
	return nil
}
