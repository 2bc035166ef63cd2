package signal

import (
	"fmt"

	"github.com/evdnx/goti"

	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/indicator"
	"github.com/evdnx/gopyra/types"
)

// Gate authorizes entries. It is never consulted for exits.
type Gate interface {
	Name() string
	Allow(in Input, sig types.Signal) (ok bool, reason string)
}

// Observer is implemented by gates that keep their own indicator state and
// must see every candle, whether or not an entry is being considered.
type Observer interface {
	Observe(c types.Candle) error
}

// OpenGate lets every signal through.
type OpenGate struct{}

func (OpenGate) Name() string { return config.GateNone }

func (OpenGate) Allow(Input, types.Signal) (bool, string) { return true, "" }

// VolatilityRatioGate allows entries while volatility/close is at or under
// MaxRatio, i.e. when the market is quiet enough for a breakout to matter.
type VolatilityRatioGate struct {
	Term      int
	Precision int32
	MaxRatio  float64
}

func (g VolatilityRatioGate) Name() string { return config.GateVolatility }

func (g VolatilityRatioGate) Allow(in Input, _ types.Signal) (bool, string) {
	close := in.Current.C()
	if close <= 0 {
		return false, "invalid_close"
	}
	ratio := indicator.Volatility(in.Window, g.Term, g.Precision) / close
	if ratio <= g.MaxRatio {
		return true, ""
	}
	return false, fmt.Sprintf("volatility_ratio %.7f above %.7f", ratio, g.MaxRatio)
}

// PVOGate requires the percentage volume oscillator, including the current
// candle's volume, to exceed Threshold.
type PVOGate struct {
	Short, Long int
	Threshold   float64
}

func (g PVOGate) Name() string { return config.GatePVO }

func (g PVOGate) Allow(in Input, _ types.Signal) (bool, string) {
	n := g.Long
	if g.Short > n {
		n = g.Short
	}
	hist := in.Window
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	vols := append(candle.Volumes(hist), in.Current.V())
	pvo, ok := indicator.PVO(vols, g.Short, g.Long)
	if !ok {
		return false, "pvo_unavailable"
	}
	if pvo > g.Threshold {
		return true, ""
	}
	return false, fmt.Sprintf("pvo %.2f not above %.2f", pvo, g.Threshold)
}

// VROCGate requires the volume rate of change to exceed Threshold percent.
type VROCGate struct {
	Term      int
	Threshold float64
}

func (g VROCGate) Name() string { return config.GateVROC }

func (g VROCGate) Allow(in Input, _ types.Signal) (bool, string) {
	v, ok := indicator.VROC(candle.Volumes(in.Window), g.Term, in.Current.V())
	if !ok {
		return false, "vroc_unavailable"
	}
	if v > g.Threshold {
		return true, ""
	}
	return false, fmt.Sprintf("vroc %.2f not above %.2f", v, g.Threshold)
}

// RSIGate blocks buying into an overbought market and selling into an
// oversold one. It keeps a goti indicator suite fed through Observe.
type RSIGate struct {
	suite      *goti.IndicatorSuite
	overbought float64
	oversold   float64
}

// NewRSIGate creates the gate and its indicator suite.
func NewRSIGate(overbought, oversold float64) (*RSIGate, error) {
	ic := goti.DefaultConfig()
	ic.RSIOverbought = overbought
	ic.RSIOversold = oversold
	suite, err := goti.NewIndicatorSuiteWithConfig(ic)
	if err != nil {
		return nil, fmt.Errorf("rsi gate: %w", err)
	}
	return &RSIGate{suite: suite, overbought: overbought, oversold: oversold}, nil
}

func (g *RSIGate) Name() string { return config.GateRSI }

func (g *RSIGate) Observe(c types.Candle) error {
	return g.suite.Add(c.H(), c.L(), c.C(), c.V())
}

func (g *RSIGate) Allow(_ Input, sig types.Signal) (bool, string) {
	rsi, err := g.suite.GetRSI().Calculate()
	if err != nil {
		return false, "rsi_unavailable"
	}
	switch sig.Side {
	case types.Buy:
		if rsi >= g.overbought {
			return false, fmt.Sprintf("rsi %.1f overbought", rsi)
		}
	case types.Sell:
		if rsi <= g.oversold {
			return false, fmt.Sprintf("rsi %.1f oversold", rsi)
		}
	}
	return true, ""
}

// GateFromConfig builds the configured entry gate.
func GateFromConfig(cfg config.Config) (Gate, error) {
	s := cfg.Signal
	switch s.Gate {
	case config.GateNone, "":
		return OpenGate{}, nil
	case config.GateVolatility:
		return VolatilityRatioGate{Term: s.VolatilityTerm, Precision: cfg.Market.PricePrecision, MaxRatio: s.VolatilityRate}, nil
	case config.GatePVO:
		return PVOGate{Short: s.PVOShortTerm, Long: s.PVOLongTerm, Threshold: s.PVOThreshold}, nil
	case config.GateVROC:
		return VROCGate{Term: s.VROCTerm, Threshold: s.VROCThreshold}, nil
	case config.GateRSI:
		return NewRSIGate(s.RSIOverbought, s.RSIOversold)
	}
	return nil, fmt.Errorf("signal: unknown gate %q", s.Gate)
}
