package signal

import (
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/types"
)

// Detector combines the BUY family and the SELL family into one decision
// per candle.
type Detector struct {
	buy, sell  Family
	strategies map[Family]Strategy
}

// NewDetector wires one strategy per side. When both sides use the same
// family the buy-side instance is shared so stateful families see each
// candle once.
func NewDetector(buy, sell Strategy) *Detector {
	d := &Detector{
		buy:        buy.Family(),
		sell:       sell.Family(),
		strategies: map[Family]Strategy{buy.Family(): buy},
	}
	if _, ok := d.strategies[sell.Family()]; !ok {
		d.strategies[sell.Family()] = sell
	}
	return d
}

// DetectorFromConfig builds the detector named by the signal section.
func DetectorFromConfig(cfg config.Signal) (*Detector, error) {
	buy, err := NewStrategy(Family(cfg.BuyFamily), cfg)
	if err != nil {
		return nil, err
	}
	sell := buy
	if cfg.SellFamily != cfg.BuyFamily {
		if sell, err = NewStrategy(Family(cfg.SellFamily), cfg); err != nil {
			return nil, err
		}
	}
	return NewDetector(buy, sell), nil
}

// Evaluate runs every configured family once and returns the first signal,
// in the order Donchian, Pivot, SMA cross, whose side is driven by that
// family.
func (d *Detector) Evaluate(in Input) types.Signal {
	results := make(map[Family]types.Signal, len(d.strategies))
	for _, f := range priority {
		if s, ok := d.strategies[f]; ok {
			results[f] = s.Evaluate(in)
		}
	}
	for _, f := range priority {
		sig, ok := results[f]
		if !ok {
			continue
		}
		if (sig.Side == types.Buy && d.buy == f) || (sig.Side == types.Sell && d.sell == f) {
			return sig
		}
	}
	return types.NoSignal
}
