// Package analytics reduces a closed-trade ledger to performance figures.
// Every function here is pure: the same ledger always yields the same
// Summary.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/evdnx/gopyra/position"
	"github.com/evdnx/gopyra/types"
)

// EquityPoint is the account after one closed trade.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Funds       float64   `json:"funds"`
	Drawdown    float64   `json:"drawdown"`     // cummax(funds) - funds
	DrawdownPct float64   `json:"drawdown_pct"` // drawdown / cummax(funds) * 100
}

// SideStats summarizes the trades of one side.
type SideStats struct {
	Trades     int     `json:"trades"`
	WinRate    float64 `json:"win_rate"`
	AvgReturn  float64 `json:"avg_return_pct"`
	Profit     float64 `json:"profit"`
	AvgCandles float64 `json:"avg_candles"`
	Stops      int     `json:"stops"`
}

// MonthSummary groups trades by the calendar month (UTC) they closed in.
type MonthSummary struct {
	Month       time.Time `json:"month"`
	Trades      int       `json:"trades"`
	Profit      float64   `json:"profit"`
	AvgReturn   float64   `json:"avg_return_pct"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Funds       float64   `json:"funds"` // at the month's last trade
	AvgCandles  float64   `json:"avg_candles"`
}

// Summary is the full set of figures for one run.
type Summary struct {
	Trades     int       `json:"trades"`
	WinRate    float64   `json:"win_rate"`
	AvgReturn  float64   `json:"avg_return_pct"`
	AvgCandles float64   `json:"avg_candles"`
	Stops      int       `json:"stops"`
	Buy        SideStats `json:"buy"`
	Sell       SideStats `json:"sell"`

	GrossProfit          float64 `json:"gross_profit"`
	GrossLoss            float64 `json:"gross_loss"`
	NetProfit            float64 `json:"net_profit"`
	LargestWin           float64 `json:"largest_win"`
	LargestLoss          float64 `json:"largest_loss"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	TotalCost            float64 `json:"total_cost"`

	InitialFunds float64 `json:"initial_funds"`
	FinalFunds   float64 `json:"final_funds"`
	ResultPct    float64 `json:"result_pct"` // final / initial * 100
	Days         int     `json:"days"`

	CAGRPct      float64 `json:"cagr_pct"`
	MAR          float64 `json:"mar"`
	Sharpe       float64 `json:"sharpe"`
	ProfitFactor float64 `json:"profit_factor"`
	PayoffRatio  float64 `json:"payoff_ratio"`

	Curve    []EquityPoint          `json:"curve"`
	Months   []MonthSummary         `json:"months"`
	Outliers []position.TradeRecord `json:"outliers"`
}

// Compute builds the Summary of trades over the test period [start, end].
// Trades whose |ReturnPct| exceeds outlierPct are listed in Outliers; a
// non-positive outlierPct disables the list.
//
// Ratios that are undefined for the ledger (no losing trade, a single
// trade, no drawdown) are reported as 0.
func Compute(trades []position.TradeRecord, start, end time.Time, initialFunds, outlierPct float64) Summary {
	s := Summary{
		Trades:       len(trades),
		InitialFunds: initialFunds,
		FinalFunds:   initialFunds,
		Days:         int(end.Sub(start).Hours() / 24),
	}
	if len(trades) == 0 {
		return s
	}

	s.Curve = Curve(trades, initialFunds)
	s.FinalFunds = s.Curve[len(s.Curve)-1].Funds
	s.MaxDrawdown, s.MaxDrawdownPct = MaxDrawdown(s.Curve)
	s.MaxConsecutiveLosses = MaxConsecutiveLosses(trades)
	s.Buy = sideStats(trades, types.Buy)
	s.Sell = sideStats(trades, types.Sell)

	var wins int
	var winRet, lossRet []float64
	returns := make([]float64, len(trades))
	s.LargestWin, s.LargestLoss = math.Inf(-1), math.Inf(1)
	for i, t := range trades {
		returns[i] = t.ReturnPct
		s.NetProfit += t.Profit
		s.TotalCost += t.Cost
		s.AvgCandles += float64(t.Candles)
		if t.StopTriggered {
			s.Stops++
		}
		switch {
		case t.Profit > 0:
			wins++
			s.GrossProfit += t.Profit
			winRet = append(winRet, t.ReturnPct)
		case t.Profit < 0:
			s.GrossLoss += t.Profit
			lossRet = append(lossRet, t.ReturnPct)
		}
		s.LargestWin = math.Max(s.LargestWin, t.Profit)
		s.LargestLoss = math.Min(s.LargestLoss, t.Profit)
	}
	n := float64(len(trades))
	s.WinRate = float64(wins) / n * 100
	s.AvgReturn = mean(returns)
	s.AvgCandles /= n

	s.ProfitFactor = ProfitFactor(trades)
	s.Sharpe = Sharpe(returns)
	if len(winRet) > 0 && len(lossRet) > 0 {
		s.PayoffRatio = mean(winRet) / math.Abs(mean(lossRet))
	}
	if initialFunds > 0 {
		s.ResultPct = s.FinalFunds / initialFunds * 100
	}
	s.CAGRPct = CAGR(initialFunds, s.FinalFunds, s.Days) * 100
	if s.MaxDrawdownPct > 0 {
		s.MAR = s.CAGRPct / s.MaxDrawdownPct
	}
	s.Months = Monthly(trades, s.Curve)
	s.Outliers = Outliers(trades, outlierPct)
	return s
}

// Curve accumulates profits onto initialFunds and tracks the running
// maximum drawdown at each closed trade.
func Curve(trades []position.TradeRecord, initialFunds float64) []EquityPoint {
	out := make([]EquityPoint, len(trades))
	funds := initialFunds
	peak := math.Inf(-1)
	for i, t := range trades {
		funds += t.Profit
		peak = math.Max(peak, funds)
		dd := peak - funds
		pct := 0.0
		if peak > 0 {
			pct = dd / peak * 100
		}
		out[i] = EquityPoint{Time: t.ExitTime, Funds: funds, Drawdown: dd, DrawdownPct: pct}
	}
	return out
}

// MaxDrawdown returns the largest absolute drawdown and the largest
// drawdown percentage on the curve.
func MaxDrawdown(curve []EquityPoint) (abs, pct float64) {
	for _, p := range curve {
		abs = math.Max(abs, p.Drawdown)
		pct = math.Max(pct, p.DrawdownPct)
	}
	return abs, pct
}

// MaxConsecutiveLosses is the longest run of trades with negative profit.
// A break-even trade ends the run.
func MaxConsecutiveLosses(trades []position.TradeRecord) int {
	best, run := 0, 0
	for _, t := range trades {
		if t.Profit < 0 {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

// ProfitFactor is sum(profit > 0) / |sum(profit < 0)|, or 0 without losses.
func ProfitFactor(trades []position.TradeRecord) float64 {
	var gain, loss float64
	for _, t := range trades {
		if t.Profit > 0 {
			gain += t.Profit
		} else {
			loss -= t.Profit
		}
	}
	if loss == 0 {
		return 0
	}
	return gain / loss
}

// Sharpe is mean(returns) / stdev(returns) with the sample standard
// deviation.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var ss float64
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	if sd == 0 {
		return 0
	}
	return m / sd
}

// CAGR is (final/initial)^(365/days) - 1 as a fraction.
func CAGR(initial, final float64, days int) float64 {
	if initial <= 0 || final <= 0 || days <= 0 {
		return 0
	}
	return math.Pow(final/initial, 365/float64(days)) - 1
}

// Monthly groups trades by their exit month. curve must be Curve(trades, ...).
func Monthly(trades []position.TradeRecord, curve []EquityPoint) []MonthSummary {
	idx := map[time.Time]int{}
	var out []MonthSummary
	var returns [][]float64
	for i, t := range trades {
		et := t.ExitTime.UTC()
		key := time.Date(et.Year(), et.Month(), 1, 0, 0, 0, 0, time.UTC)
		j, ok := idx[key]
		if !ok {
			j = len(out)
			idx[key] = j
			out = append(out, MonthSummary{Month: key})
			returns = append(returns, nil)
		}
		m := &out[j]
		m.Trades++
		m.Profit += t.Profit
		m.AvgCandles += float64(t.Candles)
		m.MaxDrawdown = math.Max(m.MaxDrawdown, curve[i].Drawdown)
		m.Funds = curve[i].Funds
		returns[j] = append(returns[j], t.ReturnPct)
	}
	for j := range out {
		out[j].AvgReturn = mean(returns[j])
		out[j].AvgCandles /= float64(out[j].Trades)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Month.Before(out[b].Month) })
	return out
}

// Outliers returns the trades whose return is above +pct or below -pct.
func Outliers(trades []position.TradeRecord, pct float64) []position.TradeRecord {
	if pct <= 0 {
		return nil
	}
	var out []position.TradeRecord
	for _, t := range trades {
		if math.Abs(t.ReturnPct) > pct {
			out = append(out, t)
		}
	}
	return out
}

func sideStats(trades []position.TradeRecord, side types.Side) SideStats {
	var st SideStats
	var wins int
	var rets []float64
	for _, t := range trades {
		if t.Side != side {
			continue
		}
		st.Trades++
		st.Profit += t.Profit
		st.AvgCandles += float64(t.Candles)
		rets = append(rets, t.ReturnPct)
		if t.Profit > 0 {
			wins++
		}
		if t.StopTriggered {
			st.Stops++
		}
	}
	if st.Trades > 0 {
		st.WinRate = float64(wins) / float64(st.Trades) * 100
		st.AvgCandles /= float64(st.Trades)
		st.AvgReturn = mean(rets)
	}
	return st
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
