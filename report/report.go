// Package report writes the artifacts of back-test runs and sweeps: a JSON
// trade log, CSV ledgers, CSV chart rows and a CSV sweep summary. Files are
// write-once and keyed by timestamp and run id.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gopyra/analytics"
	"github.com/evdnx/gopyra/backtest"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/position"
)

const stamp = "2006-01-02-15-04"

// Writer places artifacts under Dir.
type Writer struct {
	Dir string
	Now func() time.Time
	Log logger.Logger
}

// Files lists what WriteRun produced.
type Files struct {
	TradeLog string
	Ledger   string
	Chart    string
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Writer) log() logger.Logger {
	if w.Log != nil {
		return w.Log
	}
	return logger.NewNop()
}

func (w Writer) path(key, suffix string) string {
	return filepath.Join(w.Dir, key+"-"+suffix)
}

// WriteRun writes the trade log, ledger and chart of one run.
func (w Writer) WriteRun(res backtest.Result) (Files, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Files{}, err
	}
	id := res.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	key := w.now().UTC().Format(stamp) + "-" + id
	files := Files{
		TradeLog: w.path(key, "trades.json"),
		Ledger:   w.path(key, "ledger.csv"),
		Chart:    w.path(key, "chart.csv"),
	}
	if err := writeFile(files.TradeLog, func(f io.Writer) error { return WriteTradeLog(f, res) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Ledger, func(f io.Writer) error { return WriteLedgerCSV(f, res.Trades) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Chart, func(f io.Writer) error { return WriteChartCSV(f, res.Chart) }); err != nil {
		return Files{}, err
	}
	w.log().Info("report_written",
		logger.String("run_id", res.RunID),
		logger.String("trade_log", files.TradeLog),
		logger.String("ledger", files.Ledger),
		logger.String("chart", files.Chart),
	)
	return files, nil
}

// WriteSweep writes the sweep summary and returns its path.
func (w Writer) WriteSweep(rows []backtest.SweepRow) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", err
	}
	path := w.path(w.now().UTC().Format(stamp), "sweep.csv")
	if err := writeFile(path, func(f io.Writer) error { return WriteSweepCSV(f, rows) }); err != nil {
		return "", err
	}
	w.log().Info("report_written", logger.String("sweep", path), logger.Int("rows", len(rows)))
	return path, nil
}

func writeFile(path string, fill func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fill(f); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// TradeLog is the JSON document of one run.
type TradeLog struct {
	RunID   string                 `json:"run_id"`
	Symbol  string                 `json:"symbol"`
	Start   time.Time              `json:"start"`
	End     time.Time              `json:"end"`
	Summary analytics.Summary      `json:"summary"`
	Trades  []position.TradeRecord `json:"trades"`
	Open    position.Position      `json:"open_position"`
}

// WriteTradeLog encodes the run as indented JSON.
func WriteTradeLog(w io.Writer, res backtest.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(TradeLog{
		RunID:   res.RunID,
		Symbol:  res.Config.Market.Symbol,
		Start:   res.Start,
		End:     res.End,
		Summary: res.Summary,
		Trades:  res.Trades,
		Open:    res.Open,
	})
}

var ledgerHeader = []string{
	"side", "entry_time", "exit_time", "entry_price", "exit_price", "qty", "entries",
	"profit", "return_pct", "candles", "stop_triggered", "exit", "cost",
}

// WriteLedgerCSV writes one row per closed trade.
func WriteLedgerCSV(w io.Writer, trades []position.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			string(t.Side),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			num(t.EntryPrice), num(t.ExitPrice), num(t.Qty),
			strconv.Itoa(t.Entries),
			num(t.Profit), num(t.ReturnPct),
			strconv.Itoa(t.Candles),
			strconv.FormatBool(t.StopTriggered),
			string(t.Exit),
			num(t.Cost),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var chartHeader = []string{
	"time", "close", "volume", "volatility", "donchian_high", "donchian_low",
	"pivot", "r1", "r2", "r3", "s1", "s2", "s3", "sma_fast", "sma_slow", "vroc",
	"side", "qty", "position_price", "stop_price", "actions",
}

// WriteChartCSV writes one row per processed candle. Unavailable indicator
// values are left empty.
func WriteChartCSV(w io.Writer, rows []backtest.ChartRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(chartHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Time.UTC().Format(time.RFC3339),
			num(r.Close), num(r.Volume), num(r.Volatility),
			num(r.DonchianHigh), num(r.DonchianLow),
			num(r.Pivot), num(r.R1), num(r.R2), num(r.R3), num(r.S1), num(r.S2), num(r.S3),
			num(r.SMAFast), num(r.SMASlow), num(r.VROC),
			string(r.Side), num(r.Qty), num(r.PositionPrice), num(r.StopPrice),
			r.Actions,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSweepCSV writes one row per combination; the parameter columns come
// from the first row.
func WriteSweepCSV(w io.Writer, rows []backtest.SweepRow) error {
	cw := csv.NewWriter(w)
	header := []string{"index"}
	if len(rows) > 0 {
		for _, p := range rows[0].Params {
			header = append(header, p.Name)
		}
	}
	header = append(header, "trades", "win_rate", "avg_return_pct", "max_drawdown", "profit_factor", "final_funds", "run_id", "error")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{strconv.Itoa(r.Index)}
		for _, p := range r.Params {
			rec = append(rec, num(p.Value))
		}
		rec = append(rec,
			strconv.Itoa(r.Trades), num(r.WinRate), num(r.AvgReturn), num(r.MaxDrawdown),
			num(r.ProfitFactor), num(r.FinalFunds), r.RunID, r.Err,
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// num renders v rounded to 8 decimals without trailing zeros; NaN and Inf
// render empty.
func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(8).String()
}
