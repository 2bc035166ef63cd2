package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/evdnx/gopyra/analytics"
	"github.com/evdnx/gopyra/backtest"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/position"
	"github.com/evdnx/gopyra/testutils"
	"github.com/evdnx/gopyra/types"
)

func sampleResult() backtest.Result {
	tr := position.TradeRecord{
		Side:          types.Buy,
		EntryTime:     testutils.Epoch,
		ExitTime:      testutils.Epoch.Add(4 * time.Hour),
		EntryPrice:    100,
		ExitPrice:     90,
		Qty:           2,
		Entries:       1,
		Profit:        -20.18,
		ReturnPct:     -10.09,
		Candles:       2,
		StopTriggered: true,
		Exit:          position.ExitStop,
		Cost:          0.18,
	}
	nan := math.NaN()
	cfg := config.Default()
	return backtest.Result{
		RunID:  "0f8fad5b-d9cb-469f-a165-70867728950e",
		Config: cfg,
		Start:  testutils.Epoch,
		End:    testutils.Epoch.Add(4 * time.Hour),
		Trades: []position.TradeRecord{tr},
		Chart: []backtest.ChartRow{{
			Time: testutils.Epoch, Close: 100, Volume: 5, Volatility: 2,
			DonchianHigh: 101, DonchianLow: 99,
			Pivot: nan, R1: nan, R2: nan, R3: nan, S1: nan, S2: nan, S3: nan,
			SMAFast: nan, SMASlow: nan, VROC: nan,
			Side: types.Buy, Qty: 2, PositionPrice: 100, StopPrice: 92, Actions: "entry",
		}},
		Summary: analytics.Compute([]position.TradeRecord{tr}, testutils.Epoch, testutils.Epoch.Add(4*time.Hour), 1000, 5),
		Open:    position.Position{Side: types.None},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	recs, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return recs
}

func TestLedgerCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLedgerCSV(&buf, sampleResult().Trades); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs := readCSV(t, buf.Bytes())
	if len(recs) != 2 || len(recs[1]) != len(ledgerHeader) {
		t.Fatalf("unexpected ledger %v", recs)
	}
	row := recs[1]
	if row[0] != "BUY" || row[1] != "2021-12-01T00:00:00Z" || row[7] != "-20.18" || row[10] != "true" || row[11] != "stop" {
		t.Fatalf("unexpected ledger row %v", row)
	}
}

func TestChartCSVLeavesNaNEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteChartCSV(&buf, sampleResult().Chart); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs := readCSV(t, buf.Bytes())
	row := recs[1]
	if row[4] != "101" || row[6] != "" || row[15] != "" || row[20] != "entry" {
		t.Fatalf("unexpected chart row %v", row)
	}
}

func TestSweepCSVColumns(t *testing.T) {
	rows := []backtest.SweepRow{
		{Index: 0, Params: []backtest.ParamValue{{Name: "buy_term", Value: 10}, {Name: "stop_range", Value: 2.5}}, Trades: 3, ProfitFactor: 1.5},
		{Index: 1, Params: []backtest.ParamValue{{Name: "buy_term", Value: 12}, {Name: "stop_range", Value: 2.5}}, Err: "bad"},
	}
	var buf bytes.Buffer
	if err := WriteSweepCSV(&buf, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs := readCSV(t, buf.Bytes())
	if strings.Join(recs[0][:3], ",") != "index,buy_term,stop_range" {
		t.Fatalf("unexpected header %v", recs[0])
	}
	if recs[1][2] != "2.5" || recs[1][7] != "1.5" || recs[2][len(recs[2])-1] != "bad" {
		t.Fatalf("unexpected rows %v", recs[1:])
	}
}

func TestWriteRunCreatesKeyedFiles(t *testing.T) {
	dir := t.TempDir()
	w := Writer{
		Dir: dir,
		Now: func() time.Time { return time.Date(2022, 3, 4, 5, 6, 0, 0, time.UTC) },
		Log: testutils.NewMockLogger(),
	}
	res := sampleResult()
	files, err := w.WriteRun(res)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if !strings.HasSuffix(files.TradeLog, "2022-03-04-05-06-0f8fad5b-trades.json") {
		t.Fatalf("unexpected trade log name %s", files.TradeLog)
	}
	raw, err := os.ReadFile(files.TradeLog)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc TradeLog
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("trade log is not valid json: %v", err)
	}
	if doc.RunID != res.RunID || len(doc.Trades) != 1 || doc.Summary.Stops != 1 || doc.Symbol != "BTC/USD" {
		t.Fatalf("unexpected trade log %+v", doc)
	}
	for _, p := range []string{files.Ledger, files.Chart} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	// write-once: the same key cannot be written twice
	if _, err := w.WriteRun(res); err == nil {
		t.Fatalf("expected an error when overwriting a run")
	}
}
