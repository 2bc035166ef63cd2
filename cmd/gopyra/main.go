// Command gopyra runs a pyramiding back-test or a parameter sweep over a
// CSV candle history.
//
//	gopyra backtest -config config.yaml -candles btc_2h.csv
//	gopyra sweep -config config.yaml -grid grid.yaml -candles btc_2h.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/evdnx/gopyra/backtest"
	"github.com/evdnx/gopyra/candle"
	"github.com/evdnx/gopyra/config"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/report"
	"github.com/evdnx/gopyra/store"
	"github.com/evdnx/gopyra/types"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gopyra <backtest|sweep> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "backtest":
		err = runBacktest(ctx, os.Args[2:])
	case "sweep":
		err = runSweep(ctx, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "gopyra: %v\n", err)
		os.Exit(1)
	}
}

type common struct {
	cfg     config.Config
	log     logger.Logger
	candles []types.Candle
	out     report.Writer
}

func setup(fs *flag.FlagSet, args []string) (common, error) {
	cfgPath := fs.String("config", "", "YAML config file (defaults apply when empty)")
	csvPath := fs.String("candles", "", "OHLCV CSV file")
	outDir := fs.String("out", "", "output directory (overrides backtest.output_dir)")
	if err := fs.Parse(args); err != nil {
		return common{}, err
	}
	if *csvPath == "" {
		return common{}, fmt.Errorf("-candles is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return common{}, err
	}
	if *outDir != "" {
		cfg.Backtest.OutputDir = *outDir
	}
	log, err := logger.NewZapLoggerLevel(cfg.Log.Level)
	if err != nil {
		return common{}, err
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return common{}, err
	}
	defer f.Close()
	candles, err := candle.ReadCSV(f)
	if err != nil {
		return common{}, fmt.Errorf("read %s: %w", *csvPath, err)
	}
	if err := os.MkdirAll(cfg.Backtest.OutputDir, 0o755); err != nil {
		return common{}, err
	}
	return common{
		cfg:     cfg,
		log:     log,
		candles: candles,
		out:     report.Writer{Dir: cfg.Backtest.OutputDir, Log: log},
	}, nil
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	c, err := setup(fs, args)
	if err != nil {
		return err
	}
	// flush before main exits, also on the error path
	defer func() { _ = logger.Sync(c.log) }()

	sim, err := backtest.NewSimulator(c.cfg, c.log)
	if err != nil {
		return err
	}
	res, err := sim.Run(ctx, c.candles)
	if err != nil {
		return err
	}
	files, err := c.out.WriteRun(res)
	if err != nil {
		return err
	}

	if c.cfg.Store.DSN != "" {
		st, err := store.Open(ctx, c.cfg.Store.DSN, c.log)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := st.SaveRun(ctx, res); err != nil {
			return err
		}
	}

	sm := res.Summary
	fmt.Printf("run %s  %s -> %s\n", res.RunID, res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Printf("trades %d  win rate %.1f%%  net %.2f  final %.2f  max dd %.2f (%.1f%%)  pf %.2f  sharpe %.2f\n",
		sm.Trades, sm.WinRate, sm.NetProfit, sm.FinalFunds, sm.MaxDrawdown, sm.MaxDrawdownPct, sm.ProfitFactor, sm.Sharpe)
	if !res.Open.IsFlat() {
		fmt.Printf("still open: %s %v @ %.2f\n", res.Open.Side, res.Open.Qty, res.Open.AvgPrice)
	}
	fmt.Println("wrote", files.TradeLog, files.Ledger, files.Chart)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	gridPath := fs.String("grid", "", "YAML parameter grid")
	minPF := fs.Float64("min-pf", 0, "only write rows whose profit factor reaches this")
	c, err := setup(fs, args)
	if err != nil {
		return err
	}
	// flush before main exits, also on the error path
	defer func() { _ = logger.Sync(c.log) }()
	if *gridPath == "" {
		return fmt.Errorf("-grid is required")
	}
	grid, err := backtest.LoadGrid(*gridPath)
	if err != nil {
		return err
	}

	rows, err := backtest.Sweep(ctx, c.cfg, grid, c.candles, c.cfg.Backtest.Parallel, c.log)
	if err != nil {
		return err
	}
	if *minPF > 0 {
		rows = backtest.FilterProfitable(rows, *minPF)
	}
	path, err := c.out.WriteSweep(rows)
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d combinations written to %s\n", len(rows), grid.Size(), path)
	return nil
}
