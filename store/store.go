// Package store persists back-test runs and their trade ledgers to
// PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evdnx/gopyra/backtest"
	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/position"
)

// Beginner opens transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store writes runs inside one transaction each.
type Store struct {
	db   Beginner
	pool *pgxpool.Pool
	log  logger.Logger
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := New(pool, log)
	s.pool = pool
	return s, nil
}

// New wraps an existing connection.
func New(db Beginner, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{db: db, log: log}
}

// Close releases the pool opened by Open.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id            TEXT PRIMARY KEY,
		symbol            TEXT NOT NULL,
		start_time        TIMESTAMPTZ NOT NULL,
		end_time          TIMESTAMPTZ NOT NULL,
		trades            INTEGER NOT NULL,
		win_rate          DOUBLE PRECISION NOT NULL,
		net_profit        DOUBLE PRECISION NOT NULL,
		final_funds       DOUBLE PRECISION NOT NULL,
		max_drawdown      DOUBLE PRECISION NOT NULL,
		max_drawdown_pct  DOUBLE PRECISION NOT NULL,
		profit_factor     DOUBLE PRECISION NOT NULL,
		sharpe            DOUBLE PRECISION NOT NULL,
		cagr_pct          DOUBLE PRECISION NOT NULL,
		mar               DOUBLE PRECISION NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id          TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
		seq             INTEGER NOT NULL,
		side            TEXT NOT NULL,
		entry_time      TIMESTAMPTZ NOT NULL,
		exit_time       TIMESTAMPTZ NOT NULL,
		entry_price     DOUBLE PRECISION NOT NULL,
		exit_price      DOUBLE PRECISION NOT NULL,
		qty             DOUBLE PRECISION NOT NULL,
		entries         INTEGER NOT NULL,
		profit          DOUBLE PRECISION NOT NULL,
		return_pct      DOUBLE PRECISION NOT NULL,
		candles         INTEGER NOT NULL,
		stop_triggered  BOOLEAN NOT NULL,
		exit_kind       TEXT NOT NULL,
		cost            DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_trades_exit_time ON backtest_trades(exit_time)`,
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate: %w", err)
			}
		}
		return nil
	})
}

const insertRun = `
	INSERT INTO backtest_runs (
		run_id, symbol, start_time, end_time, trades, win_rate, net_profit,
		final_funds, max_drawdown, max_drawdown_pct, profit_factor, sharpe, cagr_pct, mar
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const insertTrade = `
	INSERT INTO backtest_trades (
		run_id, seq, side, entry_time, exit_time, entry_price, exit_price, qty, entries,
		profit, return_pct, candles, stop_triggered, exit_kind, cost
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// SaveRun stores the run summary and every trade atomically.
func (s *Store) SaveRun(ctx context.Context, res backtest.Result) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRun, runArgs(res)...); err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		for i, t := range res.Trades {
			if _, err := tx.Exec(ctx, insertTrade, tradeArgs(res.RunID, i, t)...); err != nil {
				return fmt.Errorf("store: insert trade %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("store_save_failed", logger.String("run_id", res.RunID), logger.Err(err))
		return err
	}
	s.log.Info("store_saved", logger.String("run_id", res.RunID), logger.Int("trades", len(res.Trades)))
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func runArgs(res backtest.Result) []any {
	sm := res.Summary
	return []any{
		res.RunID, res.Config.Market.Symbol, res.Start, res.End, sm.Trades, sm.WinRate, sm.NetProfit,
		sm.FinalFunds, sm.MaxDrawdown, sm.MaxDrawdownPct, sm.ProfitFactor, sm.Sharpe, sm.CAGRPct, sm.MAR,
	}
}

func tradeArgs(runID string, seq int, t position.TradeRecord) []any {
	return []any{
		runID, seq, string(t.Side), t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice, t.Qty, t.Entries,
		t.Profit, t.ReturnPct, t.Candles, t.StopTriggered, string(t.Exit), t.Cost,
	}
}
