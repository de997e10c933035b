package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"smc-trading-bot/config"
)

// querier is the part of pgxpool.Pool the repository uses
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "database").Logger()
	logger.Info().Str("database", cfg.Name).Str("host", cfg.Host).Msg("Connected to PostgreSQL")
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		strategy VARCHAR(40) NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		initial_balance DECIMAL(20, 8) NOT NULL,
		final_balance DECIMAL(20, 8) NOT NULL,
		candles_processed INTEGER NOT NULL,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		win_rate DECIMAL(10, 4) NOT NULL,
		gross_profit DECIMAL(20, 8) NOT NULL,
		gross_loss DECIMAL(20, 8) NOT NULL,
		net_profit DECIMAL(20, 8) NOT NULL,
		roi DECIMAL(12, 4) NOT NULL,
		max_drawdown DECIMAL(10, 4) NOT NULL,
		average_win DECIMAL(20, 8) NOT NULL,
		average_loss DECIMAL(20, 8) NOT NULL,
		profit_factor DECIMAL(12, 4) NOT NULL,
		sharpe_ratio DECIMAL(12, 6) NOT NULL,
		equity_curve JSONB NOT NULL DEFAULT '[]',
		exit_stats JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created_at ON backtest_runs(created_at)`,

	`CREATE TABLE IF NOT EXISTS backtest_trades (
		id BIGSERIAL PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
		trade_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		stop_loss DECIMAL(20, 8) NOT NULL,
		take_profit DECIMAL(20, 8) NOT NULL,
		lot_size DECIMAL(20, 8) NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		exit_price DECIMAL(20, 8) NOT NULL,
		pnl DECIMAL(20, 8) NOT NULL,
		pnl_percent DECIMAL(12, 6) NOT NULL,
		is_winner BOOLEAN NOT NULL,
		exit_reason VARCHAR(10) NOT NULL,
		balance_before DECIMAL(20, 8) NOT NULL,
		reason TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_trades_run_id ON backtest_trades(run_id)`,

	`CREATE TABLE IF NOT EXISTS backtest_signals (
		id BIGSERIAL PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
		signal_id VARCHAR(64) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		status VARCHAR(10) NOT NULL,
		entry_price DECIMAL(20, 8),
		stop_loss DECIMAL(20, 8),
		take_profit DECIMAL(20, 8),
		lot_size DECIMAL(20, 8),
		confidence DECIMAL(10, 4),
		block_type VARCHAR(10),
		block_score DECIMAL(10, 4),
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ,
		note TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_signals_run_id ON backtest_signals(run_id)`,

	`CREATE TABLE IF NOT EXISTS live_signals (
		signal_id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		status VARCHAR(10) NOT NULL,
		entry_price DECIMAL(20, 8),
		stop_loss DECIMAL(20, 8),
		take_profit DECIMAL(20, 8),
		lot_size DECIMAL(20, 8),
		confidence DECIMAL(10, 4),
		reason TEXT,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_live_signals_symbol ON live_signals(symbol)`,

	`CREATE TABLE IF NOT EXISTS live_trades (
		trade_id VARCHAR(64) PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		exit_price DECIMAL(20, 8) NOT NULL,
		lot_size DECIMAL(20, 8) NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		pnl DECIMAL(20, 8) NOT NULL,
		exit_reason VARCHAR(10) NOT NULL
	)`,
}

// RunMigrations creates the schema. Every statement is idempotent.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Int("statements", len(migrations)).Msg("Running database migrations")
	return runMigrations(ctx, db.Pool)
}

func runMigrations(ctx context.Context, q querier) error {
	for i, stmt := range migrations {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
