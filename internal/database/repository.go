package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/bot"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

var ErrNotFound = errors.New("record not found")

// Repository provides data access methods
type Repository struct {
	db querier
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db.Pool}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// RunSummary is the stored headline of a backtest run
type RunSummary struct {
	RunID            string                     `json:"runId"`
	Symbol           string                     `json:"symbol"`
	Strategy         string                     `json:"strategy"`
	StartDate        time.Time                  `json:"startDate"`
	EndDate          time.Time                  `json:"endDate"`
	InitialBalance   float64                    `json:"initialBalance"`
	FinalBalance     float64                    `json:"finalBalance"`
	CandlesProcessed int                        `json:"candlesProcessed"`
	TotalTrades      int                        `json:"totalTrades"`
	WinRate          float64                    `json:"winRate"`
	NetProfit        float64                    `json:"netProfit"`
	ROI              float64                    `json:"roi"`
	MaxDrawdown      float64                    `json:"maxDrawdown"`
	ProfitFactor     float64                    `json:"profitFactor"`
	SharpeRatio      float64                    `json:"sharpeRatio"`
	ExitStats        []backtest.ExitPerformance `json:"exitStats"`
	CreatedAt        time.Time                  `json:"createdAt"`
}

var tradeColumns = []string{
	"run_id", "trade_id", "symbol", "direction", "entry_price", "stop_loss", "take_profit",
	"lot_size", "entry_time", "exit_time", "exit_price", "pnl", "pnl_percent", "is_winner",
	"exit_reason", "balance_before", "reason",
}

var signalColumns = []string{
	"run_id", "signal_id", "direction", "status", "entry_price", "stop_loss", "take_profit",
	"lot_size", "confidence", "block_type", "block_score", "created_at", "resolved_at", "note",
}

// SaveResult stores a run, its trades and its signals in one transaction
func (r *Repository) SaveResult(ctx context.Context, result *backtest.BacktestResult) error {
	equity, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to encode equity curve: %w", err)
	}
	exits, err := json.Marshal(result.ExitStats)
	if err != nil {
		return fmt.Errorf("failed to encode exit stats: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO backtest_runs (
			run_id, symbol, strategy, start_date, end_date, initial_balance, final_balance,
			candles_processed, total_trades, winning_trades, losing_trades, win_rate,
			gross_profit, gross_loss, net_profit, roi, max_drawdown, average_win, average_loss,
			profit_factor, sharpe_ratio, equity_curve, exit_stats
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = tx.Exec(ctx, query,
		result.RunID, result.Symbol, result.Strategy, result.StartDate, result.EndDate,
		result.InitialBalance, result.FinalBalance, result.CandlesProcessed,
		result.TotalTrades, result.WinningTrades, result.LosingTrades, result.WinRate,
		result.GrossProfit, result.GrossLoss, result.NetProfit, result.ROI, result.MaxDrawdown,
		result.AverageWin, result.AverageLoss, result.ProfitFactor, result.SharpeRatio,
		equity, exits,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest run: %w", err)
	}

	if len(result.Trades) > 0 {
		rows := make([][]any, 0, len(result.Trades))
		for _, t := range result.Trades {
			rows = append(rows, tradeRow(result.RunID, t))
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"backtest_trades"}, tradeColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert backtest trades: %w", err)
		}
	}

	if len(result.Signals) > 0 {
		rows := make([][]any, 0, len(result.Signals))
		for _, s := range result.Signals {
			rows = append(rows, signalRow(result.RunID, s))
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"backtest_signals"}, signalColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert backtest signals: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func tradeRow(runID string, t backtest.Trade) []any {
	return []any{
		runID, t.ID, t.Symbol, string(t.Direction), t.EntryPrice, t.StopLoss, t.TakeProfit,
		t.LotSize, t.EntryTime, t.ExitTime, t.ExitPrice, t.PnL, t.PnLPercent, t.IsWinner,
		string(t.ExitReason), t.BalanceBefore, t.Reason,
	}
}

func signalRow(runID string, s strategy.Signal) []any {
	var resolved *time.Time
	if !s.ResolvedAt.IsZero() {
		at := s.ResolvedAt
		resolved = &at
	}
	return []any{
		runID, s.ID, string(s.Direction), string(s.Status), s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.LotSize, s.Confidence, string(s.Block.Type), s.Block.Score, s.CreatedAt, resolved, s.Note,
	}
}

const runSummaryColumns = `
	run_id, symbol, strategy, start_date, end_date, initial_balance, final_balance,
	candles_processed, total_trades, win_rate, net_profit, roi, max_drawdown,
	profit_factor, sharpe_ratio, exit_stats, created_at
`

func scanRunSummary(row pgx.Row) (*RunSummary, error) {
	var s RunSummary
	var exits []byte
	err := row.Scan(
		&s.RunID, &s.Symbol, &s.Strategy, &s.StartDate, &s.EndDate, &s.InitialBalance, &s.FinalBalance,
		&s.CandlesProcessed, &s.TotalTrades, &s.WinRate, &s.NetProfit, &s.ROI, &s.MaxDrawdown,
		&s.ProfitFactor, &s.SharpeRatio, &exits, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(exits) > 0 {
		if err := json.Unmarshal(exits, &s.ExitStats); err != nil {
			return nil, fmt.Errorf("failed to decode exit stats: %w", err)
		}
	}
	return &s, nil
}

// GetRun retrieves a single run summary
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	query := `SELECT ` + runSummaryColumns + ` FROM backtest_runs WHERE run_id = $1`

	s, err := scanRunSummary(r.db.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	return s, nil
}

// ListRuns returns the most recent runs, optionally for one symbol
func (r *Repository) ListRuns(ctx context.Context, symbol string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runSummaryColumns + ` FROM backtest_runs
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		s, err := scanRunSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		runs = append(runs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}
	return runs, nil
}

// GetTrades retrieves the trades of a run in entry order
func (r *Repository) GetTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	query := `
		SELECT trade_id, symbol, direction, entry_price, stop_loss, take_profit, lot_size,
			   entry_time, exit_time, exit_price, pnl, pnl_percent, is_winner, exit_reason,
			   balance_before, COALESCE(reason, '')
		FROM backtest_trades
		WHERE run_id = $1
		ORDER BY entry_time ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest trades: %w", err)
	}
	defer rows.Close()

	trades := []backtest.Trade{}
	for rows.Next() {
		var t backtest.Trade
		var direction, exitReason string
		err := rows.Scan(
			&t.ID, &t.Symbol, &direction, &t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.LotSize,
			&t.EntryTime, &t.ExitTime, &t.ExitPrice, &t.PnL, &t.PnLPercent, &t.IsWinner, &exitReason,
			&t.BalanceBefore, &t.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest trade: %w", err)
		}
		t.Direction = risk.Side(direction)
		t.ExitReason = backtest.ExitReason(exitReason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest trades: %w", err)
	}
	return trades, nil
}

// SaveLiveSignal inserts a live signal or updates its status
func (r *Repository) SaveLiveSignal(ctx context.Context, s strategy.Signal) error {
	var resolved *time.Time
	if !s.ResolvedAt.IsZero() {
		at := s.ResolvedAt
		resolved = &at
	}

	query := `
		INSERT INTO live_signals (
			signal_id, symbol, direction, status, entry_price, stop_loss, take_profit,
			lot_size, confidence, reason, note, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (signal_id) DO UPDATE SET
			status = EXCLUDED.status,
			lot_size = EXCLUDED.lot_size,
			note = EXCLUDED.note,
			resolved_at = EXCLUDED.resolved_at,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.Symbol, string(s.Direction), string(s.Status), s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.LotSize, s.Confidence, s.Reason, s.Note, s.CreatedAt, resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to save live signal: %w", err)
	}
	return nil
}

// SaveLiveTrade stores a closed live position
func (r *Repository) SaveLiveTrade(ctx context.Context, t backtest.Trade) error {
	query := `
		INSERT INTO live_trades (
			trade_id, symbol, direction, entry_price, exit_price, lot_size,
			entry_time, exit_time, pnl, exit_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trade_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.Symbol, string(t.Direction), t.EntryPrice, t.ExitPrice, t.LotSize,
		t.EntryTime, t.ExitTime, t.PnL, string(t.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("failed to save live trade: %w", err)
	}
	return nil
}

var (
	_ backtest.ResultSink = (*Repository)(nil)
	_ bot.Recorder        = (*Repository)(nil)
)
