package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-trading-bot/internal/candles"
)

// CandleSource provides historical candles
type CandleSource interface {
	GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error)
}

// TickSource provides trade ticks for exit resolution
type TickSource interface {
	GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]candles.Tick, error)
}

// Connector is implemented by sources that need a session before fetching
type Connector interface {
	Connect(ctx context.Context) error
}

// ResultSink accepts a finished run; it is written once and never read back
type ResultSink interface {
	SaveResult(ctx context.Context, result *BacktestResult) error
}

// Runner drives the connecting, fetching, analyzing and saving phases
type Runner struct {
	source CandleSource
	ticks  TickSource
	sinks  []ResultSink
	logger zerolog.Logger
}

// NewRunner creates a runner; ticks may be nil when tick data is never requested
func NewRunner(source CandleSource, ticks TickSource, logger zerolog.Logger) *Runner {
	return &Runner{
		source: source,
		ticks:  ticks,
		logger: logger,
	}
}

// AddSink registers a sink called in the saving phase
func (r *Runner) AddSink(sink ResultSink) {
	r.sinks = append(r.sinks, sink)
}

// Run executes one backtest. Every failure is a *RunError and is also
// delivered to the progress sink as a terminal error event.
func (r *Runner) Run(ctx context.Context, cfg Config, sink ProgressSink) (*BacktestResult, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := r.logger.With().Str("run_id", cfg.RunID).Str("symbol", cfg.Symbol).Logger()
	progress := NewAsyncProgress(sink, logger)

	result, err := r.run(ctx, cfg, progress, logger)
	if err != nil {
		var runErr *RunError
		if !errors.As(err, &runErr) {
			runErr = phaseError(PhaseAnalyzing, err)
		}
		logger.Error().Err(runErr.Err).Str("phase", string(runErr.Phase)).Msg("Backtest failed")
		progress.Finish(Progress{
			RunID:       cfg.RunID,
			Phase:       PhaseError,
			FailedPhase: runErr.Phase,
			Error:       runErr.Err.Error(),
			Time:        time.Now().UTC(),
		})
		return nil, runErr
	}

	logger.Info().
		Int("trades", result.TotalTrades).
		Float64("win_rate", result.WinRate).
		Float64("net_profit", result.NetProfit).
		Float64("max_drawdown", result.MaxDrawdown).
		Msg("Backtest complete")
	progress.Finish(Progress{
		RunID:     cfg.RunID,
		Phase:     PhaseComplete,
		Processed: result.CandlesProcessed,
		Total:     result.CandlesProcessed,
		Percent:   100,
		Balance:   result.FinalBalance,
		PnL:       result.NetProfit,
		Trades:    result.TotalTrades,
		WinRate:   result.WinRate,
		Drawdown:  result.MaxDrawdown,
		Time:      time.Now().UTC(),
	})
	return result, nil
}

func (r *Runner) run(ctx context.Context, cfg Config, progress *AsyncProgress, logger zerolog.Logger) (*BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, phaseError(PhaseConnecting, err)
	}

	announce := func(phase Phase, msg string) {
		progress.OnProgress(Progress{RunID: cfg.RunID, Phase: phase, Message: msg, Time: time.Now().UTC()})
		logger.Info().Str("phase", string(phase)).Msg(msg)
	}

	announce(PhaseConnecting, "Connecting to candle source")
	if c, ok := r.source.(Connector); ok {
		if err := c.Connect(ctx); err != nil {
			return nil, phaseError(PhaseConnecting, fmt.Errorf("%w: %v", ErrSourceFailure, err))
		}
	}

	announce(PhaseFetching, "Fetching historical candles")
	data, err := r.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := checkMinimums(data); err != nil {
		return nil, phaseError(PhaseFetching, err)
	}

	announce(PhaseAnalyzing, fmt.Sprintf("Replaying %d %s candles", len(data.LTF), cfg.LTF))
	sim, err := NewSimulator(cfg, progress, logger)
	if err != nil {
		return nil, phaseError(PhaseAnalyzing, err)
	}
	result, err := sim.Run(ctx, data)
	if err != nil {
		return nil, err
	}

	announce(PhaseSaving, "Saving results")
	for _, sink := range r.sinks {
		if err := sink.SaveResult(ctx, result); err != nil {
			return nil, phaseError(PhaseSaving, err)
		}
	}
	return result, nil
}

// fetch loads all series concurrently; analysis starts only after every
// fetch has returned
func (r *Runner) fetch(ctx context.Context, cfg Config) (Dataset, error) {
	var data Dataset
	g, gctx := errgroup.WithContext(ctx)

	load := func(tf candles.Timeframe, warmup int, dst *[]candles.Candle) {
		g.Go(func() error {
			start := cfg.StartDate.Add(-time.Duration(warmup) * tf.Duration())
			series, err := r.source.GetHistoricalCandles(gctx, cfg.Symbol, tf, start, cfg.EndDate)
			if err != nil {
				return fmt.Errorf("%w: %s candles: %v", ErrSourceFailure, tf, err)
			}
			*dst = candles.Dedupe(series)
			return nil
		})
	}
	load(cfg.HTF, HTFWindow, &data.HTF)
	load(cfg.MTF, MTFWindow, &data.MTF)
	load(cfg.LTF, LTFWindow, &data.LTF)

	if cfg.UseTickData && r.ticks != nil {
		g.Go(func() error {
			ticks, err := r.ticks.GetTicks(gctx, cfg.Symbol, cfg.StartDate, cfg.EndDate)
			if err != nil {
				return fmt.Errorf("%w: ticks: %v", ErrSourceFailure, err)
			}
			sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Time.Before(ticks[j].Time) })
			data.Ticks = ticks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return Dataset{}, phaseError(PhaseFetching, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
		}
		return Dataset{}, phaseError(PhaseFetching, err)
	}
	return data, nil
}

func checkMinimums(data Dataset) error {
	if len(data.HTF) < MinHTFCandles || len(data.MTF) < MinMTFCandles || len(data.LTF) < MinLTFCandles {
		return fmt.Errorf("%w: got %d HTF, %d MTF, %d LTF candles, need at least %d, %d, %d",
			ErrInsufficientData, len(data.HTF), len(data.MTF), len(data.LTF),
			MinHTFCandles, MinMTFCandles, MinLTFCandles)
	}
	return nil
}
