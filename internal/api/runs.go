package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smc-trading-bot/internal/backtest"
)

// RunStatus is the lifecycle state of a submitted backtest
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunComplete  RunStatus = "complete"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

var (
	ErrRunNotFound = errors.New("backtest run not found")
	ErrTooManyRuns = errors.New("too many backtests running")
)

// BacktestRunner executes one backtest
type BacktestRunner interface {
	Run(ctx context.Context, cfg backtest.Config, sink backtest.ProgressSink) (*backtest.BacktestResult, error)
}

// RunState is a snapshot of one submitted run
type RunState struct {
	ID          string                   `json:"runId"`
	Symbol      string                   `json:"symbol"`
	Strategy    string                   `json:"strategy"`
	Status      RunStatus                `json:"status"`
	Phase       backtest.Phase           `json:"phase"`
	Percent     float64                  `json:"percent"`
	Error       string                   `json:"error,omitempty"`
	SubmittedAt time.Time                `json:"submittedAt"`
	FinishedAt  *time.Time               `json:"finishedAt,omitempty"`
	Result      *backtest.BacktestResult `json:"result,omitempty"`
}

type runEntry struct {
	state  RunState
	cancel context.CancelFunc
}

// RunManager starts backtests in the background and keeps their state
// in memory until the process exits
type RunManager struct {
	runner     BacktestRunner
	progress   backtest.ProgressSink
	maxRunning int

	mu      sync.RWMutex
	runs    map[string]*runEntry
	running int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewRunManager creates a manager. progress receives every event of every
// run and may be nil; maxRunning <= 0 means unlimited.
func NewRunManager(runner BacktestRunner, progress backtest.ProgressSink, maxRunning int, logger zerolog.Logger) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		runner:     runner,
		progress:   progress,
		maxRunning: maxRunning,
		runs:       make(map[string]*runEntry),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With().Str("component", "run-manager").Logger(),
	}
}

// Submit validates cfg and starts the run; it returns the run ID at once
func (m *RunManager) Submit(cfg backtest.Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.runs[cfg.RunID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: duplicate run id %s", backtest.ErrInvalidConfig, cfg.RunID)
	}
	if m.maxRunning > 0 && m.running >= m.maxRunning {
		m.mu.Unlock()
		return "", ErrTooManyRuns
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.runs[cfg.RunID] = &runEntry{
		state: RunState{
			ID:          cfg.RunID,
			Symbol:      cfg.Symbol,
			Strategy:    cfg.Params.Name,
			Status:      RunRunning,
			Phase:       backtest.PhaseConnecting,
			SubmittedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	m.running++
	m.wg.Add(1)
	m.mu.Unlock()

	go m.execute(ctx, cancel, cfg)

	m.logger.Info().Str("run_id", cfg.RunID).Str("symbol", cfg.Symbol).Msg("Backtest submitted")
	return cfg.RunID, nil
}

func (m *RunManager) execute(ctx context.Context, cancel context.CancelFunc, cfg backtest.Config) {
	defer m.wg.Done()
	defer cancel()

	sink := backtest.MultiProgress{backtest.ProgressFunc(m.track), m.progress}
	result, err := m.runner.Run(ctx, cfg, sink)

	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running--
	entry := m.runs[cfg.RunID]
	entry.state.FinishedAt = &now
	switch {
	case errors.Is(err, backtest.ErrCancelled):
		entry.state.Status = RunCancelled
		entry.state.Phase = backtest.PhaseError
		entry.state.Error = err.Error()
	case err != nil:
		entry.state.Status = RunFailed
		entry.state.Phase = backtest.PhaseError
		entry.state.Error = err.Error()
	default:
		entry.state.Status = RunComplete
		entry.state.Phase = backtest.PhaseComplete
		entry.state.Percent = 100
		entry.state.Result = result
	}
}

// track keeps the latest phase and percentage of a run
func (m *RunManager) track(p backtest.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.runs[p.RunID]
	if !ok || entry.state.Status != RunRunning {
		return
	}
	entry.state.Phase = p.Phase
	if p.Percent > entry.state.Percent {
		entry.state.Percent = p.Percent
	}
}

// Get returns a snapshot of a run
func (m *RunManager) Get(id string) (RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.runs[id]
	if !ok {
		return RunState{}, false
	}
	return entry.state, true
}

// List returns every known run, newest first, without results
func (m *RunManager) List() []RunState {
	m.mu.RLock()
	out := make([]RunState, 0, len(m.runs))
	for _, entry := range m.runs {
		s := entry.state
		s.Result = nil
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Cancel stops a running backtest
func (m *RunManager) Cancel(id string) error {
	m.mu.RLock()
	entry, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	entry.cancel()
	return nil
}

// Running returns the number of runs in progress
func (m *RunManager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Shutdown cancels every run and waits for them to return or ctx to expire
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
