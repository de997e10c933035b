package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"smc-trading-bot/internal/candles"
)

var runnerDay0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func runnerConfig() Config {
	cfg := DefaultConfig()
	cfg.RunID = "run-1"
	cfg.Symbol = "XAUUSD"
	cfg.StartDate = runnerDay0.Add(12 * 24 * time.Hour)
	cfg.EndDate = runnerDay0.Add(20 * 24 * time.Hour)
	cfg.Params.MinOBScore = 50
	return cfg
}

func TestRunnerCompletes(t *testing.T) {
	source := &fakeSource{data: synthetic(runnerDay0, 30)}
	saved := &resultRecorder{}
	runner := NewRunner(source, nil, quietLogger())
	runner.AddSink(saved)

	sink := &recordingSink{}
	result, err := runner.Run(context.Background(), runnerConfig(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !source.connected.Load() {
		t.Error("Expected the source to be connected")
	}
	if got := source.calls.Load(); got != 3 {
		t.Errorf("Expected 3 candle fetches, got %d", got)
	}
	if result.CandlesProcessed != 8*96 {
		t.Errorf("Expected %d replayed candles, got %d", 8*96, result.CandlesProcessed)
	}
	if len(saved.results) != 1 || saved.results[0] != result {
		t.Error("Expected the result to be saved exactly once")
	}

	events := sink.snapshot()
	if len(events) == 0 {
		t.Fatal("Expected progress events")
	}
	last := events[len(events)-1]
	if last.Phase != PhaseComplete || last.RunID != "run-1" {
		t.Errorf("Expected complete event last, got %+v", last)
	}

	order := []Phase{PhaseConnecting, PhaseFetching, PhaseAnalyzing, PhaseSaving, PhaseComplete}
	next := 0
	for _, ev := range events {
		if next < len(order) && ev.Phase == order[next] {
			next++
		}
	}
	if next != len(order) {
		t.Errorf("Expected phases in order %v, reached %d of them", order, next)
	}
}

func TestRunnerFailures(t *testing.T) {
	short := synthetic(runnerDay0, 30)
	short.MTF = short.MTF[:40]

	tests := []struct {
		name      string
		source    *fakeSource
		mutate    func(c *Config)
		saveErr   error
		wantErr   error
		notErr    error
		wantPhase Phase
		wantCalls int32
	}{
		{
			name:      "invalid config is rejected before fetching",
			source:    &fakeSource{data: synthetic(runnerDay0, 30)},
			mutate:    func(c *Config) { c.InitialBalance = 0 },
			wantErr:   ErrInvalidConfig,
			wantPhase: PhaseConnecting,
			wantCalls: 0,
		},
		{
			name:      "reversed dates",
			source:    &fakeSource{data: synthetic(runnerDay0, 30)},
			mutate:    func(c *Config) { c.StartDate, c.EndDate = c.EndDate, c.StartDate },
			wantErr:   ErrInvalidConfig,
			wantPhase: PhaseConnecting,
			wantCalls: 0,
		},
		{
			name:      "unknown strategy",
			source:    &fakeSource{data: synthetic(runnerDay0, 30)},
			mutate:    func(c *Config) { c.Params.Strategy = "GRID" },
			wantErr:   ErrInvalidConfig,
			wantPhase: PhaseConnecting,
			wantCalls: 0,
		},
		{
			name:      "connect failure",
			source:    &fakeSource{data: synthetic(runnerDay0, 30), connectErr: errors.New("handshake refused")},
			wantErr:   ErrSourceFailure,
			wantPhase: PhaseConnecting,
			wantCalls: 0,
		},
		{
			name: "fetch failure is not insufficient data",
			source: &fakeSource{
				data: synthetic(runnerDay0, 30),
				errs: map[candles.Timeframe]error{candles.TF1h: errors.New("upstream 502")},
			},
			wantErr:   ErrSourceFailure,
			notErr:    ErrInsufficientData,
			wantPhase: PhaseFetching,
			wantCalls: 3,
		},
		{
			name:      "truncated history",
			source:    &fakeSource{data: short},
			wantErr:   ErrInsufficientData,
			notErr:    ErrSourceFailure,
			wantPhase: PhaseFetching,
			wantCalls: 3,
		},
		{
			name:      "sink failure",
			source:    &fakeSource{data: synthetic(runnerDay0, 30)},
			saveErr:   errors.New("disk full"),
			wantPhase: PhaseSaving,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := runnerConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			runner := NewRunner(tt.source, nil, quietLogger())
			runner.AddSink(&resultRecorder{err: tt.saveErr})

			sink := &recordingSink{}
			result, err := runner.Run(context.Background(), cfg, sink)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if result != nil {
				t.Error("Expected no partial result")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.notErr != nil && errors.Is(err, tt.notErr) {
				t.Errorf("Did not expect %v, got %v", tt.notErr, err)
			}

			var runErr *RunError
			if !errors.As(err, &runErr) {
				t.Fatalf("Expected *RunError, got %T", err)
			}
			if runErr.Phase != tt.wantPhase {
				t.Errorf("Expected phase %s, got %s", tt.wantPhase, runErr.Phase)
			}
			if got := tt.source.calls.Load(); got != tt.wantCalls {
				t.Errorf("Expected %d fetches, got %d", tt.wantCalls, got)
			}

			events := sink.snapshot()
			if len(events) == 0 {
				t.Fatal("Expected a terminal error event")
			}
			last := events[len(events)-1]
			if last.Phase != PhaseError || last.FailedPhase != tt.wantPhase || last.Error == "" {
				t.Errorf("Expected terminal error event for %s, got %+v", tt.wantPhase, last)
			}
		})
	}
}

// cancellingSource cancels the run while serving candles, so the simulation
// sees a cancelled context at its first checkpoint
type cancellingSource struct {
	*fakeSource
	cancel context.CancelFunc
}

func (c *cancellingSource) GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error) {
	c.cancel()
	return c.fakeSource.GetHistoricalCandles(ctx, symbol, tf, start, end)
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &cancellingSource{fakeSource: &fakeSource{data: synthetic(runnerDay0, 30)}, cancel: cancel}
	runner := NewRunner(source, nil, quietLogger())

	sink := &recordingSink{}
	_, err := runner.Run(ctx, runnerConfig(), sink)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	events := sink.snapshot()
	if len(events) == 0 || events[len(events)-1].Phase != PhaseError {
		t.Error("Expected a terminal error event after cancellation")
	}
}

func TestRunnerAssignsRunID(t *testing.T) {
	source := &fakeSource{data: synthetic(runnerDay0, 30)}
	runner := NewRunner(source, nil, quietLogger())
	cfg := runnerConfig()
	cfg.RunID = ""

	result, err := runner.Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RunID == "" {
		t.Error("Expected a generated run id")
	}
}

func TestConfigApplyVariation(t *testing.T) {
	cfg := runnerConfig()
	if err := cfg.ApplyVariation("OB70_KZ_DD5"); err != nil {
		t.Fatalf("ApplyVariation: %v", err)
	}
	if cfg.Params.MinOBScore != 70 || !cfg.Params.UseKillZones || cfg.Params.MaxDailyDD != 5 {
		t.Errorf("Unexpected params %+v", cfg.Params)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a valid config, got %v", err)
	}
	if err := cfg.ApplyVariation("NOPE"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfigValidateTimeframes(t *testing.T) {
	cfg := runnerConfig()
	cfg.HTF, cfg.MTF = candles.TF1h, candles.TF4h
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for unordered timeframes, got %v", err)
	}
}
