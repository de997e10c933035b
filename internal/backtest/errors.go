package backtest

import (
	"errors"
	"fmt"

	"smc-trading-bot/internal/strategy"
)

// Phase is a step of the run state machine
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseFetching   Phase = "fetching"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseSaving     Phase = "saving"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

var (
	ErrInvalidConfig    = errors.New("invalid backtest configuration")
	ErrInsufficientData = errors.New("insufficient historical data")
	ErrSourceFailure    = errors.New("candle source failure")
	ErrCancelled        = errors.New("backtest cancelled")

	// ErrInvariantViolation is returned when the simulation reaches an impossible state
	ErrInvariantViolation = strategy.ErrInvariantViolation
)

// RunError is the structured failure of a run: the phase it failed in and why
type RunError struct {
	Phase Phase
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("backtest failed during %s: %v", e.Phase, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func phaseError(phase Phase, err error) *RunError {
	return &RunError{Phase: phase, Err: err}
}
