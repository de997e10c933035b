package backtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Progress is one observation of a running backtest
type Progress struct {
	RunID       string    `json:"runId"`
	Phase       Phase     `json:"phase"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	Percent     float64   `json:"percent"`
	Balance     float64   `json:"balance"`
	PnL         float64   `json:"pnl"`
	Trades      int       `json:"trades"`
	WinRate     float64   `json:"winRate"`
	Drawdown    float64   `json:"drawdown"`
	Message     string    `json:"message,omitempty"`
	FailedPhase Phase     `json:"failedPhase,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Terminal reports whether no further events follow
func (p Progress) Terminal() bool {
	return p.Phase == PhaseComplete || p.Phase == PhaseError
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(p Progress)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(p Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// MultiProgress delivers every event to each sink in order
type MultiProgress []ProgressSink

func (m MultiProgress) OnProgress(p Progress) {
	for _, sink := range m {
		if sink != nil {
			sink.OnProgress(p)
		}
	}
}

const (
	progressBuffer  = 64
	terminalTimeout = 2 * time.Second
)

// AsyncProgress decouples the simulation from a progress sink. OnProgress
// never blocks: events are dropped when the buffer is full. A panicking sink
// is recovered and the stream continues.
type AsyncProgress struct {
	sink    ProgressSink
	events  chan Progress
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	logger  zerolog.Logger
}

// NewAsyncProgress starts the delivery goroutine; a nil sink discards events
func NewAsyncProgress(sink ProgressSink, logger zerolog.Logger) *AsyncProgress {
	a := &AsyncProgress{
		sink:   sink,
		events: make(chan Progress, progressBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.loop()
	return a
}

func (a *AsyncProgress) OnProgress(p Progress) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- p:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded on a full buffer
func (a *AsyncProgress) Dropped() int64 {
	return a.dropped.Load()
}

// Finish delivers the terminal event, waiting a bounded time for buffer space
// and for the sink to drain, then stops the delivery goroutine
func (a *AsyncProgress) Finish(p Progress) {
	a.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), terminalTimeout)
		defer cancel()

		select {
		case a.events <- p:
		case <-ctx.Done():
			a.logger.Warn().Str("phase", string(p.Phase)).Msg("Progress sink stalled, terminal event dropped")
		}

		a.mu.Lock()
		a.closed = true
		close(a.events)
		a.mu.Unlock()

		select {
		case <-a.done:
		case <-ctx.Done():
			a.logger.Warn().Msg("Progress sink did not drain in time")
		}
	})
}

func (a *AsyncProgress) loop() {
	defer close(a.done)
	for p := range a.events {
		a.deliver(p)
	}
}

func (a *AsyncProgress) deliver(p Progress) {
	if a.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Str("phase", string(p.Phase)).Msg("Progress sink panicked")
		}
	}()
	a.sink.OnProgress(p)
}
