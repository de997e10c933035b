package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/events"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

var ErrNoSymbols = errors.New("live bot needs at least one symbol")

// Config holds the live bot configuration
type Config struct {
	Symbols          []string
	Params           strategy.Params
	HTF              candles.Timeframe
	MTF              candles.Timeframe
	LTF              candles.Timeframe
	RiskPercent      float64
	MaxOpenPositions int
	PollInterval     time.Duration
	Balance          float64
	DryRun           bool
}

// Bot runs one session per symbol. Sessions share a risk manager, which caps
// open positions across all of them.
type Bot struct {
	cfg      Config
	sessions []*Session
	risk     *risk.RiskManager
	bus      *events.EventBus
	logger   zerolog.Logger
}

// New creates a bot. Sessions are created up front so parameter errors
// surface before anything runs.
func New(cfg Config, source backtest.CandleSource, exec ExecutionSink, logger zerolog.Logger) (*Bot, error) {
	if len(cfg.Symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if cfg.Balance <= 0 {
		return nil, fmt.Errorf("invalid live balance %.2f", cfg.Balance)
	}

	rm := risk.NewRiskManager(&risk.Config{
		RiskPercent:      cfg.RiskPercent,
		MaxDailyDrawdown: cfg.Params.MaxDailyDD,
		MaxOpenPositions: cfg.MaxOpenPositions,
	}, cfg.Balance)

	b := &Bot{
		cfg:    cfg,
		risk:   rm,
		logger: logger.With().Str("component", "bot").Logger(),
	}
	for _, symbol := range cfg.Symbols {
		s, err := NewSession(SessionConfig{
			Symbol:       symbol,
			Params:       cfg.Params,
			HTF:          cfg.HTF,
			MTF:          cfg.MTF,
			LTF:          cfg.LTF,
			PollInterval: cfg.PollInterval,
			Spec:         risk.LookupSymbol(symbol),
		}, source, exec, rm, logger)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", symbol, err)
		}
		b.sessions = append(b.sessions, s)
	}
	return b, nil
}

// SetRecorder enables persistence on every session
func (b *Bot) SetRecorder(r Recorder) {
	for _, s := range b.sessions {
		s.SetRecorder(r)
	}
}

// SetEventBus enables event publishing on every session
func (b *Bot) SetEventBus(bus *events.EventBus) {
	b.bus = bus
	for _, s := range b.sessions {
		s.SetEventBus(bus)
	}
}

// Run blocks until ctx is cancelled or a session fails
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().
		Strs("symbols", b.cfg.Symbols).
		Str("variation", b.cfg.Params.Name).
		Bool("dry_run", b.cfg.DryRun).
		Int("max_open_positions", b.cfg.MaxOpenPositions).
		Msg("Trading bot started")
	b.publish(events.EventBotStarted)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range b.sessions {
		s := s
		g.Go(func() error { return s.Run(gctx) })
	}
	err := g.Wait()

	b.publish(events.EventBotStopped)
	b.logger.Info().Err(err).Msg("Trading bot stopped")
	return err
}

// Positions returns the open position of every session
func (b *Bot) Positions() []backtest.Trade {
	var out []backtest.Trade
	for _, s := range b.sessions {
		if p := s.Position(); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Status summarizes the bot for the API
func (b *Bot) Status() map[string]interface{} {
	status := b.risk.GetRiskMetrics()
	status["symbols"] = b.cfg.Symbols
	status["variation"] = b.cfg.Params.Name
	status["dry_run"] = b.cfg.DryRun
	status["positions"] = b.Positions()
	return status
}

func (b *Bot) publish(t events.EventType) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"symbols":   b.cfg.Symbols,
			"variation": b.cfg.Params.Name,
		},
	})
}
