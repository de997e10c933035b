package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/events"
	"smc-trading-bot/internal/logging"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

// Recorder persists live signals and closed positions
type Recorder interface {
	SaveLiveSignal(ctx context.Context, sig strategy.Signal) error
	SaveLiveTrade(ctx context.Context, t backtest.Trade) error
}

// signalEngine is the part of strategy.Engine a session drives
type signalEngine interface {
	Evaluate(v strategy.View, allowNew bool) (strategy.Evaluation, error)
}

// SessionConfig describes one symbol traded live
type SessionConfig struct {
	Symbol       string
	Params       strategy.Params
	HTF          candles.Timeframe
	MTF          candles.Timeframe
	LTF          candles.Timeframe
	PollInterval time.Duration
	Spec         risk.SymbolSpec
}

// Session runs the signal pipeline for one symbol against live candles. Each
// closed LTF candle is processed exactly once.
type Session struct {
	cfg      SessionConfig
	source   backtest.CandleSource
	exec     ExecutionSink
	risk     *risk.RiskManager
	recorder Recorder
	bus      *events.EventBus
	engine   signalEngine
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	lastClose time.Time
	position  *backtest.Trade
	closed    []backtest.Trade
	signals   int
}

// NewSession creates a session with its own engine
func NewSession(cfg SessionConfig, source backtest.CandleSource, exec ExecutionSink, rm *risk.RiskManager, logger zerolog.Logger) (*Session, error) {
	engine, err := strategy.NewEngine(cfg.Params)
	if err != nil {
		return nil, err
	}
	return newSession(cfg, engine, source, exec, rm, logger), nil
}

func newSession(cfg SessionConfig, engine signalEngine, source backtest.CandleSource, exec ExecutionSink, rm *risk.RiskManager, logger zerolog.Logger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Session{
		cfg:    cfg,
		source: source,
		exec:   exec,
		risk:   rm,
		engine: engine,
		logger: logging.SessionContext(logger, cfg.Symbol, cfg.Params.Name),
		now:    time.Now,
	}
}

// SetRecorder enables persistence of signals and trades
func (s *Session) SetRecorder(r Recorder) { s.recorder = r }

// SetEventBus enables event publishing
func (s *Session) SetEventBus(bus *events.EventBus) { s.bus = bus }

// Symbol returns the traded symbol
func (s *Session) Symbol() string { return s.cfg.Symbol }

// Position returns a copy of the open position, if any
func (s *Session) Position() *backtest.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.position == nil {
		return nil
	}
	p := *s.position
	return &p
}

// ClosedTrades returns the positions closed so far
func (s *Session) ClosedTrades() []backtest.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backtest.Trade(nil), s.closed...)
}

// Run polls until ctx is cancelled. Source failures are logged and retried
// on the next tick; engine failures stop the session.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("Session started")
	for {
		if err := s.Poll(ctx); err != nil {
			if errors.Is(err, strategy.ErrInvariantViolation) {
				return err
			}
			if ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Poll failed")
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Session stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the latest windows and processes every LTF candle closed since
// the previous poll. The first poll only processes the latest closed candle.
func (s *Session) Poll(ctx context.Context) error {
	now := s.now().UTC()
	data, err := s.fetch(ctx, now)
	if err != nil {
		return err
	}

	ltf := candles.ClosedBy(data.LTF, now, 0)
	if len(ltf) == 0 {
		return nil
	}

	s.mu.RLock()
	last := s.lastClose
	s.mu.RUnlock()

	first := len(ltf) - 1
	if !last.IsZero() {
		first = len(ltf)
		for i, c := range ltf {
			if c.CloseTime().After(last) {
				first = i
				break
			}
		}
	}

	for i := first; i < len(ltf); i++ {
		if err := s.process(ctx, ltf, i, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, now time.Time) (backtest.Dataset, error) {
	var data backtest.Dataset
	g, gctx := errgroup.WithContext(ctx)

	load := func(tf candles.Timeframe, window int, dst *[]candles.Candle) {
		g.Go(func() error {
			start := now.Add(-time.Duration(window+1) * tf.Duration())
			series, err := s.source.GetHistoricalCandles(gctx, s.cfg.Symbol, tf, start, now)
			if err != nil {
				return fmt.Errorf("error fetching %s candles: %w", tf, err)
			}
			*dst = candles.Dedupe(series)
			return nil
		})
	}
	load(s.cfg.HTF, backtest.HTFWindow, &data.HTF)
	load(s.cfg.MTF, backtest.MTFWindow, &data.MTF)
	load(s.cfg.LTF, backtest.LTFWindow, &data.LTF)

	if err := g.Wait(); err != nil {
		return backtest.Dataset{}, err
	}
	return data, nil
}

func (s *Session) process(ctx context.Context, ltf []candles.Candle, i int, data backtest.Dataset) error {
	cur := ltf[i]
	at := cur.CloseTime()

	s.mu.Lock()
	s.lastClose = at
	pos := s.position
	s.mu.Unlock()

	if pos != nil {
		if price, reason, hit := backtest.CheckExit(pos, cur, nil); hit {
			s.closePosition(ctx, price, at, reason)
		}
	}

	s.mu.RLock()
	allowNew := s.position == nil
	s.mu.RUnlock()
	if allowNew && s.cfg.Params.UseKillZones {
		allowNew = strategy.InKillZone(cur.Time, s.cfg.Params.KillZones)
	}

	view := strategy.View{
		Symbol: s.cfg.Symbol,
		Time:   at,
		HTF:    candles.ClosedBy(data.HTF, at, backtest.HTFWindow),
		MTF:    candles.ClosedBy(data.MTF, at, backtest.MTFWindow),
		LTF:    candles.Upto(ltf, i, backtest.LTFWindow),
	}
	ev, err := s.engine.Evaluate(view, allowNew)
	if err != nil {
		return err
	}

	if ev.Pending != nil {
		s.logger.Debug().Str("signal_id", ev.Pending.ID).Msg("Order block touched, waiting for confirmation")
	}
	for _, sig := range []*strategy.Signal{ev.Expired, ev.Rejected} {
		if sig != nil {
			s.resolved(ctx, sig)
		}
	}
	if ev.Signal != nil {
		return s.execute(ctx, ev.Signal, at)
	}
	return nil
}

// execute takes or rejects a priced signal. A failed order rejects the
// signal; it is not retried.
func (s *Session) execute(ctx context.Context, sig *strategy.Signal, at time.Time) error {
	log := logging.SignalContext(s.logger, sig.ID, sig.Symbol, string(sig.Direction), sig.Confidence)
	if s.bus != nil {
		s.bus.PublishSignal(sig.Symbol, string(sig.Direction), sig.Reason, sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.Confidence)
	}

	reject := func(reason string) error {
		log.Warn().Str("reason", reason).Msg("Signal rejected")
		if err := sig.Reject(at, reason); err != nil {
			return fmt.Errorf("%w: %v", strategy.ErrInvariantViolation, err)
		}
		s.resolved(ctx, sig)
		return nil
	}

	ok, reason := s.risk.ReservePosition(at)
	if !ok {
		return reject(reason)
	}

	lots, err := s.risk.CalculatePositionSize(s.cfg.Spec, sig.EntryPrice, sig.StopLoss)
	if err != nil {
		s.risk.ReleasePosition()
		return reject(err.Error())
	}
	sig.LotSize = lots

	res, err := s.exec.PlaceOrder(ctx, OrderRequest{
		ClientID:   sig.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		Quantity:   lots,
		Price:      sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
	})
	if err != nil {
		s.risk.ReleasePosition()
		return reject("order failed: " + err.Error())
	}

	if err := sig.Take(at); err != nil {
		return fmt.Errorf("%w: %v", strategy.ErrInvariantViolation, err)
	}

	pos := backtest.OpenTrade(sig, at, s.risk.GetAccountBalance())
	if res.FilledPrice > 0 {
		pos.EntryPrice = res.FilledPrice
	}
	if res.FilledQty > 0 {
		pos.LotSize = res.FilledQty
	}

	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()

	riskLog := logging.RiskContext(log, sig.Symbol, s.risk.RiskPercent(), pos.LotSize)
	riskLog.Info().
		Str("order_id", res.OrderID).
		Float64("entry", pos.EntryPrice).
		Float64("sl", pos.StopLoss).
		Float64("tp", pos.TakeProfit).
		Msg("Position opened")
	if s.bus != nil {
		s.bus.PublishTradeOpened(pos.Symbol, string(pos.Direction), pos.EntryPrice, pos.LotSize)
	}
	s.resolved(ctx, sig)
	return nil
}

// closePosition sends the exit order. The position stays open when the
// order fails.
func (s *Session) closePosition(ctx context.Context, price float64, at time.Time, reason backtest.ExitReason) {
	s.mu.RLock()
	pos := *s.position
	s.mu.RUnlock()

	res, err := s.exec.PlaceOrder(ctx, OrderRequest{
		Symbol:     pos.Symbol,
		Side:       pos.Direction.Opposite(),
		Quantity:   pos.LotSize,
		Price:      price,
		ReduceOnly: true,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("trade_id", pos.ID).Str("exit_reason", string(reason)).Msg("Exit order failed")
		return
	}
	if res.FilledPrice > 0 {
		price = res.FilledPrice
	}

	pos.Close(price, at, reason, s.cfg.Spec)
	s.risk.RegisterPositionClose(at, pos.PnL)

	s.mu.Lock()
	s.position = nil
	s.closed = append(s.closed, pos)
	s.mu.Unlock()

	s.logger.Info().
		Str("trade_id", pos.ID).
		Str("exit_reason", string(reason)).
		Float64("exit", pos.ExitPrice).
		Float64("pnl", pos.PnL).
		Msg("Position closed")
	if s.bus != nil {
		s.bus.PublishTradeClosed(pos.Symbol, string(reason), pos.EntryPrice, pos.ExitPrice, pos.LotSize, pos.PnL)
	}
	if s.recorder != nil {
		if err := s.recorder.SaveLiveTrade(ctx, pos); err != nil {
			s.logger.Error().Err(err).Str("trade_id", pos.ID).Msg("Failed to save live trade")
		}
	}
}

// resolved publishes and persists a signal that reached a terminal status
func (s *Session) resolved(ctx context.Context, sig *strategy.Signal) {
	s.mu.Lock()
	s.signals++
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.PublishSignalResolved(sig.ID, sig.Symbol, string(sig.Status), sig.Note)
	}
	if s.recorder != nil {
		if err := s.recorder.SaveLiveSignal(ctx, *sig); err != nil {
			s.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("Failed to save live signal")
		}
	}
}

// SignalCount returns the number of resolved signals
func (s *Session) SignalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals
}
