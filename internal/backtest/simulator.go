package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

// signalEngine is the part of strategy.Engine the simulator drives
type signalEngine interface {
	Evaluate(v strategy.View, allowNew bool) (strategy.Evaluation, error)
	Pending() *strategy.Signal
}

// Dataset is the fully fetched input of one run
type Dataset struct {
	HTF   []candles.Candle
	MTF   []candles.Candle
	LTF   []candles.Candle
	Ticks []candles.Tick
}

// Simulator replays a dataset bar by bar on the lower timeframe. It owns all
// per-run state and must not be reused across runs.
type Simulator struct {
	cfg      Config
	spec     risk.SymbolSpec
	engine   signalEngine
	guard    *risk.DailyGuard
	progress ProgressSink
	logger   zerolog.Logger

	balance float64
	open    *Trade
	trades  []Trade
	signals []strategy.Signal
	wins    int
	peak    float64
}

// NewSimulator creates a simulator with a fresh signal engine
func NewSimulator(cfg Config, progress ProgressSink, logger zerolog.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := strategy.NewEngine(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return newSimulator(cfg, engine, progress, logger), nil
}

func newSimulator(cfg Config, engine signalEngine, progress ProgressSink, logger zerolog.Logger) *Simulator {
	return &Simulator{
		cfg:      cfg,
		spec:     cfg.SymbolSpec(),
		engine:   engine,
		guard:    risk.NewDailyGuard(cfg.Params.MaxDailyDD),
		progress: progress,
		logger:   logger,
		balance:  cfg.InitialBalance,
		peak:     cfg.InitialBalance,
	}
}

// Run replays every LTF candle from the configured start date. Candles before
// it only serve as analysis history.
func (s *Simulator) Run(ctx context.Context, data Dataset) (*BacktestResult, error) {
	ltf := data.LTF
	first := 0
	for first < len(ltf) && ltf[first].Time.Before(s.cfg.StartDate) {
		first++
	}
	total := len(ltf) - first
	every := s.cfg.progressEvery()

	for i := first; i < len(ltf); i++ {
		if err := ctx.Err(); err != nil {
			return nil, phaseError(PhaseAnalyzing, fmt.Errorf("%w: %v", ErrCancelled, err))
		}

		if err := s.step(ltf, i, data); err != nil {
			return nil, phaseError(PhaseAnalyzing, err)
		}

		processed := i - first + 1
		if processed%every == 0 {
			s.emit(processed, total)
		}
	}

	if total > 0 {
		last := ltf[len(ltf)-1]
		s.forceClose(last)
		if p := s.engine.Pending(); p != nil {
			if err := p.Expire(last.CloseTime()); err != nil {
				return nil, phaseError(PhaseAnalyzing, fmt.Errorf("%w: %v", ErrInvariantViolation, err))
			}
			s.signals = append(s.signals, *p)
		}
	}

	result := &BacktestResult{
		RunID:            s.cfg.RunID,
		Symbol:           s.cfg.Symbol,
		Strategy:         s.cfg.Params.Name,
		StartDate:        s.cfg.StartDate,
		EndDate:          s.cfg.EndDate,
		InitialBalance:   s.cfg.InitialBalance,
		CandlesProcessed: total,
		Metrics:          CalculateMetrics(s.trades, s.cfg.StartDate, s.cfg.InitialBalance, s.cfg.annualization()),
		Trades:           s.trades,
		Signals:          s.signals,
	}
	if result.Trades == nil {
		result.Trades = []Trade{}
	}
	if result.Signals == nil {
		result.Signals = []strategy.Signal{}
	}
	return result, nil
}

func (s *Simulator) step(ltf []candles.Candle, i int, data Dataset) error {
	cur := ltf[i]
	now := cur.CloseTime()

	// the day's start balance is taken before this candle can close a trade
	s.guard.Observe(cur.Time, s.balance)

	if s.open != nil {
		var ticks []candles.Tick
		if s.cfg.UseTickData {
			ticks = candles.TicksBetween(data.Ticks, cur.Time, now)
		}
		if price, reason, hit := CheckExit(s.open, cur, ticks); hit {
			s.closeOpen(price, now, reason)
		}
	}

	allowNew := s.open == nil
	if allowNew && s.cfg.Params.UseKillZones {
		allowNew = strategy.InKillZone(cur.Time, s.cfg.Params.KillZones)
	}

	view := strategy.View{
		Symbol: s.cfg.Symbol,
		Time:   now,
		HTF:    candles.ClosedBy(data.HTF, now, HTFWindow),
		MTF:    candles.ClosedBy(data.MTF, now, MTFWindow),
		LTF:    candles.Upto(ltf, i, LTFWindow),
	}
	ev, err := s.engine.Evaluate(view, allowNew)
	if err != nil {
		return err
	}

	if ev.Expired != nil {
		s.signals = append(s.signals, *ev.Expired)
	}
	if ev.Rejected != nil {
		s.signals = append(s.signals, *ev.Rejected)
	}
	if ev.Signal != nil {
		if err := s.fill(ev.Signal, now); err != nil {
			return err
		}
	}
	return nil
}

// fill takes or rejects a priced signal
func (s *Simulator) fill(sig *strategy.Signal, at time.Time) error {
	defer func() { s.signals = append(s.signals, *sig) }()

	if s.open != nil {
		return fmt.Errorf("%w: signal %s fired while a trade is open", ErrInvariantViolation, sig.ID)
	}

	if s.guard.Halted(s.balance) {
		s.logger.Debug().
			Str("signal_id", sig.ID).
			Float64("drawdown", s.guard.Drawdown(s.balance)).
			Msg("Signal rejected by daily drawdown limit")
		return s.transition(sig.Reject(at, "daily drawdown limit reached"))
	}

	lots, err := risk.CalculateLotSize(s.balance, s.cfg.RiskPercent, sig.EntryPrice, sig.StopLoss, s.spec)
	if err != nil {
		return s.transition(sig.Reject(at, err.Error()))
	}
	sig.LotSize = lots
	if err := s.transition(sig.Take(at)); err != nil {
		return err
	}

	s.open = OpenTrade(sig, at, s.balance)
	s.logger.Debug().
		Str("signal_id", sig.ID).
		Str("direction", string(sig.Direction)).
		Float64("entry", sig.EntryPrice).
		Float64("sl", sig.StopLoss).
		Float64("tp", sig.TakeProfit).
		Float64("lots", lots).
		Msg("Trade opened")
	return nil
}

func (s *Simulator) transition(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return nil
}

func (s *Simulator) closeOpen(price float64, at time.Time, reason ExitReason) {
	t := s.open
	t.Close(price, at, reason, s.spec)
	s.balance += t.PnL
	if s.balance > s.peak {
		s.peak = s.balance
	}
	if t.IsWinner {
		s.wins++
	}
	s.trades = append(s.trades, *t)
	s.open = nil

	s.logger.Debug().
		Str("trade_id", t.ID).
		Str("exit_reason", string(reason)).
		Float64("exit", price).
		Float64("pnl", t.PnL).
		Float64("balance", s.balance).
		Msg("Trade closed")
}

// forceClose settles a trade still open when the series ends
func (s *Simulator) forceClose(last candles.Candle) {
	if s.open == nil {
		return
	}
	s.closeOpen(last.Close, last.CloseTime(), ExitManual)
}

func (s *Simulator) emit(processed, total int) {
	if s.progress == nil {
		return
	}
	p := Progress{
		RunID:     s.cfg.RunID,
		Phase:     PhaseAnalyzing,
		Processed: processed,
		Total:     total,
		Balance:   s.balance,
		PnL:       s.balance - s.cfg.InitialBalance,
		Trades:    len(s.trades),
		Time:      time.Now().UTC(),
	}
	if total > 0 {
		p.Percent = float64(processed) / float64(total) * 100
	}
	if len(s.trades) > 0 {
		p.WinRate = float64(s.wins) / float64(len(s.trades)) * 100
	}
	if s.peak > 0 {
		p.Drawdown = (s.peak - s.balance) / s.peak * 100
	}
	s.progress.OnProgress(p)
}
