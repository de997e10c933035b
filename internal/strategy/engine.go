package strategy

import (
	"errors"
	"fmt"
	"time"

	"smc-trading-bot/internal/analysis"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/confluence"
	"smc-trading-bot/internal/risk"
)

// ErrInvariantViolation marks a state the engine must never reach
var ErrInvariantViolation = errors.New("simulation invariant violated")

// View is everything visible at one cursor position. Every candle in the three
// windows has closed at or before Time.
type View struct {
	Symbol string
	Time   time.Time
	HTF    []candles.Candle
	MTF    []candles.Candle
	LTF    []candles.Candle
}

// Evaluation is the outcome of one engine step
type Evaluation struct {
	Time       time.Time
	Price      float64
	Confluence *confluence.SignalConfluence
	Signal     *Signal                      // priced and ready to fill, still PENDING until taken or rejected
	Pending    *Signal                      // touch registered, waiting for confirmation
	Expired    *Signal
	Rejected   *Signal
}

type structureMemo struct {
	last int64
	n    int
	s    analysis.Structure
	ok   bool
}

// Engine turns successive views into signals. It owns the per-run block
// ledger and pending signal, so each run or live session needs its own.
type Engine struct {
	params   Params
	detector *analysis.Detector
	scorer   *confluence.ConfluenceScorer
	tracker  *analysis.BlockTracker
	pending  *Signal
	htf      structureMemo
	mtf      structureMemo
}

// NewEngine creates an engine for one run
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	scorer := confluence.NewConfluenceScorer()
	if err := scorer.SetWeights(params.Weights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	scorer.SetMinimumScore(params.MinConfluence)

	return &Engine{
		params:   params,
		detector: analysis.NewDetector(params.Detector),
		scorer:   scorer,
		tracker:  analysis.NewBlockTracker(),
	}, nil
}

// Params returns the engine's parameters
func (e *Engine) Params() Params {
	return e.params
}

// Pending returns the signal waiting for confirmation, if any
func (e *Engine) Pending() *Signal {
	return e.pending
}

// Evaluate advances the engine to the view's cursor. Pending expiry is checked
// before confirmation; new touches are only considered when allowNew is set
// and no signal is pending.
func (e *Engine) Evaluate(v View, allowNew bool) (Evaluation, error) {
	ev := Evaluation{Time: v.Time}
	n := len(v.LTF)
	if n == 0 {
		return ev, nil
	}
	cur := v.LTF[n-1]
	var prev *candles.Candle
	if n > 1 {
		prev = &v.LTF[n-2]
	}
	ev.Price = cur.Close

	htf := e.structure(&e.htf, v.HTF)
	mtf := e.structure(&e.mtf, v.MTF)
	mtf.OrderBlocks = e.tracker.Apply(append([]analysis.OrderBlock(nil), mtf.OrderBlocks...))
	ltf := analysis.Structure{Bias: e.detector.Bias(v.LTF)}

	conf := e.scorer.CalculateConfluence(htf, mtf, ltf, e.params.MinOBScore)
	ev.Confluence = conf

	if p := e.pending; p != nil {
		if !v.Time.Before(p.CreatedAt.Add(e.params.PendingWindow)) {
			e.pending = nil
			if err := p.Expire(v.Time); err != nil {
				return ev, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
			}
			ev.Expired = p
		} else {
			if allowNew && Confirms(e.params.Confirmation, p.Direction, cur, prev) {
				e.pending = nil
				if err := e.finalize(p, cur.Close, v.Time, &ev); err != nil {
					return ev, err
				}
			}
			return ev, nil
		}
	}

	if !allowNew || !e.scorer.ShouldTrade(conf) {
		return ev, nil
	}

	obType := analysis.BullishOB
	if conf.Direction == confluence.DirectionBearish {
		obType = analysis.BearishOB
	}
	side := sideFor(obType)

	if !e.passesGates(side, cur.Close, mtf, len(v.MTF)) {
		return ev, nil
	}

	blocks := mtf.OrderBlocks
	if e.params.Strategy == StrategyBOS {
		blocks = blocksBeforeBreak(blocks, mtf.Breaks, analysis.Bias(conf.Direction))
	}

	ob, ok := SelectBlock(blocks, obType, cur.Close, e.params.MinOBScore)
	if !ok {
		return ev, nil
	}
	if e.tracker.IsMitigated(ob) || e.tracker.IsUsed(ob) {
		return ev, fmt.Errorf("%w: block %s selected while mitigated or used", ErrInvariantViolation, ob.Key())
	}
	e.tracker.MarkUsed(ob)
	ob.Used = true

	s := newSignal(v.Symbol, side, ob, v.Time)
	s.Confidence = conf.TotalScore
	s.HTFBias = htf.Bias
	s.Confirmation = e.params.Confirmation
	s.Reason = fmt.Sprintf("%s %s block %.5f-%.5f score %.0f, confluence %.1f (%s)",
		e.params.Strategy, ob.Type, ob.Low, ob.High, ob.Score, conf.TotalScore, conf.Grade)

	if e.params.Confirmation == ConfirmNone {
		err := e.finalize(s, cur.Close, v.Time, &ev)
		return ev, err
	}

	// provisional pricing until the confirmation candle sets the entry
	PriceSignal(s, cur.Close, e.params.SLBufferRatio, e.params.FixedRR)
	e.pending = s
	ev.Pending = s
	return ev, nil
}

func (e *Engine) finalize(s *Signal, entry float64, at time.Time, ev *Evaluation) error {
	PriceSignal(s, entry, e.params.SLBufferRatio, e.params.FixedRR)
	if !validGeometry(s) {
		if err := s.Reject(at, "entry beyond stop loss"); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		ev.Rejected = s
		return nil
	}
	ev.Signal = s
	return nil
}

func (e *Engine) passesGates(side risk.Side, price float64, mtf analysis.Structure, mtfLen int) bool {
	if e.params.RequirePremiumDiscount {
		if side == risk.Buy && !mtf.Range.InDiscount(price) {
			return false
		}
		if side == risk.Sell && !mtf.Range.InPremium(price) {
			return false
		}
	}
	if e.params.needsSweep() {
		swept := analysis.SellSideLiquidity
		if side == risk.Sell {
			swept = analysis.BuySideLiquidity
		}
		lookback := e.params.SweepLookback
		if lookback <= 0 {
			lookback = DefaultSweepLookback
		}
		if !analysis.RecentSweep(mtf.Liquidity, swept, mtfLen-lookback) {
			return false
		}
	}
	return true
}

func blocksBeforeBreak(blocks []analysis.OrderBlock, breaks []analysis.BreakOfStructure, dir analysis.Bias) []analysis.OrderBlock {
	bos, ok := analysis.LatestBreak(breaks)
	if !ok || bos.Type != dir {
		return nil
	}
	var out []analysis.OrderBlock
	for _, ob := range blocks {
		if ob.Index < bos.Index {
			out = append(out, ob)
		}
	}
	return out
}

// structure re-runs the detector only when the window gained a closed candle
func (e *Engine) structure(m *structureMemo, window []candles.Candle) analysis.Structure {
	if len(window) == 0 {
		return analysis.Structure{Bias: analysis.BiasNeutral}
	}
	last := window[len(window)-1].Time.Unix()
	if m.ok && m.last == last && m.n == len(window) {
		return m.s
	}
	m.s = e.detector.Analyze(window)
	m.last, m.n, m.ok = last, len(window), true
	return m.s
}
