package backtest

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

var (
	mtfStart = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	ltfStart = mtfStart.Add(20 * time.Hour)
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func mk(start time.Time, tf candles.Timeframe, i int, o, h, l, c float64) candles.Candle {
	return candles.Candle{
		Time:      start.Add(time.Duration(i) * tf.Duration()),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Symbol:    "XAUUSD",
		Timeframe: tf,
	}
}

// scenarioHTF rises steadily, so its bias is bullish
func scenarioHTF() []candles.Candle {
	start := mtfStart.Add(-100 * time.Hour)
	out := make([]candles.Candle, 30)
	for i := range out {
		p := 90 + float64(i)*0.5
		out[i] = mk(start, candles.TF4h, i, p-0.2, p+0.5, p-0.5, p)
	}
	return out
}

// scenarioMTF holds one bullish order block at index 4 spanning 98.5-101.5
func scenarioMTF() []candles.Candle {
	out := make([]candles.Candle, 0, 20)
	for i := 0; i < 4; i++ {
		out = append(out, mk(mtfStart, candles.TF1h, i, 100, 101.5, 98.5, 100))
	}
	out = append(out,
		mk(mtfStart, candles.TF1h, 4, 101, 101.5, 98.5, 99),
		mk(mtfStart, candles.TF1h, 5, 99, 105.5, 98.5, 105),
		mk(mtfStart, candles.TF1h, 6, 105, 107, 104, 106),
	)
	for i := 7; i < 20; i++ {
		out = append(out, mk(mtfStart, candles.TF1h, i, 106, 107.5, 104.5, 106))
	}
	return out
}

func ltf(k int, o, h, l, c float64) candles.Candle {
	return mk(ltfStart, candles.TF15m, k, o, h, l, c)
}

func scenarioConfig() Config {
	cfg := DefaultConfig()
	cfg.RunID = "scenario"
	cfg.Symbol = "XAUUSD"
	cfg.StartDate = ltfStart
	cfg.EndDate = ltfStart.Add(24 * time.Hour)
	cfg.Params.MinOBScore = 50
	return cfg
}

// synthetic builds a deterministic wave on 15m candles and aggregates it to 1h and 4h
func synthetic(start time.Time, days int) Dataset {
	n := days * 96
	ltfSeries := make([]candles.Candle, n)
	prev := 100.0
	for k := 0; k < n; k++ {
		x := float64(k)
		p := 100 + 4*math.Sin(x/40) + 1.5*math.Sin(x/7) + 0.3*math.Sin(x*1.3)
		c := candles.Candle{
			Time:      start.Add(time.Duration(k) * 15 * time.Minute),
			Open:      prev,
			High:      math.Max(prev, p) + 0.2,
			Low:       math.Min(prev, p) - 0.2,
			Close:     p,
			Symbol:    "XAUUSD",
			Timeframe: candles.TF15m,
		}
		ltfSeries[k] = c
		prev = p
	}
	return Dataset{
		HTF: aggregate(ltfSeries, candles.TF4h),
		MTF: aggregate(ltfSeries, candles.TF1h),
		LTF: ltfSeries,
	}
}

func aggregate(series []candles.Candle, tf candles.Timeframe) []candles.Candle {
	var out []candles.Candle
	for _, c := range series {
		open := c.Time.Truncate(tf.Duration())
		if len(out) == 0 || !out[len(out)-1].Time.Equal(open) {
			out = append(out, candles.Candle{
				Time: open, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
				Symbol: c.Symbol, Timeframe: tf,
			})
			continue
		}
		last := &out[len(out)-1]
		last.High = math.Max(last.High, c.High)
		last.Low = math.Min(last.Low, c.Low)
		last.Close = c.Close
	}
	return out
}

// fakeSource serves a dataset, filtered to the requested range
type fakeSource struct {
	data       Dataset
	errs       map[candles.Timeframe]error
	connectErr error
	calls      atomic.Int32
	connected  atomic.Bool
}

func (f *fakeSource) Connect(ctx context.Context) error {
	f.connected.Store(true)
	return f.connectErr
}

func (f *fakeSource) GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error) {
	f.calls.Add(1)
	if err := f.errs[tf]; err != nil {
		return nil, err
	}
	var series []candles.Candle
	switch tf {
	case candles.TF4h:
		series = f.data.HTF
	case candles.TF1h:
		series = f.data.MTF
	case candles.TF15m:
		series = f.data.LTF
	default:
		return nil, errors.New("unsupported timeframe")
	}
	var out []candles.Candle
	for _, c := range series {
		if !c.Time.Before(start) && c.Time.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Progress
}

func (r *recordingSink) OnProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recordingSink) snapshot() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.events...)
}

type resultRecorder struct {
	results []*BacktestResult
	err     error
}

func (r *resultRecorder) SaveResult(ctx context.Context, result *BacktestResult) error {
	r.results = append(r.results, result)
	return r.err
}

// scriptedEngine fires fixed signals at chosen cursor times, when allowed
type scriptedEngine struct {
	fire  map[int64]*strategy.Signal
	calls int
}

func (s *scriptedEngine) Evaluate(v strategy.View, allowNew bool) (strategy.Evaluation, error) {
	s.calls++
	ev := strategy.Evaluation{Time: v.Time}
	if sig, ok := s.fire[v.Time.Unix()]; ok && allowNew {
		ev.Signal = sig
	}
	return ev, nil
}

func (s *scriptedEngine) Pending() *strategy.Signal { return nil }

func scriptedSignal(id string, at time.Time, entry, sl, tp float64) *strategy.Signal {
	return &strategy.Signal{
		ID:         id,
		Symbol:     "TEST",
		Direction:  risk.Buy,
		EntryPrice: entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Status:     strategy.StatusPending,
		CreatedAt:  at,
	}
}

func quietLogger() zerolog.Logger {
	return zerolog.Nop()
}
