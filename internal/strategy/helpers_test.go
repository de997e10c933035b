package strategy

import (
	"time"

	"smc-trading-bot/internal/candles"
)

var (
	mtfStart = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	ltfStart = mtfStart.Add(20 * time.Hour)
)

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

// scenarioHTF rises steadily with no swing points, so its bias is bullish
func scenarioHTF() []candles.Candle {
	start := mtfStart.Add(-100 * time.Hour)
	out := make([]candles.Candle, 30)
	for i := range out {
		p := 90 + float64(i)*0.5
		out[i] = mk(start, candles.TF4h, i, p-0.2, p+0.5, p-0.5, p)
	}
	return out
}

// scenarioMTF holds one bullish order block at index 4: base body 2,
// impulse body 6, ATR(14) of 3. Block range 98.5-101.5, score 90.
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

// touchLTF stays above the block, then drops straight to its midpoint
func touchLTF() []candles.Candle {
	return []candles.Candle{
		ltf(0, 106.2, 106.4, 105.8, 106),
		ltf(1, 106, 106.1, 99.9, 100),
	}
}

func doji(k int, p float64) candles.Candle {
	return ltf(k, p, p+0.2, p-0.2, p)
}

func viewAt(series []candles.Candle) View {
	return View{
		Symbol: "XAUUSD",
		Time:   series[len(series)-1].CloseTime(),
		HTF:    scenarioHTF(),
		MTF:    scenarioMTF(),
		LTF:    series,
	}
}

// replay evaluates every prefix of series and collects the outcomes
func replay(e *Engine, series []candles.Candle) (signals, pending, expired, rejected []*Signal) {
	for i := 1; i <= len(series); i++ {
		ev, err := e.Evaluate(viewAt(series[:i]), true)
		if err != nil {
			panic(err)
		}
		if ev.Signal != nil {
			_ = ev.Signal.Take(ev.Time)
			signals = append(signals, ev.Signal)
		}
		if ev.Pending != nil {
			pending = append(pending, ev.Pending)
		}
		if ev.Expired != nil {
			expired = append(expired, ev.Expired)
		}
		if ev.Rejected != nil {
			rejected = append(rejected, ev.Rejected)
		}
	}
	return
}
