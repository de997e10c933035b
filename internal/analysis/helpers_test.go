package analysis

import (
	"time"

	"smc-trading-bot/internal/candles"
)

var testStart = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func candle(i int, o, h, l, c float64) candles.Candle {
	return candles.Candle{
		Time:      testStart.Add(time.Duration(i) * time.Hour),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Symbol:    "BTCUSDT",
		Timeframe: candles.TF1h,
	}
}

func flat(i int, p float64) candles.Candle {
	return candle(i, p, p+1, p-1, p)
}

// bullishBlockSeries has one bullish order block at index 5 (high 101, low 99)
func bullishBlockSeries() []candles.Candle {
	s := []candles.Candle{
		flat(0, 100), flat(1, 100), flat(2, 100), flat(3, 100), flat(4, 100),
		candle(5, 100.5, 101, 99, 99.5),   // base: bearish, body 1
		candle(6, 99.5, 105, 99.5, 104.5), // impulse: body 5
		candle(7, 104.5, 106.5, 104, 106), // continuation
	}
	for i := 8; i < 12; i++ {
		s = append(s, flat(i, 106))
	}
	return s
}

// zigzag builds candles from high/low pairs with the close at the midpoint
func zigzag(hl [][2]float64) []candles.Candle {
	s := make([]candles.Candle, len(hl))
	for i, p := range hl {
		mid := (p[0] + p[1]) / 2
		s[i] = candle(i, mid, p[0], p[1], mid)
	}
	return s
}

func risingZigzag() [][2]float64 {
	return [][2]float64{{10, 8}, {12, 10}, {11, 9}, {14, 11}, {13, 10.5}, {16, 12}, {15, 13}}
}
