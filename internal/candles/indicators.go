package candles

import "time"

// SwingType distinguishes swing highs from swing lows
type SwingType string

const (
	SwingHigh SwingType = "HIGH"
	SwingLow  SwingType = "LOW"
)

// SwingPoint is a local extreme confirmed by Lookback candles on each side
type SwingPoint struct {
	Type  SwingType
	Price float64
	Time  time.Time
	Index int
}

const (
	DefaultATRPeriod     = 14
	DefaultSwingLookback = 3
)

// ATR returns the mean high-low range of the trailing period candles (the prior
// close is not part of the range). Returns 0 when fewer than period candles exist.
func ATR(series []Candle, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(series) < period {
		return 0
	}

	sum := 0.0
	for _, c := range series[len(series)-period:] {
		sum += c.High - c.Low
	}
	return sum / float64(period)
}

// FindSwingPoints returns swing highs and lows in index order. A pivot must be
// strictly above (below) every candle within lookback on both sides, so the
// first and last lookback candles are never pivots.
func FindSwingPoints(series []Candle, lookback int) []SwingPoint {
	if lookback <= 0 {
		lookback = DefaultSwingLookback
	}

	var points []SwingPoint
	for i := lookback; i < len(series)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if series[j].High >= series[i].High {
				isHigh = false
			}
			if series[j].Low <= series[i].Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			points = append(points, SwingPoint{Type: SwingHigh, Price: series[i].High, Time: series[i].Time, Index: i})
		}
		if isLow {
			points = append(points, SwingPoint{Type: SwingLow, Price: series[i].Low, Time: series[i].Time, Index: i})
		}
	}
	return points
}

// Highs filters swing highs
func Highs(points []SwingPoint) []SwingPoint {
	return filterSwings(points, SwingHigh)
}

// Lows filters swing lows
func Lows(points []SwingPoint) []SwingPoint {
	return filterSwings(points, SwingLow)
}

func filterSwings(points []SwingPoint, t SwingType) []SwingPoint {
	var out []SwingPoint
	for _, p := range points {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}
