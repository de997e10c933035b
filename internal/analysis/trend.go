package analysis

import (
	"time"

	"smc-trading-bot/internal/candles"
)

// Bias represents the directional read of one timeframe
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

const (
	biasFallbackWindow  = 20
	biasFallbackPercent = 0.1
)

// TrendAnalyzer classifies bias and structure breaks from swing points
type TrendAnalyzer struct {
	swingLookback int // Candles each side of a pivot
}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer(swingLookback int) *TrendAnalyzer {
	if swingLookback <= 0 {
		swingLookback = candles.DefaultSwingLookback
	}
	return &TrendAnalyzer{
		swingLookback: swingLookback,
	}
}

// Lookback returns the pivot window used by the analyzer
func (ta *TrendAnalyzer) Lookback() int {
	return ta.swingLookback
}

// DetermineBias reads the last two swing highs and lows: higher highs with
// higher lows is bullish, lower highs with lower lows is bearish. With fewer
// than four swing points it falls back to the recent price change.
func (ta *TrendAnalyzer) DetermineBias(series []candles.Candle) Bias {
	return ta.biasFromSwings(series, candles.FindSwingPoints(series, ta.swingLookback))
}

func (ta *TrendAnalyzer) biasFromSwings(series []candles.Candle, swings []candles.SwingPoint) Bias {
	highs := candles.Highs(swings)
	lows := candles.Lows(swings)
	if len(swings) < 4 || len(highs) < 2 || len(lows) < 2 {
		return priceChangeBias(series)
	}

	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

	switch {
	case h2.Price > h1.Price && l2.Price > l1.Price:
		return BiasBullish
	case h2.Price < h1.Price && l2.Price < l1.Price:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

func priceChangeBias(series []candles.Candle) Bias {
	n := len(series)
	if n < 2 {
		return BiasNeutral
	}
	window := biasFallbackWindow
	if n < window {
		window = n
	}
	first := series[n-window].Close
	if first == 0 {
		return BiasNeutral
	}

	change := (series[n-1].Close - first) / first * 100
	switch {
	case change > biasFallbackPercent:
		return BiasBullish
	case change < -biasFallbackPercent:
		return BiasBearish
	default:
		return BiasNeutral
	}
}

// BreakOfStructure is the first close beyond a confirmed swing
type BreakOfStructure struct {
	Type       Bias      `json:"type"`
	Level      float64   `json:"level"`
	Time       time.Time `json:"time"`
	Index      int       `json:"index"`
	SwingIndex int       `json:"swingIndex"`
}

// DetectBreaks returns structure breaks ordered by the index of the breaking candle.
// A swing can only be broken after it is confirmed, lookback candles later.
func (ta *TrendAnalyzer) DetectBreaks(series []candles.Candle, swings []candles.SwingPoint) []BreakOfStructure {
	var breaks []BreakOfStructure
	for _, sp := range swings {
		for j := sp.Index + ta.swingLookback + 1; j < len(series); j++ {
			c := series[j]
			if sp.Type == candles.SwingHigh && c.Close > sp.Price {
				breaks = append(breaks, BreakOfStructure{Type: BiasBullish, Level: sp.Price, Time: c.Time, Index: j, SwingIndex: sp.Index})
				break
			}
			if sp.Type == candles.SwingLow && c.Close < sp.Price {
				breaks = append(breaks, BreakOfStructure{Type: BiasBearish, Level: sp.Price, Time: c.Time, Index: j, SwingIndex: sp.Index})
				break
			}
		}
	}

	// insertion sort keeps equal indexes in swing order
	for i := 1; i < len(breaks); i++ {
		for k := i; k > 0 && breaks[k].Index < breaks[k-1].Index; k-- {
			breaks[k], breaks[k-1] = breaks[k-1], breaks[k]
		}
	}
	return breaks
}

// LatestBreak returns the most recent break, if any
func LatestBreak(breaks []BreakOfStructure) (BreakOfStructure, bool) {
	if len(breaks) == 0 {
		return BreakOfStructure{}, false
	}
	return breaks[len(breaks)-1], true
}

// DealingRange is the high-low span used for premium/discount checks
type DealingRange struct {
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Equilibrium float64 `json:"equilibrium"`
}

// InDiscount reports whether price sits below equilibrium
func (r DealingRange) InDiscount(price float64) bool {
	return r.High > r.Low && price < r.Equilibrium
}

// InPremium reports whether price sits above equilibrium
func (r DealingRange) InPremium(price float64) bool {
	return r.High > r.Low && price > r.Equilibrium
}

// NewDealingRange spans the extremes of a series
func NewDealingRange(series []candles.Candle) DealingRange {
	if len(series) == 0 {
		return DealingRange{}
	}
	r := DealingRange{High: series[0].High, Low: series[0].Low}
	for _, c := range series[1:] {
		if c.High > r.High {
			r.High = c.High
		}
		if c.Low < r.Low {
			r.Low = c.Low
		}
	}
	r.Equilibrium = (r.High + r.Low) / 2
	return r
}
