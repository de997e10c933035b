package analysis

import (
	"time"

	"smc-trading-bot/internal/candles"
)

// LiquiditySide says where resting stops sit relative to price
type LiquiditySide string

const (
	BuySideLiquidity  LiquiditySide = "BUY_SIDE"  // above equal highs
	SellSideLiquidity LiquiditySide = "SELL_SIDE" // below equal lows
)

const (
	liquidityATRTolerance   = 0.3
	liquidityPriceTolerance = 0.0005
	liquidityMinTouches     = 2
)

// LiquidityZone is a cluster of same-type swings inside a tight band
type LiquidityZone struct {
	Side      LiquiditySide `json:"side"`
	Top       float64       `json:"top"`
	Bottom    float64       `json:"bottom"`
	Touches   int           `json:"touches"`
	FirstTime time.Time     `json:"firstTime"`
	LastIndex int           `json:"lastIndex"`
	Swept     bool          `json:"swept"`
	SweptAt   time.Time     `json:"sweptAt,omitempty"`
	SweptIdx  int           `json:"sweptIndex"`
}

// Level returns the extreme a sweep must trade through
func (z LiquidityZone) Level() float64 {
	if z.Side == BuySideLiquidity {
		return z.Top
	}
	return z.Bottom
}

// DetectLiquidityZones clusters swings within 0.3 ATR (0.05% of price when ATR
// is unavailable) of the cluster's first point and flags sweeps: a later wick
// through the level that closes back inside.
func DetectLiquidityZones(series []candles.Candle, swings []candles.SwingPoint, atr float64) []LiquidityZone {
	var zones []LiquidityZone
	zones = append(zones, clusterSwings(candles.Highs(swings), BuySideLiquidity, atr)...)
	zones = append(zones, clusterSwings(candles.Lows(swings), SellSideLiquidity, atr)...)

	for i := range zones {
		markSweep(&zones[i], series)
	}
	return zones
}

func clusterSwings(points []candles.SwingPoint, side LiquiditySide, atr float64) []LiquidityZone {
	used := make([]bool, len(points))
	var zones []LiquidityZone

	for i, anchor := range points {
		if used[i] {
			continue
		}
		tolerance := atr * liquidityATRTolerance
		if tolerance <= 0 {
			tolerance = anchor.Price * liquidityPriceTolerance
		}

		zone := LiquidityZone{
			Side:      side,
			Top:       anchor.Price,
			Bottom:    anchor.Price,
			Touches:   1,
			FirstTime: anchor.Time,
			LastIndex: anchor.Index,
		}
		for j := i + 1; j < len(points); j++ {
			if used[j] || abs(points[j].Price-anchor.Price) > tolerance {
				continue
			}
			used[j] = true
			zone.Touches++
			zone.Top = max(zone.Top, points[j].Price)
			zone.Bottom = min(zone.Bottom, points[j].Price)
			zone.LastIndex = max(zone.LastIndex, points[j].Index)
		}

		if zone.Touches >= liquidityMinTouches {
			zones = append(zones, zone)
		}
	}
	return zones
}

func markSweep(zone *LiquidityZone, series []candles.Candle) {
	level := zone.Level()
	for j := zone.LastIndex + 1; j < len(series); j++ {
		c := series[j]
		swept := false
		if zone.Side == BuySideLiquidity {
			swept = c.High > level && c.Close < level
		} else {
			swept = c.Low < level && c.Close > level
		}
		if swept {
			zone.Swept = true
			zone.SweptAt = c.Time
			zone.SweptIdx = j
			return
		}
	}
}

// RecentSweep reports whether a zone on side was swept at or after index from
func RecentSweep(zones []LiquidityZone, side LiquiditySide, from int) bool {
	for _, z := range zones {
		if z.Side == side && z.Swept && z.SweptIdx >= from {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
