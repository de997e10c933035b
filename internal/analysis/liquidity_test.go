package analysis

import (
	"testing"

	"smc-trading-bot/internal/candles"
)

func TestDetectLiquidityZonesAndSweep(t *testing.T) {
	series := []candles.Candle{
		flat(0, 100),
		candle(1, 100, 105, 99, 100),
		flat(2, 100),
		candle(3, 100, 105.2, 99, 101),
		flat(4, 100),
		candle(5, 101, 106, 100, 104.5), // wick above, close back below
	}
	swings := []candles.SwingPoint{
		{Type: candles.SwingHigh, Price: 105, Time: series[1].Time, Index: 1},
		{Type: candles.SwingHigh, Price: 105.2, Time: series[3].Time, Index: 3},
		{Type: candles.SwingLow, Price: 90, Time: series[2].Time, Index: 2},
	}

	zones := DetectLiquidityZones(series, swings, 1)
	if len(zones) != 1 {
		t.Fatalf("Expected 1 zone (lone low is not a cluster), got %d", len(zones))
	}

	z := zones[0]
	if z.Side != BuySideLiquidity {
		t.Errorf("Expected BUY_SIDE, got %s", z.Side)
	}
	if z.Touches != 2 || z.Top != 105.2 || z.Bottom != 105 {
		t.Errorf("Unexpected zone %+v", z)
	}
	if !z.Swept || z.SweptIdx != 5 {
		t.Errorf("Expected sweep at index 5, got %+v", z)
	}
	if !RecentSweep(zones, BuySideLiquidity, 4) {
		t.Error("Expected recent buy-side sweep")
	}
	if RecentSweep(zones, BuySideLiquidity, 6) || RecentSweep(zones, SellSideLiquidity, 0) {
		t.Error("Unexpected sweep match")
	}
}

func TestLiquidityToleranceExcludesDistantSwings(t *testing.T) {
	swings := []candles.SwingPoint{
		{Type: candles.SwingLow, Price: 95, Index: 1},
		{Type: candles.SwingLow, Price: 96, Index: 3},
	}

	if zones := DetectLiquidityZones(nil, swings, 1); len(zones) != 0 {
		t.Errorf("Expected no zone for lows 1.0 apart with 0.3 tolerance, got %+v", zones)
	}
	if zones := DetectLiquidityZones(nil, swings, 4); len(zones) != 1 || zones[0].Side != SellSideLiquidity {
		t.Errorf("Expected one sell-side zone with wider tolerance, got %+v", zones)
	}
}

func TestSellSideSweepNeedsCloseBackInside(t *testing.T) {
	series := []candles.Candle{
		flat(0, 100), flat(1, 100), flat(2, 100),
		candle(3, 100, 100, 97, 97.5), // breaks through and stays below
	}
	swings := []candles.SwingPoint{
		{Type: candles.SwingLow, Price: 99, Index: 1},
		{Type: candles.SwingLow, Price: 99.1, Index: 2},
	}

	zones := DetectLiquidityZones(series, swings, 1)
	if len(zones) != 1 {
		t.Fatalf("Expected 1 zone, got %d", len(zones))
	}
	if zones[0].Swept {
		t.Error("A close beyond the level is a break, not a sweep")
	}
}
