package analysis

import (
	"testing"

	"smc-trading-bot/internal/candles"
)

// TestDetectBullishFVG tests detection of bullish Fair Value Gaps
func TestDetectBullishFVG(t *testing.T) {
	detector := NewFVGDetector(0.1)

	series := []candles.Candle{
		// Candle 1: High at 100
		candle(0, 95, 100, 94, 98),
		// Candle 2: Gap creator (middle candle)
		candle(1, 98, 105, 97, 104),
		// Candle 3: Low at 101 (gap between 100 and 101)
		candle(2, 104, 108, 101, 106),
	}

	fvgs := detector.DetectFVGs(series)

	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}

	fvg := fvgs[0]

	if fvg.Type != BullishFVG {
		t.Errorf("Expected BullishFVG, got %s", fvg.Type)
	}
	if fvg.BottomPrice != 100 {
		t.Errorf("Expected BottomPrice 100, got %f", fvg.BottomPrice)
	}
	if fvg.TopPrice != 101 {
		t.Errorf("Expected TopPrice 101, got %f", fvg.TopPrice)
	}
	if !fvg.CreatedAt.Equal(series[1].Time) {
		t.Errorf("Expected CreatedAt at the gap candle, got %v", fvg.CreatedAt)
	}
	if fvg.Mitigated {
		t.Error("FVG should not be mitigated initially")
	}
}

// TestDetectBearishFVG tests detection of bearish Fair Value Gaps
func TestDetectBearishFVG(t *testing.T) {
	detector := NewFVGDetector(0.1)

	series := []candles.Candle{
		candle(0, 105, 106, 100, 102),
		candle(1, 102, 103, 95, 96),
		candle(2, 96, 99, 92, 94),
	}

	fvgs := detector.DetectFVGs(series)

	if len(fvgs) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(fvgs))
	}
	if fvgs[0].Type != BearishFVG {
		t.Errorf("Expected BearishFVG, got %s", fvgs[0].Type)
	}
	if fvgs[0].TopPrice != 100 || fvgs[0].BottomPrice != 99 {
		t.Errorf("Expected gap 99-100, got %f-%f", fvgs[0].BottomPrice, fvgs[0].TopPrice)
	}
}

// TestFVGMinimumGap tests that small gaps are filtered out
func TestFVGMinimumGap(t *testing.T) {
	detector := NewFVGDetector(1.0)

	series := []candles.Candle{
		candle(0, 95, 100, 94, 98),
		candle(1, 98, 105, 97, 104),
		candle(2, 104, 108, 100.5, 106), // 0.5% gap
	}

	if fvgs := detector.DetectFVGs(series); len(fvgs) != 0 {
		t.Errorf("Expected 0 FVGs below the minimum gap, got %d", len(fvgs))
	}
}

// TestFVGMitigation tests mitigation by a close beyond the far edge
func TestFVGMitigation(t *testing.T) {
	detector := NewFVGDetector(0.1)

	series := []candles.Candle{
		candle(0, 95, 100, 94, 98),
		candle(1, 98, 105, 97, 104),
		candle(2, 104, 108, 101, 106),
		candle(3, 106, 106, 100.2, 100.5), // wick into gap only
	}
	fvgs := detector.DetectFVGs(series)
	if len(GetOpenFVGs(fvgs, BullishFVG)) != 1 {
		t.Fatal("Expected gap to stay open after a wick inside it")
	}

	series = append(series, candle(4, 100.5, 101, 98, 99))
	fvgs = detector.DetectFVGs(series)
	if len(GetOpenFVGs(fvgs, BullishFVG)) != 0 {
		t.Error("Expected gap to be mitigated after a close below its bottom")
	}
}
