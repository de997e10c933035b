package analysis

import (
	"testing"

	"smc-trading-bot/internal/candles"
)

func mirror(series []candles.Candle) []candles.Candle {
	out := make([]candles.Candle, len(series))
	for i, c := range series {
		out[i] = c
		out[i].Open = 200 - c.Open
		out[i].Close = 200 - c.Close
		out[i].High = 200 - c.Low
		out[i].Low = 200 - c.High
	}
	return out
}

func TestDetectBullishOrderBlock(t *testing.T) {
	blocks := DetectOrderBlocks(bullishBlockSeries(), 5)

	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}

	ob := blocks[0]
	if ob.Type != BullishOB {
		t.Errorf("Expected BULLISH, got %s", ob.Type)
	}
	if ob.High != 101 || ob.Low != 99 {
		t.Errorf("Expected base candle range 99-101, got %f-%f", ob.Low, ob.High)
	}
	if ob.Index != 5 {
		t.Errorf("Expected index 5, got %d", ob.Index)
	}
	// ATR(5) = 2.1: +15 +10 for the body, +10 continuation, +5 small base
	if ob.Score != 90 {
		t.Errorf("Expected score 90, got %f", ob.Score)
	}
	if ob.Mitigated || ob.Used {
		t.Error("Fresh block should be neither mitigated nor used")
	}
}

func TestDetectBearishOrderBlock(t *testing.T) {
	blocks := DetectOrderBlocks(mirror(bullishBlockSeries()), 5)

	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %d", len(blocks))
	}
	ob := blocks[0]
	if ob.Type != BearishOB {
		t.Errorf("Expected BEARISH, got %s", ob.Type)
	}
	if ob.High != 101 || ob.Low != 99 {
		t.Errorf("Expected base candle range 99-101, got %f-%f", ob.Low, ob.High)
	}
	if ob.Score != 90 {
		t.Errorf("Expected score 90, got %f", ob.Score)
	}
}

func TestOrderBlockMitigatedByFinalClose(t *testing.T) {
	series := bullishBlockSeries()
	series = append(series, candle(12, 106, 106, 97.5, 98))

	blocks := DetectOrderBlocks(series, 5)
	if len(blocks) == 0 || blocks[0].Index != 5 {
		t.Fatalf("Expected the block at index 5, got %+v", blocks)
	}
	if !blocks[0].Mitigated {
		t.Error("Expected block to be mitigated after a close below its low")
	}

	// a recovery above the block clears the raw flag; only the tracker remembers
	series = append(series, candle(13, 98, 107.5, 97.8, 107))
	blocks = DetectOrderBlocks(series, 5)
	if blocks[0].Mitigated {
		t.Error("Raw scan should only look at the final close")
	}
}

func TestScoreOrderBlock(t *testing.T) {
	tests := []struct {
		name        string
		baseBody    float64
		impulseBody float64
		atr         float64
		continues   bool
		want        float64
	}{
		{"weak impulse with continuation", 2, 1.2, 3, true, 60},
		{"body above ATR", 4, 3.5, 3, false, 65},
		{"body above 1.5 ATR", 4, 5, 3, false, 75},
		{"all bonuses", 2, 6, 3, true, 90},
		{"zero ATR", 1, 3, 0, false, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreOrderBlock(tt.baseBody, tt.impulseBody, tt.atr, tt.continues)
			if got != tt.want {
				t.Errorf("Expected score %f, got %f", tt.want, got)
			}
		})
	}
}

func TestOrderBlockScoreBounds(t *testing.T) {
	// noisy deterministic walk
	series := make([]candles.Candle, 0, 300)
	price := 100.0
	for i := 0; i < 300; i++ {
		step := float64((i*7919)%13) - 6
		o := price
		c := price + step
		h := max(o, c) + float64(i%3)
		l := min(o, c) - float64(i%4)
		series = append(series, candle(i, o, h, l, c))
		price = c
	}

	blocks := DetectOrderBlocks(series, 14)
	if len(blocks) == 0 {
		t.Fatal("Expected some order blocks in a noisy series")
	}
	for _, ob := range blocks {
		if ob.Score < 0 || ob.Score > 100 {
			t.Errorf("Score out of bounds: %f", ob.Score)
		}
		if ob.Index < 3 || ob.Index > len(series)-3 {
			t.Errorf("Block index %d outside scan range", ob.Index)
		}
	}
}

func TestFilterOrderBlocks(t *testing.T) {
	blocks := []OrderBlock{
		{Type: BullishOB, Score: 70},
		{Type: BullishOB, Score: 55},
		{Type: BullishOB, Score: 80, Mitigated: true},
		{Type: BullishOB, Score: 80, Used: true},
		{Type: BearishOB, Score: 90},
	}

	got := FilterOrderBlocks(blocks, BullishOB, 60)
	if len(got) != 1 || got[0].Score != 70 {
		t.Errorf("Expected only the unmitigated unused 70 block, got %+v", got)
	}
}

func TestBlockTrackerMitigationIsMonotonic(t *testing.T) {
	series := bullishBlockSeries()
	series = append(series,
		candle(12, 106, 106, 97.5, 98),
		candle(13, 98, 107.5, 97.8, 107),
		candle(14, 107, 108, 106, 107.5),
	)

	tracker := NewBlockTracker()
	seen := false
	for k := 8; k <= len(series); k++ {
		blocks := tracker.Apply(DetectOrderBlocks(series[:k], 5))
		for _, ob := range blocks {
			if ob.Index != 5 {
				continue
			}
			if seen && !ob.Mitigated {
				t.Fatalf("Block un-mitigated in scan of %d candles", k)
			}
			seen = seen || ob.Mitigated
		}
	}
	if !seen {
		t.Error("Expected block to become mitigated")
	}
}

func TestBlockTrackerMarkUsed(t *testing.T) {
	tracker := NewBlockTracker()
	blocks := tracker.Apply(DetectOrderBlocks(bullishBlockSeries(), 5))
	tracker.MarkUsed(blocks[0])

	again := tracker.Apply(DetectOrderBlocks(bullishBlockSeries(), 5))
	if !again[0].Used {
		t.Error("Expected block to stay used across scans")
	}
	if again[0].Eligible(50) {
		t.Error("Used block should not be eligible")
	}
}

func BenchmarkDetectOrderBlocks(b *testing.B) {
	series := make([]candles.Candle, 0, 500)
	price := 100.0
	for i := 0; i < 500; i++ {
		step := float64((i*31)%11) - 5
		series = append(series, candle(i, price, max(price, price+step)+1, min(price, price+step)-1, price+step))
		price += step
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DetectOrderBlocks(series, 14)
	}
}
