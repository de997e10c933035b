package strategy

import (
	"errors"
	"testing"
	"time"

	"smc-trading-bot/internal/analysis"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
)

func TestLookupVariation(t *testing.T) {
	tests := []struct {
		tag          Variation
		strategy     StrategyType
		minScore     float64
		confirmation ConfirmationType
		killZones    bool
		maxDD        float64
	}{
		{VariationOB60, StrategyOrderBlock, 60, ConfirmNone, false, 0},
		{VariationOB70KZ, StrategyOrderBlock, 70, ConfirmNone, true, 0},
		{VariationOB70KZDD5Strong, StrategyOrderBlock, 70, ConfirmStrong, true, 5},
		{VariationOB65Close, StrategyOrderBlock, 65, ConfirmClose, false, 0},
		{VariationOB60Engulf, StrategyOrderBlock, 60, ConfirmEngulf, false, 0},
		{VariationSweepOB65, StrategyLiquiditySweep, 65, ConfirmNone, false, 0},
		{VariationBOSOB65, StrategyBOS, 65, ConfirmNone, false, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			p, err := LookupVariation(tt.tag)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.Name != string(tt.tag) {
				t.Errorf("Expected name %s, got %s", tt.tag, p.Name)
			}
			if p.Strategy != tt.strategy || p.MinOBScore != tt.minScore || p.Confirmation != tt.confirmation {
				t.Errorf("Unexpected params %+v", p)
			}
			if p.UseKillZones != tt.killZones || p.MaxDailyDD != tt.maxDD {
				t.Errorf("Unexpected gates: kill zones %v, max DD %f", p.UseKillZones, p.MaxDailyDD)
			}
			if p.FixedRR != DefaultFixedRR || p.PendingWindow != DefaultPendingWindow {
				t.Errorf("Expected default R:R and window, got %f/%v", p.FixedRR, p.PendingWindow)
			}
		})
	}

	if _, err := LookupVariation("OB70|KZ|DD5%|Strong"); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for an unknown tag, got %v", err)
	}
}

func TestVariationsAreValidAndSorted(t *testing.T) {
	all := Variations()
	if len(all) != 10 {
		t.Fatalf("Expected 10 variations, got %d", len(all))
	}
	for i, p := range all {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
		if i > 0 && all[i-1].Name >= p.Name {
			t.Errorf("Variations not sorted at %s", p.Name)
		}
	}
}

func TestKillZones(t *testing.T) {
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	zones := DefaultKillZones()

	tests := []struct {
		at       time.Duration
		expected bool
	}{
		{6*time.Hour + 59*time.Minute, false},
		{7 * time.Hour, true},
		{9*time.Hour + 59*time.Minute, true},
		{10 * time.Hour, false},
		{12*time.Hour + 30*time.Minute, true},
		{15 * time.Hour, false},
		{19 * time.Hour, true},
		{21 * time.Hour, false},
	}

	for _, tt := range tests {
		if got := InKillZone(day.Add(tt.at), zones); got != tt.expected {
			t.Errorf("InKillZone(%v) = %v, expected %v", tt.at, got, tt.expected)
		}
	}

	if err := (KillZone{Name: "bad", StartHour: 10, EndHour: 7}).Validate(); err == nil {
		t.Error("Expected error for inverted kill zone")
	}
}

func TestConfirms(t *testing.T) {
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	c := func(o, h, l, cl float64) candles.Candle {
		return candles.Candle{Time: at, Open: o, High: h, Low: l, Close: cl, Timeframe: candles.TF15m}
	}
	prev := c(101, 101.5, 99.5, 100)

	tests := []struct {
		name     string
		ct       ConfirmationType
		dir      risk.Side
		cur      candles.Candle
		expected bool
	}{
		{"none always confirms", ConfirmNone, risk.Buy, c(100, 100, 100, 100), true},
		{"close 40% body", ConfirmClose, risk.Buy, c(100, 101, 99.5, 100.6), true},
		{"close 20% body", ConfirmClose, risk.Buy, c(100, 101, 100, 100.2), false},
		{"close wrong direction", ConfirmClose, risk.Buy, c(101, 101, 100, 100), false},
		{"strong 40% body", ConfirmStrong, risk.Buy, c(100, 101, 99.5, 100.6), false},
		{"strong 60% body", ConfirmStrong, risk.Buy, c(100, 101, 100, 100.6), true},
		{"strong sell", ConfirmStrong, risk.Sell, c(101, 101, 100, 100.2), true},
		{"engulf contains previous body", ConfirmEngulf, risk.Buy, c(99.8, 101.6, 99.7, 101.2), true},
		{"engulf equal body", ConfirmEngulf, risk.Buy, c(100, 101.2, 99.9, 101), true},
		{"engulf too small", ConfirmEngulf, risk.Buy, c(100.2, 101, 100, 100.9), false},
		{"engulf wrong direction", ConfirmEngulf, risk.Sell, c(99.8, 101.6, 99.7, 101.2), false},
		{"zero range", ConfirmClose, risk.Buy, c(100, 100, 100, 100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confirms(tt.ct, tt.dir, tt.cur, &prev); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	if Confirms(ConfirmEngulf, risk.Buy, c(99.8, 101.6, 99.7, 101.2), nil) {
		t.Error("Engulf needs a previous candle")
	}
}

func TestSignalTransitions(t *testing.T) {
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

	for _, to := range []SignalStatus{StatusTaken, StatusRejected, StatusExpired} {
		s := newSignal("XAUUSD", risk.Buy, analysis.OrderBlock{Type: analysis.BullishOB, Time: at}, at)
		if s.Status != StatusPending {
			t.Fatalf("Expected PENDING, got %s", s.Status)
		}
		if err := s.Transition(to, at, ""); err != nil {
			t.Fatalf("PENDING -> %s: %v", to, err)
		}
		for _, next := range []SignalStatus{StatusTaken, StatusRejected, StatusExpired, StatusPending} {
			if err := s.Transition(next, at, ""); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s should fail, got %v", to, next, err)
			}
		}
	}

	s := newSignal("XAUUSD", risk.Buy, analysis.OrderBlock{}, at)
	if err := s.Transition(StatusPending, at, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("PENDING -> PENDING should fail, got %v", err)
	}
	if err := s.Reject(at, "daily drawdown"); err != nil || s.Note != "daily drawdown" {
		t.Errorf("Expected rejection note, got %v %q", err, s.Note)
	}
}

func TestSelectBlock(t *testing.T) {
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	near := analysis.OrderBlock{Type: analysis.BullishOB, High: 101, Low: 99, Score: 70, Time: t0}
	far := analysis.OrderBlock{Type: analysis.BullishOB, High: 95, Low: 90, Score: 90, Time: t0.Add(time.Hour)}
	bearish := analysis.OrderBlock{Type: analysis.BearishOB, High: 110, Low: 108, Score: 90, Time: t0}

	tests := []struct {
		name   string
		blocks []analysis.OrderBlock
		obType analysis.OrderBlockType
		price  float64
		found  bool
		high   float64
	}{
		{"inside block", []analysis.OrderBlock{far, near}, analysis.BullishOB, 100, true, 101},
		{"within one range above", []analysis.OrderBlock{near}, analysis.BullishOB, 103, true, 101},
		{"beyond tolerance", []analysis.OrderBlock{near}, analysis.BullishOB, 103.5, false, 0},
		{"through the far edge", []analysis.OrderBlock{near}, analysis.BullishOB, 98.9, false, 0},
		{"nearest of two touched", []analysis.OrderBlock{far, near}, analysis.BullishOB, 99.5, true, 101},
		{"bearish below block", []analysis.OrderBlock{bearish}, analysis.BearishOB, 107, true, 110},
		{"bearish above block", []analysis.OrderBlock{bearish}, analysis.BearishOB, 110.5, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob, ok := SelectBlock(tt.blocks, tt.obType, tt.price, 60)
			if ok != tt.found {
				t.Fatalf("Expected found=%v, got %v", tt.found, ok)
			}
			if ok && ob.High != tt.high {
				t.Errorf("Expected block with high %f, got %f", tt.high, ob.High)
			}
		})
	}
}

func TestSelectBlockTieBreaks(t *testing.T) {
	t0 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	wide := analysis.OrderBlock{Type: analysis.BullishOB, High: 102, Low: 98, Score: 65, Time: t0}
	tight := analysis.OrderBlock{Type: analysis.BullishOB, High: 100.6, Low: 99.6, Score: 70, Time: t0.Add(time.Hour)}

	ob, _ := SelectBlock([]analysis.OrderBlock{tight, wide}, analysis.BullishOB, 100, 60)
	if ob.High != 102 {
		t.Errorf("Expected equal distance to resolve by midpoint, got %+v", ob)
	}

	older := analysis.OrderBlock{Type: analysis.BullishOB, High: 101, Low: 99, Score: 70, Time: t0}
	newer := older
	newer.Time = t0.Add(time.Hour)
	stronger := older
	stronger.Score = 80

	ob, _ = SelectBlock([]analysis.OrderBlock{older, newer}, analysis.BullishOB, 100, 60)
	if !ob.Time.Equal(newer.Time) {
		t.Error("Expected the newer block on a full tie")
	}
	ob, _ = SelectBlock([]analysis.OrderBlock{newer, stronger}, analysis.BullishOB, 100, 60)
	if ob.Score != 80 {
		t.Error("Expected the higher score to win before recency")
	}
}

func TestPriceSignal(t *testing.T) {
	buy := &Signal{Direction: risk.Buy, Block: analysis.OrderBlock{High: 101, Low: 99}}
	PriceSignal(buy, 100, 0.1, 2)
	if !approx(buy.StopLoss, 98.8) || !approx(buy.TakeProfit, 102.4) {
		t.Errorf("Unexpected buy pricing %f/%f", buy.StopLoss, buy.TakeProfit)
	}
	if !approx(buy.RiskReward(), 2) {
		t.Errorf("Expected 2R, got %f", buy.RiskReward())
	}

	sell := &Signal{Direction: risk.Sell, Block: analysis.OrderBlock{High: 101, Low: 99}}
	PriceSignal(sell, 100, 0.1, 3)
	if !approx(sell.StopLoss, 101.2) || !approx(sell.TakeProfit, 96.4) {
		t.Errorf("Unexpected sell pricing %f/%f", sell.StopLoss, sell.TakeProfit)
	}
}
