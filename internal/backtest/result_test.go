package backtest

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
)

func closedTrade(pnl float64, reason ExitReason, exit time.Time) Trade {
	return Trade{PnL: pnl, IsWinner: pnl > 0, ExitReason: reason, EntryTime: exit.Add(-time.Hour), ExitTime: exit}
}

func TestProfitFactorPolicy(t *testing.T) {
	tests := []struct {
		name   string
		profit float64
		loss   float64
		want   float64
	}{
		{"no trades", 0, 0, 0},
		{"only winners", 150, 0, ProfitFactorSentinel},
		{"only losers", 0, 80, 0},
		{"mixed", 300, 150, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := profitFactor(tt.profit, tt.loss)
			if got != tt.want {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("Profit factor must be finite, got %f", got)
			}
		})
	}
}

func TestCalculateMetrics(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		closedTrade(100, ExitTakeProfit, base.Add(time.Hour)),
		closedTrade(-300, ExitStopLoss, base.Add(2*time.Hour)),
		closedTrade(50, ExitManual, base.Add(3*time.Hour)),
	}

	m := CalculateMetrics(trades, base, 1000, 1)

	if m.TotalTrades != 3 || m.WinningTrades != 2 || m.LosingTrades != 1 {
		t.Errorf("Unexpected counts %d/%d/%d", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if !approx(m.WinRate, 200.0/3) {
		t.Errorf("Expected win rate 66.67, got %f", m.WinRate)
	}
	if m.GrossProfit != 150 || m.GrossLoss != 300 {
		t.Errorf("Expected gross 150/300, got %f/%f", m.GrossProfit, m.GrossLoss)
	}
	if !approx(m.ProfitFactor, 0.5) {
		t.Errorf("Expected profit factor 0.5, got %f", m.ProfitFactor)
	}
	if m.NetProfit != -150 || m.FinalBalance != 850 || !approx(m.ROI, -15) {
		t.Errorf("Unexpected net %f final %f roi %f", m.NetProfit, m.FinalBalance, m.ROI)
	}
	if m.AverageWin != 75 || m.AverageLoss != 300 {
		t.Errorf("Expected averages 75/300, got %f/%f", m.AverageWin, m.AverageLoss)
	}

	// 1000 -> 1100 -> 800 -> 850, the trough is 300 below the 1100 peak
	if len(m.EquityCurve) != 4 {
		t.Fatalf("Expected 4 equity points, got %d", len(m.EquityCurve))
	}
	if !m.EquityCurve[0].Timestamp.Equal(base) || m.EquityCurve[0].Equity != 1000 {
		t.Errorf("Expected first equity point 1000 at %v, got %+v", base, m.EquityCurve[0])
	}
	if !approx(m.MaxDrawdown, 300.0/1100*100) {
		t.Errorf("Expected max drawdown %f, got %f", 300.0/1100*100, m.MaxDrawdown)
	}
	if len(m.DrawdownCurve) != 4 || m.DrawdownCurve[1].Drawdown != 0 {
		t.Errorf("Unexpected drawdown curve %+v", m.DrawdownCurve)
	}

	if len(m.ExitStats) != 3 {
		t.Fatalf("Expected 3 exit groups, got %d", len(m.ExitStats))
	}
	if m.ExitStats[0].Reason != ExitManual || m.ExitStats[2].Reason != ExitTakeProfit {
		t.Errorf("Expected exit groups sorted by reason, got %+v", m.ExitStats)
	}
}

func TestCalculateMetricsIsPure(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		closedTrade(40, ExitTakeProfit, base.Add(time.Hour)),
		closedTrade(-20, ExitStopLoss, base.Add(2*time.Hour)),
	}
	a := CalculateMetrics(trades, base, 500, 252)
	b := CalculateMetrics(trades, base, 500, 252)
	if a.SharpeRatio != b.SharpeRatio || a.MaxDrawdown != b.MaxDrawdown || a.NetProfit != b.NetProfit {
		t.Error("Expected identical metrics from identical trades")
	}
}

func TestSharpeRatio(t *testing.T) {
	tests := []struct {
		name          string
		returns       []float64
		annualization float64
		want          float64
	}{
		{"single trade", []float64{0.1}, 1, 0},
		{"no dispersion", []float64{0.1, 0.1, 0.1}, 1, 0},
		{"no dispersion repeating decimal", []float64{1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3}, 252, 0},
		{"no dispersion large mean", []float64{1e6 + 0.1, 1e6 + 0.1, 1e6 + 0.1}, 1, 0},
		{"per trade", []float64{0.1, -0.05}, 1, 0.025 / 0.075},
		{"annualized", []float64{0.1, -0.05}, 4, 2 * 0.025 / 0.075},
		{"zero factor means per trade", []float64{0.1, -0.05}, 0, 0.025 / 0.075},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sharpeRatio(tt.returns, tt.annualization)
			if !approx(got, tt.want) {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestSharpeUsesReturnOnBalance(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// +100 on 1000 then -55 on 1100 gives returns 0.1 and -0.05
	trades := []Trade{
		closedTrade(100, ExitTakeProfit, base.Add(time.Hour)),
		closedTrade(-55, ExitStopLoss, base.Add(2*time.Hour)),
	}
	m := CalculateMetrics(trades, base, 1000, 1)
	if !approx(m.SharpeRatio, 0.025/0.075) {
		t.Errorf("Expected Sharpe %f, got %f", 0.025/0.075, m.SharpeRatio)
	}
}

func TestCalculateMetricsEmpty(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := CalculateMetrics(nil, start, 1000, 1)
	if m.TotalTrades != 0 || m.WinRate != 0 || m.ProfitFactor != 0 || m.SharpeRatio != 0 {
		t.Errorf("Expected zero metrics, got %+v", m)
	}
	if m.FinalBalance != 1000 || len(m.EquityCurve) != 1 {
		t.Fatalf("Expected a single equity point at the initial balance, got %+v", m.EquityCurve)
	}
	if !m.EquityCurve[0].Timestamp.Equal(start) {
		t.Errorf("Expected equity curve to start at %v, got %v", start, m.EquityCurve[0].Timestamp)
	}
	if len(m.DrawdownCurve) != 1 || !m.DrawdownCurve[0].Timestamp.Equal(start) {
		t.Errorf("Expected drawdown curve to start at %v, got %+v", start, m.DrawdownCurve)
	}
}

func TestPrintResults(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &BacktestResult{
		RunID:   "r1",
		Symbol:  "XAUUSD",
		Metrics: CalculateMetrics([]Trade{closedTrade(25, ExitTakeProfit, base)}, base, 1000, 1),
	}
	var buf bytes.Buffer
	PrintResults(&buf, result)

	out := buf.String()
	for _, want := range []string{"=== BACKTEST RESULTS ===", "Total Trades: 1", "Profit Factor: 999.00", "TP: 1 trades"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}
