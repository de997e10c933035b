package backtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"smc-trading-bot/internal/strategy"
)

// ProfitFactorSentinel is reported when there are profits and no losses
const ProfitFactorSentinel = 999.0

// EquityPoint represents account balance at a point in time
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// DrawdownPoint is the percentage below the running equity peak
type DrawdownPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Drawdown  float64   `json:"drawdown"`
}

// ExitPerformance tracks performance by exit reason
type ExitPerformance struct {
	Reason    ExitReason `json:"reason"`
	Trades    int        `json:"trades"`
	NetProfit float64    `json:"netProfit"`
}

// Metrics is the pure reduction of a trade sequence
type Metrics struct {
	TotalTrades   int               `json:"totalTrades"`
	WinningTrades int               `json:"winningTrades"`
	LosingTrades  int               `json:"losingTrades"`
	WinRate       float64           `json:"winRate"`
	GrossProfit   float64           `json:"grossProfit"`
	GrossLoss     float64           `json:"grossLoss"`
	NetProfit     float64           `json:"netProfit"`
	FinalBalance  float64           `json:"finalBalance"`
	ROI           float64           `json:"roi"`
	MaxDrawdown   float64           `json:"maxDrawdown"`
	AverageWin    float64           `json:"averageWin"`
	AverageLoss   float64           `json:"averageLoss"`
	ProfitFactor  float64           `json:"profitFactor"`
	SharpeRatio   float64           `json:"sharpeRatio"`
	EquityCurve   []EquityPoint     `json:"equityCurve"`
	DrawdownCurve []DrawdownPoint   `json:"drawdownCurve"`
	ExitStats     []ExitPerformance `json:"exitStats"`
}

// BacktestResult contains backtest performance metrics
type BacktestResult struct {
	RunID            string    `json:"runId"`
	Symbol           string    `json:"symbol"`
	Strategy         string    `json:"strategy"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	InitialBalance   float64   `json:"initialBalance"`
	CandlesProcessed int       `json:"candlesProcessed"`
	Metrics
	Trades  []Trade           `json:"trades"`
	Signals []strategy.Signal `json:"signals"`
}

// CalculateMetrics reduces closed trades to metrics. The equity curve starts
// at the initial balance on start and moves at each exit. Sharpe is the population
// mean over standard deviation of per-trade fractional returns, scaled by
// sqrt(annualization).
func CalculateMetrics(trades []Trade, start time.Time, initialBalance, annualization float64) Metrics {
	m := Metrics{
		TotalTrades:   len(trades),
		EquityCurve:   make([]EquityPoint, 0, len(trades)+1),
		DrawdownCurve: make([]DrawdownPoint, 0, len(trades)+1),
	}

	byReason := make(map[ExitReason]*ExitPerformance)
	for _, trade := range trades {
		if trade.IsWinner {
			m.WinningTrades++
			m.GrossProfit += trade.PnL
		} else {
			m.LosingTrades++
			m.GrossLoss += math.Abs(trade.PnL)
		}
		stats, ok := byReason[trade.ExitReason]
		if !ok {
			stats = &ExitPerformance{Reason: trade.ExitReason}
			byReason[trade.ExitReason] = stats
		}
		stats.Trades++
		stats.NetProfit += trade.PnL
	}
	for _, stats := range byReason {
		m.ExitStats = append(m.ExitStats, *stats)
	}
	sort.Slice(m.ExitStats, func(i, j int) bool { return m.ExitStats[i].Reason < m.ExitStats[j].Reason })

	// Win rate
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}

	// Average win/loss
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}

	m.ProfitFactor = profitFactor(m.GrossProfit, m.GrossLoss)

	equity := initialBalance
	if start.IsZero() && len(trades) > 0 {
		start = trades[0].EntryTime
	}
	m.EquityCurve = append(m.EquityCurve, EquityPoint{Timestamp: start, Equity: equity})
	returns := make([]float64, 0, len(trades))
	for _, trade := range trades {
		if equity > 0 {
			returns = append(returns, trade.PnL/equity)
		}
		equity += trade.PnL
		m.EquityCurve = append(m.EquityCurve, EquityPoint{Timestamp: trade.ExitTime, Equity: equity})
	}

	m.FinalBalance = equity
	m.NetProfit = equity - initialBalance
	if initialBalance > 0 {
		m.ROI = m.NetProfit / initialBalance * 100
	}

	m.DrawdownCurve, m.MaxDrawdown = drawdowns(m.EquityCurve)
	m.SharpeRatio = sharpeRatio(returns, annualization)
	return m
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return ProfitFactorSentinel
		}
		return 0
	}
	return grossProfit / grossLoss
}

// drawdowns walks the equity curve once, peak to trough
func drawdowns(curve []EquityPoint) ([]DrawdownPoint, float64) {
	out := make([]DrawdownPoint, 0, len(curve))
	if len(curve) == 0 {
		return out, 0
	}

	maxDrawdown := 0.0
	peak := curve[0].Equity
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - point.Equity) / peak * 100
		}
		if dd > maxDrawdown {
			maxDrawdown = dd
		}
		out = append(out, DrawdownPoint{Timestamp: point.Timestamp, Drawdown: dd})
	}
	return out, maxDrawdown
}

func sharpeRatio(returns []float64, annualization float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	if annualization <= 0 {
		annualization = 1
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(returns)))
	// rounding leaves a residue on constant returns
	if stdDev <= 1e-12*math.Max(1, math.Abs(mean)) {
		return 0
	}
	return mean / stdDev * math.Sqrt(annualization)
}

// PrintResults writes a human readable summary
func PrintResults(w io.Writer, result *BacktestResult) {
	fmt.Fprintln(w, "\n=== BACKTEST RESULTS ===")
	fmt.Fprintf(w, "Run: %s  %s  %s\n", result.RunID, result.Symbol, result.Strategy)
	fmt.Fprintf(w, "Period: %s -> %s (%d candles)\n",
		result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"), result.CandlesProcessed)
	fmt.Fprintf(w, "Total Trades: %d\n", result.TotalTrades)
	fmt.Fprintf(w, "Winning Trades: %d (%.1f%%)\n", result.WinningTrades, result.WinRate)
	fmt.Fprintf(w, "Losing Trades: %d\n", result.LosingTrades)
	fmt.Fprintf(w, "Net Profit: $%.2f\n", result.NetProfit)
	fmt.Fprintf(w, "Final Balance: $%.2f\n", result.FinalBalance)
	fmt.Fprintf(w, "ROI: %.2f%%\n", result.ROI)
	fmt.Fprintf(w, "Profit Factor: %.2f\n", result.ProfitFactor)
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", result.MaxDrawdown)
	fmt.Fprintf(w, "Average Win: $%.2f\n", result.AverageWin)
	fmt.Fprintf(w, "Average Loss: $%.2f\n", result.AverageLoss)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", result.SharpeRatio)

	fmt.Fprintln(w, "\n=== EXIT BREAKDOWN ===")
	for _, stats := range result.ExitStats {
		fmt.Fprintf(w, "%s: %d trades, Net: $%.2f\n", stats.Reason, stats.Trades, stats.NetProfit)
	}

	counts := make(map[strategy.SignalStatus]int)
	for _, s := range result.Signals {
		counts[s.Status]++
	}
	fmt.Fprintf(w, "\nSignals: %d taken, %d rejected, %d expired\n",
		counts[strategy.StatusTaken], counts[strategy.StatusRejected], counts[strategy.StatusExpired])
}
