package risk

import "time"

// DailyGuard halts new entries once the balance has fallen maxDrawdown
// percent below the balance seen at the start of the UTC day
type DailyGuard struct {
	maxDrawdown  float64
	day          time.Time
	startBalance float64
}

// NewDailyGuard creates a guard; maxDrawdown <= 0 disables it
func NewDailyGuard(maxDrawdown float64) *DailyGuard {
	return &DailyGuard{maxDrawdown: maxDrawdown}
}

// Observe records the start-of-day balance on the first observation of each UTC day
func (g *DailyGuard) Observe(t time.Time, balance float64) {
	day := t.UTC().Truncate(24 * time.Hour)
	if g.day.IsZero() || !day.Equal(g.day) {
		g.day = day
		g.startBalance = balance
	}
}

// Drawdown returns the percentage lost since the start of the day
func (g *DailyGuard) Drawdown(balance float64) float64 {
	if g.startBalance <= 0 {
		return 0
	}
	return (g.startBalance - balance) / g.startBalance * 100
}

// Halted reports whether new entries are blocked for the rest of the day
func (g *DailyGuard) Halted(balance float64) bool {
	if g.maxDrawdown <= 0 {
		return false
	}
	return g.Drawdown(balance) >= g.maxDrawdown
}

// StartBalance returns the balance recorded for the current day
func (g *DailyGuard) StartBalance() float64 {
	return g.startBalance
}
