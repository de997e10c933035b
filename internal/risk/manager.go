package risk

import (
	"fmt"
	"sync"
	"time"
)

// RiskManager gates and sizes live entries across sessions
type RiskManager struct {
	config         *Config
	guard          *DailyGuard
	openPositions  int
	accountBalance float64
	mu             sync.RWMutex
}

// Config holds risk management configuration
type Config struct {
	RiskPercent      float64 // Percentage of account to risk per trade
	MaxDailyDrawdown float64 // Max daily loss percentage before stopping
	MaxOpenPositions int     // Maximum concurrent positions, 0 = unlimited
}

// NewRiskManager creates a new risk manager
func NewRiskManager(config *Config, balance float64) *RiskManager {
	return &RiskManager{
		config:         config,
		guard:          NewDailyGuard(config.MaxDailyDrawdown),
		accountBalance: balance,
	}
}

// GetAccountBalance returns the current account balance
func (rm *RiskManager) GetAccountBalance() float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.accountBalance
}

// ReservePosition checks the gates and takes a position slot in one step, so
// concurrent sessions cannot overshoot MaxOpenPositions.
func (rm *RiskManager) ReservePosition(now time.Time) (bool, string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.config.MaxOpenPositions > 0 && rm.openPositions >= rm.config.MaxOpenPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", rm.openPositions, rm.config.MaxOpenPositions)
	}
	rm.guard.Observe(now, rm.accountBalance)
	if rm.guard.Halted(rm.accountBalance) {
		return false, fmt.Sprintf("daily drawdown limit reached (%.2f%%)", rm.guard.Drawdown(rm.accountBalance))
	}

	rm.openPositions++
	return true, ""
}

// ReleasePosition returns a reserved slot that never became a position
func (rm *RiskManager) ReleasePosition() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.openPositions > 0 {
		rm.openPositions--
	}
}

// CalculatePositionSize sizes an entry with the configured risk percent
func (rm *RiskManager) CalculatePositionSize(spec SymbolSpec, entryPrice, stopLoss float64) (float64, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return CalculateLotSize(rm.accountBalance, rm.config.RiskPercent, entryPrice, stopLoss, spec)
}

// RegisterPositionClose releases a slot and books the realized P&L
func (rm *RiskManager) RegisterPositionClose(now time.Time, pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.openPositions--
	if rm.openPositions < 0 {
		rm.openPositions = 0
	}

	rm.guard.Observe(now, rm.accountBalance)
	rm.accountBalance += pnl
}

// RiskPercent returns the configured risk per trade
func (rm *RiskManager) RiskPercent() float64 {
	return rm.config.RiskPercent
}

// GetOpenPositionCount returns the number of open positions
func (rm *RiskManager) GetOpenPositionCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.openPositions
}

// GetRiskMetrics returns current risk metrics
func (rm *RiskManager) GetRiskMetrics() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return map[string]interface{}{
		"account_balance":        rm.accountBalance,
		"day_start_balance":      rm.guard.StartBalance(),
		"daily_drawdown_percent": rm.guard.Drawdown(rm.accountBalance),
		"open_positions":         rm.openPositions,
		"max_positions":          rm.config.MaxOpenPositions,
		"risk_percent":           rm.config.RiskPercent,
		"max_daily_drawdown":     rm.config.MaxDailyDrawdown,
	}
}
