package backtest

import (
	"time"

	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

// ExitReason says why a trade was closed
type ExitReason string

const (
	ExitStopLoss   ExitReason = "SL"
	ExitTakeProfit ExitReason = "TP"
	ExitExpiry     ExitReason = "EXPIRY"
	ExitManual     ExitReason = "MANUAL"
)

// Trade represents a single backtest trade
type Trade struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Direction     risk.Side  `json:"direction"`
	EntryPrice    float64    `json:"entryPrice"`
	StopLoss      float64    `json:"stopLoss"`
	TakeProfit    float64    `json:"takeProfit"`
	LotSize       float64    `json:"lotSize"`
	EntryTime     time.Time  `json:"entryTime"`
	ExitTime      time.Time  `json:"exitTime"`
	ExitPrice     float64    `json:"exitPrice"`
	PnL           float64    `json:"pnl"`
	PnLPercent    float64    `json:"pnlPercent"`
	IsWinner      bool       `json:"isWinner"`
	ExitReason    ExitReason `json:"exitReason"`
	BalanceBefore float64    `json:"balanceBefore"`
	Reason        string     `json:"reason"`
}

// OpenTrade fills a taken signal at the given time and balance
func OpenTrade(s *strategy.Signal, at time.Time, balance float64) *Trade {
	return &Trade{
		ID:            s.ID,
		Symbol:        s.Symbol,
		Direction:     s.Direction,
		EntryPrice:    s.EntryPrice,
		StopLoss:      s.StopLoss,
		TakeProfit:    s.TakeProfit,
		LotSize:       s.LotSize,
		EntryTime:     at,
		BalanceBefore: balance,
		Reason:        s.Reason,
	}
}

// Close is the single terminal write of a trade
func (t *Trade) Close(price float64, at time.Time, reason ExitReason, spec risk.SymbolSpec) {
	t.ExitPrice = price
	t.ExitTime = at
	t.ExitReason = reason
	t.PnL = risk.CalculatePotentialPnL(t.Direction, t.EntryPrice, price, t.LotSize, spec)
	if t.BalanceBefore > 0 {
		t.PnLPercent = t.PnL / t.BalanceBefore * 100
	}
	t.IsWinner = t.PnL > 0
}

// CheckExit reports whether the candle reaches the trade's stop or target.
// When both are inside the candle's range the ticks decide; without ticks the
// stop wins.
func CheckExit(t *Trade, c candles.Candle, ticks []candles.Tick) (float64, ExitReason, bool) {
	var slHit, tpHit bool
	if t.Direction == risk.Buy {
		slHit = c.Low <= t.StopLoss
		tpHit = c.High >= t.TakeProfit
	} else {
		slHit = c.High >= t.StopLoss
		tpHit = c.Low <= t.TakeProfit
	}

	switch {
	case slHit && tpHit:
		for _, tick := range ticks {
			if t.stopTouched(tick.Price) {
				return t.StopLoss, ExitStopLoss, true
			}
			if t.targetTouched(tick.Price) {
				return t.TakeProfit, ExitTakeProfit, true
			}
		}
		return t.StopLoss, ExitStopLoss, true
	case slHit:
		return t.StopLoss, ExitStopLoss, true
	case tpHit:
		return t.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}

func (t *Trade) stopTouched(price float64) bool {
	if t.Direction == risk.Buy {
		return price <= t.StopLoss
	}
	return price >= t.StopLoss
}

func (t *Trade) targetTouched(price float64) bool {
	if t.Direction == risk.Buy {
		return price >= t.TakeProfit
	}
	return price <= t.TakeProfit
}
