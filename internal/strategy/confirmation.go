package strategy

import (
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
)

const (
	closeBodyRatio  = 0.3
	strongBodyRatio = 0.5
)

// Confirms reports whether cur confirms an entry in dir. prev is the candle
// before cur and is only consulted for engulf.
func Confirms(ct ConfirmationType, dir risk.Side, cur candles.Candle, prev *candles.Candle) bool {
	switch ct {
	case ConfirmNone:
		return true
	case ConfirmClose:
		return closesWith(dir, cur) && bodyRatio(cur) >= closeBodyRatio
	case ConfirmStrong:
		return closesWith(dir, cur) && bodyRatio(cur) >= strongBodyRatio
	case ConfirmEngulf:
		if prev == nil || !closesWith(dir, cur) {
			return false
		}
		curTop, curBottom := bodyBounds(cur)
		prevTop, prevBottom := bodyBounds(*prev)
		return curTop >= prevTop && curBottom <= prevBottom
	}
	return false
}

func closesWith(dir risk.Side, c candles.Candle) bool {
	if dir == risk.Buy {
		return c.IsBullish()
	}
	return c.IsBearish()
}

func bodyRatio(c candles.Candle) float64 {
	r := c.Range()
	if r <= 0 {
		return 0
	}
	return c.Body() / r
}

func bodyBounds(c candles.Candle) (top, bottom float64) {
	return max(c.Open, c.Close), min(c.Open, c.Close)
}
