package analysis

import (
	"fmt"
	"time"

	"smc-trading-bot/internal/candles"
)

// OrderBlockType represents the direction of an order block
type OrderBlockType string

const (
	BullishOB OrderBlockType = "BULLISH"
	BearishOB OrderBlockType = "BEARISH"
)

// OrderBlock is the base candle's range ahead of an impulsive move
type OrderBlock struct {
	Type      OrderBlockType `json:"type"`
	High      float64        `json:"high"`
	Low       float64        `json:"low"`
	Time      time.Time      `json:"time"`
	Index     int            `json:"index"`
	Score     float64        `json:"score"`
	Mitigated bool           `json:"mitigated"`
	Used      bool           `json:"used"`
}

// Key identifies a block independently of the window it was detected in
func (ob OrderBlock) Key() string {
	return fmt.Sprintf("%s:%d", ob.Type, ob.Time.Unix())
}

// Range returns the height of the block
func (ob OrderBlock) Range() float64 {
	return ob.High - ob.Low
}

// Mid returns the block midpoint
func (ob OrderBlock) Mid() float64 {
	return (ob.High + ob.Low) / 2
}

// Eligible reports whether the block can still spawn a signal
func (ob OrderBlock) Eligible(minScore float64) bool {
	return !ob.Mitigated && !ob.Used && ob.Score >= minScore
}

const (
	obImpulseMultiplier = 0.5
	obBaseScore         = 50.0
)

// DetectOrderBlocks scans a series for base candles followed by an impulse in
// the opposite direction. ATR is the simplified high-low ATR of the series.
// Mitigation is judged against the final close only.
func DetectOrderBlocks(series []candles.Candle, atrPeriod int) []OrderBlock {
	n := len(series)
	if n < 6 {
		return nil
	}
	atr := candles.ATR(series, atrPeriod)

	var blocks []OrderBlock
	for i := 3; i <= n-3; i++ {
		base := series[i]
		impulse := series[i+1]
		follow := series[i+2]

		var obType OrderBlockType
		var continues bool
		switch {
		case base.IsBearish() && impulse.IsBullish():
			obType = BullishOB
			continues = follow.Close > impulse.Close
		case base.IsBullish() && impulse.IsBearish():
			obType = BearishOB
			continues = follow.Close < impulse.Close
		default:
			continue
		}

		impulseBody := impulse.Body()
		if impulseBody <= atr*obImpulseMultiplier && !continues {
			continue
		}

		blocks = append(blocks, OrderBlock{
			Type:  obType,
			High:  base.High,
			Low:   base.Low,
			Time:  base.Time,
			Index: i,
			Score: scoreOrderBlock(base.Body(), impulseBody, atr, continues),
		})
	}

	if len(blocks) > 0 {
		applyMitigation(blocks, series[n-1].Close)
	}
	return blocks
}

func scoreOrderBlock(baseBody, impulseBody, atr float64, continues bool) float64 {
	score := obBaseScore
	if impulseBody > atr {
		score += 15
	}
	if impulseBody > atr*1.5 {
		score += 10
	}
	if continues {
		score += 10
	}
	if baseBody < impulseBody/2 {
		score += 5
	}
	return clamp(score, 0, 100)
}

func applyMitigation(blocks []OrderBlock, lastClose float64) {
	for i := range blocks {
		switch blocks[i].Type {
		case BullishOB:
			blocks[i].Mitigated = lastClose < blocks[i].Low
		case BearishOB:
			blocks[i].Mitigated = lastClose > blocks[i].High
		}
	}
}

// FilterOrderBlocks returns eligible blocks of the given type
func FilterOrderBlocks(blocks []OrderBlock, obType OrderBlockType, minScore float64) []OrderBlock {
	var out []OrderBlock
	for _, ob := range blocks {
		if ob.Type == obType && ob.Eligible(minScore) {
			out = append(out, ob)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
