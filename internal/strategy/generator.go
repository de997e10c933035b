package strategy

import (
	"math"

	"smc-trading-bot/internal/analysis"
	"smc-trading-bot/internal/risk"
)

// SelectBlock picks the nearest eligible block of obType that price is
// touching. A block is touched when price is inside it or no further than one
// block range beyond its near edge; price through the far edge never matches.
// Ties go to the closer midpoint, then the higher score, then the newer block.
func SelectBlock(blocks []analysis.OrderBlock, obType analysis.OrderBlockType, price, minScore float64) (analysis.OrderBlock, bool) {
	var best analysis.OrderBlock
	found := false
	bestDist := math.Inf(1)

	for _, ob := range analysis.FilterOrderBlocks(blocks, obType, minScore) {
		dist, ok := touchDistance(ob, price)
		if !ok {
			continue
		}
		if !found || dist < bestDist || (dist == bestDist && preferBlock(ob, best, price)) {
			best, bestDist, found = ob, dist, true
		}
	}
	return best, found
}

func touchDistance(ob analysis.OrderBlock, price float64) (float64, bool) {
	tolerance := ob.Range()
	switch ob.Type {
	case analysis.BullishOB:
		if price < ob.Low || price > ob.High+tolerance {
			return 0, false
		}
		return math.Max(0, price-ob.High), true
	case analysis.BearishOB:
		if price > ob.High || price < ob.Low-tolerance {
			return 0, false
		}
		return math.Max(0, ob.Low-price), true
	}
	return 0, false
}

func preferBlock(a, b analysis.OrderBlock, price float64) bool {
	da, db := math.Abs(price-a.Mid()), math.Abs(price-b.Mid())
	if da != db {
		return da < db
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Time.After(b.Time)
}

// PriceSignal sets entry, stop and target. The stop sits beyond the block's
// far edge by bufferRatio of its range and the target at rr times the risk.
func PriceSignal(s *Signal, entry, bufferRatio, rr float64) {
	buffer := s.Block.Range() * bufferRatio
	s.EntryPrice = entry
	if s.Direction == risk.Buy {
		s.StopLoss = s.Block.Low - buffer
		s.TakeProfit = entry + (entry-s.StopLoss)*rr
	} else {
		s.StopLoss = s.Block.High + buffer
		s.TakeProfit = entry - (s.StopLoss-entry)*rr
	}
}

// validGeometry reports whether the stop is on the losing side of entry
func validGeometry(s *Signal) bool {
	if s.Direction == risk.Buy {
		return s.StopLoss < s.EntryPrice && s.TakeProfit > s.EntryPrice
	}
	return s.StopLoss > s.EntryPrice && s.TakeProfit < s.EntryPrice
}

func sideFor(obType analysis.OrderBlockType) risk.Side {
	if obType == analysis.BullishOB {
		return risk.Buy
	}
	return risk.Sell
}
