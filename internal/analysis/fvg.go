package analysis

import (
	"time"

	"smc-trading-bot/internal/candles"
)

// FVGType represents the type of Fair Value Gap
type FVGType string

const (
	BullishFVG FVGType = "BULLISH"
	BearishFVG FVGType = "BEARISH"
)

// FVG represents a Fair Value Gap in price action
type FVG struct {
	Type        FVGType   `json:"type"`
	TopPrice    float64   `json:"top"`
	BottomPrice float64   `json:"bottom"`
	CreatedAt   time.Time `json:"createdAt"`
	CandleIndex int       `json:"index"`
	Mitigated   bool      `json:"mitigated"`
}

// FVGDetector detects Fair Value Gaps in candlestick data
type FVGDetector struct {
	minGapPercent float64 // Minimum gap size as percentage
}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector(minGapPercent float64) *FVGDetector {
	if minGapPercent <= 0 {
		minGapPercent = 0.1 // Default 0.1% minimum gap
	}
	return &FVGDetector{
		minGapPercent: minGapPercent,
	}
}

// DetectFVGs identifies all Fair Value Gaps in the given candles
func (fd *FVGDetector) DetectFVGs(series []candles.Candle) []FVG {
	if len(series) < 3 {
		return nil
	}

	var fvgs []FVG

	// Scan for FVGs (need 3 consecutive candles)
	for i := 0; i < len(series)-2; i++ {
		c1 := series[i]
		c2 := series[i+1] // Middle candle (gap creator)
		c3 := series[i+2]

		// Bullish: c1.High < c3.Low
		if c1.High < c3.Low {
			gapSize := ((c3.Low - c1.High) / c1.High) * 100
			if gapSize >= fd.minGapPercent {
				fvgs = append(fvgs, FVG{
					Type:        BullishFVG,
					TopPrice:    c3.Low,
					BottomPrice: c1.High,
					CreatedAt:   c2.Time,
					CandleIndex: i,
				})
			}
		}

		// Bearish: c1.Low > c3.High
		if c1.Low > c3.High {
			gapSize := ((c1.Low - c3.High) / c3.High) * 100
			if gapSize >= fd.minGapPercent {
				fvgs = append(fvgs, FVG{
					Type:        BearishFVG,
					TopPrice:    c1.Low,
					BottomPrice: c3.High,
					CreatedAt:   c2.Time,
					CandleIndex: i,
				})
			}
		}
	}

	if len(fvgs) > 0 {
		lastClose := series[len(series)-1].Close
		for i := range fvgs {
			fd.UpdateFVGStatus(&fvgs[i], lastClose)
		}
	}

	return fvgs
}

// UpdateFVGStatus marks the gap mitigated once a close passes its far edge
func (fd *FVGDetector) UpdateFVGStatus(fvg *FVG, close float64) {
	if fvg.Mitigated {
		return
	}
	switch fvg.Type {
	case BullishFVG:
		fvg.Mitigated = close < fvg.BottomPrice
	case BearishFVG:
		fvg.Mitigated = close > fvg.TopPrice
	}
}

// GetOpenFVGs returns gaps of the given type that are still unmitigated
func GetOpenFVGs(fvgs []FVG, fvgType FVGType) []FVG {
	var open []FVG
	for _, fvg := range fvgs {
		if !fvg.Mitigated && fvg.Type == fvgType {
			open = append(open, fvg)
		}
	}
	return open
}
