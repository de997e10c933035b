package confluence

import (
	"fmt"

	"smc-trading-bot/internal/analysis"
)

// Direction is the resolved trade direction of a scan
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// ConflictCap bounds the score of a scan without a usable direction
const ConflictCap = 20.0

// DefaultMinScore is the minimum score to trade when none is configured
const DefaultMinScore = 50.0

// Weights are the points each factor contributes; they sum to 100
type Weights struct {
	HTF        float64 `json:"htf" toml:"htf"`
	MTF        float64 `json:"mtf" toml:"mtf"`
	LTF        float64 `json:"ltf" toml:"ltf"`
	OrderBlock float64 `json:"orderBlock" toml:"order_block"`
	FVG        float64 `json:"fvg" toml:"fvg"`
	Liquidity  float64 `json:"liquidity" toml:"liquidity"`
}

// DefaultWeights favours higher-timeframe agreement over the entry timeframe
func DefaultWeights() Weights {
	return Weights{
		HTF:        30, // Most important
		MTF:        25,
		LTF:        10,
		OrderBlock: 20,
		FVG:        10,
		Liquidity:  5,
	}
}

// Validate checks the weights sum to 100 and none is negative
func (w Weights) Validate() error {
	for _, v := range []float64{w.HTF, w.MTF, w.LTF, w.OrderBlock, w.FVG, w.Liquidity} {
		if v < 0 {
			return fmt.Errorf("weights must be non-negative, got %.2f", v)
		}
	}
	total := w.HTF + w.MTF + w.LTF + w.OrderBlock + w.FVG + w.Liquidity
	if total < 99.9 || total > 100.1 {
		return fmt.Errorf("weights must sum to 100, got %.2f", total)
	}
	return nil
}

// SignalConfluence represents the strength of multiple aligned timeframes
type SignalConfluence struct {
	// Per-factor points
	HTFAlignment  float64 `json:"htfAlignment"`
	MTFAlignment  float64 `json:"mtfAlignment"`
	LTFAlignment  float64 `json:"ltfAlignment"`
	OrderBlockFit float64 `json:"orderBlockFit"`
	FVGFit        float64 `json:"fvgFit"`
	LiquidityFit  float64 `json:"liquidityFit"`

	// Composite score, 0-100
	TotalScore float64 `json:"totalScore"`
	Grade      string  `json:"grade"` // "A+", "A", "B+", "B", "C", "D", "F"

	HTFBias    analysis.Bias `json:"htfBias"`
	MTFBias    analysis.Bias `json:"mtfBias"`
	LTFBias    analysis.Bias `json:"ltfBias"`
	Direction  Direction     `json:"direction"`
	Reasoning  []string      `json:"reasoning"`
	Confidence string        `json:"confidence"` // "Very High", "High", "Medium", "Low", "Very Low"
}

// ConfluenceScorer calculates signal confluence
type ConfluenceScorer struct {
	weights  Weights
	minScore float64 // Minimum score to generate signal
}

// NewConfluenceScorer creates a new confluence scorer with default weights
func NewConfluenceScorer() *ConfluenceScorer {
	return &ConfluenceScorer{
		weights:  DefaultWeights(),
		minScore: DefaultMinScore,
	}
}

// CalculateConfluence scores one scan. HTF sets the direction; a neutral HTF
// or an MTF that disagrees with it yields NEUTRAL with the score capped.
func (cs *ConfluenceScorer) CalculateConfluence(htf, mtf, ltf analysis.Structure, minOBScore float64) *SignalConfluence {
	c := &SignalConfluence{
		HTFBias:   htf.Bias,
		MTFBias:   mtf.Bias,
		LTFBias:   ltf.Bias,
		Direction: DirectionNeutral,
		Reasoning: make([]string, 0),
	}

	conflict := htf.Bias != analysis.BiasNeutral && mtf.Bias != analysis.BiasNeutral && mtf.Bias != htf.Bias
	if htf.Bias != analysis.BiasNeutral && !conflict {
		c.Direction = Direction(htf.Bias)
	}

	// 1. Higher timeframe
	if htf.Bias != analysis.BiasNeutral {
		c.HTFAlignment = cs.weights.HTF
		c.Reasoning = append(c.Reasoning, "HTF bias "+string(htf.Bias))
	} else {
		c.Reasoning = append(c.Reasoning, "HTF bias neutral")
	}

	// 2. Medium and lower timeframe agreement
	c.MTFAlignment = agreement(htf.Bias, mtf.Bias, cs.weights.MTF)
	c.LTFAlignment = agreement(htf.Bias, ltf.Bias, cs.weights.LTF)
	if conflict {
		c.Reasoning = append(c.Reasoning, "HTF/MTF conflict")
	} else if c.MTFAlignment == cs.weights.MTF && cs.weights.MTF > 0 {
		c.Reasoning = append(c.Reasoning, "MTF agrees with HTF")
	}

	// 3. MTF structure in the trade direction
	if c.Direction != DirectionNeutral {
		obType, fvgType, sweptSide := structureFor(c.Direction)

		if n := len(analysis.FilterOrderBlocks(mtf.OrderBlocks, obType, minOBScore)); n > 0 {
			c.OrderBlockFit = cs.weights.OrderBlock
			c.Reasoning = append(c.Reasoning, fmt.Sprintf("%d valid order block(s)", n))
		}

		if n := len(analysis.GetOpenFVGs(mtf.FVGs, fvgType)); n > 0 {
			c.FVGFit = cs.weights.FVG
			c.Reasoning = append(c.Reasoning, fmt.Sprintf("%d open FVG(s) in trade direction", n))
		}

		for _, z := range mtf.Liquidity {
			if z.Side != sweptSide {
				continue
			}
			if z.Swept {
				c.LiquidityFit = cs.weights.Liquidity
				c.Reasoning = append(c.Reasoning, "Liquidity swept")
				break
			}
			c.LiquidityFit = cs.weights.Liquidity / 2
		}
	}

	c.TotalScore = c.HTFAlignment + c.MTFAlignment + c.LTFAlignment +
		c.OrderBlockFit + c.FVGFit + c.LiquidityFit
	if c.Direction == DirectionNeutral && c.TotalScore > ConflictCap {
		c.TotalScore = ConflictCap
	}
	if c.TotalScore > 100 {
		c.TotalScore = 100
	}

	c.Grade = cs.scoreToGrade(c.TotalScore)
	c.Confidence = cs.scoreToConfidence(c.TotalScore)
	return c
}

func agreement(htf, other analysis.Bias, weight float64) float64 {
	switch {
	case htf == analysis.BiasNeutral:
		return 0
	case other == htf:
		return weight
	case other == analysis.BiasNeutral:
		return weight / 2
	}
	return 0
}

// structureFor maps a direction to the aligned block, gap and the liquidity
// side whose sweep supports it (sell-side stops run before a long)
func structureFor(d Direction) (analysis.OrderBlockType, analysis.FVGType, analysis.LiquiditySide) {
	if d == DirectionBullish {
		return analysis.BullishOB, analysis.BullishFVG, analysis.SellSideLiquidity
	}
	return analysis.BearishOB, analysis.BearishFVG, analysis.BuySideLiquidity
}

// scoreToGrade converts numerical score to letter grade
func (cs *ConfluenceScorer) scoreToGrade(score float64) string {
	if score >= 90 {
		return "A+"
	} else if score >= 85 {
		return "A"
	} else if score >= 75 {
		return "B+"
	} else if score >= 70 {
		return "B"
	} else if score >= 60 {
		return "C"
	} else if score >= 50 {
		return "D"
	}
	return "F"
}

// scoreToConfidence converts score to confidence level
func (cs *ConfluenceScorer) scoreToConfidence(score float64) string {
	if score >= 85 {
		return "Very High"
	} else if score >= 75 {
		return "High"
	} else if score >= 60 {
		return "Medium"
	} else if score >= 45 {
		return "Low"
	}
	return "Very Low"
}

// ShouldTrade determines if signal is strong enough to trade
func (cs *ConfluenceScorer) ShouldTrade(c *SignalConfluence) bool {
	return c.Direction != DirectionNeutral && c.TotalScore >= cs.minScore
}

// SetMinimumScore adjusts the minimum required score
func (cs *ConfluenceScorer) SetMinimumScore(minScore float64) {
	cs.minScore = minScore
}

// SetWeights allows custom weight configuration
func (cs *ConfluenceScorer) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	cs.weights = w
	return nil
}
