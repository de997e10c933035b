package analysis

import (
	"smc-trading-bot/internal/candles"
)

// DetectorConfig tunes the structure detector
type DetectorConfig struct {
	ATRPeriod        int
	SwingLookback    int
	FVGMinGapPercent float64
}

// DefaultDetectorConfig returns the detector defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ATRPeriod:        candles.DefaultATRPeriod,
		SwingLookback:    candles.DefaultSwingLookback,
		FVGMinGapPercent: 0.1,
	}
}

// Structure is the full read of one timeframe window
type Structure struct {
	Bias        Bias                 `json:"bias"`
	ATR         float64              `json:"atr"`
	LastClose   float64              `json:"lastClose"`
	Swings      []candles.SwingPoint `json:"-"`
	OrderBlocks []OrderBlock         `json:"orderBlocks"`
	FVGs        []FVG                `json:"fvgs"`
	Liquidity   []LiquidityZone      `json:"liquidity"`
	Breaks      []BreakOfStructure   `json:"breaks"`
	Range       DealingRange         `json:"range"`
	Candles     int                  `json:"candles"`
}

// Detector runs every structure pass over a window. It holds no state between
// calls, so one detector can serve any number of runs.
type Detector struct {
	cfg   DetectorConfig
	trend *TrendAnalyzer
	fvg   *FVGDetector
}

// NewDetector creates a structure detector
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = candles.DefaultATRPeriod
	}
	if cfg.SwingLookback <= 0 {
		cfg.SwingLookback = candles.DefaultSwingLookback
	}
	return &Detector{
		cfg:   cfg,
		trend: NewTrendAnalyzer(cfg.SwingLookback),
		fvg:   NewFVGDetector(cfg.FVGMinGapPercent),
	}
}

// Analyze scans series, treating its last candle as the present
func (d *Detector) Analyze(series []candles.Candle) Structure {
	s := Structure{Bias: BiasNeutral, Candles: len(series)}
	if len(series) == 0 {
		return s
	}

	s.ATR = candles.ATR(series, d.cfg.ATRPeriod)
	s.LastClose = series[len(series)-1].Close
	s.Swings = candles.FindSwingPoints(series, d.cfg.SwingLookback)
	s.Bias = d.trend.biasFromSwings(series, s.Swings)
	s.OrderBlocks = DetectOrderBlocks(series, d.cfg.ATRPeriod)
	s.FVGs = d.fvg.DetectFVGs(series)
	s.Liquidity = DetectLiquidityZones(series, s.Swings, s.ATR)
	s.Breaks = d.trend.DetectBreaks(series, s.Swings)
	s.Range = NewDealingRange(series)
	return s
}

// Bias only classifies the window's direction
func (d *Detector) Bias(series []candles.Candle) Bias {
	return d.trend.DetermineBias(series)
}
