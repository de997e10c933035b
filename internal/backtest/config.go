package backtest

import (
	"fmt"
	"time"

	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/risk"
	"smc-trading-bot/internal/strategy"
)

const (
	MinHTFCandles = 50
	MinMTFCandles = 100
	MinLTFCandles = 100

	HTFWindow = 50
	MTFWindow = 100
	LTFWindow = 100

	DefaultProgressEvery = 100
)

// Config holds backtest configuration
type Config struct {
	RunID               string            `json:"runId"`
	Symbol              string            `json:"symbol"`
	StartDate           time.Time         `json:"startDate"`
	EndDate             time.Time         `json:"endDate"`
	InitialBalance      float64           `json:"initialBalance"`
	RiskPercent         float64           `json:"riskPercent"`
	UseTickData         bool              `json:"useTickData"`
	Params              strategy.Params   `json:"params"`
	HTF                 candles.Timeframe `json:"htf"`
	MTF                 candles.Timeframe `json:"mtf"`
	LTF                 candles.Timeframe `json:"ltf"`
	AnnualizationFactor float64           `json:"annualizationFactor"`
	ProgressEvery       int               `json:"progressEvery"`
	Spec                *risk.SymbolSpec  `json:"symbolSpec,omitempty"`
}

// DefaultConfig returns a config running the default order block model on
// 4h / 1h / 15m candles
func DefaultConfig() Config {
	return Config{
		InitialBalance:      10000,
		RiskPercent:         1,
		Params:              strategy.DefaultParams(),
		HTF:                 candles.TF4h,
		MTF:                 candles.TF1h,
		LTF:                 candles.TF15m,
		AnnualizationFactor: 1,
		ProgressEvery:       DefaultProgressEvery,
	}
}

// ApplyVariation replaces the strategy parameters with a named preset
func (c *Config) ApplyVariation(tag strategy.Variation) error {
	p, err := strategy.LookupVariation(tag)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Params.Detector.ATRPeriod > 0 {
		p.Detector = c.Params.Detector
	}
	c.Params = p
	return nil
}

// SymbolSpec returns the explicit spec or the built-in one for the symbol
func (c Config) SymbolSpec() risk.SymbolSpec {
	if c.Spec != nil {
		return *c.Spec
	}
	return risk.LookupSymbol(c.Symbol)
}

// Validate rejects configurations before any data is fetched
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidConfig)
	}
	if !c.StartDate.Before(c.EndDate) {
		return fmt.Errorf("%w: start date %s is not before end date %s",
			ErrInvalidConfig, c.StartDate.Format(time.RFC3339), c.EndDate.Format(time.RFC3339))
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive", ErrInvalidConfig)
	}
	if c.RiskPercent <= 0 || c.RiskPercent > 100 {
		return fmt.Errorf("%w: risk percent must be within (0, 100]", ErrInvalidConfig)
	}
	for _, tf := range []candles.Timeframe{c.HTF, c.MTF, c.LTF} {
		if !tf.Valid() {
			return fmt.Errorf("%w: unknown timeframe %q", ErrInvalidConfig, tf)
		}
	}
	if c.HTF.Duration() <= c.MTF.Duration() || c.MTF.Duration() <= c.LTF.Duration() {
		return fmt.Errorf("%w: timeframes must be ordered HTF > MTF > LTF", ErrInvalidConfig)
	}
	if c.AnnualizationFactor < 0 {
		return fmt.Errorf("%w: annualization factor must not be negative", ErrInvalidConfig)
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("%w: progress interval must not be negative", ErrInvalidConfig)
	}
	if err := c.SymbolSpec().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) annualization() float64 {
	if c.AnnualizationFactor == 0 {
		return 1
	}
	return c.AnnualizationFactor
}

func (c Config) progressEvery() int {
	if c.ProgressEvery == 0 {
		return DefaultProgressEvery
	}
	return c.ProgressEvery
}
