package strategy

import (
	"errors"
	"fmt"
	"time"

	"smc-trading-bot/internal/analysis"
	"smc-trading-bot/internal/confluence"
)

// StrategyType selects the entry model
type StrategyType string

const (
	StrategyOrderBlock     StrategyType = "ORDER_BLOCK"
	StrategyLiquiditySweep StrategyType = "LIQUIDITY_SWEEP"
	StrategyBOS            StrategyType = "BOS"
)

// Valid reports whether the strategy type is known
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyOrderBlock, StrategyLiquiditySweep, StrategyBOS:
		return true
	}
	return false
}

// ConfirmationType selects the candle that must follow a block touch
type ConfirmationType string

const (
	ConfirmNone   ConfirmationType = "none"
	ConfirmClose  ConfirmationType = "close"
	ConfirmStrong ConfirmationType = "strong"
	ConfirmEngulf ConfirmationType = "engulf"
)

// Valid reports whether the confirmation type is known
func (c ConfirmationType) Valid() bool {
	switch c {
	case ConfirmNone, ConfirmClose, ConfirmStrong, ConfirmEngulf:
		return true
	}
	return false
}

const (
	DefaultFixedRR       = 2.0
	DefaultPendingWindow = 4 * time.Hour
	DefaultSLBufferRatio = 0.1
	DefaultSweepLookback = 20
	DefaultMinOBScore    = 60.0
)

var ErrInvalidParams = errors.New("invalid strategy parameters")

// Params is the full parameter set of one strategy variation
type Params struct {
	Name                   string                  `json:"name"`
	Strategy               StrategyType            `json:"strategy"`
	MinOBScore             float64                 `json:"minOBScore"`
	Confirmation           ConfirmationType        `json:"confirmationType"`
	FixedRR                float64                 `json:"fixedRR"`
	PendingWindow          time.Duration           `json:"pendingWindow"`
	SLBufferRatio          float64                 `json:"slBufferRatio"`
	UseKillZones           bool                    `json:"useKillZones"`
	KillZones              []KillZone              `json:"killZones"`
	RequireLiquiditySweep  bool                    `json:"requireLiquiditySweep"`
	RequirePremiumDiscount bool                    `json:"requirePremiumDiscount"`
	MaxDailyDD             float64                 `json:"maxDailyDD"`
	MinConfluence          float64                 `json:"minConfluence"`
	SweepLookback          int                     `json:"sweepLookback"`
	Weights                confluence.Weights      `json:"weights"`
	Detector               analysis.DetectorConfig `json:"-"`
}

// DefaultParams returns the plain order block model without extra gates
func DefaultParams() Params {
	return Params{
		Name:          "OB60",
		Strategy:      StrategyOrderBlock,
		MinOBScore:    DefaultMinOBScore,
		Confirmation:  ConfirmNone,
		FixedRR:       DefaultFixedRR,
		PendingWindow: DefaultPendingWindow,
		SLBufferRatio: DefaultSLBufferRatio,
		KillZones:     DefaultKillZones(),
		MinConfluence: confluence.DefaultMinScore,
		SweepLookback: DefaultSweepLookback,
		Weights:       confluence.DefaultWeights(),
		Detector:      analysis.DefaultDetectorConfig(),
	}
}

// Validate rejects parameter sets the engine cannot run
func (p Params) Validate() error {
	if !p.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, p.Strategy)
	}
	if !p.Confirmation.Valid() {
		return fmt.Errorf("%w: unknown confirmation type %q", ErrInvalidParams, p.Confirmation)
	}
	if p.FixedRR <= 0 {
		return fmt.Errorf("%w: fixedRR must be positive", ErrInvalidParams)
	}
	if p.MinOBScore < 0 || p.MinOBScore > 100 {
		return fmt.Errorf("%w: minOBScore must be within 0-100", ErrInvalidParams)
	}
	if p.PendingWindow <= 0 {
		return fmt.Errorf("%w: pending window must be positive", ErrInvalidParams)
	}
	if p.SLBufferRatio < 0 {
		return fmt.Errorf("%w: stop buffer must not be negative", ErrInvalidParams)
	}
	if p.MaxDailyDD < 0 {
		return fmt.Errorf("%w: maxDailyDD must not be negative", ErrInvalidParams)
	}
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	for _, kz := range p.KillZones {
		if err := kz.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	return nil
}

// needsSweep reports whether entries require a prior opposite-side sweep
func (p Params) needsSweep() bool {
	return p.RequireLiquiditySweep || p.Strategy == StrategyLiquiditySweep
}

// KillZone is a half-open UTC hour window [StartHour, EndHour)
type KillZone struct {
	Name      string `json:"name" toml:"name"`
	StartHour int    `json:"startHour" toml:"start_hour"`
	EndHour   int    `json:"endHour" toml:"end_hour"`
}

// Validate checks the hours are within a day and ordered
func (kz KillZone) Validate() error {
	if kz.StartHour < 0 || kz.EndHour > 24 || kz.StartHour >= kz.EndHour {
		return fmt.Errorf("kill zone %s: invalid hours %d-%d", kz.Name, kz.StartHour, kz.EndHour)
	}
	return nil
}

// Contains reports whether t's UTC hour falls in the window
func (kz KillZone) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= kz.StartHour && h < kz.EndHour
}

// DefaultKillZones returns the London and New York sessions
func DefaultKillZones() []KillZone {
	return []KillZone{
		{Name: "LONDON", StartHour: 7, EndHour: 10},
		{Name: "NY_AM", StartHour: 12, EndHour: 15},
		{Name: "NY_PM", StartHour: 19, EndHour: 21},
	}
}

// InKillZone reports whether t falls in any of the zones
func InKillZone(t time.Time, zones []KillZone) bool {
	for _, kz := range zones {
		if kz.Contains(t) {
			return true
		}
	}
	return false
}
