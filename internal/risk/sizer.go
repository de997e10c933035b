package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

var (
	ErrInvalidStopDistance = errors.New("stop loss distance must be positive")
	ErrInvalidRisk         = errors.New("balance and risk percent must be positive")
	ErrInvalidSymbolSpec   = errors.New("invalid symbol specification")
)

// SymbolSpec describes contract sizing rules for a symbol
type SymbolSpec struct {
	Symbol       string  `json:"symbol"`
	ContractSize float64 `json:"contractSize"`
	MinVolume    float64 `json:"minVolume"`
	MaxVolume    float64 `json:"maxVolume"`
	VolumeStep   float64 `json:"volumeStep"`
}

// Validate checks the spec can size a position. At least one multiple of
// the volume step must lie within [MinVolume, MaxVolume].
func (s SymbolSpec) Validate() error {
	if s.ContractSize <= 0 || s.VolumeStep <= 0 || s.MinVolume <= 0 || s.MaxVolume < s.MinVolume {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolSpec, s.Symbol)
	}
	minVol, maxVol := s.volumeBounds()
	if maxVol.LessThan(minVol) {
		return fmt.Errorf("%w: %s has no volume step between min and max", ErrInvalidSymbolSpec, s.Symbol)
	}
	return nil
}

// volumeBounds returns the smallest and largest step multiples inside the limits
func (s SymbolSpec) volumeBounds() (decimal.Decimal, decimal.Decimal) {
	step := decimal.NewFromFloat(s.VolumeStep)
	minVol := decimal.NewFromFloat(s.MinVolume).Div(step).Ceil().Mul(step)
	maxVol := decimal.NewFromFloat(s.MaxVolume).Div(step).Floor().Mul(step)
	return minVol, maxVol
}

var defaultSpecs = map[string]SymbolSpec{
	"XAUUSD":  {Symbol: "XAUUSD", ContractSize: 100, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01},
	"EURUSD":  {Symbol: "EURUSD", ContractSize: 100000, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01},
	"GBPUSD":  {Symbol: "GBPUSD", ContractSize: 100000, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01},
	"USDJPY":  {Symbol: "USDJPY", ContractSize: 100000, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01},
	"BTCUSDT": {Symbol: "BTCUSDT", ContractSize: 1, MinVolume: 0.001, MaxVolume: 100, VolumeStep: 0.001},
	"ETHUSDT": {Symbol: "ETHUSDT", ContractSize: 1, MinVolume: 0.001, MaxVolume: 1000, VolumeStep: 0.001},
}

// LookupSymbol returns the built-in spec for a symbol, or a generic spec
func LookupSymbol(symbol string) SymbolSpec {
	symbol = strings.ToUpper(symbol)
	if spec, ok := defaultSpecs[symbol]; ok {
		return spec
	}
	return SymbolSpec{Symbol: symbol, ContractSize: 1, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01}
}

// CalculateLotSize sizes a position so that a stop-out loses riskPercent of
// balance, rounded to the symbol's volume step and clamped to its limits
func CalculateLotSize(balance, riskPercent, entry, stopLoss float64, spec SymbolSpec) (float64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if balance <= 0 || riskPercent <= 0 {
		return 0, ErrInvalidRisk
	}
	distance := math.Abs(entry - stopLoss)
	if distance == 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, ErrInvalidStopDistance
	}

	riskAmount := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(riskPercent)).Div(decimal.NewFromInt(100))
	perLot := decimal.NewFromFloat(distance).Mul(decimal.NewFromFloat(spec.ContractSize))
	raw := riskAmount.Div(perLot)

	step := decimal.NewFromFloat(spec.VolumeStep)
	lots := raw.Div(step).Round(0).Mul(step)

	minVol, maxVol := spec.volumeBounds()
	if lots.LessThan(minVol) {
		lots = minVol
	}
	if lots.GreaterThan(maxVol) {
		lots = maxVol
	}
	return lots.InexactFloat64(), nil
}

// RiskReward is the distance to stop and target from entry
type RiskReward struct {
	Risk   float64 `json:"risk"`
	Reward float64 `json:"reward"`
	Ratio  float64 `json:"ratio"`
}

// CalculateRiskReward measures reward per unit of risk. A target on the wrong
// side of entry gives a negative reward.
func CalculateRiskReward(side Side, entry, stopLoss, takeProfit float64) RiskReward {
	rr := RiskReward{}
	if side == Buy {
		rr.Risk = entry - stopLoss
		rr.Reward = takeProfit - entry
	} else {
		rr.Risk = stopLoss - entry
		rr.Reward = entry - takeProfit
	}
	if rr.Risk > 0 {
		rr.Ratio = rr.Reward / rr.Risk
	}
	return rr
}

// CalculatePotentialPnL returns the account-currency result of exiting at exit
func CalculatePotentialPnL(side Side, entry, exit, lotSize float64, spec SymbolSpec) float64 {
	move := exit - entry
	if side == Sell {
		move = -move
	}
	return move * lotSize * spec.ContractSize
}
