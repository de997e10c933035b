package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smc-trading-bot/internal/analysis"
	"smc-trading-bot/internal/risk"
)

// SignalStatus is the lifecycle state of a signal
type SignalStatus string

const (
	StatusPending  SignalStatus = "PENDING"
	StatusTaken    SignalStatus = "TAKEN"
	StatusRejected SignalStatus = "REJECTED"
	StatusExpired  SignalStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed
func (s SignalStatus) Terminal() bool {
	return s == StatusTaken || s == StatusRejected || s == StatusExpired
}

var ErrInvalidTransition = errors.New("invalid signal transition")

// signalNamespace seeds deterministic signal IDs
var signalNamespace = uuid.MustParse("6f1d2c9e-3b7a-4e51-9a0c-5d8e2f4b7c13")

// Signal is a directional trade proposal built from an order block
type Signal struct {
	ID           string              `json:"id"`
	Symbol       string              `json:"symbol"`
	Direction    risk.Side           `json:"direction"`
	EntryPrice   float64             `json:"entryPrice"`
	StopLoss     float64             `json:"stopLoss"`
	TakeProfit   float64             `json:"takeProfit"`
	LotSize      float64             `json:"lotSize"`
	Confidence   float64             `json:"confidence"`
	HTFBias      analysis.Bias       `json:"htfBias"`
	Reason       string              `json:"reason"`
	Status       SignalStatus        `json:"status"`
	Confirmation ConfirmationType    `json:"confirmationType"`
	Block        analysis.OrderBlock `json:"orderBlock"`
	CreatedAt    time.Time           `json:"createdAt"`
	ResolvedAt   time.Time           `json:"resolvedAt,omitempty"`
	Note         string              `json:"note,omitempty"`
}

func newSignal(symbol string, dir risk.Side, ob analysis.OrderBlock, at time.Time) *Signal {
	key := fmt.Sprintf("%s|%s|%s|%d", symbol, dir, ob.Key(), at.Unix())
	return &Signal{
		ID:        uuid.NewSHA1(signalNamespace, []byte(key)).String(),
		Symbol:    symbol,
		Direction: dir,
		Block:     ob,
		Status:    StatusPending,
		CreatedAt: at,
	}
}

// Transition moves a pending signal to a terminal status
func (s *Signal) Transition(to SignalStatus, at time.Time, note string) error {
	if s.Status.Terminal() || !to.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.ResolvedAt = at
	if note != "" {
		s.Note = note
	}
	return nil
}

// Take marks the signal filled
func (s *Signal) Take(at time.Time) error {
	return s.Transition(StatusTaken, at, "")
}

// Reject marks the signal blocked by a gate
func (s *Signal) Reject(at time.Time, reason string) error {
	return s.Transition(StatusRejected, at, reason)
}

// Expire marks the signal unconfirmed within its window
func (s *Signal) Expire(at time.Time) error {
	return s.Transition(StatusExpired, at, "confirmation window elapsed")
}

// RiskReward returns the reward to risk ratio of the priced signal
func (s *Signal) RiskReward() float64 {
	return risk.CalculateRiskReward(s.Direction, s.EntryPrice, s.StopLoss, s.TakeProfit).Ratio
}
