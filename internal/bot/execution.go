package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smc-trading-bot/internal/risk"
)

// OrderRequest is a market order derived from a taken signal or a position exit
type OrderRequest struct {
	ClientID   string    `json:"clientId"`
	Symbol     string    `json:"symbol"`
	Side       risk.Side `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"` // reference price, used by paper fills
	StopLoss   float64   `json:"stopLoss,omitempty"`
	TakeProfit float64   `json:"takeProfit,omitempty"`
	ReduceOnly bool      `json:"reduceOnly,omitempty"`
}

// OrderResult is the venue's answer to an order
type OrderResult struct {
	OrderID     string    `json:"orderId"`
	ClientID    string    `json:"clientId"`
	Status      string    `json:"status"`
	FilledPrice float64   `json:"filledPrice"`
	FilledQty   float64   `json:"filledQty"`
	Time        time.Time `json:"time"`
}

// ExecutionSink places orders for the live bot
type ExecutionSink interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// PaperExecutor fills every order at its reference price
type PaperExecutor struct {
	seq    atomic.Int64
	mu     sync.Mutex
	orders []OrderResult
	now    func() time.Time
}

// NewPaperExecutor creates a dry-run executor
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{now: time.Now}
}

// PlaceOrder records a filled paper order
func (p *PaperExecutor) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("invalid quantity %.8f", req.Quantity)
	}
	if req.Price <= 0 {
		return OrderResult{}, fmt.Errorf("paper order for %s needs a reference price", req.Symbol)
	}

	res := OrderResult{
		OrderID:     fmt.Sprintf("PAPER-%d", p.seq.Add(1)),
		ClientID:    req.ClientID,
		Status:      "FILLED",
		FilledPrice: req.Price,
		FilledQty:   req.Quantity,
		Time:        p.now().UTC(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, res)
	p.mu.Unlock()
	return res, nil
}

// Orders returns a copy of every paper fill
func (p *PaperExecutor) Orders() []OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderResult(nil), p.orders...)
}
