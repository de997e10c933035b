package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"smc-trading-bot/internal/bot"
	"smc-trading-bot/internal/risk"
)

// Executor places spot market orders for the live bot. Orders are sent once;
// a failed order is reported to the caller and never retried here.
type Executor struct {
	client *Client
}

// NewExecutor creates an executor on top of a client
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// PlaceOrder sends a market order and returns the average fill
func (e *Executor) PlaceOrder(ctx context.Context, req bot.OrderRequest) (bot.OrderResult, error) {
	if req.Quantity <= 0 {
		return bot.OrderResult{}, fmt.Errorf("invalid quantity %.8f", req.Quantity)
	}

	side := binance.SideTypeBuy
	if req.Side == risk.Sell {
		side = binance.SideTypeSell
	}

	svc := e.client.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	if err := e.client.limiter.Wait(ctx); err != nil {
		return bot.OrderResult{}, err
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return bot.OrderResult{}, fmt.Errorf("error placing %s %s order: %w", req.Side, req.Symbol, err)
	}

	price, qty := averageFill(resp)
	e.client.logger.Info().
		Int64("order_id", resp.OrderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("price", price).
		Float64("quantity", qty).
		Msg("Market order filled")

	return bot.OrderResult{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		ClientID:    resp.ClientOrderID,
		Status:      string(resp.Status),
		FilledPrice: price,
		FilledQty:   qty,
		Time:        time.UnixMilli(resp.TransactTime).UTC(),
	}, nil
}

// averageFill weights fill prices by quantity, falling back to the
// cumulative quote amount when no fills are reported
func averageFill(resp *binance.CreateOrderResponse) (price, qty float64) {
	var notional float64
	for _, f := range resp.Fills {
		p, err1 := strconv.ParseFloat(f.Price, 64)
		q, err2 := strconv.ParseFloat(f.Quantity, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		notional += p * q
		qty += q
	}
	if qty > 0 {
		return notional / qty, qty
	}

	qty, _ = strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	if qty > 0 {
		price = quote / qty
	}
	return price, qty
}
