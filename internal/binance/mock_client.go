package binance

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smc-trading-bot/internal/bot"
	"smc-trading-bot/internal/candles"
)

// basePrices seeds the simulated price path per symbol
var basePrices = map[string]float64{
	"BTCUSDT": 42000.00,
	"ETHUSDT": 2300.00,
	"BNBUSDT": 310.00,
	"SOLUSDT": 95.00,
	"XAUUSD":  2030.00,
	"EURUSD":  1.0950,
	"GBPUSD":  1.2700,
	"USDJPY":  145.00,
}

// MockClient serves a deterministic simulated market. Prices are a function
// of symbol and minute, so every timeframe and the tick stream agree with
// each other and repeated runs see identical data.
type MockClient struct {
	// Now is the simulated wall clock; only candles closed by Now are served
	Now func() time.Time

	seq    atomic.Int64
	mu     sync.Mutex
	orders []bot.OrderResult
}

// NewMockClient creates a new mock client
func NewMockClient() *MockClient {
	return &MockClient{Now: time.Now}
}

// Connect always succeeds
func (mc *MockClient) Connect(ctx context.Context) error {
	return ctx.Err()
}

// GetHistoricalCandles returns simulated candles opening in [start, end)
func (mc *MockClient) GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := tf.Duration()
	now := mc.Now().UTC()
	t := start.UTC().Truncate(d)
	if t.Before(start) {
		t = t.Add(d)
	}

	var out []candles.Candle
	for ; t.Before(end) && !t.Add(d).After(now); t = t.Add(d) {
		out = append(out, simulatedCandle(symbol, tf, t))
	}
	return out, nil
}

// GetTicks returns one simulated trade per minute in [start, end)
func (mc *MockClient) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]candles.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := start.UTC().Truncate(time.Minute)
	if t.Before(start) {
		t = t.Add(time.Minute)
	}

	var out []candles.Tick
	for ; t.Before(end); t = t.Add(time.Minute) {
		out = append(out, candles.Tick{Time: t, Price: simulatedPrice(symbol, t)})
	}
	return out, nil
}

// GetCurrentPrice returns the simulated price at Now
func (mc *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return simulatedPrice(symbol, mc.Now().UTC().Truncate(time.Minute)), nil
}

// PlaceOrder simulates a market fill at the current price
func (mc *MockClient) PlaceOrder(ctx context.Context, req bot.OrderRequest) (bot.OrderResult, error) {
	if req.Quantity <= 0 {
		return bot.OrderResult{}, fmt.Errorf("invalid quantity %.8f", req.Quantity)
	}
	now := mc.Now().UTC()
	res := bot.OrderResult{
		OrderID:     fmt.Sprintf("%d", 100000+mc.seq.Add(1)),
		ClientID:    req.ClientID,
		Status:      "FILLED",
		FilledPrice: simulatedPrice(req.Symbol, now.Truncate(time.Minute)),
		FilledQty:   req.Quantity,
		Time:        now,
	}

	mc.mu.Lock()
	mc.orders = append(mc.orders, res)
	mc.mu.Unlock()
	return res, nil
}

// Orders returns every simulated fill
func (mc *MockClient) Orders() []bot.OrderResult {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return append([]bot.OrderResult(nil), mc.orders...)
}

func simulatedCandle(symbol string, tf candles.Timeframe, open time.Time) candles.Candle {
	c := candles.Candle{
		Time:      open,
		Symbol:    symbol,
		Timeframe: tf,
		High:      math.Inf(-1),
		Low:       math.Inf(1),
	}
	end := open.Add(tf.Duration())
	for t := open; t.Before(end); t = t.Add(time.Minute) {
		p := simulatedPrice(symbol, t)
		if t.Equal(open) {
			c.Open = p
		}
		c.Close = p
		c.High = math.Max(c.High, p)
		c.Low = math.Min(c.Low, p)
		c.Volume += 1 + 9*noise(symbol+":vol", t)
	}
	c.Volume = math.Round(c.Volume*1000) / 1000
	return c
}

// simulatedPrice layers a multi-day swing, an intraday swing, a short cycle
// and per-minute noise on the symbol's base price
func simulatedPrice(symbol string, t time.Time) float64 {
	base, ok := basePrices[strings.ToUpper(symbol)]
	if !ok {
		base = 100
	}
	m := float64(t.Unix()) / 60
	wave := 0.03*math.Sin(2*math.Pi*m/(3*24*60)) +
		0.01*math.Sin(2*math.Pi*m/(7*60)) +
		0.003*math.Sin(2*math.Pi*m/50)
	return base * (1 + wave + 0.002*(noise(symbol, t)-0.5))
}

// noise maps symbol and minute to a stable value in [0, 1)
func noise(key string, t time.Time) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", key, t.Unix()/60)
	return float64(h.Sum64()%1_000_000) / 1_000_000
}
