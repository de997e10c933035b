package binance

import (
	"context"

	"github.com/rs/zerolog"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/bot"
)

// MarketData is everything the runner, the API and the live bot need from a
// venue. Client and MockClient both implement it.
type MarketData interface {
	backtest.CandleSource
	backtest.TickSource
	backtest.Connector
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// New returns the mock market in mock mode and a live client otherwise,
// together with the matching execution sink.
func New(cfg Config, mock bool, logger zerolog.Logger) (MarketData, bot.ExecutionSink) {
	if mock {
		mc := NewMockClient()
		return mc, mc
	}
	c := NewClient(cfg, logger)
	return c, NewExecutor(c)
}

// ConfigFrom maps the binance configuration section onto a client config
func ConfigFrom(c config.BinanceConfig) Config {
	return Config{
		APIKey:            c.APIKey,
		SecretKey:         c.SecretKey,
		BaseURL:           c.BaseURL,
		TestNet:           c.TestNet,
		RequestsPerSecond: c.RequestsPerSecond,
		MaxRetries:        c.MaxRetries,
	}
}

var (
	_ MarketData        = (*Client)(nil)
	_ MarketData        = (*MockClient)(nil)
	_ bot.ExecutionSink = (*Executor)(nil)
	_ bot.ExecutionSink = (*MockClient)(nil)
)
