package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"smc-trading-bot/internal/candles"
)

const (
	mainnetURL = "https://api.binance.com"
	testnetURL = "https://testnet.binance.vision"

	klinesPageLimit = 1000
	aggTradesLimit  = 1000
	aggTradesWindow = time.Hour
)

// Config holds client configuration
type Config struct {
	APIKey            string
	SecretKey         string
	BaseURL           string
	TestNet           bool
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// Client is a candle source, tick source and price feed over the Binance spot API.
// Every request waits on the rate limiter; transient failures are retried
// with exponential backoff.
type Client struct {
	api     *binance.Client
	limiter *rate.Limiter
	retries int
	logger  zerolog.Logger
	now     func() time.Time
}

// NewClient creates a new client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	api := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	api.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	switch {
	case cfg.BaseURL != "" && cfg.BaseURL != mainnetURL:
		api.BaseURL = cfg.BaseURL
	case cfg.TestNet:
		api.BaseURL = testnetURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(2 * rps)
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retries: cfg.MaxRetries,
		logger:  logger.With().Str("component", "binance").Logger(),
		now:     time.Now,
	}
}

// Connect checks connectivity before a run starts fetching
func (c *Client) Connect(ctx context.Context) error {
	return c.call(ctx, "ping", func() error {
		return c.api.NewPingService().Do(ctx)
	})
}

// GetHistoricalCandles pages through klines in [start, end). Candles that
// have not closed yet are left out.
func (c *Client) GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}

	var out []candles.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1
	nowMs := c.now().UnixMilli()

	for cursor <= endMs {
		var page []*binance.Kline
		err := c.call(ctx, "klines", func() error {
			var err error
			page, err = c.api.NewKlinesService().
				Symbol(symbol).
				Interval(string(tf)).
				StartTime(cursor).
				EndTime(endMs).
				Limit(klinesPageLimit).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("error fetching %s %s klines: %w", symbol, tf, err)
		}
		if len(page) == 0 {
			break
		}

		for _, k := range page {
			if k.CloseTime >= nowMs {
				continue
			}
			candle, err := klineToCandle(k, symbol, tf)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}

		last := page[len(page)-1].OpenTime
		if len(page) < klinesPageLimit || last < cursor {
			break
		}
		cursor = last + tf.Duration().Milliseconds()
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Int("candles", len(out)).
		Msg("Fetched historical candles")
	return candles.Dedupe(out), nil
}

// GetTicks returns aggregated trades in [start, end), one hour window at a time
func (c *Client) GetTicks(ctx context.Context, symbol string, start, end time.Time) ([]candles.Tick, error) {
	var out []candles.Tick
	for windowStart := start; windowStart.Before(end); windowStart = windowStart.Add(aggTradesWindow) {
		windowEnd := windowStart.Add(aggTradesWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}

		from := windowStart.UnixMilli()
		for {
			var trades []*binance.AggTrade
			err := c.call(ctx, "aggTrades", func() error {
				var err error
				trades, err = c.api.NewAggTradesService().
					Symbol(symbol).
					StartTime(from).
					EndTime(windowEnd.UnixMilli() - 1).
					Limit(aggTradesLimit).
					Do(ctx)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("error fetching %s agg trades: %w", symbol, err)
			}

			for _, tr := range trades {
				price, err := strconv.ParseFloat(tr.Price, 64)
				if err != nil {
					return nil, fmt.Errorf("error parsing trade price %q: %w", tr.Price, err)
				}
				out = append(out, candles.Tick{Time: time.UnixMilli(tr.Timestamp).UTC(), Price: price})
			}

			if len(trades) < aggTradesLimit {
				break
			}
			from = trades[len(trades)-1].Timestamp + 1
		}
	}
	return out, nil
}

// GetCurrentPrice returns the last traded price
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*binance.SymbolPrice
	err := c.call(ctx, "price", func() error {
		var err error
		prices, err = c.api.NewListPricesService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// call rate-limits and retries op. Request errors reported by the API are
// not retried.
func (c *Client) call(ctx context.Context, name string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(max(c.retries, 0)))
	b = backoff.WithContext(b, ctx)

	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Str("call", name).Dur("retry_in", wait).Msg("Binance request failed, retrying")
	}
	return backoff.RetryNotify(attempt, b, notify)
}

// retryable reports whether err may succeed on a later attempt. API errors in
// the -1100 range are malformed requests.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code > -1100 || apiErr.Code <= -1200
	}
	return true
}

func klineToCandle(k *binance.Kline, symbol string, tf candles.Timeframe) (candles.Candle, error) {
	values := make([]float64, 5)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return candles.Candle{}, fmt.Errorf("error parsing kline value %q: %w", raw, err)
		}
		values[i] = v
	}
	return candles.Candle{
		Time:      time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Symbol:    symbol,
		Timeframe: tf,
	}, nil
}
