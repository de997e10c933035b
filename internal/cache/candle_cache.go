package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/candles"
)

// Store is the key/value part of CacheService the candle cache needs
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CandleCache wraps a candle source with a read-through cache. Cache errors
// never fail a fetch; the source is asked instead.
type CandleCache struct {
	store         Store
	source        backtest.CandleSource
	historicalTTL time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewCandleCache creates a read-through cache over source
func NewCandleCache(store Store, source backtest.CandleSource, historicalTTL time.Duration, logger zerolog.Logger) *CandleCache {
	return &CandleCache{
		store:         store,
		source:        source,
		historicalTTL: historicalTTL,
		logger:        logger.With().Str("component", "candle_cache").Logger(),
		now:           time.Now,
	}
}

// Connect forwards to the wrapped source when it supports it
func (c *CandleCache) Connect(ctx context.Context) error {
	if conn, ok := c.source.(backtest.Connector); ok {
		return conn.Connect(ctx)
	}
	return nil
}

// GetHistoricalCandles serves a range from Redis or fetches and stores it
func (c *CandleCache) GetHistoricalCandles(ctx context.Context, symbol string, tf candles.Timeframe, start, end time.Time) ([]candles.Candle, error) {
	key := CandleKey(symbol, string(tf), start, end)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached []candles.Candle
		if err := json.Unmarshal([]byte(data), &cached); err == nil {
			c.logger.Debug().Str("key", key).Int("candles", len(cached)).Msg("Candle cache hit")
			return cached, nil
		}
		c.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	case !errors.Is(err, ErrMiss) && !errors.Is(err, ErrUnavailable):
		c.logger.Warn().Err(err).Str("key", key).Msg("Candle cache read failed")
	}

	series, err := c.source.GetHistoricalCandles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(series)
	if err != nil {
		return series, nil
	}
	if err := c.store.Set(ctx, key, payload, c.ttl(tf, end)); err != nil && !errors.Is(err, ErrUnavailable) {
		c.logger.Warn().Err(err).Str("key", key).Msg("Candle cache write failed")
	}
	return series, nil
}

// ttl keeps ranges that end in the past for the historical TTL. Ranges still
// growing expire after about a third of a candle.
func (c *CandleCache) ttl(tf candles.Timeframe, end time.Time) time.Duration {
	if !end.After(c.now()) && c.historicalTTL > 0 {
		return c.historicalTTL
	}
	return LiveTTL(tf)
}

// LiveTTL returns the cache lifetime of a range that includes the present
func LiveTTL(tf candles.Timeframe) time.Duration {
	switch tf {
	case candles.TF1m:
		return 30 * time.Second
	case candles.TF5m:
		return 2 * time.Minute
	case candles.TF15m:
		return 5 * time.Minute
	case candles.TF30m:
		return 10 * time.Minute
	case candles.TF1h:
		return 30 * time.Minute
	case candles.TF4h:
		return 2 * time.Hour
	case candles.TF1d:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}
