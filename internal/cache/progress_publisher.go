package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-bot/internal/backtest"
)

// Publisher is the pub/sub part of CacheService
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ProgressPublisher forwards backtest progress to backtest:progress:<run_id>
type ProgressPublisher struct {
	pub     Publisher
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProgressPublisher creates a progress sink over Redis pub/sub
func NewProgressPublisher(pub Publisher, logger zerolog.Logger) *ProgressPublisher {
	return &ProgressPublisher{
		pub:     pub,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "progress_publisher").Logger(),
	}
}

// OnProgress publishes one event. Failures are logged and dropped.
func (p *ProgressPublisher) OnProgress(ev backtest.Progress) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.pub.Publish(ctx, ProgressChannel(ev.RunID), payload); err != nil {
		p.logger.Debug().Err(err).Str("run_id", ev.RunID).Msg("Progress publish failed")
	}
}

var _ backtest.ProgressSink = (*ProgressPublisher)(nil)
