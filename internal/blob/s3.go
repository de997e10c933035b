// Package blob archives backtest results to S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/backtest"
)

// objectAPI is the part of the S3 client the archiver calls
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Archiver writes each finished run as result.json and trades.csv under
// <prefix>/<symbol>/<run_id>/
type Archiver struct {
	api    objectAPI
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewArchiver builds an S3 client from configuration. A custom endpoint
// selects an S3-compatible store.
func NewArchiver(ctx context.Context, cfg config.S3Config, logger zerolog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3: region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newArchiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newArchiver(api objectAPI, bucket, prefix string, logger zerolog.Logger) *Archiver {
	return &Archiver{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "archive").Str("bucket", bucket).Logger(),
	}
}

// Health verifies the bucket is reachable
func (a *Archiver) Health(ctx context.Context) error {
	if _, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("s3: health check failed for bucket %s: %w", a.bucket, err)
	}
	return nil
}

// RunPrefix returns the key prefix of a run
func (a *Archiver) RunPrefix(symbol, runID string) string {
	return path.Join(a.prefix, symbol, runID)
}

// SaveResult uploads the full result and a trade ledger
func (a *Archiver) SaveResult(ctx context.Context, result *backtest.BacktestResult) error {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("s3: marshal result: %w", err)
	}
	ledger, err := TradesCSV(result.Trades)
	if err != nil {
		return fmt.Errorf("s3: encode trades: %w", err)
	}

	dir := a.RunPrefix(result.Symbol, result.RunID)
	if err := a.put(ctx, path.Join(dir, "result.json"), body, "application/json"); err != nil {
		return err
	}
	if err := a.put(ctx, path.Join(dir, "trades.csv"), ledger, "text/csv"); err != nil {
		return err
	}

	a.logger.Info().Str("run_id", result.RunID).Str("prefix", dir).Msg("Backtest archived")
	return nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

var csvHeader = []string{
	"id", "symbol", "direction", "entry_time", "entry_price", "stop_loss", "take_profit",
	"lot_size", "exit_time", "exit_price", "exit_reason", "pnl", "pnl_percent", "balance_before",
}

// TradesCSV renders trades as a CSV ledger with a header row
func TradesCSV(trades []backtest.Trade) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, t := range trades {
		record := []string{
			t.ID, t.Symbol, string(t.Direction), t.EntryTime.UTC().Format(time.RFC3339), f(t.EntryPrice),
			f(t.StopLoss), f(t.TakeProfit), f(t.LotSize), t.ExitTime.UTC().Format(time.RFC3339),
			f(t.ExitPrice), string(t.ExitReason), f(t.PnL), f(t.PnLPercent), f(t.BalanceBefore),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func normaliseEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}

var _ backtest.ResultSink = (*Archiver)(nil)
