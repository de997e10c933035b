package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/api"
	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/binance"
	"smc-trading-bot/internal/blob"
	"smc-trading-bot/internal/bot"
	"smc-trading-bot/internal/cache"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/database"
	"smc-trading-bot/internal/events"
	"smc-trading-bot/internal/logging"
	"smc-trading-bot/internal/strategy"
)

const maxConcurrentBacktests = 4

func main() {
	configPath := flag.String("config", envOr("SMC_CONFIG", "config.json"), "path to a JSON or TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.Logging)
	defer closer.Close()
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		closer.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus(logger.With().Str("component", "events").Logger())

	market, execution := binance.New(binance.ConfigFrom(cfg.Binance), cfg.Binance.MockMode, logger)
	logger.Info().Bool("mock", cfg.Binance.MockMode).Bool("testnet", cfg.Binance.TestNet).Msg("Market data source ready")

	var source backtest.CandleSource = market
	progress := backtest.MultiProgress{eventBus.ProgressSink()}

	if cfg.Redis.Enabled {
		cacheService, err := cache.NewCacheService(cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer cacheService.Close()
		source = cache.NewCandleCache(cacheService, market, cacheService.CandleTTL(), logger)
		progress = append(progress, cache.NewProgressPublisher(cacheService, logger))
	}

	runner := backtest.NewRunner(source, market, logger.With().Str("component", "runner").Logger())

	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err := database.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("database migrations: %w", err)
		}
		repo = database.NewRepository(db)
		runner.AddSink(repo)
	}

	if cfg.S3.Enabled {
		archiver, err := blob.NewArchiver(ctx, cfg.S3, logger)
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		if err := archiver.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("S3 bucket not reachable, archiving may fail")
		}
		runner.AddSink(archiver)
	}

	runs := api.NewRunManager(runner, progress, maxConcurrentBacktests, logger)
	server := api.NewServer(cfg.Server, cfg.Backtest, runs, eventBus, logger)
	if repo != nil {
		server.SetStore(repo)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Live.Enabled {
		tradingBot, err := newLiveBot(cfg, market, execution, logger)
		if err != nil {
			return fmt.Errorf("live bot: %w", err)
		}
		tradingBot.SetEventBus(eventBus)
		if repo != nil {
			tradingBot.SetRecorder(repo)
		}
		server.SetBot(tradingBot)
		g.Go(func() error { return tradingBot.Run(gctx) })
	}

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down web server")
		}
		if err := runs.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Backtests still running at shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLiveBot builds the live bot. Dry runs execute against the paper
// executor; positions are sized from live.paper_balance in both modes.
func newLiveBot(cfg *config.Config, market binance.MarketData, execution bot.ExecutionSink, logger zerolog.Logger) (*bot.Bot, error) {
	params, err := strategy.LookupVariation(strategy.Variation(cfg.Live.Variation))
	if err != nil {
		return nil, err
	}

	var tfs [3]candles.Timeframe
	for i, raw := range []string{cfg.Backtest.HTF, cfg.Backtest.MTF, cfg.Backtest.LTF} {
		if tfs[i], err = candles.ParseTimeframe(raw); err != nil {
			return nil, err
		}
	}

	if cfg.Live.DryRun {
		execution = bot.NewPaperExecutor()
	}

	return bot.New(bot.Config{
		Symbols:          cfg.Live.Symbols,
		Params:           params,
		HTF:              tfs[0],
		MTF:              tfs[1],
		LTF:              tfs[2],
		RiskPercent:      cfg.Live.RiskPercent,
		MaxOpenPositions: cfg.Live.MaxOpenPositions,
		PollInterval:     cfg.Live.PollInterval(),
		Balance:          cfg.Live.PaperBalance,
		DryRun:           cfg.Live.DryRun,
	}, market, execution, logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
