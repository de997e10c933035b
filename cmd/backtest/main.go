// Command backtest runs one backtest from the command line and prints the
// report. Flags override the backtest section of the config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"smc-trading-bot/config"
	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/binance"
	"smc-trading-bot/internal/blob"
	"smc-trading-bot/internal/cache"
	"smc-trading-bot/internal/database"
	"smc-trading-bot/internal/logging"
	"smc-trading-bot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a JSON or TOML config file")
	symbol := flag.String("symbol", "", "symbol to test, e.g. XAUUSD")
	start := flag.String("start", "", "start date, YYYY-MM-DD")
	end := flag.String("end", "", "end date, YYYY-MM-DD")
	variation := flag.String("variation", "", "strategy preset tag")
	balance := flag.Float64("balance", 0, "initial balance")
	riskPct := flag.Float64("risk", 0, "risk percent per trade")
	ticks := flag.Bool("ticks", false, "resolve exits with tick data")
	mock := flag.Bool("mock", false, "use generated market data")
	persist := flag.Bool("persist", false, "write the result to the configured database and S3 bucket")
	list := flag.Bool("variations", false, "list strategy presets and exit")
	flag.Parse()

	if *list {
		for _, p := range strategy.Variations() {
			fmt.Printf("%-20s strategy=%s minOB=%.0f killZones=%v confirm=%s maxDD=%.0f\n",
				p.Name, p.Strategy, p.MinOBScore, p.UseKillZones, p.Confirmation, p.MaxDailyDD)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	overrideString(&cfg.Backtest.Symbol, strings.ToUpper(*symbol))
	overrideString(&cfg.Backtest.StartDate, *start)
	overrideString(&cfg.Backtest.EndDate, *end)
	overrideString(&cfg.Backtest.Variation, *variation)
	if *balance > 0 {
		cfg.Backtest.InitialBalance = *balance
	}
	if *riskPct > 0 {
		cfg.Backtest.RiskPercent = *riskPct
	}
	if *ticks {
		cfg.Backtest.UseTickData = true
	}
	if *mock {
		cfg.Binance.MockMode = true
	}

	cfg.Logging.JSONFormat = false
	cfg.Logging.Output = "stderr"
	logger, closer := logging.New(cfg.Logging)
	defer closer.Close()

	btCfg, err := cfg.Backtest.ToBacktest()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid backtest configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runBacktest(ctx, cfg, btCfg, *persist, logger)
	if err != nil {
		var runErr *backtest.RunError
		if errors.As(err, &runErr) {
			logger.Error().Err(runErr.Err).Str("phase", string(runErr.Phase)).Msg("Backtest failed")
		} else {
			logger.Error().Err(err).Msg("Backtest failed")
		}
		stop()
		os.Exit(1)
	}

	backtest.PrintResults(os.Stdout, result)
}

func runBacktest(ctx context.Context, cfg *config.Config, btCfg backtest.Config, persist bool, logger zerolog.Logger) (*backtest.BacktestResult, error) {
	market, _ := binance.New(binance.ConfigFrom(cfg.Binance), cfg.Binance.MockMode, logger)

	var source backtest.CandleSource = market
	if cfg.Redis.Enabled {
		cacheService, err := cache.NewCacheService(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		defer cacheService.Close()
		source = cache.NewCandleCache(cacheService, market, cacheService.CandleTTL(), logger)
	}

	runner := backtest.NewRunner(source, market, logger)

	if persist && cfg.Database.Enabled {
		db, err := database.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return nil, err
		}
		runner.AddSink(database.NewRepository(db))
	}
	if persist && cfg.S3.Enabled {
		archiver, err := blob.NewArchiver(ctx, cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		runner.AddSink(archiver)
	}

	progress := backtest.ProgressFunc(func(p backtest.Progress) {
		if p.Phase == backtest.PhaseAnalyzing && p.Total > 0 {
			fmt.Fprintf(os.Stderr, "\r%5.1f%%  trades=%d  balance=%.2f", p.Percent, p.Trades, p.Balance)
		}
		if p.Terminal() {
			fmt.Fprintln(os.Stderr)
		}
	})
	return runner.Run(ctx, btCfg, progress)
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
