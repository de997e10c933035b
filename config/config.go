package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"smc-trading-bot/internal/backtest"
	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/logging"
	"smc-trading-bot/internal/strategy"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const dateLayout = "2006-01-02"

type Config struct {
	Logging  logging.Config `json:"logging" toml:"logging"`
	Backtest BacktestConfig `json:"backtest" toml:"backtest"`
	Binance  BinanceConfig  `json:"binance" toml:"binance"`
	Database DatabaseConfig `json:"database" toml:"database"`
	Redis    RedisConfig    `json:"redis" toml:"redis"`
	S3       S3Config       `json:"s3" toml:"s3"`
	Server   ServerConfig   `json:"server" toml:"server"`
	Live     LiveConfig     `json:"live" toml:"live"`
}

// BacktestConfig holds the defaults of a backtest run
type BacktestConfig struct {
	Symbol                 string  `json:"symbol" toml:"symbol"`
	StartDate              string  `json:"start_date" toml:"start_date"`                             // YYYY-MM-DD, UTC
	EndDate                string  `json:"end_date" toml:"end_date"`
	InitialBalance         float64 `json:"initial_balance" toml:"initial_balance"`
	RiskPercent            float64 `json:"risk_percent" toml:"risk_percent"`
	Variation              string  `json:"variation" toml:"variation"`                               // preset tag, overrides the fields below
	Strategy               string  `json:"strategy" toml:"strategy"`
	HTF                    string  `json:"htf" toml:"htf"`
	MTF                    string  `json:"mtf" toml:"mtf"`
	LTF                    string  `json:"ltf" toml:"ltf"`
	UseTickData            bool    `json:"use_tick_data" toml:"use_tick_data"`
	UseKillZones           bool    `json:"use_kill_zones" toml:"use_kill_zones"`
	RequireLiquiditySweep  bool    `json:"require_liquidity_sweep" toml:"require_liquidity_sweep"`
	RequirePremiumDiscount bool    `json:"require_premium_discount" toml:"require_premium_discount"`
	MinOBScore             float64 `json:"min_ob_score" toml:"min_ob_score"`
	ConfirmationType       string  `json:"confirmation_type" toml:"confirmation_type"`
	FixedRR                float64 `json:"fixed_rr" toml:"fixed_rr"`
	MaxDailyDD             float64 `json:"max_daily_dd" toml:"max_daily_dd"`
	AnnualizationFactor    float64 `json:"annualization_factor" toml:"annualization_factor"`
	ProgressEvery          int     `json:"progress_every" toml:"progress_every"`
}

type BinanceConfig struct {
	APIKey            string  `json:"api_key" toml:"api_key"`
	SecretKey         string  `json:"secret_key" toml:"secret_key"`
	BaseURL           string  `json:"base_url" toml:"base_url"`
	TestNet           bool    `json:"testnet" toml:"testnet"`
	MockMode          bool    `json:"mock_mode" toml:"mock_mode"`                     // serve generated candles instead of calling Binance
	RequestsPerSecond float64 `json:"requests_per_second" toml:"requests_per_second"`
	MaxRetries        int     `json:"max_retries" toml:"max_retries"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Host     string `json:"host" toml:"host"`
	Port     int    `json:"port" toml:"port"`
	User     string `json:"user" toml:"user"`
	Password string `json:"password" toml:"password"`
	Name     string `json:"name" toml:"name"`
	SSLMode  string `json:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `json:"max_conns" toml:"max_conns"`
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode, d.MaxConns)
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Address  string `json:"address" toml:"address"`
	Password string `json:"password" toml:"password"`
	DB       int    `json:"db" toml:"db"`
	PoolSize int    `json:"pool_size" toml:"pool_size"`
	// CandleTTL is the lifetime in seconds of cached candle ranges that are
	// entirely in the past
	CandleTTL int `json:"candle_ttl" toml:"candle_ttl"`
}

type S3Config struct {
	Enabled         bool   `json:"enabled" toml:"enabled"`
	Region          string `json:"region" toml:"region"`
	Bucket          string `json:"bucket" toml:"bucket"`
	Endpoint        string `json:"endpoint" toml:"endpoint"`                   // optional, for S3-compatible stores
	AccessKeyID     string `json:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" toml:"secret_access_key"`
	Prefix          string `json:"prefix" toml:"prefix"`
	UsePathStyle    bool   `json:"use_path_style" toml:"use_path_style"`
}

type ServerConfig struct {
	Host            string `json:"host" toml:"host"`
	Port            int    `json:"port" toml:"port"`
	AllowedOrigins  string `json:"allowed_origins" toml:"allowed_origins"`   // comma separated, "*" for any
	ReadTimeout     int    `json:"read_timeout" toml:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" toml:"write_timeout"`       // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LiveConfig holds the live bot settings
type LiveConfig struct {
	Enabled          bool     `json:"enabled" toml:"enabled"`
	Symbols          []string `json:"symbols" toml:"symbols"`
	Variation        string   `json:"variation" toml:"variation"`
	RiskPercent      float64  `json:"risk_percent" toml:"risk_percent"`
	PollSeconds      int      `json:"poll_seconds" toml:"poll_seconds"`
	MaxOpenPositions int      `json:"max_open_positions" toml:"max_open_positions"`
	DryRun           bool     `json:"dry_run" toml:"dry_run"`
	PaperBalance     float64  `json:"paper_balance" toml:"paper_balance"`
}

// PollInterval returns the candle polling period
func (l LiveConfig) PollInterval() time.Duration {
	return time.Duration(l.PollSeconds) * time.Second
}

// Defaults returns a configuration that runs locally against mock data
func Defaults() *Config {
	return &Config{
		Logging: logging.Config{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		Backtest: BacktestConfig{
			Symbol:              "BTCUSDT",
			InitialBalance:      10000,
			RiskPercent:         1,
			Variation:           string(strategy.VariationOB60),
			Strategy:            string(strategy.StrategyOrderBlock),
			HTF:                 string(candles.TF4h),
			MTF:                 string(candles.TF1h),
			LTF:                 string(candles.TF15m),
			MinOBScore:          strategy.DefaultMinOBScore,
			ConfirmationType:    string(strategy.ConfirmNone),
			FixedRR:             strategy.DefaultFixedRR,
			AnnualizationFactor: 1,
			ProgressEvery:       backtest.DefaultProgressEvery,
		},
		Binance: BinanceConfig{
			BaseURL:           "https://api.binance.com",
			TestNet:           true,
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Name:     "smc_trading",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			PoolSize:  10,
			CandleTTL: 86400,
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "backtests",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Live: LiveConfig{
			Variation:        string(strategy.VariationOB70KZDD5),
			RiskPercent:      1,
			PollSeconds:      30,
			MaxOpenPositions: 3,
			DryRun:           true,
			PaperBalance:     10000,
		},
	}
}

// Load builds the configuration: defaults, then the file at path (TOML when it
// ends in .toml, JSON otherwise; a missing file keeps the defaults), then .env,
// then SMC_* environment variables
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(filename string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		if _, err := toml.DecodeFile(filename, cfg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return err
			}
			return fmt.Errorf("error parsing config file: %w", err)
		}
		return nil
	}

	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Logging
	cfg.Logging.Level = getEnvOrDefault("SMC_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("SMC_LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("SMC_LOG_JSON", cfg.Logging.JSONFormat)

	// Backtest defaults
	cfg.Backtest.Symbol = getEnvOrDefault("SMC_BACKTEST_SYMBOL", cfg.Backtest.Symbol)
	cfg.Backtest.StartDate = getEnvOrDefault("SMC_BACKTEST_START", cfg.Backtest.StartDate)
	cfg.Backtest.EndDate = getEnvOrDefault("SMC_BACKTEST_END", cfg.Backtest.EndDate)
	cfg.Backtest.Variation = getEnvOrDefault("SMC_BACKTEST_VARIATION", cfg.Backtest.Variation)
	cfg.Backtest.InitialBalance = getEnvFloatOrDefault("SMC_BACKTEST_BALANCE", cfg.Backtest.InitialBalance)
	cfg.Backtest.RiskPercent = getEnvFloatOrDefault("SMC_BACKTEST_RISK_PERCENT", cfg.Backtest.RiskPercent)
	cfg.Backtest.UseTickData = getEnvBoolOrDefault("SMC_BACKTEST_TICK_DATA", cfg.Backtest.UseTickData)

	// Binance credentials only come from the environment or the file
	cfg.Binance.APIKey = getEnvOrDefault("SMC_BINANCE_API_KEY", cfg.Binance.APIKey)
	cfg.Binance.SecretKey = getEnvOrDefault("SMC_BINANCE_SECRET_KEY", cfg.Binance.SecretKey)
	cfg.Binance.BaseURL = getEnvOrDefault("SMC_BINANCE_BASE_URL", cfg.Binance.BaseURL)
	cfg.Binance.TestNet = getEnvBoolOrDefault("SMC_BINANCE_TESTNET", cfg.Binance.TestNet)
	cfg.Binance.MockMode = getEnvBoolOrDefault("SMC_MOCK_MODE", cfg.Binance.MockMode)
	cfg.Binance.RequestsPerSecond = getEnvFloatOrDefault("SMC_BINANCE_RPS", cfg.Binance.RequestsPerSecond)
	cfg.Binance.MaxRetries = getEnvIntOrDefault("SMC_BINANCE_MAX_RETRIES", cfg.Binance.MaxRetries)

	// Database
	cfg.Database.Enabled = getEnvBoolOrDefault("SMC_DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("SMC_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("SMC_DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("SMC_DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("SMC_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnvOrDefault("SMC_DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnvOrDefault("SMC_DB_SSLMODE", cfg.Database.SSLMode)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("SMC_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("SMC_REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("SMC_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("SMC_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.CandleTTL = getEnvIntOrDefault("SMC_REDIS_CANDLE_TTL", cfg.Redis.CandleTTL)

	// S3 archive
	cfg.S3.Enabled = getEnvBoolOrDefault("SMC_S3_ENABLED", cfg.S3.Enabled)
	cfg.S3.Region = getEnvOrDefault("SMC_S3_REGION", cfg.S3.Region)
	cfg.S3.Bucket = getEnvOrDefault("SMC_S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.Endpoint = getEnvOrDefault("SMC_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKeyID = getEnvOrDefault("SMC_S3_ACCESS_KEY_ID", cfg.S3.AccessKeyID)
	cfg.S3.SecretAccessKey = getEnvOrDefault("SMC_S3_SECRET_ACCESS_KEY", cfg.S3.SecretAccessKey)
	cfg.S3.Prefix = getEnvOrDefault("SMC_S3_PREFIX", cfg.S3.Prefix)

	// Server
	cfg.Server.Host = getEnvOrDefault("SMC_SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SMC_SERVER_PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SMC_SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	// Live bot
	cfg.Live.Enabled = getEnvBoolOrDefault("SMC_LIVE_ENABLED", cfg.Live.Enabled)
	cfg.Live.DryRun = getEnvBoolOrDefault("SMC_LIVE_DRY_RUN", cfg.Live.DryRun)
	cfg.Live.Variation = getEnvOrDefault("SMC_LIVE_VARIATION", cfg.Live.Variation)
	if symbols := os.Getenv("SMC_LIVE_SYMBOLS"); symbols != "" {
		cfg.Live.Symbols = splitList(symbols)
	}
}

// Validate checks the sections that are enabled
func (c *Config) Validate() error {
	if c.Backtest.InitialBalance <= 0 {
		return fmt.Errorf("%w: backtest.initial_balance must be positive", ErrInvalidConfig)
	}
	if c.Backtest.RiskPercent <= 0 || c.Backtest.RiskPercent > 100 {
		return fmt.Errorf("%w: backtest.risk_percent must be within (0, 100]", ErrInvalidConfig)
	}
	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("%w: database host and name are required", ErrInvalidConfig)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("%w: redis address is required", ErrInvalidConfig)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Live.Enabled {
		if len(c.Live.Symbols) == 0 {
			return fmt.Errorf("%w: live.symbols is empty", ErrInvalidConfig)
		}
		if c.Live.PollSeconds <= 0 {
			return fmt.Errorf("%w: live.poll_seconds must be positive", ErrInvalidConfig)
		}
		if !c.Live.DryRun && !c.Binance.MockMode && (c.Binance.APIKey == "" || c.Binance.SecretKey == "") {
			return fmt.Errorf("%w: binance credentials are required for live trading", ErrInvalidConfig)
		}
		if _, err := strategy.LookupVariation(strategy.Variation(c.Live.Variation)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ToBacktest converts the section into a runnable backtest configuration.
// A variation tag replaces the individual strategy fields.
func (b BacktestConfig) ToBacktest() (backtest.Config, error) {
	cfg := backtest.DefaultConfig()
	cfg.Symbol = strings.ToUpper(b.Symbol)
	cfg.InitialBalance = b.InitialBalance
	cfg.RiskPercent = b.RiskPercent
	cfg.UseTickData = b.UseTickData
	cfg.AnnualizationFactor = b.AnnualizationFactor
	cfg.ProgressEvery = b.ProgressEvery

	var err error
	if cfg.StartDate, err = parseDate(b.StartDate); err != nil {
		return cfg, err
	}
	if cfg.EndDate, err = parseDate(b.EndDate); err != nil {
		return cfg, err
	}
	for _, tf := range []struct {
		raw string
		dst *candles.Timeframe
	}{{b.HTF, &cfg.HTF}, {b.MTF, &cfg.MTF}, {b.LTF, &cfg.LTF}} {
		if tf.raw == "" {
			continue
		}
		parsed, err := candles.ParseTimeframe(tf.raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*tf.dst = parsed
	}

	if b.Variation != "" {
		if err := cfg.ApplyVariation(strategy.Variation(b.Variation)); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	p := &cfg.Params
	p.Name = "CUSTOM"
	if b.Strategy != "" {
		p.Strategy = strategy.StrategyType(strings.ToUpper(b.Strategy))
	}
	if b.ConfirmationType != "" {
		p.Confirmation = strategy.ConfirmationType(strings.ToLower(b.ConfirmationType))
	}
	if b.MinOBScore > 0 {
		p.MinOBScore = b.MinOBScore
	}
	if b.FixedRR > 0 {
		p.FixedRR = b.FixedRR
	}
	p.UseKillZones = b.UseKillZones
	p.RequireLiquiditySweep = b.RequireLiquiditySweep
	p.RequirePremiumDiscount = b.RequirePremiumDiscount
	p.MaxDailyDD = b.MaxDailyDD
	return cfg, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidConfig, s)
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
