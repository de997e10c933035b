package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smc-trading-bot/internal/candles"
	"smc-trading-bot/internal/strategy"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Backtest.Variation != "OB60" {
		t.Errorf("Expected default variation OB60, got %s", cfg.Backtest.Variation)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backtest]
symbol = "XAUUSD"
start_date = "2024-01-01"
end_date = "2024-03-01"
variation = "OB70_KZ"

[redis]
enabled = true
address = "cache:6379"

[live]
symbols = ["BTCUSDT", "ETHUSDT"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backtest.Symbol != "XAUUSD" || cfg.Backtest.Variation != "OB70_KZ" {
		t.Errorf("Unexpected backtest section %+v", cfg.Backtest)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "cache:6379" {
		t.Errorf("Unexpected redis section %+v", cfg.Redis)
	}
	if len(cfg.Live.Symbols) != 2 {
		t.Errorf("Expected 2 live symbols, got %v", cfg.Live.Symbols)
	}
	// untouched sections keep their defaults
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default database port, got %d", cfg.Database.Port)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server": {"port": 9090}, "s3": {"enabled": true, "bucket": "runs"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.S3.Bucket != "runs" {
		t.Errorf("Unexpected config %+v %+v", cfg.Server, cfg.S3)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SMC_SERVER_PORT", "7070")
	t.Setenv("SMC_REDIS_ENABLED", "true")
	t.Setenv("SMC_LIVE_SYMBOLS", "xauusd, eurusd")
	t.Setenv("SMC_BACKTEST_RISK_PERCENT", "0.5")
	t.Setenv("SMC_LOG_JSON", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled {
		t.Error("Expected redis to be enabled")
	}
	if len(cfg.Live.Symbols) != 2 || cfg.Live.Symbols[1] != "EURUSD" {
		t.Errorf("Expected [XAUUSD EURUSD], got %v", cfg.Live.Symbols)
	}
	if cfg.Backtest.RiskPercent != 0.5 {
		t.Errorf("Expected risk 0.5, got %f", cfg.Backtest.RiskPercent)
	}
	if !cfg.Logging.JSONFormat {
		t.Error("Expected an unparsable bool to keep the default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero balance", func(c *Config) { c.Backtest.InitialBalance = 0 }, true},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true }, true},
		{"live without symbols", func(c *Config) { c.Live.Enabled = true }, true},
		{"live real money without keys", func(c *Config) {
			c.Live.Enabled = true
			c.Live.Symbols = []string{"BTCUSDT"}
			c.Live.DryRun = false
		}, true},
		{"live dry run", func(c *Config) {
			c.Live.Enabled = true
			c.Live.Symbols = []string{"BTCUSDT"}
		}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestToBacktestVariation(t *testing.T) {
	b := Defaults().Backtest
	b.Symbol = "xauusd"
	b.StartDate = "2024-01-01"
	b.EndDate = "2024-02-01"
	b.Variation = "OB70_KZ_DD5_STRONG"

	cfg, err := b.ToBacktest()
	if err != nil {
		t.Fatalf("ToBacktest: %v", err)
	}
	if cfg.Symbol != "XAUUSD" {
		t.Errorf("Expected upper-cased symbol, got %s", cfg.Symbol)
	}
	if !cfg.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start %s", cfg.StartDate)
	}
	if cfg.Params.Confirmation != strategy.ConfirmStrong || cfg.Params.MaxDailyDD != 5 {
		t.Errorf("Expected the preset to be applied, got %+v", cfg.Params)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a valid backtest config, got %v", err)
	}
}

func TestToBacktestCustom(t *testing.T) {
	b := Defaults().Backtest
	b.StartDate = "2024-01-01"
	b.EndDate = "2024-02-01"
	b.Variation = ""
	b.Strategy = "bos"
	b.ConfirmationType = "ENGULF"
	b.MinOBScore = 75
	b.RequirePremiumDiscount = true
	b.LTF = "5m"

	cfg, err := b.ToBacktest()
	if err != nil {
		t.Fatalf("ToBacktest: %v", err)
	}
	if cfg.Params.Strategy != strategy.StrategyBOS || cfg.Params.Confirmation != strategy.ConfirmEngulf {
		t.Errorf("Unexpected strategy %s / %s", cfg.Params.Strategy, cfg.Params.Confirmation)
	}
	if cfg.Params.MinOBScore != 75 || !cfg.Params.RequirePremiumDiscount {
		t.Errorf("Unexpected params %+v", cfg.Params)
	}
	if cfg.LTF != candles.TF5m {
		t.Errorf("Expected 5m LTF, got %s", cfg.LTF)
	}
}

func TestToBacktestBadDate(t *testing.T) {
	b := Defaults().Backtest
	b.StartDate = "01/02/2024"
	if _, err := b.ToBacktest(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}
