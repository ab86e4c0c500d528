package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		Driver       string `yaml:"driver" toml:"driver"`
		SQLitePath   string `yaml:"sqlite_path" toml:"sqlite_path"`
		BookmarkMode string `yaml:"bookmark_mode" toml:"bookmark_mode"`
		Postgres     struct {
			Host     string `yaml:"host" toml:"host"`
			Port     int    `yaml:"port" toml:"port"`
			User     string `yaml:"user" toml:"user"`
			Password string `yaml:"password" toml:"password"`
			DBName   string `yaml:"dbname" toml:"dbname"`
			SSLMode  string `yaml:"sslmode" toml:"sslmode"`
		} `yaml:"postgres" toml:"postgres"`
	} `yaml:"database" toml:"database"`
	BarSource struct {
		Kind           string  `yaml:"kind" toml:"kind"`
		BaseURL        string  `yaml:"base_url" toml:"base_url"`
		APIKey         string  `yaml:"api_key" toml:"api_key"`
		RequestsPerSec float64 `yaml:"requests_per_sec" toml:"requests_per_sec"`
		MaxRetries     int     `yaml:"max_retries" toml:"max_retries"`
		TimeoutSec     int     `yaml:"timeout_sec" toml:"timeout_sec"`
		// Symbols is the universe for the yahoo source.
		Symbols []string `yaml:"symbols" toml:"symbols"`
		Proxy   string   `yaml:"proxy" toml:"proxy"`
	} `yaml:"bar_source" toml:"bar_source"`
	RSICache struct {
		Backend string `yaml:"backend" toml:"backend"`
		Redis   struct {
			Host     string `yaml:"host" toml:"host"`
			Port     int    `yaml:"port" toml:"port"`
			Password string `yaml:"password" toml:"password"`
			DB       int    `yaml:"db" toml:"db"`
			TTLHours int    `yaml:"ttl_hours" toml:"ttl_hours"`
		} `yaml:"redis" toml:"redis"`
	} `yaml:"rsi_cache" toml:"rsi_cache"`
	Scan struct {
		Workers            int     `yaml:"workers" toml:"workers"`
		RSIPeriod          int     `yaml:"rsi_period" toml:"rsi_period"`
		UpperBand          float64 `yaml:"upper_band" toml:"upper_band"`
		LowerBand          float64 `yaml:"lower_band" toml:"lower_band"`
		NarrowRangeWindows []int   `yaml:"narrow_range_windows" toml:"narrow_range_windows"`
		DivergenceLookback int     `yaml:"divergence_lookback" toml:"divergence_lookback"`
		SMAFilters         []int   `yaml:"sma_filters" toml:"sma_filters"`
		RSIWarmupBars      int     `yaml:"rsi_warmup_bars" toml:"rsi_warmup_bars"`
		LookbackDays       int     `yaml:"lookback_days" toml:"lookback_days"`
		SymbolLimit        int     `yaml:"symbol_limit" toml:"symbol_limit"`
	} `yaml:"scan" toml:"scan"`
	Schedule struct {
		IncrementalCron string `yaml:"incremental_cron" toml:"incremental_cron"`
	} `yaml:"schedule" toml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token" toml:"bot_token"`
		ChatID   string `yaml:"chat_id" toml:"chat_id"`
	} `yaml:"telegram" toml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"http" toml:"http"`
	Export struct {
		Dir    string `yaml:"dir" toml:"dir"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"export" toml:"export"`
	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
}

// Load reads config from a YAML or TOML file (picked by extension), loads
// .env when present, then applies environment variable overrides and
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// Environment variable overrides
func (c *Config) applyEnv() {
	setString(&c.Database.Driver, "SCANNER_DB_DRIVER")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Database.BookmarkMode, "SCANNER_BOOKMARK_MODE")
	setString(&c.Database.Postgres.Host, "POSTGRES_HOST")
	setInt(&c.Database.Postgres.Port, "POSTGRES_PORT")
	setString(&c.Database.Postgres.User, "POSTGRES_USER")
	setString(&c.Database.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&c.Database.Postgres.DBName, "POSTGRES_DB")
	setString(&c.Database.Postgres.SSLMode, "POSTGRES_SSLMODE")

	setString(&c.BarSource.Kind, "SCANNER_BAR_SOURCE")
	setString(&c.BarSource.BaseURL, "BAR_SOURCE_BASE_URL")
	setString(&c.BarSource.APIKey, "BAR_SOURCE_API_KEY")
	setString(&c.BarSource.Proxy, "PROXY_URL")
	if v := os.Getenv("BAR_SOURCE_SYMBOLS"); v != "" {
		c.BarSource.Symbols = splitList(v)
	}

	setString(&c.RSICache.Backend, "SCANNER_RSI_CACHE")
	setString(&c.RSICache.Redis.Host, "REDIS_HOST")
	setInt(&c.RSICache.Redis.Port, "REDIS_PORT")
	setString(&c.RSICache.Redis.Password, "REDIS_PASSWORD")

	setInt(&c.Scan.Workers, "SCANNER_WORKERS")
	setInt(&c.Scan.RSIPeriod, "SCANNER_RSI_PERIOD")
	setInt(&c.Scan.SymbolLimit, "SCANNER_SYMBOL_LIMIT")
	setString(&c.Schedule.IncrementalCron, "CRON_INCREMENTAL")

	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.HTTP.Addr, "SCANNER_HTTP_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
}

// Defaults
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/scanner.db"
	}
	if c.Database.BookmarkMode == "" {
		c.Database.BookmarkMode = "inferred"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.BarSource.Kind == "" {
		c.BarSource.Kind = "store"
	}
	if c.BarSource.RequestsPerSec == 0 {
		c.BarSource.RequestsPerSec = 5
	}
	if c.BarSource.MaxRetries == 0 {
		c.BarSource.MaxRetries = 3
	}
	if c.BarSource.TimeoutSec == 0 {
		c.BarSource.TimeoutSec = 30
	}
	if c.RSICache.Backend == "" {
		c.RSICache.Backend = "store"
	}
	if c.RSICache.Redis.Host == "" {
		c.RSICache.Redis.Host = "localhost"
	}
	if c.RSICache.Redis.Port == 0 {
		c.RSICache.Redis.Port = 6379
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 4
	}
	if c.Scan.RSIPeriod == 0 {
		c.Scan.RSIPeriod = 14
	}
	if c.Scan.UpperBand == 0 {
		c.Scan.UpperBand = 80
	}
	if c.Scan.LowerBand == 0 {
		c.Scan.LowerBand = 20
	}
	if len(c.Scan.NarrowRangeWindows) == 0 {
		c.Scan.NarrowRangeWindows = []int{4, 7, 13, 21}
	}
	if c.Scan.DivergenceLookback == 0 {
		c.Scan.DivergenceLookback = 3
	}
	if c.Scan.RSIWarmupBars == 0 {
		c.Scan.RSIWarmupBars = 250
	}
	if c.Schedule.IncrementalCron == "" {
		c.Schedule.IncrementalCron = "0 30 18 * * 1-5"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "data/export"
	}
	if c.Export.Format == "" {
		c.Export.Format = "parquet"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return fmt.Errorf("database.postgres.host and dbname are required")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.BookmarkMode != "inferred" && c.Database.BookmarkMode != "explicit" {
		return fmt.Errorf("database.bookmark_mode must be inferred or explicit, got %q", c.Database.BookmarkMode)
	}
	switch c.BarSource.Kind {
	case "store":
	case "http":
		if c.BarSource.BaseURL == "" {
			return fmt.Errorf("bar_source.base_url is required for the http source")
		}
	case "yahoo":
		if len(c.BarSource.Symbols) == 0 {
			return fmt.Errorf("bar_source.symbols is required for the yahoo source")
		}
	default:
		return fmt.Errorf("bar_source.kind must be store, http or yahoo, got %q", c.BarSource.Kind)
	}
	switch c.RSICache.Backend {
	case "store", "redis", "none":
	default:
		return fmt.Errorf("rsi_cache.backend must be store, redis or none, got %q", c.RSICache.Backend)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if c.Scan.RSIPeriod < 1 {
		return fmt.Errorf("scan.rsi_period must be positive")
	}
	if c.Scan.LowerBand >= c.Scan.UpperBand {
		return fmt.Errorf("scan.lower_band must be below scan.upper_band")
	}
	for _, w := range c.Scan.NarrowRangeWindows {
		if w < 2 {
			return fmt.Errorf("scan.narrow_range_windows entries must be at least 2, got %d", w)
		}
	}
	for _, p := range c.Scan.SMAFilters {
		if p < 1 {
			return fmt.Errorf("scan.sma_filters entries must be positive, got %d", p)
		}
	}
	if c.Scan.DivergenceLookback < 1 {
		return fmt.Errorf("scan.divergence_lookback must be at least 1")
	}
	if c.Scan.LookbackDays < 0 {
		return fmt.Errorf("scan.lookback_days must not be negative")
	}
	switch c.Export.Format {
	case "csv", "json", "parquet":
	default:
		return fmt.Errorf("export.format must be csv, json or parquet, got %q", c.Export.Format)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether summaries should be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
