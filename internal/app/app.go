// Package app builds the scanner's components from configuration. The
// providers are assembled by wire in cmd/scanner.
package app

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/config"
	"SignalScanner/internal/detector"
	"SignalScanner/internal/logx"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/provider"
	"SignalScanner/internal/scan"
	"SignalScanner/internal/store"
)

// ConfigPath is the config file location.
type ConfigPath string

// App holds the process-wide components.
type App struct {
	Config       *config.Config
	Log          zerolog.Logger
	Store        store.Store
	Orchestrator *scan.Orchestrator
	// Notifier is nil when Telegram is not configured.
	Notifier *notifier.TelegramNotifier
}

// ProvideConfig loads and validates the config.
func ProvideConfig(path ConfigPath) (*config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ProvideLogger builds the root logger.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logx.New(cfg.Log.Level, cfg.Log.Format)
}

// ProvideStore opens the configured database.
func ProvideStore(cfg *config.Config, log zerolog.Logger) (store.Store, func(), error) {
	opts := store.Options{BookmarkMode: cfg.Database.BookmarkMode}

	var (
		st  store.Store
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		pg := cfg.Database.Postgres
		st, err = store.NewPostgres(store.PostgresOptions{
			Host:     pg.Host,
			Port:     pg.Port,
			DBName:   pg.DBName,
			User:     pg.User,
			Password: pg.Password,
			SSLMode:  pg.SSLMode,
		}, opts, log)
	default:
		st, err = store.NewSQLite(cfg.Database.SQLitePath, opts, log)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}
	return st, cleanup, nil
}

// ProvideBarProvider picks where bars are read from.
func ProvideBarProvider(cfg *config.Config, st store.Store, log zerolog.Logger) provider.BarProvider {
	if remote, ok := RemoteBarSource(cfg, log); ok {
		return remote
	}
	return st
}

// RemoteBarSource builds the upstream source named by bar_source.kind. ok is
// false when bars come from the store itself.
func RemoteBarSource(cfg *config.Config, log zerolog.Logger) (provider.BarProvider, bool) {
	src := cfg.BarSource
	timeout := time.Duration(src.TimeoutSec) * time.Second
	rps := int(math.Ceil(src.RequestsPerSec))
	switch src.Kind {
	case "http":
		return provider.NewHTTPProvider(provider.HTTPOptions{
			BaseURL:        src.BaseURL,
			APIKey:         src.APIKey,
			Timeout:        timeout,
			RequestsPerSec: rps,
			MaxRetries:     src.MaxRetries,
		}, log), true
	case "yahoo":
		return collector.NewYahooFetcher(collector.YahooOptions{
			Symbols:        src.Symbols,
			BaseURL:        src.BaseURL,
			Proxy:          src.Proxy,
			Timeout:        timeout,
			RequestsPerSec: rps,
			MaxRetries:     src.MaxRetries,
		}, log), true
	}
	return nil, false
}

// ProvideRSICache picks the RSI cache backend.
func ProvideRSICache(cfg *config.Config, st store.Store, log zerolog.Logger) (store.RSICache, func(), error) {
	switch cfg.RSICache.Backend {
	case "redis":
		r := cfg.RSICache.Redis
		rc, err := cache.NewRedisRSI(cache.RedisOptions{
			Addr:     r.Host + ":" + strconv.Itoa(r.Port),
			Password: r.Password,
			DB:       r.DB,
			TTL:      time.Duration(r.TTLHours) * time.Hour,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	case "none":
		return store.NewNoopCache(), func() {}, nil
	default:
		return st, func() {}, nil
	}
}

// ProvideDetectorConfig maps the scan section to detector parameters.
func ProvideDetectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		RSIPeriod:          cfg.Scan.RSIPeriod,
		Bands:              detector.Bands{Upper: cfg.Scan.UpperBand, Lower: cfg.Scan.LowerBand},
		NarrowRangeWindows: cfg.Scan.NarrowRangeWindows,
		DivergenceLookback: cfg.Scan.DivergenceLookback,
		SMAFilters:         cfg.Scan.SMAFilters,
	}
}

// ProvideOrchestrator starts the worker pool.
func ProvideOrchestrator(cfg *config.Config, bars provider.BarProvider, st store.Store, rsi store.RSICache, det detector.Config, log zerolog.Logger) (*scan.Orchestrator, func()) {
	o := scan.New(scan.Deps{
		Bars:      bars,
		Sink:      st,
		Bookmarks: st,
		Cache:     rsi,
		Runs:      st,
	}, scan.Options{
		Workers:   cfg.Scan.Workers,
		Detector:  det,
		RSIWarmup: cfg.Scan.RSIWarmupBars,
	}, log)
	return o, func() { o.Close() }
}

// ProvideNotifier connects to Telegram when it is configured.
func ProvideNotifier(cfg *config.Config, log zerolog.Logger) (*notifier.TelegramNotifier, error) {
	if !cfg.TelegramEnabled() {
		return nil, nil
	}
	return notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)
}
