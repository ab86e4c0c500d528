package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLite persists bars, events, bookmarks, the RSI cache and the run log to
// a single SQLite file.
type SQLite struct {
	db   *sql.DB
	mu   sync.Mutex // serializes writers
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, opts Options, log zerolog.Logger) (*SQLite, error) {
	opts = opts.withDefaults()
	if err := checkBookmarkMode(opts.BookmarkMode); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, WrapDBError("open sqlite", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, WrapDBError("set WAL mode", err)
	}

	s := &SQLite{db: db, opts: opts, log: log.With().Str("component", "sqlite").Logger(), now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, WrapDBError("migrate", err)
	}

	s.log.Info().Str("path", dbPath).Str("bookmark_mode", opts.BookmarkMode).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL,
			volume REAL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_date ON bars(date)`,

		`CREATE TABLE IF NOT EXISTS rsi_cache (
			symbol TEXT    NOT NULL,
			date   TEXT    NOT NULL,
			period INTEGER NOT NULL,
			value  REAL    NOT NULL,
			PRIMARY KEY (symbol, date, period)
		)`,

		`CREATE TABLE IF NOT EXISTS fractal_events (
			symbol       TEXT NOT NULL,
			fractal_date TEXT NOT NULL,
			polarity     TEXT NOT NULL,
			range_high   REAL,
			range_low    REAL,
			center_rsi   REAL,
			center_close REAL,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (symbol, fractal_date, polarity)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fractal_date ON fractal_events(fractal_date)`,

		`CREATE TABLE IF NOT EXISTS narrow_range_events (
			symbol         TEXT    NOT NULL,
			detection_date TEXT    NOT NULL,
			window_size    INTEGER NOT NULL,
			range_value    REAL,
			rank           INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, detection_date, window_size)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nr_date ON narrow_range_events(detection_date)`,

		`CREATE TABLE IF NOT EXISTS rsi_cross_events (
			symbol         TEXT    NOT NULL,
			cross_date     TEXT    NOT NULL,
			period         INTEGER NOT NULL,
			cross_type     TEXT    NOT NULL,
			threshold      REAL,
			prev_rsi       REAL,
			curr_rsi       REAL,
			reference_high REAL,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, cross_date, period, cross_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cross_date ON rsi_cross_events(cross_date)`,

		`CREATE TABLE IF NOT EXISTS divergence_signals (
			symbol                TEXT NOT NULL,
			signal_date           TEXT NOT NULL,
			signal_type           TEXT NOT NULL,
			current_fractal_date  TEXT NOT NULL,
			current_close         REAL,
			current_rsi           REAL,
			compared_fractal_date TEXT NOT NULL,
			compared_close        REAL,
			compared_rsi          REAL,
			buy_above_level       REAL,
			sell_below_level      REAL,
			rank                  INTEGER NOT NULL,
			updated_at            INTEGER NOT NULL,
			PRIMARY KEY (symbol, current_fractal_date, signal_type, compared_fractal_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_div_date ON divergence_signals(current_fractal_date)`,

		`CREATE TABLE IF NOT EXISTS scan_bookmarks (
			symbol              TEXT    NOT NULL,
			detector_kind       TEXT    NOT NULL,
			period              INTEGER NOT NULL,
			last_processed_date TEXT    NOT NULL,
			PRIMARY KEY (symbol, detector_kind, period)
		)`,

		`CREATE TABLE IF NOT EXISTS scan_runs (
			run_id      TEXT PRIMARY KEY,
			mode        TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			attempted   INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			degraded    INTEGER NOT NULL,
			cancelled   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON scan_runs(started_at)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
