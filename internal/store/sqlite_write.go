package store

import (
	"context"
	"fmt"
	"strings"

	"SignalScanner/internal/model"
)

// SaveBatch stages the batch and merges it into the event tables inside one
// transaction, so a symbol's write is either fully applied or absent.
func (s *SQLite) SaveBatch(ctx context.Context, batch model.EventBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapDBError("begin save batch", err)
	}
	exec := func(q string, args ...any) error {
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}
	if err := writeBatch(exec, sqliteDialect, batch, s.now()); err != nil {
		tx.Rollback()
		return WrapDBError("save batch "+batch.Symbol, err)
	}
	if err := tx.Commit(); err != nil {
		return WrapDBError("commit save batch "+batch.Symbol, err)
	}
	return nil
}

// PutBars loads bars into the bars table, replacing existing rows for the
// same (symbol, date). The engine itself never writes bars; this seeds the
// store for tests and local runs.
func (s *SQLite) PutBars(ctx context.Context, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapDBError("begin put bars", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bars (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`)
	if err != nil {
		tx.Rollback()
		return WrapDBError("prepare put bars", err)
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, model.FormatDay(b.Date),
			nullable(b.Open), nullable(b.High), nullable(b.Low), nullable(b.Close), nullable(b.Volume)); err != nil {
			tx.Rollback()
			return WrapDBError("put bar "+b.Symbol, err)
		}
	}
	return WrapDBError("commit put bars", tx.Commit())
}

func (s *SQLite) PutRSI(ctx context.Context, points []model.RSIPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapDBError("begin put rsi", err)
	}
	const chunk = 200
	for start := 0; start < len(points); start += chunk {
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		rows := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*4)
		for _, p := range points[start:end] {
			rows = append(rows, "(?, ?, ?, ?)")
			args = append(args, p.Symbol, model.FormatDay(p.Date), p.Period, p.Value)
		}
		q := fmt.Sprintf(`INSERT INTO rsi_cache (symbol, date, period, value) VALUES %s
			ON CONFLICT (symbol, date, period) DO UPDATE SET value = excluded.value`, strings.Join(rows, ", "))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			tx.Rollback()
			return WrapDBError("put rsi", err)
		}
	}
	return WrapDBError("commit put rsi", tx.Commit())
}

func (s *SQLite) RecordRun(ctx context.Context, run model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO scan_runs
		(run_id, mode, started_at, finished_at, attempted, succeeded, failed, degraded, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at, attempted = excluded.attempted,
			succeeded = excluded.succeeded, failed = excluded.failed,
			degraded = excluded.degraded, cancelled = excluded.cancelled`,
		run.RunID, string(run.Mode), run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.Attempted, run.Succeeded, run.Failed, run.Degraded, run.Cancelled,
	)
	return WrapDBError("record run", err)
}
