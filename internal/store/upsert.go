package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"SignalScanner/internal/model"
)

// table describes an event table: its columns in insert order and the
// natural key the upsert resolves conflicts on.
type table struct {
	name    string
	dateCol string
	cols    []string
	keys    []string
}

var (
	fractalTable = table{
		name:    "fractal_events",
		dateCol: "fractal_date",
		cols:    []string{"symbol", "fractal_date", "polarity", "range_high", "range_low", "center_rsi", "center_close", "updated_at"},
		keys:    []string{"symbol", "fractal_date", "polarity"},
	}
	narrowRangeTable = table{
		name:    "narrow_range_events",
		dateCol: "detection_date",
		cols:    []string{"symbol", "detection_date", "window_size", "range_value", "rank", "updated_at"},
		keys:    []string{"symbol", "detection_date", "window_size"},
	}
	crossTable = table{
		name:    "rsi_cross_events",
		dateCol: "cross_date",
		cols:    []string{"symbol", "cross_date", "period", "cross_type", "threshold", "prev_rsi", "curr_rsi", "reference_high", "updated_at"},
		keys:    []string{"symbol", "cross_date", "period", "cross_type"},
	}
	divergenceTable = table{
		name:    "divergence_signals",
		dateCol: "current_fractal_date",
		cols: []string{"symbol", "signal_date", "signal_type", "current_fractal_date", "current_close", "current_rsi",
			"compared_fractal_date", "compared_close", "compared_rsi", "buy_above_level", "sell_below_level", "rank", "updated_at"},
		keys: []string{"symbol", "current_fractal_date", "signal_type", "compared_fractal_date"},
	}
)

// tableFor maps a detector kind to its event table.
func tableFor(kind model.DetectorKind) (table, error) {
	switch kind {
	case model.KindFractal:
		return fractalTable, nil
	case model.KindNarrowRange:
		return narrowRangeTable, nil
	case model.KindCross:
		return crossTable, nil
	case model.KindDivergence:
		return divergenceTable, nil
	}
	return table{}, NewValidationError("detector_kind", "unknown detector kind", string(kind))
}

func (t table) stage() string { return "stage_" + t.name }

// selectCols lists the columns reads return, without bookkeeping.
func (t table) selectCols() []string {
	return t.cols[:len(t.cols)-1]
}

// mergeSQL moves every staged row into the durable table in one statement.
// "WHERE true" keeps SQLite's parser from reading ON CONFLICT as a join
// constraint; Postgres accepts it unchanged.
func (t table) mergeSQL() string {
	var set []string
	for _, c := range t.cols {
		if contains(t.keys, c) {
			continue
		}
		set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	cols := strings.Join(t.cols, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) DO UPDATE SET %s",
		t.name, cols, cols, t.stage(), strings.Join(t.keys, ", "), strings.Join(set, ", "))
}

// insertSQL is a multi-row insert into target with n rows of placeholders.
func (t table) insertSQL(target string, n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(t.cols)), ", ") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", target, strings.Join(t.cols, ", "), strings.Join(rows, ", "))
}

// dialect carries what differs between backends on the write path.
type dialect struct {
	name  string
	stage func(t table) []string
	date  func(time.Time) any
}

var sqliteDialect = dialect{
	name: "sqlite",
	stage: func(t table) []string {
		return []string{
			fmt.Sprintf("CREATE TEMP TABLE IF NOT EXISTS %s AS SELECT * FROM %s WHERE 0", t.stage(), t.name),
			"DELETE FROM " + t.stage(),
		}
	},
	date: func(d time.Time) any { return model.FormatDay(d) },
}

var postgresDialect = dialect{
	name: "postgres",
	stage: func(t table) []string {
		return []string{
			fmt.Sprintf("CREATE TEMP TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", t.stage(), t.name),
			"TRUNCATE " + t.stage(),
		}
	},
	date: func(d time.Time) any { return model.Day(d) },
}

// execFunc runs one statement inside the caller's transaction.
type execFunc func(query string, args ...any) error

const stageChunk = 100

// writeBatch applies one symbol's batch through exec. The caller owns the
// transaction, so either every statement lands or none does.
func writeBatch(exec execFunc, d dialect, b model.EventBatch, now time.Time) error {
	b.Dedupe()
	ts := now.Unix()

	if b.RegenerateDivergences {
		q := "DELETE FROM divergence_signals WHERE symbol = ?"
		args := []any{b.Symbol}
		if !b.DivergenceFrom.IsZero() {
			q += " AND current_fractal_date >= ?"
			args = append(args, d.date(b.DivergenceFrom))
		}
		if err := exec(q, args...); err != nil {
			return fmt.Errorf("clear divergences: %w", err)
		}
	}

	parts := []struct {
		t    table
		rows [][]any
	}{
		{fractalTable, fractalRows(d, b.Fractals, ts)},
		{narrowRangeTable, narrowRangeRows(d, b.NarrowRanges, ts)},
		{crossTable, crossRows(d, b.Crosses, ts)},
		{divergenceTable, divergenceRows(d, b.Divergences, ts)},
	}
	for _, p := range parts {
		if err := stageAndMerge(exec, d, p.t, p.rows); err != nil {
			return fmt.Errorf("merge %s: %w", p.t.name, err)
		}
	}

	for _, kind := range model.BookmarkKinds {
		last, ok := b.Bookmarks[kind]
		if !ok || last.IsZero() {
			continue
		}
		if err := exec(bookmarkUpsertSQL, b.Symbol, string(kind), bookmarkPeriod(kind, b.Period), d.date(last)); err != nil {
			return fmt.Errorf("advance bookmark %s: %w", kind, err)
		}
	}
	return nil
}

const bookmarkUpsertSQL = `INSERT INTO scan_bookmarks (symbol, detector_kind, period, last_processed_date)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (symbol, detector_kind, period) DO UPDATE SET last_processed_date =
		CASE WHEN excluded.last_processed_date > scan_bookmarks.last_processed_date
		THEN excluded.last_processed_date ELSE scan_bookmarks.last_processed_date END`

func stageAndMerge(exec execFunc, d dialect, t table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	for _, s := range d.stage(t) {
		if err := exec(s); err != nil {
			return err
		}
	}
	for start := 0; start < len(rows); start += stageChunk {
		end := start + stageChunk
		if end > len(rows) {
			end = len(rows)
		}
		args := make([]any, 0, (end-start)*len(t.cols))
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}
		if err := exec(t.insertSQL(t.stage(), end-start), args...); err != nil {
			return err
		}
	}
	return exec(t.mergeSQL())
}

func fractalRows(d dialect, events []model.FractalEvent, ts int64) [][]any {
	rows := make([][]any, len(events))
	for i, e := range events {
		var rsi any
		if e.CenterRSI != nil {
			rsi = *e.CenterRSI
		}
		rows[i] = []any{e.Symbol, d.date(e.Date), string(e.Polarity), nullable(e.RangeHigh), nullable(e.RangeLow), rsi, nullable(e.CenterClose), ts}
	}
	return rows
}

func narrowRangeRows(d dialect, events []model.NarrowRangeEvent, ts int64) [][]any {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.Symbol, d.date(e.Date), e.WindowSize, nullable(e.RangeValue), e.Rank, ts}
	}
	return rows
}

func crossRows(d dialect, events []model.CrossEvent, ts int64) [][]any {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.Symbol, d.date(e.Date), e.Period, string(e.Type), e.Threshold,
			nullable(e.PrevRSI), nullable(e.CurrRSI), nullable(e.ReferenceHigh), ts}
	}
	return rows
}

func divergenceRows(d dialect, events []model.DivergenceSignal, ts int64) [][]any {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.Symbol, d.date(e.SignalDate), string(e.Type), d.date(e.CurrentFractalDate),
			nullable(e.CurrentClose), nullable(e.CurrentRSI), d.date(e.ComparedFractalDate),
			nullable(e.ComparedClose), nullable(e.ComparedRSI), nullable(e.BuyAboveLevel), nullable(e.SellBelowLevel),
			e.Rank, ts}
	}
	return rows
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// deref maps SQL NULL back to NaN.
func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
