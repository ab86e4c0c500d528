package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/provider"
)

// Symbols lists every symbol with at least one stored bar.
func (s *SQLite) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, WrapDBError("list symbols", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, WrapDBError("scan symbol", err)
		}
		out = append(out, sym)
	}
	return out, WrapDBError("list symbols", rows.Err())
}

// FetchBars reads bars for symbols in [start, end]; nil symbols reads every
// symbol. A zero bound leaves that side open. Columns are scanned loosely so rows written by other tools with
// text or integer prices still coerce, and bad values become NaN.
func (s *SQLite) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error) {
	if symbols != nil && len(symbols) == 0 {
		return nil, nil
	}
	var where []string
	args := make([]any, 0, len(symbols)+2)
	if symbols != nil {
		where = append(where, "symbol IN ("+placeholders(len(symbols))+")")
		for _, sym := range symbols {
			args = append(args, sym)
		}
	}
	if !start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, model.FormatDay(start))
	}
	if !end.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, model.FormatDay(end))
	}
	q := "SELECT symbol, date, open, high, low, close, volume FROM bars"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date, symbol"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, WrapDBError("fetch bars", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var (
			sym                          string
			date                         any
			open, high, low, cls, volume any
		)
		if err := rows.Scan(&sym, &date, &open, &high, &low, &cls, &volume); err != nil {
			return nil, WrapDBError("scan bar", err)
		}
		d, ok := provider.Date(date)
		if !ok {
			s.log.Warn().Str("symbol", sym).Interface("date", date).Msg("skipping bar with unparseable date")
			continue
		}
		out = append(out, model.Bar{
			Symbol: sym,
			Date:   d,
			Open:   provider.Value(open),
			High:   provider.Value(high),
			Low:    provider.Value(low),
			Close:  provider.Value(cls),
			Volume: provider.Value(volume),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, WrapDBError("fetch bars", err)
	}
	return provider.Normalize(out), nil
}

// GetRSI returns cached RSI values in [from, to], keyed by day.
func (s *SQLite) GetRSI(ctx context.Context, symbol string, period int, from, to time.Time) (map[string]float64, error) {
	q := "SELECT date, value FROM rsi_cache WHERE symbol = ? AND period = ?"
	args := []any{symbol, period}
	if !from.IsZero() {
		q += " AND date >= ?"
		args = append(args, model.FormatDay(from))
	}
	if !to.IsZero() {
		q += " AND date <= ?"
		args = append(args, model.FormatDay(to))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, WrapDBError("get rsi", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			day string
			v   float64
		)
		if err := rows.Scan(&day, &v); err != nil {
			return nil, WrapDBError("scan rsi", err)
		}
		out[day] = v
	}
	return out, WrapDBError("get rsi", rows.Err())
}

// Bookmark returns the last processed date for the kind. In inferred mode
// that is the newest event row; in explicit mode it is the stored cursor.
func (s *SQLite) Bookmark(ctx context.Context, symbol string, kind model.DetectorKind, period int) (time.Time, bool, error) {
	var (
		q    string
		args []any
	)
	if s.opts.BookmarkMode == BookmarkExplicit {
		q = "SELECT last_processed_date FROM scan_bookmarks WHERE symbol = ? AND detector_kind = ? AND period = ?"
		args = []any{symbol, string(kind), bookmarkPeriod(kind, period)}
	} else {
		t, err := tableFor(kind)
		if err != nil {
			return time.Time{}, false, err
		}
		q = fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE symbol = ?", t.dateCol, t.name)
		args = []any{symbol}
		if kind == model.KindCross {
			q += " AND period = ?"
			args = append(args, period)
		}
	}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&last)
	if err == sql.ErrNoRows || (err == nil && !last.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, WrapDBError("read bookmark", err)
	}
	d, err := model.ParseDay(last.String)
	if err != nil {
		return time.Time{}, false, WrapDBError("parse bookmark", err)
	}
	return d, true, nil
}

// PriorFractals returns up to perPolarity fractals of each polarity dated
// strictly before before, oldest first.
func (s *SQLite) PriorFractals(ctx context.Context, symbol string, before time.Time, perPolarity int) ([]model.FractalEvent, error) {
	if perPolarity <= 0 {
		return nil, nil
	}
	cols := strings.Join(fractalTable.selectCols(), ", ")
	q := fmt.Sprintf(`SELECT %[1]s FROM (
			SELECT %[1]s FROM fractal_events WHERE symbol = ? AND fractal_date < ? AND polarity = ?
			ORDER BY fractal_date DESC LIMIT ?
		) UNION ALL SELECT %[1]s FROM (
			SELECT %[1]s FROM fractal_events WHERE symbol = ? AND fractal_date < ? AND polarity = ?
			ORDER BY fractal_date DESC LIMIT ?
		) ORDER BY fractal_date`, cols)
	day := model.FormatDay(before)
	events, err := queryRows(ctx, s.db, q, []any{
		symbol, day, string(model.PolarityHigh), perPolarity,
		symbol, day, string(model.PolarityLow), perPolarity,
	}, scanFractal)
	return events, WrapDBError("prior fractals", err)
}

func (s *SQLite) Fractals(ctx context.Context, q Query) ([]model.FractalEvent, error) {
	sqlText, args := listSQL(fractalTable, q)
	events, err := queryRows(ctx, s.db, sqlText, args, scanFractal)
	return events, WrapDBError("list fractals", err)
}

func (s *SQLite) NarrowRanges(ctx context.Context, q Query) ([]model.NarrowRangeEvent, error) {
	sqlText, args := listSQL(narrowRangeTable, q)
	events, err := queryRows(ctx, s.db, sqlText, args, scanNarrowRange)
	return events, WrapDBError("list narrow ranges", err)
}

func (s *SQLite) Crosses(ctx context.Context, q Query) ([]model.CrossEvent, error) {
	sqlText, args := listSQL(crossTable, q)
	events, err := queryRows(ctx, s.db, sqlText, args, scanCross)
	return events, WrapDBError("list crosses", err)
}

func (s *SQLite) Divergences(ctx context.Context, q Query) ([]model.DivergenceSignal, error) {
	sqlText, args := listSQL(divergenceTable, q)
	events, err := queryRows(ctx, s.db, sqlText, args, scanDivergence)
	return events, WrapDBError("list divergences", err)
}

// Runs returns the newest run log entries first.
func (s *SQLite) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT run_id, mode, started_at, finished_at, attempted, succeeded, failed, degraded, cancelled
		FROM scan_runs ORDER BY started_at DESC, run_id LIMIT ?`
	runs, err := queryRows(ctx, s.db, q, []any{limit}, func(r *sql.Rows) (model.RunSummary, error) {
		var (
			run             model.RunSummary
			mode            string
			started, finish int64
		)
		err := r.Scan(&run.RunID, &mode, &started, &finish, &run.Attempted, &run.Succeeded, &run.Failed, &run.Degraded, &run.Cancelled)
		run.Mode = model.ScanMode(mode)
		run.StartedAt = time.Unix(started, 0).UTC()
		run.FinishedAt = time.Unix(finish, 0).UTC()
		return run, err
	})
	return runs, WrapDBError("list runs", err)
}

// listSQL builds the reporting query for t. Latest keeps each symbol's
// newest date only.
func listSQL(t table, q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Symbol != "" {
		where = append(where, "t.symbol = ?")
		args = append(args, q.Symbol)
	}
	if !q.From.IsZero() {
		where = append(where, "t."+t.dateCol+" >= ?")
		args = append(args, model.FormatDay(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "t."+t.dateCol+" <= ?")
		args = append(args, model.FormatDay(q.To))
	}
	if q.Latest {
		where = append(where, fmt.Sprintf("t.%[1]s = (SELECT MAX(x.%[1]s) FROM %[2]s x WHERE x.symbol = t.symbol)", t.dateCol, t.name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT t.%s FROM %s t", strings.Join(t.selectCols(), ", t."), t.name)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY t.%s DESC, t.%s", t.dateCol, strings.Join(t.keys, ", t."))
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args
}

func queryRows[T any](ctx context.Context, db *sql.DB, q string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanFractal(r *sql.Rows) (model.FractalEvent, error) {
	var (
		e                model.FractalEvent
		day, pol         string
		hi, lo, rsi, cls sql.NullFloat64
	)
	if err := r.Scan(&e.Symbol, &day, &pol, &hi, &lo, &rsi, &cls); err != nil {
		return e, err
	}
	d, err := model.ParseDay(day)
	e.Date = d
	e.Polarity = model.Polarity(pol)
	e.RangeHigh, e.RangeLow, e.CenterClose = orNaN(hi), orNaN(lo), orNaN(cls)
	if rsi.Valid {
		e.CenterRSI = model.Float(rsi.Float64)
	}
	return e, err
}

func scanNarrowRange(r *sql.Rows) (model.NarrowRangeEvent, error) {
	var (
		e   model.NarrowRangeEvent
		day string
		rng sql.NullFloat64
	)
	if err := r.Scan(&e.Symbol, &day, &e.WindowSize, &rng, &e.Rank); err != nil {
		return e, err
	}
	d, err := model.ParseDay(day)
	e.Date = d
	e.RangeValue = orNaN(rng)
	return e, err
}

func scanCross(r *sql.Rows) (model.CrossEvent, error) {
	var (
		e                        model.CrossEvent
		day, typ                 string
		thr, prev, curr, refHigh sql.NullFloat64
	)
	if err := r.Scan(&e.Symbol, &day, &e.Period, &typ, &thr, &prev, &curr, &refHigh); err != nil {
		return e, err
	}
	d, err := model.ParseDay(day)
	e.Date = d
	e.Type = model.CrossType(typ)
	e.Threshold, e.PrevRSI, e.CurrRSI, e.ReferenceHigh = orNaN(thr), orNaN(prev), orNaN(curr), orNaN(refHigh)
	return e, err
}

func scanDivergence(r *sql.Rows) (model.DivergenceSignal, error) {
	var (
		e                                  model.DivergenceSignal
		signal, typ, current, compared     string
		curClose, curRSI, cmpClose, cmpRSI sql.NullFloat64
		buy, sell                          sql.NullFloat64
	)
	if err := r.Scan(&e.Symbol, &signal, &typ, &current, &curClose, &curRSI,
		&compared, &cmpClose, &cmpRSI, &buy, &sell, &e.Rank); err != nil {
		return e, err
	}
	e.Type = model.DivergenceType(typ)
	e.CurrentClose, e.CurrentRSI = orNaN(curClose), orNaN(curRSI)
	e.ComparedClose, e.ComparedRSI = orNaN(cmpClose), orNaN(cmpRSI)
	e.BuyAboveLevel, e.SellBelowLevel = orNaN(buy), orNaN(sell)

	var err error
	for _, p := range []struct {
		dst *time.Time
		src string
	}{{&e.SignalDate, signal}, {&e.CurrentFractalDate, current}, {&e.ComparedFractalDate, compared}} {
		if *p.dst, err = model.ParseDay(p.src); err != nil {
			return e, err
		}
	}
	return e, nil
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
