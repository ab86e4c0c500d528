package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"SignalScanner/internal/model"
)

// PostgresOptions are the connection settings for the Postgres backend.
type PostgresOptions struct {
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the options as a libpq keyword/value connection string.
func (o PostgresOptions) DSN() string {
	ssl := o.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		o.Host, port, o.DBName, o.User, o.Password, ssl)
}

type barRow struct {
	Symbol string    `gorm:"primaryKey;size:32"`
	Date   time.Time `gorm:"primaryKey;type:date;index"`
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *float64
}

func (barRow) TableName() string { return "bars" }

type rsiRow struct {
	Symbol string    `gorm:"primaryKey;size:32"`
	Date   time.Time `gorm:"primaryKey;type:date"`
	Period int       `gorm:"primaryKey"`
	Value  float64   `gorm:"not null"`
}

func (rsiRow) TableName() string { return "rsi_cache" }

type fractalRow struct {
	Symbol      string    `gorm:"primaryKey;size:32"`
	FractalDate time.Time `gorm:"primaryKey;type:date;index"`
	Polarity    string    `gorm:"primaryKey;size:8"`
	RangeHigh   *float64
	RangeLow    *float64
	CenterRSI   *float64 `gorm:"column:center_rsi"`
	CenterClose *float64
	UpdatedAt   int64 `gorm:"not null"`
}

func (fractalRow) TableName() string { return "fractal_events" }

type narrowRangeRow struct {
	Symbol        string    `gorm:"primaryKey;size:32"`
	DetectionDate time.Time `gorm:"primaryKey;type:date;index"`
	WindowSize    int       `gorm:"primaryKey"`
	RangeValue    *float64
	Rank          int   `gorm:"not null"`
	UpdatedAt     int64 `gorm:"not null"`
}

func (narrowRangeRow) TableName() string { return "narrow_range_events" }

type crossRow struct {
	Symbol        string    `gorm:"primaryKey;size:32"`
	CrossDate     time.Time `gorm:"primaryKey;type:date;index"`
	Period        int       `gorm:"primaryKey"`
	CrossType     string    `gorm:"primaryKey;size:16"`
	Threshold     *float64
	PrevRSI       *float64 `gorm:"column:prev_rsi"`
	CurrRSI       *float64 `gorm:"column:curr_rsi"`
	ReferenceHigh *float64
	UpdatedAt     int64 `gorm:"not null"`
}

func (crossRow) TableName() string { return "rsi_cross_events" }

type divergenceRow struct {
	Symbol              string    `gorm:"primaryKey;size:32"`
	SignalDate          time.Time `gorm:"type:date;not null"`
	SignalType          string    `gorm:"primaryKey;size:16"`
	CurrentFractalDate  time.Time `gorm:"primaryKey;type:date;index"`
	CurrentClose        *float64
	CurrentRSI          *float64  `gorm:"column:current_rsi"`
	ComparedFractalDate time.Time `gorm:"primaryKey;type:date"`
	ComparedClose       *float64
	ComparedRSI         *float64 `gorm:"column:compared_rsi"`
	BuyAboveLevel       *float64
	SellBelowLevel      *float64
	Rank                int   `gorm:"not null"`
	UpdatedAt           int64 `gorm:"not null"`
}

func (divergenceRow) TableName() string { return "divergence_signals" }

type bookmarkRow struct {
	Symbol            string    `gorm:"primaryKey;size:32"`
	DetectorKind      string    `gorm:"primaryKey;size:16"`
	Period            int       `gorm:"primaryKey"`
	LastProcessedDate time.Time `gorm:"type:date;not null"`
}

func (bookmarkRow) TableName() string { return "scan_bookmarks" }

type runRow struct {
	RunID      string    `gorm:"primaryKey;size:36"`
	Mode       string    `gorm:"size:16;not null"`
	StartedAt  time.Time `gorm:"index;not null"`
	FinishedAt time.Time `gorm:"not null"`
	Attempted  int
	Succeeded  int
	Failed     int
	Degraded   int
	Cancelled  bool
}

func (runRow) TableName() string { return "scan_runs" }

// Postgres is the multi-process backend. Event writes share the staged
// merge path with SQLite; everything else goes through GORM.
type Postgres struct {
	db   *gorm.DB
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// NewPostgres connects, sizes the pool and migrates the schema.
func NewPostgres(pg PostgresOptions, opts Options, log zerolog.Logger) (*Postgres, error) {
	opts = opts.withDefaults()
	if err := checkBookmarkMode(opts.BookmarkMode); err != nil {
		return nil, err
	}
	if pg.Host == "" || pg.DBName == "" {
		return nil, NewValidationError("postgres", "host and dbname are required", nil)
	}

	db, err := gorm.Open(postgres.Open(pg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, WrapDBError("connect postgres", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, WrapDBError("connect postgres", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(&barRow{}, &rsiRow{}, &fractalRow{}, &narrowRangeRow{},
		&crossRow{}, &divergenceRow{}, &bookmarkRow{}, &runRow{}); err != nil {
		sqlDB.Close()
		return nil, WrapDBError("migrate postgres", err)
	}

	p := &Postgres{db: db, opts: opts, log: log.With().Str("component", "postgres").Logger(), now: time.Now}
	p.log.Info().Str("host", pg.Host).Str("db", pg.DBName).Str("bookmark_mode", opts.BookmarkMode).Msg("postgres store opened")
	return p, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	p.log.Info().Msg("closing postgres store")
	return sqlDB.Close()
}

func (p *Postgres) SaveBatch(ctx context.Context, batch model.EventBatch) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exec := func(q string, args ...any) error { return tx.Exec(q, args...).Error }
		return writeBatch(exec, postgresDialect, batch, p.now())
	})
	return WrapDBError("save batch "+batch.Symbol, err)
}

func (p *Postgres) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := p.db.WithContext(ctx).Model(&barRow{}).Distinct("symbol").Order("symbol").Pluck("symbol", &out).Error
	return out, WrapDBError("list symbols", err)
}

func (p *Postgres) FetchBars(ctx context.Context, symbols []string, start, end time.Time) ([]model.Bar, error) {
	if symbols != nil && len(symbols) == 0 {
		return nil, nil
	}
	q := p.db.WithContext(ctx)
	if symbols != nil {
		q = q.Where("symbol = ANY(?)", pq.Array(symbols))
	}
	if !start.IsZero() {
		q = q.Where("date >= ?", model.Day(start))
	}
	if !end.IsZero() {
		q = q.Where("date <= ?", model.Day(end))
	}
	var rows []barRow
	if err := q.Order("date, symbol").Find(&rows).Error; err != nil {
		return nil, WrapDBError("fetch bars", err)
	}
	out := make([]model.Bar, len(rows))
	for i, r := range rows {
		out[i] = model.Bar{
			Symbol: r.Symbol, Date: model.Day(r.Date),
			Open: deref(r.Open), High: deref(r.High), Low: deref(r.Low), Close: deref(r.Close), Volume: deref(r.Volume),
		}
	}
	return out, nil
}

// PutBars upserts bars by (symbol, date).
func (p *Postgres) PutBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Symbol: b.Symbol, Date: model.Day(b.Date),
			Open: model.Float(b.Open), High: model.Float(b.High), Low: model.Float(b.Low),
			Close: model.Float(b.Close), Volume: model.Float(b.Volume),
		}
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		UpdateAll: true,
	}).CreateInBatches(rows, 500).Error
	return WrapDBError("put bars", err)
}

func (p *Postgres) GetRSI(ctx context.Context, symbol string, period int, from, to time.Time) (map[string]float64, error) {
	q := p.db.WithContext(ctx).Where("symbol = ? AND period = ?", symbol, period)
	if !from.IsZero() {
		q = q.Where("date >= ?", model.Day(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", model.Day(to))
	}
	var rows []rsiRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, WrapDBError("get rsi", err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[model.FormatDay(r.Date)] = r.Value
	}
	return out, nil
}

func (p *Postgres) PutRSI(ctx context.Context, points []model.RSIPoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([]rsiRow, len(points))
	for i, pt := range points {
		rows[i] = rsiRow{Symbol: pt.Symbol, Date: model.Day(pt.Date), Period: pt.Period, Value: pt.Value}
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).CreateInBatches(rows, 500).Error
	return WrapDBError("put rsi", err)
}

func (p *Postgres) Bookmark(ctx context.Context, symbol string, kind model.DetectorKind, period int) (time.Time, bool, error) {
	var row *sql.Row
	db := p.db.WithContext(ctx)
	if p.opts.BookmarkMode == BookmarkExplicit {
		row = db.Raw(`SELECT last_processed_date::text FROM scan_bookmarks
			WHERE symbol = ? AND detector_kind = ? AND period = ?`,
			symbol, string(kind), bookmarkPeriod(kind, period)).Row()
	} else {
		t, err := tableFor(kind)
		if err != nil {
			return time.Time{}, false, err
		}
		q := fmt.Sprintf("SELECT MAX(%s)::text FROM %s WHERE symbol = ?", t.dateCol, t.name)
		args := []any{symbol}
		if kind == model.KindCross {
			q += " AND period = ?"
			args = append(args, period)
		}
		row = db.Raw(q, args...).Row()
	}

	var last sql.NullString
	err := row.Scan(&last)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !last.Valid) {
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

func (p *Postgres) PriorFractals(ctx context.Context, symbol string, before time.Time, perPolarity int) ([]model.FractalEvent, error) {
	if perPolarity <= 0 {
		return nil, nil
	}
	var all []fractalRow
	for _, pol := range []model.Polarity{model.PolarityHigh, model.PolarityLow} {
		var rows []fractalRow
		err := p.db.WithContext(ctx).
			Where("symbol = ? AND polarity = ? AND fractal_date < ?", symbol, string(pol), model.Day(before)).
			Order("fractal_date DESC").Limit(perPolarity).Find(&rows).Error
		if err != nil {
			return nil, WrapDBError("prior fractals", err)
		}
		all = append(all, rows...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].FractalDate.Before(all[j].FractalDate) })
	return convert(all, fractalFromRow), nil
}

func (p *Postgres) Fractals(ctx context.Context, q Query) ([]model.FractalEvent, error) {
	var rows []fractalRow
	err := p.listQuery(ctx, fractalTable, q).Find(&rows).Error
	return convert(rows, fractalFromRow), WrapDBError("list fractals", err)
}

func (p *Postgres) NarrowRanges(ctx context.Context, q Query) ([]model.NarrowRangeEvent, error) {
	var rows []narrowRangeRow
	err := p.listQuery(ctx, narrowRangeTable, q).Find(&rows).Error
	return convert(rows, func(r narrowRangeRow) model.NarrowRangeEvent {
		return model.NarrowRangeEvent{
			Symbol: r.Symbol, Date: model.Day(r.DetectionDate), WindowSize: r.WindowSize,
			RangeValue: deref(r.RangeValue), Rank: r.Rank,
		}
	}), WrapDBError("list narrow ranges", err)
}

func (p *Postgres) Crosses(ctx context.Context, q Query) ([]model.CrossEvent, error) {
	var rows []crossRow
	err := p.listQuery(ctx, crossTable, q).Find(&rows).Error
	return convert(rows, func(r crossRow) model.CrossEvent {
		return model.CrossEvent{
			Symbol: r.Symbol, Date: model.Day(r.CrossDate), Period: r.Period, Type: model.CrossType(r.CrossType),
			Threshold: deref(r.Threshold), PrevRSI: deref(r.PrevRSI), CurrRSI: deref(r.CurrRSI),
			ReferenceHigh: deref(r.ReferenceHigh),
		}
	}), WrapDBError("list crosses", err)
}

func (p *Postgres) Divergences(ctx context.Context, q Query) ([]model.DivergenceSignal, error) {
	var rows []divergenceRow
	err := p.listQuery(ctx, divergenceTable, q).Find(&rows).Error
	return convert(rows, func(r divergenceRow) model.DivergenceSignal {
		return model.DivergenceSignal{
			Symbol: r.Symbol, SignalDate: model.Day(r.SignalDate), Type: model.DivergenceType(r.SignalType),
			CurrentFractalDate: model.Day(r.CurrentFractalDate), CurrentClose: deref(r.CurrentClose),
			CurrentRSI: deref(r.CurrentRSI), ComparedFractalDate: model.Day(r.ComparedFractalDate),
			ComparedClose: deref(r.ComparedClose), ComparedRSI: deref(r.ComparedRSI),
			BuyAboveLevel: deref(r.BuyAboveLevel), SellBelowLevel: deref(r.SellBelowLevel), Rank: r.Rank,
		}
	}), WrapDBError("list divergences", err)
}

func (p *Postgres) RecordRun(ctx context.Context, run model.RunSummary) error {
	row := runRow{
		RunID: run.RunID, Mode: string(run.Mode), StartedAt: run.StartedAt, FinishedAt: run.FinishedAt,
		Attempted: run.Attempted, Succeeded: run.Succeeded, Failed: run.Failed, Degraded: run.Degraded,
		Cancelled: run.Cancelled,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return WrapDBError("record run", err)
}

func (p *Postgres) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := p.db.WithContext(ctx).Order("started_at DESC, run_id").Limit(limit).Find(&rows).Error
	return convert(rows, func(r runRow) model.RunSummary {
		return model.RunSummary{
			RunID: r.RunID, Mode: model.ScanMode(r.Mode), StartedAt: r.StartedAt.UTC(), FinishedAt: r.FinishedAt.UTC(),
			Attempted: r.Attempted, Succeeded: r.Succeeded, Failed: r.Failed, Degraded: r.Degraded, Cancelled: r.Cancelled,
		}
	}), WrapDBError("list runs", err)
}

func (p *Postgres) listQuery(ctx context.Context, t table, q Query) *gorm.DB {
	db := p.db.WithContext(ctx).Table(t.name)
	if q.Symbol != "" {
		db = db.Where("symbol = ?", q.Symbol)
	}
	if !q.From.IsZero() {
		db = db.Where(t.dateCol+" >= ?", model.Day(q.From))
	}
	if !q.To.IsZero() {
		db = db.Where(t.dateCol+" <= ?", model.Day(q.To))
	}
	if q.Latest {
		db = db.Where(fmt.Sprintf("%[1]s = (SELECT MAX(x.%[1]s) FROM %[2]s x WHERE x.symbol = %[2]s.symbol)", t.dateCol, t.name))
	}
	db = db.Order(t.dateCol + " DESC")
	for _, k := range t.keys {
		db = db.Order(k)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	return db
}

func fractalFromRow(r fractalRow) model.FractalEvent {
	return model.FractalEvent{
		Symbol: r.Symbol, Date: model.Day(r.FractalDate), Polarity: model.Polarity(r.Polarity),
		RangeHigh: deref(r.RangeHigh), RangeLow: deref(r.RangeLow), CenterRSI: r.CenterRSI,
		CenterClose: deref(r.CenterClose),
	}
}

func convert[R, T any](rows []R, fn func(R) T) []T {
	if len(rows) == 0 {
		return nil
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}
