package store

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"MacroTracker/internal/series"
)

// SQLite persists the series to a local SQLite database, for offline
// runs and tests.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, log zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db, log: log.With().Str("store", "sqlite").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_series (
			date            TEXT PRIMARY KEY,
			index_rate      REAL,
			fx_rate         REAL,
			benchmark_price REAL
		)`,
		`CREATE TABLE IF NOT EXISTS monthly_series (
			month_start    TEXT PRIMARY KEY,
			index_rate_eom REAL,
			fx_rate_eom    REAL
		)`,
		`CREATE TABLE IF NOT EXISTS projections (
			report_month TEXT PRIMARY KEY,
			h0 REAL, h1 REAL, h2 REAL, h3 REAL, h4 REAL, h5 REAL, h6 REAL,
			h12m REAL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			mode            TEXT,
			daily_rows      INTEGER,
			monthly_rows    INTEGER,
			projection_rows INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLite) LastDailyDate() (series.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(date) FROM daily_series`).Scan(&last); err != nil {
		return series.Cursor{}, fmt.Errorf("read daily cursor: %w", err)
	}
	if !last.Valid {
		return series.Cursor{Series: "daily"}, nil
	}
	d, err := series.ParseDate(last.String)
	if err != nil {
		return series.Cursor{}, fmt.Errorf("daily cursor: %w", err)
	}
	return series.Cursor{Series: "daily", Last: d, Valid: true}, nil
}

func (s *SQLite) ReadDaily() ([]series.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT date, index_rate, fx_rate, benchmark_price FROM daily_series ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("read daily series: %w", err)
	}
	defer rows.Close()

	var out []series.DailyRecord
	for rows.Next() {
		var (
			raw             string
			index, fx, bmk  sql.NullFloat64
		)
		if err := rows.Scan(&raw, &index, &fx, &bmk); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}
		d, err := series.ParseDate(raw)
		if err != nil {
			s.log.Warn().Str("row", raw).Err(err).Msg("skipping malformed daily row")
			continue
		}
		out = append(out, series.DailyRecord{
			Date:           d,
			IndexRate:      fromNull(index),
			FXRate:         fromNull(fx),
			BenchmarkPrice: fromNull(bmk),
		})
	}
	return out, rows.Err()
}

func (s *SQLite) KnownReportPeriods() (map[series.ReportPeriod]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT report_month FROM projections`)
	if err != nil {
		return nil, fmt.Errorf("read known report periods: %w", err)
	}
	defer rows.Close()

	known := make(map[series.ReportPeriod]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan report month: %w", err)
		}
		d, err := series.ParseDate(raw)
		if err != nil {
			s.log.Warn().Str("row", raw).Err(err).Msg("skipping malformed report month")
			continue
		}
		known[d.Period()] = true
	}
	return known, rows.Err()
}

func (s *SQLite) OverwriteDaily(recs []series.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin overwrite: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_series`); err != nil {
		return fmt.Errorf("clear daily series: %w", err)
	}
	if err := insertDaily(tx, recs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) AppendDaily(recs []series.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := insertDaily(tx, recs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDaily(tx *sql.Tx, recs []series.DailyRecord) error {
	stmt, err := tx.Prepare(`INSERT INTO daily_series
		(date, index_rate, fx_rate, benchmark_price)
		VALUES (?,?,?,?)
		ON CONFLICT(date) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare daily insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(rec.Date.String(), toNull(rec.IndexRate), toNull(rec.FXRate), toNull(rec.BenchmarkPrice)); err != nil {
			return fmt.Errorf("insert daily %s: %w", rec.Date, err)
		}
	}
	return nil
}

func (s *SQLite) ReplaceMonthly(recs []series.MonthlyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin monthly replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM monthly_series`); err != nil {
		return fmt.Errorf("clear monthly series: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO monthly_series
		(month_start, index_rate_eom, fx_rate_eom) VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare monthly insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(rec.MonthStart.String(), toNull(rec.IndexRateEOM), toNull(rec.FXRateEOM)); err != nil {
			return fmt.Errorf("insert monthly %s: %w", rec.MonthStart, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) UpsertProjections(recs map[series.ReportPeriod]series.ProjectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	periods := make([]series.ReportPeriod, 0, len(recs))
	for p := range recs {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin projection upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO projections
		(report_month, h0, h1, h2, h3, h4, h5, h6, h12m)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(report_month) DO UPDATE SET
			h0=excluded.h0, h1=excluded.h1, h2=excluded.h2, h3=excluded.h3,
			h4=excluded.h4, h5=excluded.h5, h6=excluded.h6, h12m=excluded.h12m`)
	if err != nil {
		return fmt.Errorf("prepare projection upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range periods {
		rec := recs[p]
		h := rec.Horizons
		if _, err := stmt.Exec(rec.ReportMonth.String(), h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7]); err != nil {
			return fmt.Errorf("upsert projection %s: %w", p, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) LogRun(entry RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs
		(id, started_at, mode, daily_rows, monthly_rows, projection_rows)
		VALUES (?,?,?,?,?,?)`,
		entry.ID, entry.StartedAt.Unix(), entry.Mode,
		entry.DailyRows, entry.MonthlyRows, entry.ProjectionRows,
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

func toNull(v series.Value) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func fromNull(v sql.NullFloat64) series.Value {
	if !v.Valid {
		return series.None
	}
	return series.Some(v.Float64)
}
