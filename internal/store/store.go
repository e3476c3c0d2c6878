// Package store is the destination boundary. The core hands it fully
// reconciled series; backends own all row/column bookkeeping. The core
// never mutates a cursor — write-back is entirely the backend's job.
package store

import (
	"time"

	"MacroTracker/internal/series"
)

// RunEntry summarizes one sync run for the run log.
type RunEntry struct {
	ID             string
	StartedAt      time.Time
	Mode           string
	DailyRows      int
	MonthlyRows    int
	ProjectionRows int
}

// Store persists the daily, monthly and projection views.
type Store interface {
	// LastDailyDate returns the daily-series watermark used to seed the
	// sync planner's cursor.
	LastDailyDate() (series.Cursor, error)
	// ReadDaily returns the full persisted daily series, ordered by date.
	ReadDaily() ([]series.DailyRecord, error)
	// KnownReportPeriods returns the report periods already present in
	// the projection matrix.
	KnownReportPeriods() (map[series.ReportPeriod]bool, error)

	// OverwriteDaily clears the daily series and rewrites it.
	OverwriteDaily(recs []series.DailyRecord) error
	// AppendDaily adds rows after the existing ones, never touching them.
	AppendDaily(recs []series.DailyRecord) error
	// ReplaceMonthly rewrites the derived monthly view wholesale.
	ReplaceMonthly(recs []series.MonthlyRecord) error
	// UpsertProjections writes projection rows keyed by report month,
	// never overwriting unrelated rows.
	UpsertProjections(recs map[series.ReportPeriod]series.ProjectionRecord) error

	LogRun(entry RunEntry) error
	Close() error
}

// Noop is a no-op Store used when no destination is configured.
type Noop struct{}

// NewNoop creates a no-op store.
func NewNoop() *Noop { return &Noop{} }

func (n *Noop) LastDailyDate() (series.Cursor, error) { return series.Cursor{}, nil }
func (n *Noop) ReadDaily() ([]series.DailyRecord, error) {
	return nil, nil
}
func (n *Noop) KnownReportPeriods() (map[series.ReportPeriod]bool, error) {
	return map[series.ReportPeriod]bool{}, nil
}
func (n *Noop) OverwriteDaily(_ []series.DailyRecord) error    { return nil }
func (n *Noop) AppendDaily(_ []series.DailyRecord) error       { return nil }
func (n *Noop) ReplaceMonthly(_ []series.MonthlyRecord) error  { return nil }
func (n *Noop) UpsertProjections(_ map[series.ReportPeriod]series.ProjectionRecord) error {
	return nil
}
func (n *Noop) LogRun(_ RunEntry) error { return nil }
func (n *Noop) Close() error            { return nil }
