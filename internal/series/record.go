package series

import (
	"fmt"
	"time"
)

// SourceID identifies a connector feeding the daily merge.
type SourceID string

const (
	SourceIndexRate SourceID = "index_rate"
	SourceFX        SourceID = "fx_rate"
	SourceBenchmark SourceID = "benchmark"
)

// Value is an observation that may be legitimately absent (no trading
// that day, source outage). Absence is distinct from zero.
type Value struct {
	Float64 float64
	Valid   bool
}

// Some returns a present Value.
func Some(f float64) Value { return Value{Float64: f, Valid: true} }

// None is the absent Value.
var None = Value{}

// DailyRecord is one reconciled observation row. Dates are unique across
// the daily series and records are ordered by date.
type DailyRecord struct {
	Date           Date
	IndexRate      Value
	FXRate         Value
	BenchmarkPrice Value
}

// MonthlyRecord is the derived month-end snapshot, keyed by the first
// calendar day of the month. Its values come from the latest date present
// in the daily series for that month.
type MonthlyRecord struct {
	MonthStart   Date
	IndexRateEOM Value
	FXRateEOM    Value
}

// SpotQuote is a single latest-value observation from a spot feed.
type SpotQuote struct {
	Date  Date
	Value float64
}

// ReportPeriod identifies one projection report by (year, month).
type ReportPeriod struct {
	Year  int
	Month time.Month
}

// Before reports whether p is earlier than x.
func (p ReportPeriod) Before(x ReportPeriod) bool {
	if p.Year != x.Year {
		return p.Year < x.Year
	}
	return p.Month < x.Month
}

// FirstDay returns the first calendar day of the period.
func (p ReportPeriod) FirstDay() Date {
	return NewDate(p.Year, p.Month, 1)
}

// String formats the period as YYYY-MM.
func (p ReportPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// ParsePeriod parses a YYYY-MM period string.
func ParsePeriod(s string) (ReportPeriod, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return ReportPeriod{}, fmt.Errorf("invalid period %q (want YYYY-MM): %w", s, err)
	}
	return ReportPeriod{Year: t.Year(), Month: t.Month()}, nil
}

// ReportPublication is one discovered projection report on the upstream
// listing page.
type ReportPublication struct {
	Period       ReportPeriod
	URL          string
	DiscoveredAt time.Time
}

// NumHorizons is the number of forecast horizons in every projection
// record: M through M+6, plus the next-12-months figure.
const NumHorizons = 8

// ProjectionRecord holds one report's forecast horizons as decimal
// fractions (0.025 for 2.5%). An unreadable source cell is 0.0, never
// omitted, so column alignment in the destination is preserved.
type ProjectionRecord struct {
	ReportMonth Date
	Horizons    [NumHorizons]float64
}

// Cursor is the destination watermark for one series, read before
// planning a fetch. It is never mutated mid-run.
type Cursor struct {
	Series string
	Last   Date
	Valid  bool // false when the destination holds no rows yet
}
