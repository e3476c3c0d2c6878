package series

import (
	"fmt"
	"time"
)

// ISODate is the canonical textual format for dates inside the pipeline.
const ISODate = "2006-01-02"

// Date represents a calendar date with day granularity, independent of
// time zone. The zero value is not a valid date.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// DateOf returns the Date on which t falls, in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// Today returns the current date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO-8601 date string (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	return ParseDateLayout(ISODate, s)
}

// ParseDateLayout parses a date string using the given time layout.
// Each source uses a single fixed layout.
func ParseDateLayout(layout, s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want %s): %w", s, layout, err)
	}
	return DateOf(t), nil
}

// Time returns the canonical time.Time for the date (midnight UTC).
func (d Date) Time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

// Year returns the calendar year.
func (d Date) Year() int { return d.y }

// Month returns the calendar month.
func (d Date) Month() time.Month { return d.m }

// Day returns the day of the month.
func (d Date) Day() int { return d.d }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Before reports whether d is earlier than x.
func (d Date) Before(x Date) bool { return d.Time().Before(x.Time()) }

// After reports whether d is later than x.
func (d Date) After(x Date) bool { return d.Time().After(x.Time()) }

// AddDays returns d shifted by the given number of days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.y, d.m, d.d+n)
}

// MonthStart returns the first calendar day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.y, d.m, 1)
}

// Period returns the report period (year, month) containing d.
func (d Date) Period() ReportPeriod {
	return ReportPeriod{Year: d.y, Month: d.m}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.Time().Format(ISODate) }

// Format formats the date with an arbitrary time layout.
func (d Date) Format(layout string) string { return d.Time().Format(layout) }
