// Package aggregate collapses the daily series into month-end snapshots.
package aggregate

import (
	"sort"

	"MacroTracker/internal/series"
)

// Monthly groups daily records by calendar month and selects the record
// with the latest date in each group as that month's end-of-month
// snapshot. Output records are keyed by the month's first calendar day
// (a stable join column for downstream range lookups) while the values
// are the true end-of-month observation, which on trading gaps is not
// the calendar's final day.
//
// Monthly records are a pure function of the daily series and are always
// recomputed wholesale. A field absent on the selected record stays
// absent; it is never back-filled from an earlier date in the month.
func Monthly(daily []series.DailyRecord) []series.MonthlyRecord {
	type key struct {
		year  int
		month int
	}

	latest := make(map[key]series.DailyRecord)
	for _, rec := range daily {
		k := key{rec.Date.Year(), int(rec.Date.Month())}
		// Later input order wins on equal dates. Equal dates cannot occur
		// while the daily series keeps dates unique, but the tie-break
		// keeps the selection deterministic if that ever breaks.
		if cur, ok := latest[k]; ok && rec.Date.Before(cur.Date) {
			continue
		}
		latest[k] = rec
	}

	months := make([]key, 0, len(latest))
	for k := range latest {
		months = append(months, k)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].year != months[j].year {
			return months[i].year < months[j].year
		}
		return months[i].month < months[j].month
	})

	out := make([]series.MonthlyRecord, 0, len(months))
	for _, k := range months {
		rec := latest[k]
		out = append(out, series.MonthlyRecord{
			MonthStart:   rec.Date.MonthStart(),
			IndexRateEOM: rec.IndexRate,
			FXRateEOM:    rec.FXRate,
		})
	}
	return out
}
