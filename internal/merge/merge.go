// Package merge reconciles per-source date-keyed values into unified
// daily records. Merging is a pure function over already-fetched data:
// upstream failures are the connectors' problem, not this package's.
package merge

import (
	"sort"

	"MacroTracker/internal/series"
)

// Daily outer-joins the per-source maps on date. Every date present in
// any source yields exactly one record; fields whose owning source has no
// value for that date stay absent. Output is sorted ascending by date.
// The join is commutative: source iteration order does not matter.
func Daily(perSource map[series.SourceID]map[series.Date]float64) []series.DailyRecord {
	seen := make(map[series.Date]bool)
	var dates []series.Date
	for _, m := range perSource {
		for d := range m {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	records := make([]series.DailyRecord, 0, len(dates))
	for _, d := range dates {
		records = append(records, series.DailyRecord{
			Date:           d,
			IndexRate:      lookup(perSource[series.SourceIndexRate], d),
			FXRate:         lookup(perSource[series.SourceFX], d),
			BenchmarkPrice: lookup(perSource[series.SourceBenchmark], d),
		})
	}
	return records
}

func lookup(m map[series.Date]float64, d series.Date) series.Value {
	if m == nil {
		return series.None
	}
	if v, ok := m[d]; ok {
		return series.Some(v)
	}
	return series.None
}

// ApplySpot overlays a same-day spot quote onto the bulk map, but only
// when the quote's date falls inside the requested window. A same-day
// quote may correct a stale bulk value; out-of-window spot noise must not
// resurrect dates the fetch did not ask for. Reports whether the quote
// was applied.
func ApplySpot(bulk map[series.Date]float64, spot *series.SpotQuote, since, until series.Date) bool {
	if spot == nil {
		return false
	}
	if spot.Date.Before(since) || spot.Date.After(until) {
		return false
	}
	bulk[spot.Date] = spot.Value
	return true
}
