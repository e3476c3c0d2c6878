package projection

import (
	"context"
	"sync"

	"MacroTracker/internal/series"
)

// Normalize fetches and parses the given publications with bounded
// concurrency and returns the resulting records keyed by report period.
//
// Publications whose period is already known are skipped, so re-runs do
// not reprocess old reports. A publication whose page or attachment
// fails to fetch or parse is logged and dropped; it never blocks the
// rest of the batch.
func (c *Client) Normalize(ctx context.Context, pubs []series.ReportPublication, known map[series.ReportPeriod]bool, workers int) map[series.ReportPeriod]series.ProjectionRecord {
	if workers < 1 {
		workers = 1
	}

	type result struct {
		period series.ReportPeriod
		rec    *series.ProjectionRecord
	}

	sem := make(chan struct{}, workers)
	results := make(chan result, len(pubs))
	var wg sync.WaitGroup

	for _, pub := range pubs {
		if known[pub.Period] {
			c.Log.Debug().Stringer("period", pub.Period).Msg("report already known, skipping")
			continue
		}

		wg.Add(1)
		go func(pub series.ReportPublication) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			rec, err := c.fetchRecord(ctx, pub)
			if err != nil {
				c.Log.Warn().Stringer("period", pub.Period).Str("url", pub.URL).Err(err).
					Msg("dropping publication")
				return
			}
			results <- result{period: pub.Period, rec: rec}
		}(pub)
	}

	wg.Wait()
	close(results)

	out := make(map[series.ReportPeriod]series.ProjectionRecord)
	for res := range results {
		out[res.period] = *res.rec
	}
	c.Log.Info().Int("records", len(out)).Msg("projections normalized")
	return out
}
