package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"MacroTracker/internal/series"
)

// chartDateLayout is the row date format used by the chart endpoints.
const chartDateLayout = "02/01/2006"

// Chart fetches a daily series from a chart-data JSON endpoint keyed by
// date range. The response is an array of rows, the first being a header:
//
//	[["fecha","DOLAR CCL"], ["19/01/2022", 216.39], ...]
//
// Both the FX rate and the equity benchmark publish this shape; they
// differ only in endpoint and source tag.
type Chart struct {
	BaseURL string
	Source  series.SourceID
	Client  *http.Client
	Log     zerolog.Logger
}

// NewFXChart creates the FX-rate chart connector.
func NewFXChart(baseURL string, client *http.Client, log zerolog.Logger) *Chart {
	return newChart(baseURL, series.SourceFX, client, log)
}

// NewBenchmark creates the equity-benchmark chart connector.
func NewBenchmark(baseURL string, client *http.Client, log zerolog.Logger) *Chart {
	return newChart(baseURL, series.SourceBenchmark, client, log)
}

func newChart(baseURL string, source series.SourceID, client *http.Client, log zerolog.Logger) *Chart {
	return &Chart{
		BaseURL: baseURL,
		Source:  source,
		Client:  client,
		Log:     log.With().Str("source", string(source)).Logger(),
	}
}

func (c *Chart) Name() series.SourceID { return c.Source }

// Fetch requests the range and normalizes the rows. An unreachable or
// malformed upstream yields an empty map, not an error: this source tops
// up the series of record but does not anchor it.
func (c *Chart) Fetch(ctx context.Context, since, until series.Date) (map[series.Date]float64, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, since, until)
	c.Log.Info().Stringer("since", since).Stringer("until", until).Msg("fetching chart series")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.Client.Do(req)
	if err != nil {
		c.Log.Warn().Err(err).Msg("chart request failed, continuing with empty series")
		return map[series.Date]float64{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.Log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).
			Msg("chart request rejected, continuing with empty series")
		return map[series.Date]float64{}, nil
	}

	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		c.Log.Warn().Err(err).Msg("chart decode failed, continuing with empty series")
		return map[series.Date]float64{}, nil
	}
	if len(rows) < 2 {
		c.Log.Warn().Int("rows", len(rows)).Msg("chart response too short, continuing with empty series")
		return map[series.Date]float64{}, nil
	}

	out := make(map[series.Date]float64, len(rows)-1)
	// Row 0 is the header.
	for _, row := range rows[1:] {
		if len(row) < 2 {
			c.Log.Warn().Interface("row", row).Msg("skipping short chart row")
			continue
		}
		raw, ok := row[0].(string)
		if !ok {
			c.Log.Warn().Interface("row", row).Msg("skipping chart row with non-string date")
			continue
		}
		d, err := series.ParseDateLayout(chartDateLayout, raw)
		if err != nil {
			c.Log.Warn().Str("row", raw).Err(err).Msg("skipping malformed chart date")
			continue
		}
		v, ok := toFloat(row[1])
		if !ok {
			c.Log.Warn().Str("date", raw).Interface("value", row[1]).Msg("skipping non-numeric chart value")
			continue
		}
		out[d] = v
	}

	c.Log.Info().Int("records", len(out)).Msg("chart series fetched")
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
