package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"MacroTracker/internal/series"
)

// IndexRate fetches the daily reference index from its paginated JSON API.
// This is the series of record: a transport failure here is fatal for the
// whole run.
type IndexRate struct {
	URL       string
	PageLimit int
	Client    *http.Client
	Log       zerolog.Logger
}

// NewIndexRate creates the index-rate connector.
func NewIndexRate(apiURL string, pageLimit int, client *http.Client, log zerolog.Logger) *IndexRate {
	return &IndexRate{
		URL:       apiURL,
		PageLimit: pageLimit,
		Client:    client,
		Log:       log.With().Str("source", string(series.SourceIndexRate)).Logger(),
	}
}

func (c *IndexRate) Name() series.SourceID { return series.SourceIndexRate }

// indexPage is the upstream response shape: a list of variables each
// holding date/value detail rows, plus the total row count.
type indexPage struct {
	Results []struct {
		Detail []struct {
			Date  string  `json:"fecha"`
			Value float64 `json:"valor"`
		} `json:"detalle"`
	} `json:"results"`
	Metadata struct {
		Resultset struct {
			Count int `json:"count"`
		} `json:"resultset"`
	} `json:"metadata"`
}

// Fetch pages through the API until the reported total is reached or a
// page comes back empty, whichever happens first. An empty page breaks
// the loop so a stalled upstream cannot spin it forever.
func (c *IndexRate) Fetch(ctx context.Context, since, until series.Date) (map[series.Date]float64, error) {
	out := make(map[series.Date]float64)
	offset := 0

	c.Log.Info().Stringer("since", since).Stringer("until", until).Msg("fetching index rate")
	for {
		page, err := c.fetchPage(ctx, since, until, offset)
		if err != nil {
			return nil, fmt.Errorf("index rate page at offset %d: %w", offset, err)
		}

		var rows int
		for _, variable := range page.Results {
			for _, rec := range variable.Detail {
				rows++
				d, err := series.ParseDate(rec.Date)
				if err != nil {
					c.Log.Warn().Str("row", rec.Date).Err(err).Msg("skipping malformed record")
					continue
				}
				out[d] = rec.Value
			}
		}

		offset += rows
		if offset >= page.Metadata.Resultset.Count || rows == 0 {
			break
		}
	}

	c.Log.Info().Int("records", len(out)).Msg("index rate fetched")
	return out, nil
}

func (c *IndexRate) fetchPage(ctx context.Context, since, until series.Date, offset int) (*indexPage, error) {
	q := url.Values{}
	q.Set("desde", since.String())
	q.Set("hasta", until.String())
	q.Set("limit", strconv.Itoa(c.PageLimit))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceOfRecord, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrSourceOfRecord, resp.StatusCode, string(body))
	}

	var page indexPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSourceOfRecord, err)
	}
	return &page, nil
}
