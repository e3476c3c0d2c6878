// Package projection turns irregular survey-report publications into
// canonical (report-month, horizon-vector) records. Discovery walks an
// HTML listing page, each publication page links a spreadsheet attachment
// holding the forecast table.
package projection

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"MacroTracker/internal/series"
)

// attachmentKeyword marks the anchor that links the forecast table on a
// publication page.
const attachmentKeyword = "tablas"

// monthNames maps the listing page's Spanish month names to calendar months.
var monthNames = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// Client discovers and fetches projection publications.
type Client struct {
	ListURL string
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// NewClient creates a projection client. baseURL resolves relative
// attachment and publication links.
func NewClient(listURL, baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		ListURL: listURL,
		BaseURL: baseURL,
		HTTP:    httpClient,
		Log:     log.With().Str("source", "projection").Logger(),
	}
}

// ListPublications scrapes the listing page and returns publications for
// report periods at or after floor, ordered oldest first. Rows that do
// not parse as (link, ..., period) are skipped.
func (c *Client) ListPublications(ctx context.Context, floor series.ReportPeriod) ([]series.ReportPublication, error) {
	c.Log.Info().Str("url", c.ListURL).Stringer("floor", floor).Msg("listing publications")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ListURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch publication listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch publication listing: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse publication listing: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("publication listing has no table")
	}

	now := time.Now()
	var pubs []series.ReportPublication
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		href, ok := cols.Eq(0).Find("a[href]").First().Attr("href")
		if !ok {
			return
		}

		period, err := parsePeriodText(cols.Eq(2).Text())
		if err != nil {
			c.Log.Warn().Str("period", strings.TrimSpace(cols.Eq(2).Text())).Err(err).
				Msg("skipping listing row with unparsable period")
			return
		}
		if period.Before(floor) {
			return
		}

		pubs = append(pubs, series.ReportPublication{
			Period:       period,
			URL:          c.resolve(href),
			DiscoveredAt: now,
		})
	})

	sort.Slice(pubs, func(i, j int) bool { return pubs[i].Period.Before(pubs[j].Period) })
	c.Log.Info().Int("publications", len(pubs)).Msg("publications listed")
	return pubs, nil
}

// parsePeriodText parses a "Enero 2026" style period cell.
func parsePeriodText(text string) (series.ReportPeriod, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return series.ReportPeriod{}, fmt.Errorf("unexpected period text %q", text)
	}
	month, ok := monthNames[strings.ToLower(fields[0])]
	if !ok {
		return series.ReportPeriod{}, fmt.Errorf("unknown month name %q", fields[0])
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil {
		return series.ReportPeriod{}, fmt.Errorf("bad year in period %q: %w", text, err)
	}
	return series.ReportPeriod{Year: year, Month: month}, nil
}

// findAttachment locates the forecast-table spreadsheet link on a
// publication page.
func (c *Client) findAttachment(ctx context.Context, pubURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pubURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch publication page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch publication page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse publication page: %w", err)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		lowHref := strings.ToLower(href)
		lowText := strings.ToLower(link.Text())
		if (strings.Contains(lowText, attachmentKeyword) || strings.Contains(lowHref, attachmentKeyword)) &&
			strings.HasSuffix(lowHref, ".xlsx") {
			found = c.resolve(href)
			return false
		}
		return true
	})
	if found == "" {
		return "", fmt.Errorf("no spreadsheet attachment on %s", pubURL)
	}
	return found, nil
}

// fetchRecord resolves and parses one publication's attachment.
func (c *Client) fetchRecord(ctx context.Context, pub series.ReportPublication) (*series.ProjectionRecord, error) {
	attachment, err := c.findAttachment(ctx, pub.URL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}

	horizons, err := ParseAttachment(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse attachment %s: %w", attachment, err)
	}

	return &series.ProjectionRecord{
		ReportMonth: pub.Period.FirstDay(),
		Horizons:    horizons,
	}, nil
}

func (c *Client) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.BaseURL + href
}
