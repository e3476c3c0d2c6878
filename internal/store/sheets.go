package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"MacroTracker/internal/series"
)

// Fixed destination layout. The daily sheet keeps a metadata row, a
// header row and a spacer before data; the monthly sheet holds formula
// columns (C–E and G) that must never be overwritten; the projection
// matrix starts below its header block.
const (
	dailyFirstRow      = 4
	monthlyFirstRow    = 3
	projectionFirstRow = 4

	// Daily and monthly dates are displayed DD/MM/YYYY; the projection
	// report month is stored ISO so the sheet's own date format applies.
	displayDate = "02/01/2006"
)

// SheetsConfig identifies the destination spreadsheet and its tabs.
type SheetsConfig struct {
	BaseURL         string
	SpreadsheetID   string
	Token           string
	DailySheet      string
	MonthlySheet    string
	ProjectionSheet string
}

// Sheets writes the series to a spreadsheet over its REST values API.
// It expects a static bearer token; credential acquisition and refresh
// live outside this system.
type Sheets struct {
	cfg  SheetsConfig
	http *http.Client
	log  zerolog.Logger
}

// NewSheets creates the spreadsheet store backend.
func NewSheets(cfg SheetsConfig, httpClient *http.Client, log zerolog.Logger) *Sheets {
	return &Sheets{
		cfg:  cfg,
		http: httpClient,
		log:  log.With().Str("store", "sheets").Logger(),
	}
}

func (s *Sheets) LastDailyDate() (series.Cursor, error) {
	col, err := s.columnA(s.cfg.DailySheet, dailyFirstRow)
	if err != nil {
		return series.Cursor{}, fmt.Errorf("read daily cursor: %w", err)
	}
	if len(col) == 0 {
		return series.Cursor{Series: "daily"}, nil
	}
	d, err := series.ParseDateLayout(displayDate, col[len(col)-1])
	if err != nil {
		return series.Cursor{}, fmt.Errorf("daily cursor: %w", err)
	}
	return series.Cursor{Series: "daily", Last: d, Valid: true}, nil
}

func (s *Sheets) ReadDaily() ([]series.DailyRecord, error) {
	rows, err := s.getValues(fmt.Sprintf("%s!A%d:D", s.cfg.DailySheet, dailyFirstRow))
	if err != nil {
		return nil, fmt.Errorf("read daily series: %w", err)
	}

	var out []series.DailyRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		d, err := series.ParseDateLayout(displayDate, row[0])
		if err != nil {
			s.log.Warn().Str("row", row[0]).Err(err).Msg("skipping malformed daily row")
			continue
		}
		out = append(out, series.DailyRecord{
			Date:           d,
			IndexRate:      cellValue(row, 1),
			FXRate:         cellValue(row, 2),
			BenchmarkPrice: cellValue(row, 3),
		})
	}
	return out, nil
}

func (s *Sheets) KnownReportPeriods() (map[series.ReportPeriod]bool, error) {
	col, err := s.columnA(s.cfg.ProjectionSheet, projectionFirstRow)
	if err != nil {
		return nil, fmt.Errorf("read known report periods: %w", err)
	}
	known := make(map[series.ReportPeriod]bool, len(col))
	for _, raw := range col {
		d, err := series.ParseDate(raw)
		if err != nil {
			s.log.Warn().Str("row", raw).Err(err).Msg("skipping malformed report month")
			continue
		}
		known[d.Period()] = true
	}
	return known, nil
}

func (s *Sheets) OverwriteDaily(recs []series.DailyRecord) error {
	if err := s.clearValues(fmt.Sprintf("%s!A%d:D", s.cfg.DailySheet, dailyFirstRow)); err != nil {
		return fmt.Errorf("clear daily rows: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	values := dailyRows(recs)
	end := dailyFirstRow + len(values) - 1
	rng := fmt.Sprintf("%s!A%d:D%d", s.cfg.DailySheet, dailyFirstRow, end)
	if err := s.updateValues(rng, values); err != nil {
		return fmt.Errorf("write daily rows: %w", err)
	}
	s.log.Info().Int("rows", len(values)).Str("range", rng).Msg("daily series overwritten")
	return nil
}

func (s *Sheets) AppendDaily(recs []series.DailyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	col, err := s.columnA(s.cfg.DailySheet, dailyFirstRow)
	if err != nil {
		return fmt.Errorf("count daily rows: %w", err)
	}
	start := dailyFirstRow + len(col)
	values := dailyRows(recs)
	rng := fmt.Sprintf("%s!A%d:D%d", s.cfg.DailySheet, start, start+len(values)-1)
	if err := s.updateValues(rng, values); err != nil {
		return fmt.Errorf("append daily rows: %w", err)
	}
	s.log.Info().Int("rows", len(values)).Str("range", rng).Msg("daily series appended")
	return nil
}

func (s *Sheets) ReplaceMonthly(recs []series.MonthlyRecord) error {
	// Columns C–E and G hold formulas; only A:B and F are data.
	if err := s.clearValues(fmt.Sprintf("%s!A%d:B", s.cfg.MonthlySheet, monthlyFirstRow)); err != nil {
		return fmt.Errorf("clear monthly A:B: %w", err)
	}
	if err := s.clearValues(fmt.Sprintf("%s!F%d:F", s.cfg.MonthlySheet, monthlyFirstRow)); err != nil {
		return fmt.Errorf("clear monthly F: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	ab := make([][]any, 0, len(recs))
	f := make([][]any, 0, len(recs))
	for _, rec := range recs {
		ab = append(ab, []any{rec.MonthStart.Format(displayDate), cellFor(rec.IndexRateEOM)})
		f = append(f, []any{cellFor(rec.FXRateEOM)})
	}
	end := monthlyFirstRow + len(recs) - 1
	if err := s.updateValues(fmt.Sprintf("%s!A%d:B%d", s.cfg.MonthlySheet, monthlyFirstRow, end), ab); err != nil {
		return fmt.Errorf("write monthly A:B: %w", err)
	}
	if err := s.updateValues(fmt.Sprintf("%s!F%d:F%d", s.cfg.MonthlySheet, monthlyFirstRow, end), f); err != nil {
		return fmt.Errorf("write monthly F: %w", err)
	}
	s.log.Info().Int("rows", len(recs)).Msg("monthly series replaced")
	return nil
}

func (s *Sheets) UpsertProjections(recs map[series.ReportPeriod]series.ProjectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	col, err := s.columnA(s.cfg.ProjectionSheet, projectionFirstRow)
	if err != nil {
		return fmt.Errorf("read projection rows: %w", err)
	}

	rowOf := make(map[series.ReportPeriod]int, len(col))
	for i, raw := range col {
		if d, err := series.ParseDate(raw); err == nil {
			rowOf[d.Period()] = projectionFirstRow + i
		}
	}
	next := projectionFirstRow + len(col)

	periods := make([]series.ReportPeriod, 0, len(recs))
	for p := range recs {
		periods = append(periods, p)
	}
	// Oldest first so appended rows keep the matrix ordered.
	for i := 0; i < len(periods); i++ {
		for j := i + 1; j < len(periods); j++ {
			if periods[j].Before(periods[i]) {
				periods[i], periods[j] = periods[j], periods[i]
			}
		}
	}

	for _, p := range periods {
		rec := recs[p]
		row, ok := rowOf[p]
		if !ok {
			row = next
			next++
		}
		values := []any{rec.ReportMonth.String()}
		for _, h := range rec.Horizons {
			values = append(values, h)
		}
		rng := fmt.Sprintf("%s!A%d:I%d", s.cfg.ProjectionSheet, row, row)
		if err := s.updateValues(rng, [][]any{values}); err != nil {
			return fmt.Errorf("upsert projection %s: %w", p, err)
		}
	}
	s.log.Info().Int("rows", len(recs)).Msg("projection matrix upserted")
	return nil
}

func (s *Sheets) LogRun(entry RunEntry) error {
	rng := fmt.Sprintf("%s!A1:B1", s.cfg.DailySheet)
	values := [][]any{{"last updated", entry.StartedAt.UTC().Format(time.RFC3339)}}
	if err := s.updateValues(rng, values); err != nil {
		return fmt.Errorf("write run stamp: %w", err)
	}
	return nil
}

func (s *Sheets) Close() error { return nil }

func dailyRows(recs []series.DailyRecord) [][]any {
	values := make([][]any, 0, len(recs))
	for _, rec := range recs {
		values = append(values, []any{
			rec.Date.Format(displayDate),
			cellFor(rec.IndexRate),
			cellFor(rec.FXRate),
			cellFor(rec.BenchmarkPrice),
		})
	}
	return values
}

// cellFor renders an optional value: absent becomes an empty cell, never
// a zero.
func cellFor(v series.Value) any {
	if !v.Valid {
		return ""
	}
	return v.Float64
}

func cellValue(row []string, i int) series.Value {
	if i >= len(row) || strings.TrimSpace(row[i]) == "" {
		return series.None
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(row[i], ",", "."), 64)
	if err != nil {
		return series.None
	}
	return series.Some(f)
}

// columnA returns the non-empty leading cells of column A from firstRow.
func (s *Sheets) columnA(sheet string, firstRow int) ([]string, error) {
	rows, err := s.getValues(fmt.Sprintf("%s!A%d:A", sheet, firstRow))
	if err != nil {
		return nil, err
	}
	var col []string
	for _, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		col = append(col, row[0])
	}
	return col, nil
}

type valueRange struct {
	Values [][]any `json:"values"`
}

func (s *Sheets) getValues(rng string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s", s.cfg.BaseURL, s.cfg.SpreadsheetID, url.PathEscape(rng))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := s.do(req)
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		rows[i] = cells
	}
	return rows, nil
}

func (s *Sheets) updateValues(rng string, values [][]any) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=USER_ENTERED",
		s.cfg.BaseURL, s.cfg.SpreadsheetID, url.PathEscape(rng))

	payload, err := json.Marshal(valueRange{Values: values})
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = s.do(req)
	return err
}

func (s *Sheets) clearValues(rng string) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:clear", s.cfg.BaseURL, s.cfg.SpreadsheetID, url.PathEscape(rng))
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = s.do(req)
	return err
}

func (s *Sheets) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheets read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheets: status %d, body: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
