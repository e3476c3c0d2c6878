package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"MacroTracker/internal/config"
	"MacroTracker/internal/connector"
	"MacroTracker/internal/planner"
	"MacroTracker/internal/series"
	"MacroTracker/internal/store"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu          sync.Mutex
	daily       []series.DailyRecord
	monthly     []series.MonthlyRecord
	projections map[series.ReportPeriod]series.ProjectionRecord
	runs        []store.RunEntry
	overwrites  int
	appends     int
}

func newMemStore() *memStore {
	return &memStore{projections: map[series.ReportPeriod]series.ProjectionRecord{}}
}

func (m *memStore) LastDailyDate() (series.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.daily) == 0 {
		return series.Cursor{Series: "daily"}, nil
	}
	return series.Cursor{Series: "daily", Last: m.daily[len(m.daily)-1].Date, Valid: true}, nil
}

func (m *memStore) ReadDaily() ([]series.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]series.DailyRecord, len(m.daily))
	copy(out, m.daily)
	return out, nil
}

func (m *memStore) KnownReportPeriods() (map[series.ReportPeriod]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[series.ReportPeriod]bool, len(m.projections))
	for p := range m.projections {
		known[p] = true
	}
	return known, nil
}

func (m *memStore) OverwriteDaily(recs []series.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = append([]series.DailyRecord(nil), recs...)
	m.overwrites++
	return nil
}

func (m *memStore) AppendDaily(recs []series.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = append(m.daily, recs...)
	m.appends++
	return nil
}

func (m *memStore) ReplaceMonthly(recs []series.MonthlyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly = append([]series.MonthlyRecord(nil), recs...)
	return nil
}

func (m *memStore) UpsertProjections(recs map[series.ReportPeriod]series.ProjectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p, rec := range recs {
		m.projections[p] = rec
	}
	return nil
}

func (m *memStore) LogRun(entry store.RunEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, entry)
	return nil
}

func (m *memStore) Close() error { return nil }

func testConfig(t *testing.T, indexURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Sources.IndexRateURL = indexURL
	cfg.Store.Backend = "noop"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return cfg
}

func indexPayload(rows map[string]float64) string {
	detail := ""
	for d, v := range rows {
		if detail != "" {
			detail += ","
		}
		detail += fmt.Sprintf(`{"fecha":%q,"valor":%g}`, d, v)
	}
	return fmt.Sprintf(`{"results":[{"detalle":[%s]}],"metadata":{"resultset":{"count":%d}}}`, detail, len(rows))
}

func TestRunFirstBackfill(t *testing.T) {
	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, indexPayload(map[string]float64{
			"2024-03-04": 310.5,
			"2024-03-05": 311.2,
		}))
	}))
	defer indexSrv.Close()
	fxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["fecha","ccl"],["05/03/2024",1050.0]]`)
	}))
	defer fxSrv.Close()

	cfg := testConfig(t, indexSrv.URL)
	cfg.Sources.FXChartURL = fxSrv.URL
	st := newMemStore()

	res, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != planner.ModeOverwrite {
		t.Errorf("first run must overwrite, got %s", res.Mode)
	}
	if res.DailyRows != 2 {
		t.Errorf("expected 2 daily rows, got %d", res.DailyRows)
	}
	if st.overwrites != 1 || st.appends != 0 {
		t.Errorf("expected one overwrite, got overwrites=%d appends=%d", st.overwrites, st.appends)
	}
	// Merge: the day without an FX observation keeps it absent.
	if st.daily[0].FXRate.Valid {
		t.Errorf("fx on 2024-03-04 must be absent, got %g", st.daily[0].FXRate.Float64)
	}
	if st.daily[1].FXRate != series.Some(1050.0) {
		t.Errorf("fx on 2024-03-05: got %+v", st.daily[1].FXRate)
	}
	if len(st.monthly) != 1 || st.monthly[0].MonthStart != series.NewDate(2024, time.March, 1) {
		t.Errorf("expected one monthly row for march, got %+v", st.monthly)
	}
	if len(st.runs) != 1 || st.runs[0].Mode != "overwrite" {
		t.Errorf("expected run log entry, got %+v", st.runs)
	}
}

func TestRunIndexSourceFatal(t *testing.T) {
	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer indexSrv.Close()
	fxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["fecha","ccl"],["05/03/2024",1050.0]]`)
	}))
	defer fxSrv.Close()

	cfg := testConfig(t, indexSrv.URL)
	cfg.Sources.FXChartURL = fxSrv.URL
	st := newMemStore()

	_, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), nil)
	if !errors.Is(err, connector.ErrSourceOfRecord) {
		t.Fatalf("expected source-of-record failure, got %v", err)
	}
	if st.overwrites != 0 && st.appends != 0 {
		t.Error("a fatal source failure must not write anything")
	}
}

func TestRunAppendFromCursor(t *testing.T) {
	today := series.Today()

	var gotSince string
	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("desde")
		fmt.Fprint(w, indexPayload(map[string]float64{
			today.AddDays(-1).String(): 320.0,
		}))
	}))
	defer indexSrv.Close()

	cfg := testConfig(t, indexSrv.URL)
	st := newMemStore()
	st.daily = []series.DailyRecord{
		{Date: today.AddDays(-2), IndexRate: series.Some(319.0)},
	}

	res, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != planner.ModeAppend {
		t.Errorf("expected append mode, got %s", res.Mode)
	}
	if gotSince != today.AddDays(-1).String() {
		t.Errorf("window must start at cursor+1: got since=%s", gotSince)
	}
	if st.appends != 1 || st.overwrites != 0 {
		t.Errorf("expected one append, got appends=%d overwrites=%d", st.appends, st.overwrites)
	}
	if len(st.daily) != 2 {
		t.Errorf("expected existing row plus appended row, got %d rows", len(st.daily))
	}
	if st.daily[0].IndexRate != series.Some(319.0) {
		t.Errorf("existing row was modified: %+v", st.daily[0])
	}
}

func TestRunUpToDateStillSyncsProjections(t *testing.T) {
	attachment := buildAttachment(t, 2.5)

	mux := http.NewServeMux()
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		t.Error("index source must not be fetched when up to date")
	})
	mux.HandleFunc("/rem", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
<tr><th>Informe</th><th>Fecha</th><th>Período</th></tr>
<tr><td><a href="/rem/enero-2024">ver</a></td><td>x</td><td>Enero 2024</td></tr>
</table></body></html>`)
	})
	mux.HandleFunc("/rem/enero-2024", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/tablas-enero.xlsx">Tablas</a></body></html>`)
	})
	mux.HandleFunc("/tablas-enero.xlsx", func(w http.ResponseWriter, r *http.Request) {
		w.Write(attachment)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t, srv.URL+"/index")
	cfg.Sources.ProjectionListURL = srv.URL + "/rem"
	cfg.Sources.ProjectionBaseURL = srv.URL

	st := newMemStore()
	st.daily = []series.DailyRecord{
		{Date: series.Today(), IndexRate: series.Some(320.0)},
	}

	res, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != planner.ModeNoOp {
		t.Errorf("expected noop mode, got %s", res.Mode)
	}
	if res.DailyRows != 0 {
		t.Errorf("noop run must fetch no daily rows, got %d", res.DailyRows)
	}
	if res.ProjectionRows != 1 {
		t.Fatalf("expected 1 projection row, got %d", res.ProjectionRows)
	}
	rec, ok := st.projections[series.ReportPeriod{Year: 2024, Month: time.January}]
	if !ok {
		t.Fatal("expected january projection persisted")
	}
	if rec.Horizons[0] != 0.025 {
		t.Errorf("first horizon: expected 0.025, got %g", rec.Horizons[0])
	}
}

func TestRunSpotTopUp(t *testing.T) {
	today := series.Today()

	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, indexPayload(map[string]float64{today.String(): 321.0}))
	}))
	defer indexSrv.Close()
	spotSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"venta":1234.5,"fechaActualizacion":%q}`, time.Now().Format(time.RFC3339))
	}))
	defer spotSrv.Close()

	cfg := testConfig(t, indexSrv.URL)
	cfg.Sources.SpotURL = spotSrv.URL

	st := newMemStore()
	st.daily = []series.DailyRecord{
		{Date: today.AddDays(-1), IndexRate: series.Some(320.0)},
	}

	if _, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := st.daily[len(st.daily)-1]
	if last.Date != today {
		t.Fatalf("expected today's row appended, got %s", last.Date)
	}
	if last.FXRate != series.Some(1234.5) {
		t.Errorf("spot quote not applied to fx: got %+v", last.FXRate)
	}
}

func TestRunExplicitSinceOverwrites(t *testing.T) {
	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, indexPayload(map[string]float64{"2024-03-04": 310.5}))
	}))
	defer indexSrv.Close()

	cfg := testConfig(t, indexSrv.URL)
	st := newMemStore()
	st.daily = []series.DailyRecord{
		{Date: series.NewDate(2024, time.February, 1), IndexRate: series.Some(1.0)},
	}

	since := series.NewDate(2024, time.March, 1)
	res, err := New(cfg, st, zerolog.Nop()).Run(context.Background(), &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != planner.ModeOverwrite {
		t.Errorf("explicit since must overwrite, got %s", res.Mode)
	}
	if st.overwrites != 1 {
		t.Errorf("expected one overwrite, got %d", st.overwrites)
	}
}

// buildAttachment creates a workbook carrying v in the first forecast
// cell of the fixed layout.
func buildAttachment(t *testing.T, v float64) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetCellValue(f.GetSheetName(0), "D7", v); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
