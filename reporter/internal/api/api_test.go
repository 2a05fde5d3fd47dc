package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
	"github.com/linkcomfort/linkcomfort/reporter/internal/render"
)

// --- test helpers -----------------------------------------------------------

var now = time.Date(2026, 3, 8, 15, 30, 0, 0, time.UTC)

type fakeSource struct {
	samples []types.Sample
	err     error
}

func (f *fakeSource) Query(_ context.Context, start, end time.Time) ([]types.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Sample
	for _, s := range f.samples {
		if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) Count(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.samples)), nil
}

func settings() Settings {
	return Settings{
		Options: aggregate.Options{
			Location:  time.UTC,
			OpenHour:  9,
			CloseHour: 22,
			Scoring:   score.DefaultConfig(),
		},
		Days:        7,
		RecentHours: 24,
		Style:       render.DefaultStyle(),
	}
}

func newHandler(samples ...types.Sample) *Handler {
	h := New(&fakeSource{samples: samples}, settings())
	h.now = func() time.Time { return now }
	return h
}

func perfect(ts time.Time) types.Sample {
	return types.NewOK(ts, types.Metrics{DownloadMbps: 100, UploadMbps: 50}, "Example ISP", "1")
}

// today returns hour h of the current test day.
func today(h int) time.Time {
	return time.Date(2026, 3, 8, h, 0, 0, 0, time.UTC)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	rr := get(t, newHandler(), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Samples != 0 {
		t.Errorf("got %+v", resp)
	}
	if resp.Timezone != "UTC" || resp.OpenHour != 9 || resp.CloseHour != 22 {
		t.Errorf("facility fields: got %+v", resp)
	}
}

func TestHealth_StoreFailure(t *testing.T) {
	h := New(&fakeSource{err: errors.New("database is locked")}, settings())
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
	var resp HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "unavailable" || !strings.Contains(resp.Error, "locked") {
		t.Errorf("got %+v", resp)
	}
}

// --- method and parameter validation ----------------------------------------

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newHandler()
	for _, path := range []string{
		"/api/v1/health", "/api/v1/summary", "/api/v1/buckets",
		"/api/v1/weekday", "/api/v1/recent", "/api/v1/report.png",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, rr.Code)
		}
	}
}

func TestRoutes_BadParams(t *testing.T) {
	h := newHandler()
	tests := []struct {
		path    string
		wantMsg string
	}{
		{"/api/v1/summary?days=0", "positive"},
		{"/api/v1/summary?days=abc", "positive"},
		{"/api/v1/buckets?days=-3", "positive"},
		{"/api/v1/weekday?days=1000", "at most"},
		{"/api/v1/report.png?days=x", "positive"},
		{"/api/v1/recent?hours=0", "hours"},
		{"/api/v1/recent?hours=100000", "at most"},
	}
	for _, tc := range tests {
		rr := get(t, h, tc.path)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tc.path, rr.Code)
			continue
		}
		var resp map[string]string
		decode(t, rr, &resp)
		if !strings.Contains(resp["error"], tc.wantMsg) {
			t.Errorf("%s: error %q does not mention %q", tc.path, resp["error"], tc.wantMsg)
		}
	}
}

func TestRoutes_QueryFailure(t *testing.T) {
	h := New(&fakeSource{err: errors.New("disk I/O error")}, settings())
	for _, path := range []string{"/api/v1/summary", "/api/v1/recent", "/api/v1/report.png"} {
		if rr := get(t, h, path); rr.Code != http.StatusInternalServerError {
			t.Errorf("%s: got %d, want 500", path, rr.Code)
		}
	}
}

// --- /api/v1/summary --------------------------------------------------------

func TestSummary_NoDataIsNull(t *testing.T) {
	rr := get(t, newHandler(), "/api/v1/summary")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)

	op := resp["operating_hours"].(map[string]interface{})
	if op["mean"] != nil {
		t.Errorf("operating mean: got %v, want null", op["mean"])
	}
	if resp["samples"].(float64) != 0 {
		t.Errorf("samples: got %v", resp["samples"])
	}
	diags := resp["diagnostics"].([]interface{})
	if len(diags) != 1 || diags[0].(map[string]interface{})["key"] != "no_data" {
		t.Errorf("diagnostics: got %v", diags)
	}
}

func TestSummary_SeparatesOperatingHours(t *testing.T) {
	h := newHandler(
		perfect(today(10)),
		types.NewOK(today(3), types.Metrics{DownloadMbps: 0, UploadMbps: 0, PingMs: 100, JitterMs: 50}, "Example ISP", "1"),
		types.NewError(today(11), "timeout", ""),
	)
	rr := get(t, h, "/api/v1/summary?days=3")
	var resp SummaryResponse
	decode(t, rr, &resp)

	if resp.Days != 3 {
		t.Errorf("days: got %d", resp.Days)
	}
	if resp.OperatingHours.Mean == nil || *resp.OperatingHours.Mean != 100 {
		t.Errorf("operating mean: got %v, want 100", resp.OperatingHours.Mean)
	}
	if resp.OperatingHours.Label != score.LabelVeryComfortable {
		t.Errorf("operating label: got %q", resp.OperatingHours.Label)
	}
	if resp.AllHours.Mean == nil || *resp.AllHours.Mean != 50 {
		t.Errorf("all-hours mean: got %v, want 50", resp.AllHours.Mean)
	}
	if resp.Samples != 3 || resp.Errors != 1 {
		t.Errorf("counts: got %d samples, %d errors", resp.Samples, resp.Errors)
	}
	if resp.Coverage.Scored != 1 || resp.Coverage.AllErrors != 1 || resp.Coverage.NoData != 3*13-2 {
		t.Errorf("coverage: got %+v", resp.Coverage)
	}
	if !strings.Contains(resp.Text, "Observation coverage") {
		t.Errorf("text: got %q", resp.Text)
	}
	if len(resp.Diagnostics) == 0 || resp.Diagnostics[0].Key != "error_rate" || resp.Diagnostics[0].Level != "critical" {
		t.Errorf("first diagnostic should be a critical error_rate, got %+v", resp.Diagnostics)
	}
}

// --- /api/v1/buckets and /api/v1/weekday ------------------------------------

func TestBuckets_FullGrid(t *testing.T) {
	h := newHandler(perfect(today(9)))
	rr := get(t, h, "/api/v1/buckets?days=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp struct {
		Grid struct {
			Days []struct {
				Hours []struct {
					State string  `json:"state"`
					Mean  float64 `json:"mean_score"`
				} `json:"hours"`
			} `json:"days"`
		} `json:"grid"`
	}
	decode(t, rr, &resp)

	if len(resp.Grid.Days) != 5 {
		t.Fatalf("days: got %d, want 5", len(resp.Grid.Days))
	}
	last := resp.Grid.Days[4]
	if len(last.Hours) != 24 {
		t.Fatalf("hours: got %d, want 24", len(last.Hours))
	}
	if last.Hours[9].State != aggregate.CellScored.String() || last.Hours[9].Mean != 100 {
		t.Errorf("09h: got %+v", last.Hours[9])
	}
	if last.Hours[10].State != aggregate.CellNoData.String() {
		t.Errorf("10h: got %+v", last.Hours[10])
	}
}

func TestWeekday_Rows(t *testing.T) {
	rr := get(t, newHandler(perfect(today(9))), "/api/v1/weekday")
	var resp aggregate.WeekdayGrid
	decode(t, rr, &resp)

	// 2026-03-08 is a Sunday.
	sun := resp.Rows[6]
	if len(sun) != 13 {
		t.Fatalf("columns: got %d, want 13", len(sun))
	}
	if sun[0].State != aggregate.CellScored || sun[0].MeanScore != 100 {
		t.Errorf("Sun 09h: got %+v", sun[0])
	}
}

// --- /api/v1/recent ---------------------------------------------------------

func TestRecent_WindowAndNulls(t *testing.T) {
	h := newHandler(
		perfect(now.Add(-30*time.Hour)),
		perfect(now.Add(-2*time.Hour)),
		types.NewError(now.Add(-time.Hour), "nonzero_exit", "boom"),
	)
	rr := get(t, h, "/api/v1/recent?hours=24")
	var resp []map[string]interface{}
	decode(t, rr, &resp)

	if len(resp) != 2 {
		t.Fatalf("got %d samples, want 2", len(resp))
	}
	if resp[0]["score"].(float64) != 100 || resp[0]["download_mbps"].(float64) != 100 {
		t.Errorf("ok sample: got %v", resp[0])
	}
	if resp[1]["status"] != "error" || resp[1]["download_mbps"] != nil || resp[1]["score"] != nil {
		t.Errorf("error sample: got %v", resp[1])
	}
	if resp[1]["error"] != "nonzero_exit" {
		t.Errorf("error cause: got %v", resp[1]["error"])
	}
}

// --- /api/v1/report.png -----------------------------------------------------

func TestReportPNG(t *testing.T) {
	rr := get(t, newHandler(perfect(today(9))), "/api/v1/report.png?days=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body: %s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type: got %q", ct)
	}
	if _, err := png.Decode(bytes.NewReader(rr.Body.Bytes())); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}
}

// --- settings reload and metrics --------------------------------------------

func TestUpdate_AppliesToLaterRequests(t *testing.T) {
	h := newHandler()
	s := settings()
	s.Options.OpenHour, s.Options.CloseHour = 8, 18
	h.Update(s)

	var resp HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.OpenHour != 8 || resp.CloseHour != 18 {
		t.Errorf("hours after update: got %d-%d", resp.OpenHour, resp.CloseHour)
	}

	var w aggregate.WeekdayGrid
	decode(t, get(t, h, "/api/v1/weekday"), &w)
	if len(w.Rows[0]) != 10 {
		t.Errorf("weekday columns after update: got %d, want 10", len(w.Rows[0]))
	}
}

func TestSummary_Method(t *testing.T) {
	h := newHandler(perfect(today(9)))
	resp, err := h.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if resp.Days != 7 || resp.OperatingHours.Mean == nil {
		t.Errorf("got %+v", resp)
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	h := newHandler()
	get(t, h, "/api/v1/health")
	get(t, h, "/api/v1/health")
	get(t, h, "/api/v1/summary?days=0")

	if got := testutil.ToFloat64(h.requests.WithLabelValues("/api/v1/health", "get", "200")); got != 2 {
		t.Errorf("health 200 count: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(h.requests.WithLabelValues("/api/v1/summary", "get", "400")); got != 1 {
		t.Errorf("summary 400 count: got %v, want 1", got)
	}

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `linkcomfort_api_requests_total{code="200",method="get",route="/api/v1/health"} 2`) {
		t.Errorf("/metrics body missing request counter:\n%s", rr.Body.String())
	}
}

// --- auth -------------------------------------------------------------------

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name   string
		mode   string
		key    string
		sent   string
		status int
	}{
		{"mode none passes", "none", "secret", "", http.StatusNoContent},
		{"empty key rejects", "apikey", "", "", http.StatusUnauthorized},
		{"correct key", "apikey", "secret", "secret", http.StatusNoContent},
		{"missing key", "apikey", "secret", "", http.StatusUnauthorized},
		{"wrong key", "apikey", "secret", "guess", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireAPIKey(tc.mode, "X-API-Key", tc.key, ok)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			if tc.sent != "" {
				req.Header.Set("X-API-Key", tc.sent)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Errorf("status: got %d, want %d", rr.Code, tc.status)
			}
		})
	}
}

// --- diagnostics ------------------------------------------------------------

func TestDiagnostics_AllClear(t *testing.T) {
	var samples []types.Sample
	for d := 0; d < 7; d++ {
		for hr := 9; hr < 22; hr++ {
			samples = append(samples, perfect(today(hr).AddDate(0, 0, -d)))
		}
	}
	h := newHandler(samples...)
	resp, err := h.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Level != "ok" {
		t.Errorf("got %+v", resp.Diagnostics)
	}
}

func TestDiagnostics_SparseAndUncomfortable(t *testing.T) {
	bad := types.NewOK(today(10), types.Metrics{DownloadMbps: 5, UploadMbps: 1, PingMs: 90, JitterMs: 45}, "Example ISP", "1")
	h := newHandler(bad)
	resp, err := h.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(resp.Diagnostics))
	for _, d := range resp.Diagnostics {
		keys = append(keys, d.Level+":"+d.Key)
	}
	want := []string{"critical:operating_comfort", "info:coverage"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("diagnostics: got %v, want %v", keys, want)
	}
}

// --- collector status -------------------------------------------------------

const textfile = `# HELP linkcomfort_last_run_success 1 if the last measurement produced an ok sample.
# TYPE linkcomfort_last_run_success gauge
linkcomfort_last_run_success 1
# HELP linkcomfort_last_run_attempts Command attempts used by the last run.
# TYPE linkcomfort_last_run_attempts gauge
linkcomfort_last_run_attempts 2
# HELP linkcomfort_last_run_timestamp_seconds Unix time of the last run.
# TYPE linkcomfort_last_run_timestamp_seconds gauge
linkcomfort_last_run_timestamp_seconds 1.7729814e+09
`

func TestParseRunStatus(t *testing.T) {
	last := time.Unix(1772981400, 0)
	st, err := parseRunStatus(strings.NewReader(textfile), last.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("parseRunStatus() error = %v", err)
	}
	if !st.Success || st.Attempts != 2 {
		t.Errorf("got %+v", st)
	}
	if st.LastRun != last.UTC().Format(time.RFC3339) || st.AgeSeconds != 900 {
		t.Errorf("timing: got %+v", st)
	}

	if _, err := parseRunStatus(strings.NewReader("linkcomfort_last_run_success 0\n"), now); err == nil {
		t.Error("expected error without timestamp gauge")
	}
}

func TestHealth_CollectorStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linkcomfort.prom")
	if err := os.WriteFile(path, []byte(textfile), 0o644); err != nil {
		t.Fatal(err)
	}

	s := settings()
	s.Textfile = path
	h := New(&fakeSource{}, s)
	h.now = func() time.Time { return time.Unix(1772981400, 0).Add(time.Hour) }

	var resp HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.Collector == nil || !resp.Collector.Success || resp.Collector.AgeSeconds != 3600 {
		t.Errorf("collector: got %+v", resp.Collector)
	}

	s.Textfile = filepath.Join(dir, "missing.prom")
	h.Update(s)
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.Collector == nil || resp.Collector.Error == "" {
		t.Errorf("missing textfile: got %+v", resp.Collector)
	}
	if resp.Status != "ok" {
		t.Errorf("a missing textfile must not fail health, got %q", resp.Status)
	}
}
