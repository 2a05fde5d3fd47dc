package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
	"github.com/linkcomfort/linkcomfort/reporter/internal/render"
)

// Upper bounds for query parameters.
const (
	maxDays  = 366
	maxHours = 24 * 31
)

// Source is the read side of the sample store used by the API.
type Source interface {
	aggregate.Querier
	Count(ctx context.Context) (int64, error)
}

// Settings are the config-derived values every request reads. They are
// swapped as a whole on config reload.
type Settings struct {
	Options     aggregate.Options
	Days        int
	RecentHours int
	Style       render.Style

	// Textfile is the collector metrics textfile read by health; empty
	// leaves collector status out.
	Textfile string
}

// SettingsFromConfig derives API settings from the shared config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Options:     aggregate.OptionsFromConfig(cfg),
		Days:        cfg.Report.Days,
		RecentHours: cfg.Report.RecentHours,
		Style:       render.DefaultStyle(),
		Textfile:    cfg.Metrics.Textfile,
	}
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	src      Source
	settings atomic.Pointer[Settings]
	now      func() time.Time
	mux      *http.ServeMux

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Handler reading from src and registers all routes.
func New(src Source, s Settings) *Handler {
	h := &Handler{
		src:      src,
		now:      time.Now,
		mux:      http.NewServeMux(),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkcomfort",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linkcomfort",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	h.settings.Store(&s)
	h.registry.MustRegister(h.requests, h.duration, collectors.NewGoCollector())

	h.route("/api/v1/health", h.health)
	h.route("/api/v1/summary", h.summary)
	h.route("/api/v1/buckets", h.buckets)
	h.route("/api/v1/weekday", h.weekday)
	h.route("/api/v1/recent", h.recent)
	h.route("/api/v1/report.png", h.reportPNG)
	h.mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry}))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Update replaces the settings used by subsequent requests.
func (h *Handler) Update(s Settings) {
	h.settings.Store(&s)
	slog.Info("api: settings updated",
		"open_hour", s.Options.OpenHour,
		"close_hour", s.Options.CloseHour,
		"days", s.Days,
	)
}

// Summary builds the summary for the configured default window.
func (h *Handler) Summary(ctx context.Context) (SummaryResponse, error) {
	s := h.settings.Load()
	r, err := h.build(ctx, s, s.Days)
	if err != nil {
		return SummaryResponse{}, err
	}
	return toSummaryResponse(r), nil
}

func (h *Handler) route(path string, fn http.HandlerFunc) {
	labels := prometheus.Labels{"route": path}
	var next http.Handler = fn
	next = promhttp.InstrumentHandlerDuration(h.duration.MustCurryWith(labels), next)
	next = promhttp.InstrumentHandlerCounter(h.requests.MustCurryWith(labels), next)
	h.mux.Handle(path, next)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: store reachability, sample count and,
// when configured, the last collector run.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s := h.settings.Load()
	resp := HealthResponse{
		Status:    "ok",
		Timezone:  s.Options.Location.String(),
		OpenHour:  s.Options.OpenHour,
		CloseHour: s.Options.CloseHour,
	}
	if s.Textfile != "" {
		resp.Collector = readCollectorStatus(s.Textfile, h.now())
	}
	n, err := h.src.Count(r.Context())
	if err != nil {
		slog.Error("api: health: count samples", "err", err)
		resp.Status = "unavailable"
		resp.Error = err.Error()
		jsonResp(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Samples = n
	jsonResp(w, http.StatusOK, resp)
}

// summary returns GET /api/v1/summary?days=N.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, toSummaryResponse(rep))
}

// buckets returns GET /api/v1/buckets?days=N: the full date × hour grid.
func (h *Handler) buckets(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, BucketsResponse{
		Start: rep.Start.Format(time.RFC3339),
		End:   rep.End.Format(time.RFC3339),
		Grid:  rep.Grid,
	})
}

// weekday returns GET /api/v1/weekday?days=N.
func (h *Handler) weekday(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, rep.Weekday)
}

// recent returns GET /api/v1/recent?hours=N: raw samples, oldest first.
func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s := h.settings.Load()
	hours, err := intParam(r, "hours", s.RecentHours, maxHours)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	samples, err := aggregate.Recent(r.Context(), h.src, h.now(), hours, s.Options.Scoring)
	if err != nil {
		slog.Error("api: recent", "err", err)
		jsonErr(w, http.StatusInternalServerError, "query failed")
		return
	}
	out := make([]RecentSample, 0, len(samples))
	for _, ss := range samples {
		out = append(out, toRecentSample(ss, s.Options.Location))
	}
	jsonResp(w, http.StatusOK, out)
}

// reportPNG returns GET /api/v1/report.png?days=N: the rendered report.
func (h *Handler) reportPNG(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, rep, h.settings.Load().Style); err != nil {
		slog.Error("api: render report", "err", err)
		jsonErr(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// report handles method and days validation and builds the report. It
// writes the error response itself and returns false on failure.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) (*aggregate.Report, bool) {
	if !allowGet(w, r) {
		return nil, false
	}
	s := h.settings.Load()
	days, err := intParam(r, "days", s.Days, maxDays)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rep, err := h.build(r.Context(), s, days)
	if err != nil {
		slog.Error("api: build report", "path", r.URL.Path, "err", err)
		jsonErr(w, http.StatusInternalServerError, "query failed")
		return nil, false
	}
	return rep, true
}

func (h *Handler) build(ctx context.Context, s *Settings, days int) (*aggregate.Report, error) {
	return aggregate.Build(ctx, h.src, h.now(), days, s.RecentHours, s.Options)
}

// --- helpers ----------------------------------------------------------------

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// intParam reads a positive integer query parameter, falling back to def
// when absent.
func intParam(r *http.Request, name string, def, limit int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if v > limit {
		return 0, fmt.Errorf("%s must be at most %d", name, limit)
	}
	return v, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toAverage(a aggregate.Average) AverageResponse {
	out := AverageResponse{Count: a.Count}
	if a.Valid {
		m := a.Mean
		out.Mean = &m
		out.Label = score.LabelFor(m)
	}
	return out
}

// toSummaryResponse maps a built report to its JSON summary.
func toSummaryResponse(r *aggregate.Report) SummaryResponse {
	resp := SummaryResponse{
		GeneratedAt:    r.GeneratedAt.Format(time.RFC3339),
		Start:          r.Start.Format(time.RFC3339),
		End:            r.End.Format(time.RFC3339),
		Days:           r.Days,
		OperatingHours: toAverage(r.Summary.OperatingHours),
		AllHours:       toAverage(r.Summary.AllHours),
		Samples:        r.Summary.Samples,
		Errors:         r.Summary.Errors,
		ErrorRate:      r.Summary.ErrorRate(),
		Diagnostics:    computeDiagnostics(r),
		Text:           render.SummaryText(r),
	}
	if r.Grid != nil {
		c := r.Grid.Count()
		resp.Coverage = CoverageResponse{
			Scored:    c[aggregate.CellScored],
			AllErrors: c[aggregate.CellAllErrors],
			NoData:    c[aggregate.CellNoData],
		}
	}
	return resp
}

func toRecentSample(ss score.ScoredSample, loc *time.Location) RecentSample {
	if loc == nil {
		loc = time.Local
	}
	out := RecentSample{
		Timestamp: ss.Timestamp.In(loc).Format(time.RFC3339),
		Status:    string(ss.Status),
		Provider:  ss.Provider,
		ServerID:  ss.ServerID,
		Error:     ss.ErrorMessage,
	}
	if m := ss.Metrics; m != nil {
		dl, ul, p, j := m.DownloadMbps, m.UploadMbps, m.PingMs, m.JitterMs
		out.DownloadMbps, out.UploadMbps, out.PingMs, out.JitterMs = &dl, &ul, &p, &j
	}
	if ss.Scored {
		sc := ss.Score
		out.Score = &sc
		out.Label = ss.Label
	}
	return out
}
