package api

import (
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Samples   int64  `json:"samples"`
	Timezone  string `json:"timezone"`
	OpenHour  int    `json:"open_hour"`
	CloseHour int    `json:"close_hour"`
	Error     string `json:"error,omitempty"`

	// Collector is present when a metrics textfile is configured.
	Collector *CollectorStatus `json:"collector,omitempty"`
}

// AverageResponse is one headline average. Mean and Label are null when no
// scored sample contributed; a missing average is never reported as 0.
type AverageResponse struct {
	Mean  *float64 `json:"mean"`
	Label string   `json:"label,omitempty"`
	Count int      `json:"count"`
}

// CoverageResponse counts operating-hour cells by state.
type CoverageResponse struct {
	Scored    int `json:"scored"`
	AllErrors int `json:"all_errors"`
	NoData    int `json:"no_data"`
}

// SummaryResponse is the payload for GET /api/v1/summary and the data of
// every stream message.
type SummaryResponse struct {
	GeneratedAt    string           `json:"generated_at"` // RFC3339
	Start          string           `json:"start"`
	End            string           `json:"end"`
	Days           int              `json:"days"`
	OperatingHours AverageResponse  `json:"operating_hours"`
	AllHours       AverageResponse  `json:"all_hours"`
	Samples        int              `json:"samples"`
	Errors         int              `json:"errors"`
	ErrorRate      float64          `json:"error_rate"`
	Coverage       CoverageResponse `json:"coverage"`
	Diagnostics    []DiagnosticHint `json:"diagnostics"`
	Text           string           `json:"text"`
}

// BucketsResponse is the payload for GET /api/v1/buckets.
type BucketsResponse struct {
	Start string          `json:"start"`
	End   string          `json:"end"`
	Grid  *aggregate.Grid `json:"grid"`
}

// RecentSample is one entry of GET /api/v1/recent. Metric fields are null on
// failed measurements.
type RecentSample struct {
	Timestamp    string   `json:"timestamp"`
	Status       string   `json:"status"`
	DownloadMbps *float64 `json:"download_mbps"`
	UploadMbps   *float64 `json:"upload_mbps"`
	PingMs       *float64 `json:"ping_ms"`
	JitterMs     *float64 `json:"jitter_ms"`
	Score        *float64 `json:"score"`
	Label        string   `json:"label,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	ServerID     string   `json:"server_id,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
