package api

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Collector gauges read back from the metrics textfile.
const (
	metricRunSuccess   = "linkcomfort_last_run_success"
	metricRunTimestamp = "linkcomfort_last_run_timestamp_seconds"
	metricRunAttempts  = "linkcomfort_last_run_attempts"
)

// CollectorStatus is the last collector run as recorded in its node_exporter
// textfile.
type CollectorStatus struct {
	LastRun    string  `json:"last_run,omitempty"` // RFC3339
	AgeSeconds float64 `json:"age_seconds,omitempty"`
	Success    bool    `json:"success"`
	Attempts   int     `json:"attempts,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// readCollectorStatus loads path and reports the last run relative to now.
// Read and parse failures are reported in the Error field.
func readCollectorStatus(path string, now time.Time) *CollectorStatus {
	f, err := os.Open(path)
	if err != nil {
		return &CollectorStatus{Error: err.Error()}
	}
	defer f.Close()

	st, err := parseRunStatus(f, now)
	if err != nil {
		return &CollectorStatus{Error: err.Error()}
	}
	return st
}

func parseRunStatus(r io.Reader, now time.Time) (*CollectorStatus, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse collector textfile: %w", err)
	}

	ts, ok := gaugeValue(mfs[metricRunTimestamp])
	if !ok || ts <= 0 {
		return nil, fmt.Errorf("collector textfile has no %s", metricRunTimestamp)
	}
	sec, frac := math.Modf(ts)
	last := time.Unix(int64(sec), int64(frac*1e9))

	success, _ := gaugeValue(mfs[metricRunSuccess])
	attempts, _ := gaugeValue(mfs[metricRunAttempts])
	return &CollectorStatus{
		LastRun:    last.UTC().Format(time.RFC3339),
		AgeSeconds: math.Round(now.Sub(last).Seconds()),
		Success:    success == 1,
		Attempts:   int(attempts),
	}, nil
}

// gaugeValue returns the first sample of a gauge or untyped family.
func gaugeValue(mf *dto.MetricFamily) (float64, bool) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	m := mf.GetMetric()[0]
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	}
	return 0, false
}
