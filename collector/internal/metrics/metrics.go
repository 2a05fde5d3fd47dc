package metrics

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linkcomfort/linkcomfort/pkg/types"
)

const namespace = "linkcomfort"

// Run summarises one collector cycle for export.
type Run struct {
	Sample   types.Sample
	Scored   bool
	Score    float64
	Attempts int
	Duration time.Duration
	Cleaned  int64
}

// Collector holds the gauges describing the most recent collector run on a
// private registry. The collector is a one-shot process, so every value is a
// gauge of the last run rather than a counter.
type Collector struct {
	reg *prometheus.Registry

	download  prometheus.Gauge
	upload    prometheus.Gauge
	ping      prometheus.Gauge
	jitter    prometheus.Gauge
	score     prometheus.Gauge
	success   prometheus.Gauge
	attempts  prometheus.Gauge
	timestamp prometheus.Gauge
	duration  prometheus.Gauge
	cleaned   prometheus.Gauge
}

// New registers all gauges on a fresh registry.
func New() *Collector {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	c := &Collector{
		reg:       prometheus.NewRegistry(),
		download:  gauge("last_download_mbps", "Download throughput of the last measurement in Mbps."),
		upload:    gauge("last_upload_mbps", "Upload throughput of the last measurement in Mbps."),
		ping:      gauge("last_ping_ms", "Ping latency of the last measurement in milliseconds."),
		jitter:    gauge("last_jitter_ms", "Jitter of the last measurement in milliseconds."),
		score:     gauge("last_score", "Comfort score (0-100) of the last measurement."),
		success:   gauge("last_run_success", "1 if the last measurement produced metrics, 0 otherwise."),
		attempts:  gauge("last_run_attempts", "Command launches made by the last run."),
		timestamp: gauge("last_run_timestamp_seconds", "Unix time of the last measurement."),
		duration:  gauge("last_run_duration_seconds", "Wall time of the last collector run."),
		cleaned:   gauge("last_cleanup_deleted_samples", "Samples removed by the last retention cleanup."),
	}
	c.reg.MustRegister(
		c.download, c.upload, c.ping, c.jitter, c.score,
		c.success, c.attempts, c.timestamp, c.duration, c.cleaned,
	)
	return c
}

// Registry exposes the underlying registry for gathering and tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Observe records one run. Metric gauges of a failed run are NaN so a
// dashboard never mistakes a failure for a zero-speed link.
func (c *Collector) Observe(r Run) {
	c.timestamp.Set(float64(r.Sample.Timestamp.Unix()))
	c.attempts.Set(float64(r.Attempts))
	c.duration.Set(r.Duration.Seconds())
	c.cleaned.Set(float64(r.Cleaned))

	if m := r.Sample.Metrics; r.Sample.OK() && m != nil {
		c.success.Set(1)
		c.download.Set(m.DownloadMbps)
		c.upload.Set(m.UploadMbps)
		c.ping.Set(m.PingMs)
		c.jitter.Set(m.JitterMs)
	} else {
		c.success.Set(0)
		for _, g := range []prometheus.Gauge{c.download, c.upload, c.ping, c.jitter} {
			g.Set(math.NaN())
		}
	}

	if r.Scored {
		c.score.Set(r.Score)
	} else {
		c.score.Set(math.NaN())
	}
}

// WriteTextfile atomically writes the registry in the Prometheus text format
// for node_exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
