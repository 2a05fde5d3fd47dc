package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkcomfort/linkcomfort/collector/internal/measure"
	"github.com/linkcomfort/linkcomfort/collector/internal/metrics"
	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// persistTimeout bounds the store writes that follow a measurement. They
// run detached from the caller's cancellation so an interrupted run still
// records its sample.
const persistTimeout = 30 * time.Second

// Measurer produces one sample per call and never fails.
type Measurer interface {
	Run(ctx context.Context) measure.Result
}

// Store is the subset of the sample store a cycle writes to.
type Store interface {
	Append(ctx context.Context, s types.Sample) (int64, error)
	CleanupOld(ctx context.Context, retentionDays int) (int64, error)
}

// Exporter receives the run summary. *metrics.Collector satisfies it.
type Exporter interface {
	Observe(r metrics.Run)
	WriteTextfile(path string) error
}

// Cycle is one scheduled collector invocation: measure, persist, prune.
type Cycle struct {
	Measurer      Measurer
	Store         Store
	Scoring       score.Config
	RetentionDays int

	// Exporter and Textfile are optional; both must be set to export.
	Exporter Exporter
	Textfile string

	newID func() string
	now   func() time.Time
}

// Outcome is what a completed cycle did.
type Outcome struct {
	ID       int64
	Sample   types.Sample
	Scored   bool
	Score    score.Result
	Attempts int
	Cleaned  int64
}

// Run executes the cycle. A failed measurement is not an error: it is stored
// as an error sample. Only store failures are returned, and they leave the
// database unchanged for the failing statement.
func (c *Cycle) Run(ctx context.Context) (Outcome, error) {
	newID, now := c.newID, c.now
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}

	started := now()
	runID := newID()
	log := slog.With("run_id", runID)
	log.Info("cycle: measurement started")

	res := c.Measurer.Run(ctx)
	sample := res.Sample
	sample.RunID = runID

	out := Outcome{Sample: sample, Attempts: res.Attempts}
	if r, ok := score.Score(sample, c.Scoring); ok {
		out.Scored, out.Score = true, r
		log.Info("cycle: measurement scored",
			"score", r.Score,
			"label", r.Label,
			"download_mbps", sample.Metrics.DownloadMbps,
			"upload_mbps", sample.Metrics.UploadMbps,
			"ping_ms", sample.Metrics.PingMs,
			"jitter_ms", sample.Metrics.JitterMs,
			"provider", sample.Provider,
			"server_id", sample.ServerID,
		)
	} else {
		log.Warn("cycle: measurement failed", "cause", sample.ErrorMessage, "attempts", res.Attempts)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	id, err := c.Store.Append(pctx, sample)
	if err != nil {
		return out, fmt.Errorf("cycle: %w", err)
	}
	out.ID = id
	log.Info("cycle: sample stored", "id", id, "status", sample.Status)

	cleaned, err := c.Store.CleanupOld(pctx, c.RetentionDays)
	if err != nil {
		return out, fmt.Errorf("cycle: %w", err)
	}
	out.Cleaned = cleaned

	c.export(log, out, now().Sub(started))
	return out, nil
}

// export publishes the run summary. Export failures are logged only: the
// sample is already durable.
func (c *Cycle) export(log *slog.Logger, out Outcome, elapsed time.Duration) {
	if c.Exporter == nil || c.Textfile == "" {
		return
	}
	c.Exporter.Observe(metrics.Run{
		Sample:   out.Sample,
		Scored:   out.Scored,
		Score:    out.Score.Score,
		Attempts: out.Attempts,
		Duration: elapsed,
		Cleaned:  out.Cleaned,
	})
	if err := c.Exporter.WriteTextfile(c.Textfile); err != nil {
		log.Warn("cycle: metrics export failed", "path", c.Textfile, "err", err)
	}
}

// Cleanup runs retention pruning on its own.
func Cleanup(ctx context.Context, s Store, retentionDays int) (int64, error) {
	n, err := s.CleanupOld(ctx, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cycle: %w", err)
	}
	slog.Info("cycle: cleanup finished", "deleted", n, "retention_days", retentionDays)
	return n, nil
}
