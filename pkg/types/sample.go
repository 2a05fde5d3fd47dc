package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the outcome of one measurement attempt.
type Status string

// Status values persisted in the samples table.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Metrics is the full metric set of a successful measurement.
type Metrics struct {
	DownloadMbps float64
	UploadMbps   float64
	PingMs       float64
	JitterMs     float64
}

// Sample is one measurement attempt, successful or not.
type Sample struct {
	// Timestamp is the instant of measurement. Its location is preserved
	// through the store so local-time grouping stays stable.
	Timestamp time.Time

	Status Status

	// Metrics is non-nil iff Status == StatusOK.
	Metrics *Metrics

	// Provider and ServerID are required on ok samples and empty on errors.
	Provider string
	ServerID string

	// ServerName and ResultURL are optional descriptive metadata.
	ServerName string
	ResultURL  string

	// ErrorMessage is the terminal cause, set iff Status == StatusError.
	ErrorMessage string

	// RawPayload is the captured command output, kept regardless of status.
	RawPayload string

	// RunID correlates a stored sample with the collector log lines of the
	// cycle that produced it.
	RunID string
}

// NewOK builds an ok Sample.
func NewOK(ts time.Time, m Metrics, provider, serverID string) Sample {
	return Sample{
		Timestamp: ts,
		Status:    StatusOK,
		Metrics:   &m,
		Provider:  provider,
		ServerID:  serverID,
	}
}

// NewError builds an error Sample.
func NewError(ts time.Time, cause, raw string) Sample {
	return Sample{
		Timestamp:    ts,
		Status:       StatusError,
		ErrorMessage: cause,
		RawPayload:   raw,
	}
}

// OK reports whether s carries a metric set.
func (s Sample) OK() bool { return s.Status == StatusOK }

// Validate checks the metric/error exclusivity invariant.
func (s Sample) Validate() error {
	if s.Timestamp.IsZero() {
		return errors.New("sample: timestamp is required")
	}
	switch s.Status {
	case StatusOK:
		if s.Metrics == nil {
			return errors.New("sample: ok sample has no metrics")
		}
		if s.ErrorMessage != "" {
			return errors.New("sample: ok sample carries an error message")
		}
		if s.Provider == "" || s.ServerID == "" {
			return errors.New("sample: ok sample requires provider and server id")
		}
		return s.Metrics.validate()
	case StatusError:
		if s.Metrics != nil {
			return errors.New("sample: error sample carries metrics")
		}
		if s.ErrorMessage == "" {
			return errors.New("sample: error sample has no error message")
		}
		if s.Provider != "" || s.ServerID != "" || s.ServerName != "" || s.ResultURL != "" {
			return errors.New("sample: error sample carries server metadata")
		}
		return nil
	default:
		return fmt.Errorf("sample: unknown status %q", s.Status)
	}
}

func (m *Metrics) validate() error {
	for name, v := range map[string]float64{
		"download_mbps": m.DownloadMbps,
		"upload_mbps":   m.UploadMbps,
		"ping_ms":       m.PingMs,
		"jitter_ms":     m.JitterMs,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("sample: %s must be a finite non-negative number, got %v", name, v)
		}
	}
	return nil
}
