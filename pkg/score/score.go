package score

import (
	"fmt"
	"math"

	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// Comfort labels, ordered from best to worst.
const (
	LabelVeryComfortable  = "very comfortable"
	LabelComfortable      = "comfortable"
	LabelSomewhatUnstable = "somewhat unstable"
	LabelUncomfortable    = "uncomfortable"
)

// Lower bounds of the label bands. Each band is inclusive-lower and
// exclusive-upper except the top band, which includes 100.
const (
	ThresholdVeryComfortable  = 90.0
	ThresholdComfortable      = 70.0
	ThresholdSomewhatUnstable = 50.0
)

// Labels lists every band label from best to worst.
var Labels = []string{
	LabelVeryComfortable,
	LabelComfortable,
	LabelSomewhatUnstable,
	LabelUncomfortable,
}

// Weights are per-metric percentages. They must sum to 100.
type Weights struct {
	Download float64 `yaml:"download" json:"download"`
	Upload   float64 `yaml:"upload" json:"upload"`
	Ping     float64 `yaml:"ping" json:"ping"`
	Jitter   float64 `yaml:"jitter" json:"jitter"`
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Download + w.Upload + w.Ping + w.Jitter
}

// Range is the normalization interval for one metric.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Bounds holds the normalization interval of every metric. Download and upload
// are in Mbps; ping and jitter in milliseconds.
type Bounds struct {
	Download Range `yaml:"download" json:"download"`
	Upload   Range `yaml:"upload" json:"upload"`
	Ping     Range `yaml:"ping" json:"ping"`
	Jitter   Range `yaml:"jitter" json:"jitter"`
}

// Config is the immutable scoring configuration handed to Score at call time.
type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`
	Bounds  Bounds  `yaml:"bounds" json:"bounds"`
}

// DefaultConfig returns the stock weights (35/20/30/15) and bounds.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Download: 35, Upload: 20, Ping: 30, Jitter: 15},
		Bounds: Bounds{
			Download: Range{Min: 0, Max: 100},
			Upload:   Range{Min: 0, Max: 50},
			Ping:     Range{Min: 0, Max: 100},
			Jitter:   Range{Min: 0, Max: 50},
		},
	}
}

// weightSumTolerance absorbs float noise from YAML values like 33.3.
const weightSumTolerance = 1e-6

// Validate rejects weights that do not sum to 100 and degenerate bounds.
func (c Config) Validate() error {
	for name, w := range map[string]float64{
		"download": c.Weights.Download,
		"upload":   c.Weights.Upload,
		"ping":     c.Weights.Ping,
		"jitter":   c.Weights.Jitter,
	} {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("scoring.weights.%s must not be negative, got %v", name, w)
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-100) > weightSumTolerance {
		return fmt.Errorf("scoring.weights must sum to 100, got %v", sum)
	}
	for name, r := range map[string]Range{
		"download": c.Bounds.Download,
		"upload":   c.Bounds.Upload,
		"ping":     c.Bounds.Ping,
		"jitter":   c.Bounds.Jitter,
	} {
		if r.Min < 0 {
			return fmt.Errorf("scoring.bounds.%s.min must not be negative, got %v", name, r.Min)
		}
		if !(r.Max > r.Min) {
			return fmt.Errorf("scoring.bounds.%s: max (%v) must be greater than min (%v)", name, r.Max, r.Min)
		}
	}
	return nil
}

// Result is the outcome of scoring one ok sample.
type Result struct {
	// Score is the composite comfort score in the range 0–100, rounded to
	// one decimal place.
	Score float64

	// Label is the comfort band Score falls in.
	Label string

	// The four normalized metric values (each 0–1) used to compute Score.
	// Useful for rendering per-metric breakdowns.
	DownloadFactor float64
	UploadFactor   float64
	PingFactor     float64
	JitterFactor   float64
}

// Score computes the comfort score of s.
//
// The second return value is false for error samples: a failed measurement
// has no score at all and must be left out of every average, not counted
// as zero.
//
// Formula:
//
//	score = (
//	    norm(download)      * w.download +
//	    norm(upload)        * w.upload   +
//	    (1 - norm(ping))    * w.ping     +
//	    (1 - norm(jitter))  * w.jitter
//	)                                       // weights are percentages
//
// where norm(v) = clamp01((v - min) / (max - min)).
func Score(s types.Sample, cfg Config) (Result, bool) {
	if !s.OK() || s.Metrics == nil {
		return Result{}, false
	}
	m := s.Metrics

	dl := normalize(m.DownloadMbps, cfg.Bounds.Download)
	ul := normalize(m.UploadMbps, cfg.Bounds.Upload)
	ping := 1 - normalize(m.PingMs, cfg.Bounds.Ping)
	jitter := 1 - normalize(m.JitterMs, cfg.Bounds.Jitter)

	raw := dl*cfg.Weights.Download +
		ul*cfg.Weights.Upload +
		ping*cfg.Weights.Ping +
		jitter*cfg.Weights.Jitter

	score := round1(clamp(raw, 0, 100))
	return Result{
		Score:          score,
		Label:          LabelFor(score),
		DownloadFactor: dl,
		UploadFactor:   ul,
		PingFactor:     ping,
		JitterFactor:   jitter,
	}, true
}

// LabelFor maps a score to its comfort band. Scores outside 0–100 are
// clamped first.
func LabelFor(score float64) string {
	switch s := clamp(score, 0, 100); {
	case s >= ThresholdVeryComfortable:
		return LabelVeryComfortable
	case s >= ThresholdComfortable:
		return LabelComfortable
	case s >= ThresholdSomewhatUnstable:
		return LabelSomewhatUnstable
	default:
		return LabelUncomfortable
	}
}

// normalize linearly maps v from r onto [0, 1], clipping at both ends.
func normalize(v float64, r Range) float64 {
	span := r.Max - r.Min
	if span <= 0 {
		// Rejected by Validate; treat as a step at Min.
		if v >= r.Max {
			return 1
		}
		return 0
	}
	return clamp01((v - r.Min) / span)
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
