package score

import "github.com/linkcomfort/linkcomfort/pkg/types"

// ScoredSample is a Sample together with its comfort score. It is derived on
// demand and never persisted.
type ScoredSample struct {
	types.Sample

	// Scored is false for error samples; Score and Label are then unset.
	Scored bool
	Score  float64
	Label  string
}

// Apply scores every sample in order. Error samples are kept with
// Scored == false so callers can still count them.
func Apply(samples []types.Sample, cfg Config) []ScoredSample {
	out := make([]ScoredSample, 0, len(samples))
	for _, s := range samples {
		ss := ScoredSample{Sample: s}
		if r, ok := Score(s, cfg); ok {
			ss.Scored = true
			ss.Score = r.Score
			ss.Label = r.Label
		}
		out = append(out, ss)
	}
	return out
}
