package aggregate

import (
	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// Average is a mean over scored samples. Valid is false when nothing
// contributed; Mean is then 0 and must not be shown as a score.
type Average struct {
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
	Valid bool    `json:"valid"`
}

// Summary holds the two headline averages plus sample counts for the window.
type Summary struct {
	OperatingHours Average `json:"operating_hours"`
	AllHours       Average `json:"all_hours"`

	Samples int `json:"samples"`
	Errors  int `json:"errors"`
}

// ErrorRate is the share of samples that failed, or 0 with no samples.
func (s Summary) ErrorRate() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Samples)
}

// Summarize computes sample-level means over [opts.Start, opts.End): one
// restricted to operating hours, one over every hour. Error samples count
// toward Samples and Errors only.
func Summarize(samples []types.Sample, opts Options) Summary {
	loc := opts.location()
	var (
		sum          Summary
		all, operate []float64
	)
	for _, s := range score.Apply(samples, opts.Scoring) {
		if !opts.inRange(s.Timestamp) {
			continue
		}
		sum.Samples++
		if !s.Scored {
			sum.Errors++
			continue
		}
		all = append(all, s.Score)
		if opts.Within(s.Timestamp.In(loc).Hour()) {
			operate = append(operate, s.Score)
		}
	}
	sum.AllHours = average(all)
	sum.OperatingHours = average(operate)
	return sum
}

func average(xs []float64) Average {
	m, ok := mean(xs)
	return Average{Mean: m, Count: len(xs), Valid: ok}
}
