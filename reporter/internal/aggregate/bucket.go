package aggregate

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/score"
)

// CellState distinguishes the three things a bucket can say about its hour.
type CellState int

const (
	// CellNoData means no sample of any status fell in the bucket.
	CellNoData CellState = iota
	// CellAllErrors means samples exist but every one failed, so there is
	// nothing to average.
	CellAllErrors
	// CellScored means at least one ok sample contributed to MeanScore.
	CellScored
)

func (c CellState) String() string {
	switch c {
	case CellAllErrors:
		return "all_errors"
	case CellScored:
		return "scored"
	default:
		return "no_data"
	}
}

// MarshalText lets CellState appear by name in JSON.
func (c CellState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (c *CellState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_data":
		*c = CellNoData
	case "all_errors":
		*c = CellAllErrors
	case "scored":
		*c = CellScored
	default:
		return fmt.Errorf("aggregate: unknown cell state %q", text)
	}
	return nil
}

// Bucket is the rollup of one local hour. It is a pure projection of the
// samples it was built from.
type Bucket struct {
	// Date is local midnight of the bucket's calendar day. Zero in
	// weekday rollups, which span many dates.
	Date time.Time `json:"date"`
	Hour int       `json:"hour"`

	OKCount    int `json:"ok_count"`
	ErrorCount int `json:"error_count"`

	// MeanScore is the mean comfort score of ok samples. Meaningful only
	// when State == CellScored.
	MeanScore float64   `json:"mean_score"`
	State     CellState `json:"state"`

	// Operating reports whether Hour is inside facility operating hours.
	Operating bool `json:"operating"`
}

// Options is the immutable configuration an aggregation runs under.
type Options struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
	Scoring   score.Config

	// Start and End bound the samples considered, [Start, End).
	Start time.Time
	End   time.Time
}

// OptionsFromConfig derives aggregation options from the shared config.
// The time window is left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Location:  cfg.Facility.Location(),
		OpenHour:  cfg.Facility.OpenHour,
		CloseHour: cfg.Facility.CloseHour,
		Scoring:   cfg.Scoring,
	}
}

// Within reports whether hour falls inside operating hours.
func (o Options) Within(hour int) bool {
	return o.OpenHour <= hour && hour < o.CloseHour
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// inRange reports whether t falls inside [Start, End). A zero bound is open.
func (o Options) inRange(t time.Time) bool {
	if !o.Start.IsZero() && t.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !t.Before(o.End) {
		return false
	}
	return true
}

// accumulator collects one bucket's inputs before its mean is taken.
type accumulator struct {
	scores []float64
	errors int
}

func (a *accumulator) add(s score.ScoredSample) {
	if s.Scored {
		a.scores = append(a.scores, s.Score)
		return
	}
	a.errors++
}

// bucket finalises the accumulator. Error samples are counted but never
// averaged in.
func (a *accumulator) bucket(date time.Time, hour int, operating bool) Bucket {
	b := Bucket{
		Date:       date,
		Hour:       hour,
		OKCount:    len(a.scores),
		ErrorCount: a.errors,
		Operating:  operating,
	}
	if m, ok := mean(a.scores); ok {
		b.MeanScore = m
		b.State = CellScored
	} else if a.errors > 0 {
		b.State = CellAllErrors
	}
	return b
}

func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	m, err := stats.Mean(xs)
	if err != nil {
		return 0, false
	}
	return m, true
}

// localMidnight truncates t to the start of its calendar day in loc.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
