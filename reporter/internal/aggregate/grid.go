package aggregate

import (
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// HoursPerDay is the width of every grid row.
const HoursPerDay = 24

// Day is one grid row: all 24 local hours of a calendar date.
type Day struct {
	Date  time.Time           `json:"date"`
	Hours [HoursPerDay]Bucket `json:"hours"`
}

// Grid is the (date, hour) bucket matrix. Every hour of every date in the
// window is present; empty hours are explicit CellNoData buckets.
type Grid struct {
	Location  *time.Location `json:"-"`
	OpenHour  int            `json:"open_hour"`
	CloseHour int            `json:"close_hour"`
	Days      []Day          `json:"days"`
}

// Aggregate scores samples with opts.Scoring and groups them by facility
// local (date, hour). Samples outside [opts.Start, opts.End) are ignored.
// When the window is unset the grid spans the dates of the samples given.
func Aggregate(samples []types.Sample, opts Options) *Grid {
	loc := opts.location()
	g := &Grid{Location: loc, OpenHour: opts.OpenHour, CloseHour: opts.CloseHour}

	scored := make([]score.ScoredSample, 0, len(samples))
	for _, s := range score.Apply(samples, opts.Scoring) {
		if opts.inRange(s.Timestamp) {
			scored = append(scored, s)
		}
	}

	first, last, ok := dateSpan(scored, opts, loc)
	if !ok {
		return g
	}

	// Rows are keyed by calendar date string; time.Time values are not
	// reliable map keys across locations.
	accs := make(map[string]*[HoursPerDay]accumulator)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		g.Days = append(g.Days, Day{Date: d})
		accs[dateKey(d)] = &[HoursPerDay]accumulator{}
	}

	for _, s := range scored {
		lt := s.Timestamp.In(loc)
		if row, ok := accs[dateKey(lt)]; ok {
			row[lt.Hour()].add(s)
		}
	}

	for i := range g.Days {
		date := g.Days[i].Date
		row := accs[dateKey(date)]
		for h := 0; h < HoursPerDay; h++ {
			g.Days[i].Hours[h] = row[h].bucket(date, h, opts.Within(h))
		}
	}
	return g
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// dateSpan picks the first and last local dates the grid must cover.
func dateSpan(scored []score.ScoredSample, opts Options, loc *time.Location) (time.Time, time.Time, bool) {
	var first, last time.Time
	for _, s := range scored {
		d := localMidnight(s.Timestamp, loc)
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	if !opts.Start.IsZero() {
		first = localMidnight(opts.Start, loc)
	}
	if !opts.End.IsZero() {
		last = localMidnight(opts.End.Add(-time.Nanosecond), loc)
	}
	if first.IsZero() || last.IsZero() || last.Before(first) {
		return time.Time{}, time.Time{}, false
	}
	return first, last, true
}

// Cell returns the bucket for a local date and hour.
func (g *Grid) Cell(date time.Time, hour int) (Bucket, bool) {
	if hour < 0 || hour >= HoursPerDay {
		return Bucket{}, false
	}
	want := dateKey(date.In(g.Location))
	for _, d := range g.Days {
		if dateKey(d.Date) == want {
			return d.Hours[hour], true
		}
	}
	return Bucket{}, false
}

// Buckets flattens the grid in (date, hour) order.
func (g *Grid) Buckets() []Bucket {
	out := make([]Bucket, 0, len(g.Days)*HoursPerDay)
	for _, d := range g.Days {
		out = append(out, d.Hours[:]...)
	}
	return out
}

// OperatingBuckets is Buckets restricted to operating hours.
func (g *Grid) OperatingBuckets() []Bucket {
	var out []Bucket
	for _, d := range g.Days {
		for h := g.OpenHour; h < g.CloseHour && h < HoursPerDay; h++ {
			out = append(out, d.Hours[h])
		}
	}
	return out
}

// Count returns how many operating-hour buckets are in each state.
func (g *Grid) Count() map[CellState]int {
	counts := map[CellState]int{CellNoData: 0, CellAllErrors: 0, CellScored: 0}
	for _, b := range g.OperatingBuckets() {
		counts[b.State]++
	}
	return counts
}
