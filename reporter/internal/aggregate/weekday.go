package aggregate

import (
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// DaysPerWeek is the number of weekday rows.
const DaysPerWeek = 7

// WeekdayNames labels WeekdayGrid rows, Monday first.
var WeekdayNames = [DaysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// WeekdayGrid averages operating-hour buckets across every date that shares a
// weekday. Rows are Monday (0) through Sunday (6); columns run from OpenHour
// to CloseHour-1.
type WeekdayGrid struct {
	OpenHour  int                   `json:"open_hour"`
	CloseHour int                   `json:"close_hour"`
	Rows      [DaysPerWeek][]Bucket `json:"rows"`
}

// ByWeekday builds the weekday × hour rollup for operating hours. Samples
// outside operating hours or outside [opts.Start, opts.End) are ignored.
func ByWeekday(samples []types.Sample, opts Options) *WeekdayGrid {
	loc := opts.location()
	width := opts.CloseHour - opts.OpenHour
	if width < 0 {
		width = 0
	}

	var accs [DaysPerWeek][]accumulator
	for d := range accs {
		accs[d] = make([]accumulator, width)
	}

	for _, s := range score.Apply(samples, opts.Scoring) {
		if !opts.inRange(s.Timestamp) {
			continue
		}
		lt := s.Timestamp.In(loc)
		if !opts.Within(lt.Hour()) {
			continue
		}
		accs[weekdayIndex(lt.Weekday())][lt.Hour()-opts.OpenHour].add(s)
	}

	w := &WeekdayGrid{OpenHour: opts.OpenHour, CloseHour: opts.CloseHour}
	for d := range accs {
		w.Rows[d] = make([]Bucket, width)
		for i := range accs[d] {
			w.Rows[d][i] = accs[d][i].bucket(time.Time{}, opts.OpenHour+i, true)
		}
	}
	return w
}

// Cell returns the bucket for a Monday-first weekday index and local hour.
func (w *WeekdayGrid) Cell(weekday, hour int) (Bucket, bool) {
	if weekday < 0 || weekday >= DaysPerWeek || hour < w.OpenHour || hour >= w.CloseHour {
		return Bucket{}, false
	}
	return w.Rows[weekday][hour-w.OpenHour], true
}

// weekdayIndex maps time.Weekday (Sunday = 0) to Monday = 0.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % DaysPerWeek
}
