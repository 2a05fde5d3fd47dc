package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
)

// slotsListed caps the good and weak hour lists.
const slotsListed = 3

// SummaryText describes a report in a few plain lines: period, observation
// coverage, both averages, failure rate, and the best and worst weekday-hour
// slots. Missing data is spelled out, never shown as a zero score.
func SummaryText(r *aggregate.Report) string {
	var b strings.Builder
	loc := location(r)
	s := r.Summary

	fmt.Fprintf(&b, "Link comfort trend summary: %s to %s (%d days)\n",
		r.Start.In(loc).Format("2006-01-02"), r.End.In(loc).Format("2006-01-02"), r.Days)

	if r.Grid != nil {
		counts := r.Grid.Count()
		total := counts[aggregate.CellScored] + counts[aggregate.CellAllErrors] + counts[aggregate.CellNoData]
		fmt.Fprintf(&b, "Observation coverage: %d/%d operating-hour slots scored (%s), %d all failed, %d empty\n",
			counts[aggregate.CellScored], total, percent(counts[aggregate.CellScored], total),
			counts[aggregate.CellAllErrors], counts[aggregate.CellNoData])
		fmt.Fprintf(&b, "Operating hours %02d:00-%02d:00 average: %s\n",
			r.Grid.OpenHour, r.Grid.CloseHour, describe(s.OperatingHours))
	}
	fmt.Fprintf(&b, "All hours average: %s\n", describe(s.AllHours))
	fmt.Fprintf(&b, "Failed measurements: %d of %d (%s)\n", s.Errors, s.Samples, percent(s.Errors, s.Samples))

	good, weak, scored := rankSlots(r.Weekday)
	if !scored {
		b.WriteString("Good hours: no data")
		return b.String()
	}
	fmt.Fprintf(&b, "Good hours: %s\nWeak hours: %s", orNone(good), orNone(weak))
	return b.String()
}

func orNone(slots []string) string {
	if len(slots) == 0 {
		return "none"
	}
	return strings.Join(slots, ", ")
}

func describe(a aggregate.Average) string {
	if !a.Valid {
		return "no data"
	}
	return fmt.Sprintf("%.1f (%s) from %d samples", a.Mean, score.LabelFor(a.Mean), a.Count)
}

func percent(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

// rankSlots splits scored weekday-hour slots at the comfortable threshold
// and returns up to slotsListed of the best good slots and the worst weak
// ones. scored is false when no slot has a score.
func rankSlots(w *aggregate.WeekdayGrid) (good, weak []string, scored bool) {
	if w == nil {
		return nil, nil, false
	}
	type slot struct {
		day, hour int
		mean      float64
	}
	var slots []slot
	for d, row := range w.Rows {
		for _, b := range row {
			if b.State == aggregate.CellScored {
				slots = append(slots, slot{d, b.Hour, b.MeanScore})
			}
		}
	}
	if len(slots) == 0 {
		return nil, nil, false
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].mean > slots[j].mean })

	format := func(s slot) string {
		return fmt.Sprintf("%s %02d:00 (%.1f)", aggregate.WeekdayNames[s.day], s.hour, s.mean)
	}
	for _, s := range slots {
		if s.mean < score.ThresholdComfortable || len(good) == slotsListed {
			break
		}
		good = append(good, format(s))
	}
	for i := len(slots) - 1; i >= 0 && len(weak) < slotsListed; i-- {
		if slots[i].mean >= score.ThresholdComfortable {
			break
		}
		weak = append(weak, format(slots[i]))
	}
	return good, weak, true
}
