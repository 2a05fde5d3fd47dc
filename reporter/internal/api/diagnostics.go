package api

import (
	"fmt"
	"sort"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
)

// DiagnosticHint is one plain-language observation about the link over the
// report window.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number associated with the hint.
	Value *float64 `json:"value,omitempty"`
}

// Thresholds for diagnostics.
const (
	errorRateWarning  = 0.05
	errorRateCritical = 0.20
	sparseCoverage    = 0.5
)

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from a built report. Hints are ordered
// critical first, then warnings, then info.
func computeDiagnostics(r *aggregate.Report) []DiagnosticHint {
	s := r.Summary
	var hints []DiagnosticHint

	// ── No data at all ───────────────────────────────────────────────────────
	if s.Samples == 0 {
		return []DiagnosticHint{{
			Key:   "no_data",
			Level: "info",
			Title: "No measurements yet",
			Detail: fmt.Sprintf(
				"No samples were recorded in the last %d days. "+
					"Check that the collector is scheduled and can write to the database.",
				r.Days,
			),
		}}
	}

	// ── Failed measurements ──────────────────────────────────────────────────
	if rate := s.ErrorRate(); rate >= errorRateWarning {
		v := rate * 100
		level := "warning"
		if rate >= errorRateCritical {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "error_rate",
			Level: level,
			Title: fmt.Sprintf("%.0f%% failed runs", v),
			Detail: fmt.Sprintf(
				"%d of %d measurements failed. Failures are recorded as data, so a high "+
					"rate usually means the link dropped out or the speed-test servers "+
					"were unreachable at those times.",
				s.Errors, s.Samples,
			),
			Value: &v,
		})
	}

	// ── Operating-hours comfort ──────────────────────────────────────────────
	if a := s.OperatingHours; a.Valid {
		v := a.Mean
		switch label := score.LabelFor(a.Mean); label {
		case score.LabelUncomfortable, score.LabelSomewhatUnstable:
			level := "warning"
			if label == score.LabelUncomfortable {
				level = "critical"
			}
			hints = append(hints, DiagnosticHint{
				Key:   "operating_comfort",
				Level: level,
				Title: fmt.Sprintf("Operating hours %s", label),
				Detail: fmt.Sprintf(
					"During operating hours the link averaged %.1f over %d samples. "+
						"Compare the weekday heatmap to see whether the dip is tied to specific hours.",
					a.Mean, a.Count,
				),
				Value: &v,
			})
		}
	}

	// ── Coverage ─────────────────────────────────────────────────────────────
	if r.Grid != nil {
		c := r.Grid.Count()
		total := c[aggregate.CellScored] + c[aggregate.CellAllErrors] + c[aggregate.CellNoData]
		if total > 0 {
			if ratio := float64(c[aggregate.CellScored]) / float64(total); ratio < sparseCoverage {
				v := ratio * 100
				hints = append(hints, DiagnosticHint{
					Key:   "coverage",
					Level: "info",
					Title: fmt.Sprintf("%.0f%% hours observed", v),
					Detail: fmt.Sprintf(
						"Only %d of %d operating-hour slots have a scored measurement. "+
							"Averages over sparse data can be misleading; run the collector more often.",
						c[aggregate.CellScored], total,
					),
					Value: &v,
				})
			}
		}
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		v := s.AllHours.Mean
		hints = append(hints, DiagnosticHint{
			Key:   "comfortable",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"The link averaged %.1f (%s) with few failures and good coverage.",
				v, score.LabelFor(v),
			),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
