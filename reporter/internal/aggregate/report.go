package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// Querier is the read side of the sample store.
type Querier interface {
	Query(ctx context.Context, start, end time.Time) ([]types.Sample, error)
}

// Report is everything a renderer needs: the bucket grid with explicit
// missing cells, both summary averages and the recent raw series.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Days        int       `json:"days"`
	RecentHours int       `json:"recent_hours"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`

	Grid    *Grid                `json:"grid"`
	Weekday *WeekdayGrid         `json:"weekday"`
	Summary Summary              `json:"summary"`
	Recent  []score.ScoredSample `json:"-"`
}

// Window returns the heatmap window for days ending at now: from local
// midnight days-1 days ago through now.
func Window(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := localMidnight(now, loc).AddDate(0, 0, -(days - 1))
	return start, now
}

// Recent returns every sample of the last hours hours, oldest first, with
// scores attached. Error samples are included unscored.
func Recent(ctx context.Context, q Querier, now time.Time, hours int, scoring score.Config) ([]score.ScoredSample, error) {
	samples, err := q.Query(ctx, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("aggregate: recent: %w", err)
	}
	return score.Apply(samples, scoring), nil
}

// Build queries the store and assembles a full report. An empty store yields
// a valid report whose cells are all CellNoData.
func Build(ctx context.Context, q Querier, now time.Time, days, recentHours int, opts Options) (*Report, error) {
	if days <= 0 {
		return nil, fmt.Errorf("aggregate: days must be positive, got %d", days)
	}
	if recentHours <= 0 {
		return nil, fmt.Errorf("aggregate: recent hours must be positive, got %d", recentHours)
	}

	opts.Start, opts.End = Window(now, days, opts.location())
	samples, err := q.Query(ctx, opts.Start, opts.End)
	if err != nil {
		return nil, fmt.Errorf("aggregate: build: %w", err)
	}

	recent, err := Recent(ctx, q, now, recentHours, opts.Scoring)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: now,
		Days:        days,
		RecentHours: recentHours,
		Start:       opts.Start,
		End:         opts.End,
		Grid:        Aggregate(samples, opts),
		Weekday:     ByWeekday(samples, opts),
		Summary:     Summarize(samples, opts),
		Recent:      recent,
	}, nil
}
