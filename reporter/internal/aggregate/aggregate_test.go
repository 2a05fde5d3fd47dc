package aggregate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/linkcomfort/linkcomfort/pkg/score"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// Under the default scoring config these metric sets score exactly 100 and 80.
var (
	m100 = types.Metrics{DownloadMbps: 100, UploadMbps: 50, PingMs: 0, JitterMs: 0}
	m80  = types.Metrics{DownloadMbps: 100, UploadMbps: 0, PingMs: 0, JitterMs: 0}
)

func okAt(ts time.Time, m types.Metrics) types.Sample {
	return types.NewOK(ts, m, "Example ISP", "1")
}

func errAt(ts time.Time) types.Sample {
	return types.NewError(ts, "timeout", "")
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func utcOptions() Options {
	return Options{
		Location:  time.UTC,
		OpenHour:  9,
		CloseHour: 22,
		Scoring:   score.DefaultConfig(),
	}
}

func TestAggregate_ErrorsExcludedFromMean(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	samples := []types.Sample{
		okAt(base.Add(5*time.Minute), m80),
		errAt(base.Add(20 * time.Minute)),
		errAt(base.Add(40 * time.Minute)),
	}

	g := Aggregate(samples, utcOptions())
	b, ok := g.Cell(base, 10)
	if !ok {
		t.Fatal("bucket missing")
	}
	if b.State != CellScored {
		t.Fatalf("state: got %v, want scored", b.State)
	}
	if !almostEqual(b.MeanScore, 80) {
		t.Errorf("mean: got %v, want 80 (errors must not count as zero)", b.MeanScore)
	}
	if b.OKCount != 1 || b.ErrorCount != 2 {
		t.Errorf("counts: ok %d error %d", b.OKCount, b.ErrorCount)
	}
}

func TestAggregate_ThreeCellStates(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	samples := []types.Sample{
		okAt(day.Add(9*time.Hour), m100),
		okAt(day.Add(9*time.Hour+30*time.Minute), m80),
		errAt(day.Add(10 * time.Hour)),
	}

	g := Aggregate(samples, utcOptions())

	tests := []struct {
		hour      int
		wantState CellState
		wantMean  float64
	}{
		{9, CellScored, 90},
		{10, CellAllErrors, 0},
		{11, CellNoData, 0},
	}
	for _, tc := range tests {
		b, _ := g.Cell(day, tc.hour)
		if b.State != tc.wantState {
			t.Errorf("hour %d: state %v, want %v", tc.hour, b.State, tc.wantState)
		}
		if !almostEqual(b.MeanScore, tc.wantMean) {
			t.Errorf("hour %d: mean %v, want %v", tc.hour, b.MeanScore, tc.wantMean)
		}
	}

	counts := g.Count()
	if counts[CellScored] != 1 || counts[CellAllErrors] != 1 || counts[CellNoData] != 11 {
		t.Errorf("operating cell counts: %v", counts)
	}
}

func TestAggregate_FullGridOverWindow(t *testing.T) {
	opts := utcOptions()
	opts.Start = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	opts.End = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	g := Aggregate(nil, opts)
	if len(g.Days) != 3 {
		t.Fatalf("days: got %d, want 3", len(g.Days))
	}
	if n := len(g.Buckets()); n != 3*HoursPerDay {
		t.Errorf("buckets: got %d, want %d", n, 3*HoursPerDay)
	}
	for _, b := range g.Buckets() {
		if b.State != CellNoData {
			t.Fatalf("empty input produced %v bucket at %v h%d", b.State, b.Date, b.Hour)
		}
		if b.Operating != (b.Hour >= 9 && b.Hour < 22) {
			t.Errorf("hour %d operating flag %v", b.Hour, b.Operating)
		}
	}
	if n := len(g.OperatingBuckets()); n != 3*13 {
		t.Errorf("operating buckets: got %d, want 39", n)
	}
}

func TestAggregate_IgnoresOutOfWindow(t *testing.T) {
	opts := utcOptions()
	opts.Start = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	opts.End = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	samples := []types.Sample{
		okAt(opts.Start.Add(-time.Minute), m100),
		okAt(opts.Start.Add(12*time.Hour), m80),
		okAt(opts.End, m100),
	}
	g := Aggregate(samples, opts)
	if len(g.Days) != 1 {
		t.Fatalf("days: got %d, want 1", len(g.Days))
	}
	b, _ := g.Cell(opts.Start, 12)
	if b.OKCount != 1 || !almostEqual(b.MeanScore, 80) {
		t.Errorf("bucket: %+v", b)
	}
	if n := g.Count()[CellScored]; n != 1 {
		t.Errorf("scored cells: got %d, want 1", n)
	}
}

func TestAggregate_EmptyWithoutWindow(t *testing.T) {
	g := Aggregate(nil, utcOptions())
	if len(g.Days) != 0 || len(g.Buckets()) != 0 {
		t.Errorf("expected empty grid, got %d days", len(g.Days))
	}
}

func TestAggregate_FacilityLocalTime(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	opts := utcOptions()
	opts.Location = tokyo

	// 00:30 UTC on Mar 2 is 09:30 on Mar 2 in Tokyo; 23:30 UTC on Mar 2 is
	// 08:30 on Mar 3 in Tokyo.
	samples := []types.Sample{
		okAt(time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC), m100),
		okAt(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), m80),
	}
	g := Aggregate(samples, opts)

	if len(g.Days) != 2 {
		t.Fatalf("days: got %d, want 2", len(g.Days))
	}
	b, _ := g.Cell(time.Date(2026, 3, 2, 12, 0, 0, 0, tokyo), 9)
	if b.State != CellScored || !b.Operating {
		t.Errorf("Mar 2 09h Tokyo: %+v", b)
	}
	b, _ = g.Cell(time.Date(2026, 3, 3, 12, 0, 0, 0, tokyo), 8)
	if b.State != CellScored || b.Operating {
		t.Errorf("Mar 3 08h Tokyo: %+v", b)
	}
}

func TestSummarize_OperatingHoursSeparation(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	samples := []types.Sample{
		okAt(day.Add(8*time.Hour), m100),
		okAt(day.Add(9*time.Hour), m80),
		okAt(day.Add(21*time.Hour), m100),
		okAt(day.Add(22*time.Hour), m80),
		errAt(day.Add(15 * time.Hour)),
	}

	got := Summarize(samples, utcOptions())
	want := Summary{
		OperatingHours: Average{Mean: 90, Count: 2, Valid: true},
		AllHours:       Average{Mean: 90, Count: 4, Valid: true},
		Samples:        5,
		Errors:         1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if !almostEqual(got.ErrorRate(), 0.2) {
		t.Errorf("error rate: got %v", got.ErrorRate())
	}
}

func TestSummarize_OperatingDiffersFromAll(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	samples := []types.Sample{
		okAt(day.Add(3*time.Hour), m80),
		okAt(day.Add(12*time.Hour), m100),
	}
	got := Summarize(samples, utcOptions())
	if !almostEqual(got.OperatingHours.Mean, 100) || !almostEqual(got.AllHours.Mean, 90) {
		t.Errorf("operating %v all %v", got.OperatingHours.Mean, got.AllHours.Mean)
	}
}

func TestSummarize_NoData(t *testing.T) {
	tests := []struct {
		name    string
		samples []types.Sample
	}{
		{"empty", nil},
		{"all errors", []types.Sample{errAt(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Summarize(tc.samples, utcOptions())
			if got.OperatingHours.Valid || got.AllHours.Valid {
				t.Errorf("averages must be invalid without scored samples: %+v", got)
			}
			if got.OperatingHours.Count != 0 {
				t.Errorf("count: got %d", got.OperatingHours.Count)
			}
		})
	}
}

func TestByWeekday(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	samples := []types.Sample{
		okAt(monday.Add(10*time.Hour), m100),
		okAt(monday.AddDate(0, 0, 7).Add(10*time.Hour), m80), // next Monday
		errAt(monday.AddDate(0, 0, 6).Add(13 * time.Hour)),   // Sunday
		okAt(monday.Add(23*time.Hour), m100),                 // outside hours
	}

	w := ByWeekday(samples, utcOptions())
	if len(w.Rows[0]) != 13 {
		t.Fatalf("row width: got %d, want 13", len(w.Rows[0]))
	}

	b, ok := w.Cell(0, 10)
	if !ok || b.State != CellScored || !almostEqual(b.MeanScore, 90) || b.OKCount != 2 {
		t.Errorf("Mon 10h: %+v", b)
	}
	b, _ = w.Cell(6, 13)
	if b.State != CellAllErrors {
		t.Errorf("Sun 13h: state %v, want all_errors", b.State)
	}
	b, _ = w.Cell(2, 15)
	if b.State != CellNoData {
		t.Errorf("Wed 15h: state %v, want no_data", b.State)
	}
	if _, ok := w.Cell(0, 23); ok {
		t.Error("hour outside operating hours should not be addressable")
	}
}

func TestWeekdayIndex(t *testing.T) {
	if weekdayIndex(time.Monday) != 0 || weekdayIndex(time.Sunday) != 6 || weekdayIndex(time.Saturday) != 5 {
		t.Error("weekday index is not Monday-first")
	}
}

// fakeQuerier serves samples filtered to the requested range.
type fakeQuerier struct {
	samples []types.Sample
	err     error
	calls   int
}

func (f *fakeQuerier) Query(_ context.Context, start, end time.Time) ([]types.Sample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Sample
	for _, s := range f.samples {
		if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestRecent(t *testing.T) {
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	q := &fakeQuerier{samples: []types.Sample{
		okAt(now.Add(-30*time.Hour), m100),
		okAt(now.Add(-2*time.Hour), m80),
		errAt(now.Add(-time.Hour)),
	}}

	got, err := Recent(context.Background(), q, now, 24, score.DefaultConfig())
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	if !got[0].Scored || got[0].Score != 80 || got[1].Scored {
		t.Errorf("scored series: %+v", got)
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)
	q := &fakeQuerier{samples: []types.Sample{
		okAt(time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), m100), // before the 7-day window
		okAt(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), m80),
		okAt(now.Add(-time.Hour), m100),
	}}

	r, err := Build(context.Background(), q, now, 7, 24, utcOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(r.Grid.Days) != 7 {
		t.Errorf("grid days: got %d, want 7", len(r.Grid.Days))
	}
	if !r.Start.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) || !r.End.Equal(now) {
		t.Errorf("window: %v – %v", r.Start, r.End)
	}
	if r.Summary.Samples != 2 || !almostEqual(r.Summary.OperatingHours.Mean, 90) {
		t.Errorf("summary: %+v", r.Summary)
	}
	if len(r.Recent) != 1 {
		t.Errorf("recent: got %d, want 1", len(r.Recent))
	}
	if q.calls != 2 {
		t.Errorf("store queries: got %d, want 2", q.calls)
	}
}

func TestBuild_EmptyStore(t *testing.T) {
	now := time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)
	r, err := Build(context.Background(), &fakeQuerier{}, now, 28, 24, utcOptions())
	if err != nil {
		t.Fatalf("Build() on empty store error = %v", err)
	}
	if len(r.Grid.Days) != 28 {
		t.Errorf("grid days: got %d, want 28", len(r.Grid.Days))
	}
	if r.Grid.Count()[CellScored] != 0 || r.Summary.AllHours.Valid || len(r.Recent) != 0 {
		t.Error("empty store must produce an explicit no-data report")
	}
}

func TestBuild_Errors(t *testing.T) {
	now := time.Now()
	if _, err := Build(context.Background(), &fakeQuerier{err: errors.New("database is locked")}, now, 7, 24, utcOptions()); err == nil {
		t.Error("expected query error to propagate")
	}
	if _, err := Build(context.Background(), &fakeQuerier{}, now, 0, 24, utcOptions()); err == nil {
		t.Error("expected error for zero days")
	}
	if _, err := Build(context.Background(), &fakeQuerier{}, now, 7, 0, utcOptions()); err == nil {
		t.Error("expected error for zero recent hours")
	}
}

func TestCellState_String(t *testing.T) {
	for state, want := range map[CellState]string{
		CellNoData:    "no_data",
		CellAllErrors: "all_errors",
		CellScored:    "scored",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d: got %q, want %q", state, got, want)
		}
		var back CellState
		if err := back.UnmarshalText([]byte(want)); err != nil || back != state {
			t.Errorf("UnmarshalText(%q) = %v, %v", want, back, err)
		}
	}
	var c CellState
	if err := c.UnmarshalText([]byte("partial")); err == nil {
		t.Error("expected error for unknown state name")
	}
}
