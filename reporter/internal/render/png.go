package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
)

// Layout constants in pixels.
const (
	margin     = 24
	labelWidth = 100
	titleH     = 28
	sectionH   = 22
	headerH    = 18
	legendH    = 40
	sectionGap = 20
	axisH      = 34
	axisGutter = 56
	minWidth   = 860
)

// Style controls report geometry. Zero fields take DefaultStyle values.
type Style struct {
	Title       string
	CellWidth   int
	CellHeight  int
	TrendHeight int
}

// DefaultStyle returns the standard report geometry.
func DefaultStyle() Style {
	return Style{
		Title:       "Link comfort report",
		CellWidth:   44,
		CellHeight:  22,
		TrendHeight: 220,
	}
}

func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.Title == "" {
		s.Title = d.Title
	}
	if s.CellWidth <= 0 {
		s.CellWidth = d.CellWidth
	}
	if s.CellHeight <= 0 {
		s.CellHeight = d.CellHeight
	}
	if s.TrendHeight <= 0 {
		s.TrendHeight = d.TrendHeight
	}
	return s
}

// PNG draws the report as a single image: the date × hour heatmap, the
// weekday × hour heatmap, the recent download/ping trend and the summary.
func PNG(w io.Writer, r *aggregate.Report, st Style) error {
	if r == nil || r.Grid == nil || r.Weekday == nil {
		return errors.New("render: incomplete report")
	}
	st = st.withDefaults()

	hours := make([]int, 0, aggregate.HoursPerDay)
	for h := r.Grid.OpenHour; h < r.Grid.CloseHour && h < aggregate.HoursPerDay; h++ {
		hours = append(hours, h)
	}
	summary := strings.Split(SummaryText(r), "\n")

	width := max(minWidth, 2*margin+labelWidth+len(hours)*st.CellWidth)
	height := margin + titleH +
		sectionH + headerH + len(r.Grid.Days)*st.CellHeight + legendH +
		sectionGap + sectionH + headerH + aggregate.DaysPerWeek*st.CellHeight +
		sectionGap + sectionH + st.TrendHeight + axisH +
		sectionGap + len(summary)*lineHeight + margin

	c := newCanvas(width, height, colorBackground)
	y := margin

	c.text(margin, y, st.Title, colorText)
	c.textRight(width-margin, y, "generated "+r.GeneratedAt.In(location(r)).Format("2006-01-02 15:04 MST"), colorMuted)
	y += titleH

	c.text(margin, y, fmt.Sprintf("Comfort by date and hour (past %d days)", r.Days), colorText)
	y += sectionH
	dateRows := make([]heatRow, 0, len(r.Grid.Days))
	for i := range r.Grid.Days {
		day := &r.Grid.Days[i]
		dateRows = append(dateRows, heatRow{
			label: day.Date.Format("01-02 Mon"),
			cells: day.Hours[hours0(hours):hoursEnd(hours)],
		})
	}
	y = c.heatmap(margin, y, hours, dateRows, st)
	c.legend(margin+labelWidth, y+10)
	y += legendH

	y += sectionGap
	c.text(margin, y, "Comfort by weekday and hour", colorText)
	y += sectionH
	weekRows := make([]heatRow, 0, aggregate.DaysPerWeek)
	for i, name := range aggregate.WeekdayNames {
		weekRows = append(weekRows, heatRow{label: name, cells: r.Weekday.Rows[i]})
	}
	y = c.heatmap(margin, y, hours, weekRows, st)

	y += sectionGap
	c.text(margin, y, fmt.Sprintf("Speed over the last %d hours", r.RecentHours), colorText)
	y += sectionH
	y = c.trend(margin, y, width-2*margin, r, st)

	y += sectionGap
	for _, line := range summary {
		c.text(margin, y, line, colorText)
		y += lineHeight
	}

	if err := png.Encode(w, c.img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

func hours0(hours []int) int {
	if len(hours) == 0 {
		return 0
	}
	return hours[0]
}

func hoursEnd(hours []int) int {
	if len(hours) == 0 {
		return 0
	}
	return hours[len(hours)-1] + 1
}

func location(r *aggregate.Report) *time.Location {
	if r.Grid != nil && r.Grid.Location != nil {
		return r.Grid.Location
	}
	return time.Local
}

// heatRow is one labelled row of buckets aligned with the hour header.
type heatRow struct {
	label string
	cells []aggregate.Bucket
}

// heatmap draws an hour header and one row per entry, returning the y below
// the last row.
func (c *canvas) heatmap(x, y int, hours []int, rows []heatRow, st Style) int {
	gx := x + labelWidth
	for i, h := range hours {
		c.textCentered(image.Rect(gx+i*st.CellWidth, y, gx+(i+1)*st.CellWidth, y+headerH), strconv.Itoa(h), colorMuted)
	}
	y += headerH

	for _, row := range rows {
		c.text(x, y+(st.CellHeight-fontAscent)/2, row.label, colorText)
		for i, b := range row.cells {
			c.cell(image.Rect(gx+i*st.CellWidth, y, gx+(i+1)*st.CellWidth, y+st.CellHeight).Inset(1), b)
		}
		y += st.CellHeight
	}
	return y
}

// cell paints one bucket according to its state.
func (c *canvas) cell(r image.Rectangle, b aggregate.Bucket) {
	switch b.State {
	case aggregate.CellScored:
		bg := scoreColor(b.MeanScore)
		c.fill(r, bg)
		c.textCentered(r, fmt.Sprintf("%.0f", b.MeanScore), textOn(bg))
	case aggregate.CellAllErrors:
		c.fill(r, colorAllErrors)
		c.textCentered(r, "err", colorBackground)
	default:
		c.fill(r, colorNoData)
		c.textCentered(r, "-", colorText)
	}
}

// legend draws the colour bar and the two non-score swatches.
func (c *canvas) legend(x, y int) {
	const barW, barH = 200, 10
	for i := 0; i < barW; i++ {
		c.fill(image.Rect(x+i, y, x+i+1, y+barH), scoreColor(float64(i)*100/float64(barW-1)))
	}
	c.frame(image.Rect(x, y, x+barW, y+barH), colorMuted)
	c.text(x, y+barH+2, "0", colorMuted)
	c.text(x+barW/2-textWidth("50")/2, y+barH+2, "50", colorMuted)
	c.textRight(x+barW, y+barH+2, "100", colorMuted)

	sx := x + barW + 30
	c.fill(image.Rect(sx, y, sx+14, y+barH), colorNoData)
	c.text(sx+20, y-2, "no data", colorMuted)
	sx += 20 + textWidth("no data") + 24
	c.fill(image.Rect(sx, y, sx+14, y+barH), colorAllErrors)
	c.text(sx+20, y-2, "all attempts failed", colorMuted)
}

// trend plots download (left axis) and ping (right axis) for the recent
// window. Error samples break the lines and are marked on the baseline.
func (c *canvas) trend(x, y, w int, r *aggregate.Report, st Style) int {
	plot := image.Rect(x+axisGutter, y, x+w-axisGutter, y+st.TrendHeight)
	c.frame(plot, colorGrid)

	end := r.End
	start := end.Add(-time.Duration(r.RecentHours) * time.Hour)
	span := end.Sub(start).Seconds()

	var dlMax, pingMax float64
	scored := 0
	for _, s := range r.Recent {
		if s.Scored && s.Metrics != nil {
			dlMax = math.Max(dlMax, s.Metrics.DownloadMbps)
			pingMax = math.Max(pingMax, s.Metrics.PingMs)
			scored++
		}
	}
	if scored == 0 || span <= 0 {
		c.textCentered(plot, fmt.Sprintf("no measurements in the last %d hours", r.RecentHours), colorMuted)
		return plot.Max.Y + axisH
	}
	dlMax, pingMax = niceCeil(dlMax), niceCeil(pingMax)

	for i := 0; i <= 4; i++ {
		gy := plot.Max.Y - 1 - i*(plot.Dy()-1)/4
		if i > 0 && i < 4 {
			c.fill(image.Rect(plot.Min.X+1, gy, plot.Max.X-1, gy+1), colorGrid)
		}
		c.textRight(plot.Min.X-4, gy-fontAscent/2, formatAxis(dlMax*float64(i)/4), colorDownload)
		c.text(plot.Max.X+4, gy-fontAscent/2, formatAxis(pingMax*float64(i)/4), colorPing)
	}

	xAt := func(t time.Time) int {
		return plot.Min.X + int(t.Sub(start).Seconds()/span*float64(plot.Dx()-1))
	}
	yAt := func(v, top float64) int {
		return plot.Max.Y - 1 - int(v/top*float64(plot.Dy()-2))
	}

	loc := location(r)
	step := tickStep(r.RecentHours)
	ls := start.In(loc)
	for t := time.Date(ls.Year(), ls.Month(), ls.Day(), ls.Hour(), 0, 0, 0, loc).Add(time.Hour); !t.After(end); t = t.Add(step) {
		px := xAt(t)
		c.fill(image.Rect(px, plot.Max.Y, px+1, plot.Max.Y+4), colorMuted)
		label := t.In(loc).Format("15:04")
		c.text(px-textWidth(label)/2, plot.Max.Y+6, label, colorMuted)
	}

	c.text(plot.Min.X+8, plot.Min.Y+6, "Download (Mbps)", colorDownload)
	c.text(plot.Min.X+8+textWidth("Download (Mbps)")+16, plot.Min.Y+6, "Ping (ms)", colorPing)

	var prev *image.Point
	var prevPing *image.Point
	for _, s := range r.Recent {
		px := xAt(s.Timestamp)
		if !s.Scored || s.Metrics == nil {
			c.fill(image.Rect(px-1, plot.Max.Y-8, px+1, plot.Max.Y-1), colorAllErrors)
			prev, prevPing = nil, nil
			continue
		}
		dl := image.Pt(px, yAt(s.Metrics.DownloadMbps, dlMax))
		pg := image.Pt(px, yAt(s.Metrics.PingMs, pingMax))
		if prev != nil {
			c.line(prev.X, prev.Y, dl.X, dl.Y, colorDownload, 2)
			c.line(prevPing.X, prevPing.Y, pg.X, pg.Y, colorPing, 2)
		}
		c.dot(dl.X, dl.Y, colorDownload, 5)
		c.dot(pg.X, pg.Y, colorPing, 5)
		prev, prevPing = &dl, &pg
	}
	return plot.Max.Y + axisH
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten.
func niceCeil(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*exp >= v {
			return m * exp
		}
	}
	return 10 * exp
}

func formatAxis(v float64) string {
	if v >= 10 || v == 0 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// tickStep spaces time ticks so at most about twelve labels fit.
func tickStep(hours int) time.Duration {
	h := hours / 12
	if h < 1 {
		h = 1
	}
	return time.Duration(h) * time.Hour
}
