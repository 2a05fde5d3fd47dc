package render

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/linkcomfort/linkcomfort/reporter/internal/aggregate"
)

// Granularity values accepted by DefaultName.
const (
	GranularityDaily  = "daily"
	GranularityHourly = "hourly"
)

// DefaultName is the artifact file name for t: YYYY-MM-DD.png for daily
// reports, YYYY-MM-DD_HH00.png for hourly ones.
func DefaultName(granularity string, t time.Time) string {
	if granularity == GranularityHourly {
		return t.Format("2006-01-02_15") + "00.png"
	}
	return t.Format("2006-01-02") + ".png"
}

// Writer stores report artifacts. Every write goes to a temporary file in
// the target directory and is renamed into place, so a reader never sees a
// half-written image.
type Writer struct {
	fs afero.Fs
}

// NewWriter returns a Writer over fs; pass afero.NewOsFs() in production.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// WriteReport renders r as PNG to path.
func (w *Writer) WriteReport(path string, r *aggregate.Report, st Style) error {
	var buf bytes.Buffer
	if err := PNG(&buf, r, st); err != nil {
		return err
	}
	return w.write(path, &buf)
}

// WriteSummary stores the plain-text summary of r at path.
func (w *Writer) WriteSummary(path string, r *aggregate.Report) error {
	return w.write(path, bytes.NewBufferString(SummaryText(r)+"\n"))
}

func (w *Writer) write(path string, src io.Reader) error {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("render: create dir: %w", err)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("render: create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("render: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("render: close %q: %w", path, err)
	}
	if err := w.fs.Rename(tmp.Name(), path); err != nil {
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("render: rename into %q: %w", path, err)
	}
	return nil
}
