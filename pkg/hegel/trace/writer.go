package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Header describes everything written above the data rows.
type Header struct {
	// Title is the banner line, e.g. "hegel sweep".
	Title string

	// Time stamps the file; zero means now.
	Time time.Time

	// Snapshot carries the instrument-state lines captured when the
	// run started, one device per line.
	Snapshot []string

	// Options records the run parameters (start, stop, points, ...).
	Options []string

	// Columns names the data columns, in row order.
	Columns []string
}

// Writer writes one data file: a `#`-prefixed header followed by
// tab-separated rows of floats at full precision. Every row is flushed
// so the file is valid and current at any abort point.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
	cols int
	rows int
}

// NewWriter creates the file (parents included) and writes the header.
func NewWriter(path string, hdr Header) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}
	w := &Writer{f: f, path: path, cols: len(hdr.Columns)}
	if err := w.writeHeader(hdr); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(hdr Header) error {
	ts := hdr.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	if hdr.Title != "" {
		fmt.Fprintf(&b, "# %s\n", hdr.Title)
	}
	fmt.Fprintf(&b, "# %s\n", ts.Format("2006-01-02 15:04:05"))
	for _, line := range hdr.Snapshot {
		fmt.Fprintf(&b, "# %s\n", line)
	}
	for _, line := range hdr.Options {
		fmt.Fprintf(&b, "# %s\n", line)
	}
	if len(hdr.Columns) > 0 {
		fmt.Fprintf(&b, "# %s\n", strings.Join(hdr.Columns, "\t"))
	}
	_, err := w.f.WriteString(b.String())
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return w.f.Sync()
}

// Path returns where the file is being written.
func (w *Writer) Path() string { return w.path }

// Rows returns how many data rows have been written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// WriteRow appends one tab-separated data row and flushes it.
func (w *Writer) WriteRow(vals []float64) error {
	if w.cols > 0 && len(vals) != w.cols {
		return fmt.Errorf("row has %d values, header declares %d columns", len(vals), w.cols)
	}
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(FormatValue(v))
	}
	b.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("write to closed data file %s", w.path)
	}
	if _, err := w.f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	w.rows++
	return nil
}

// Comment appends a `#`-prefixed line below the rows written so far.
func (w *Writer) Comment(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("write to closed data file %s", w.path)
	}
	_, err := fmt.Fprintf(w.f, "# %s\n", line)
	return err
}

// Close flushes and closes the file. Safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// FormatValue renders one data value at full float64 precision, the
// %.18g the file format requires.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 18, 64)
}

// ParseValue parses one data cell.
func ParseValue(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
