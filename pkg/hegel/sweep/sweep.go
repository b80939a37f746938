package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/hegelab/hegel/pkg/hegel/instrument"
	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// progressEvery throttles OnProgress callbacks so a fast inner loop
// does not flood the consumer.
const progressEvery = 100 * time.Millisecond

// RowWriter receives data rows. Both trace.Writer and
// trace.AsyncWriter satisfy it.
type RowWriter interface {
	WriteRow(vals []float64) error
}

// Progress describes how far a run has come. Consumed by the CLI view
// and the daemon's event stream.
type Progress struct {
	PointsDone   int           `json:"points_done"`
	PointsTotal  int           `json:"points_total"` // 0 when unbounded
	CurrentValue float64       `json:"current_value"`
	Elapsed      time.Duration `json:"elapsed"`
	PerPoint     time.Duration `json:"per_point"`
}

// Result summarizes a finished run.
type Result struct {
	Points int
	Start  time.Time
	End    time.Time
}

// Options configures a sweep.
type Options struct {
	// Device is set to each span value in turn.
	Device *instrument.Device
	Span   Span

	// Out is read at every point, in order.
	Out []*instrument.Device

	// BeforeWait is the settle delay between setting the device and
	// reading the outputs. FirstWait is added on the first point only,
	// for devices with a long initial slew.
	BeforeWait time.Duration
	FirstWait  time.Duration

	// UpDown walks the span forward then backward into the same file.
	UpDown bool

	// Reset returns the device to the first span value afterwards.
	Reset bool

	// Async reads the outputs in parallel across instruments.
	Async bool

	// OnProgress, when set, is called at most every 100ms plus once at
	// the end.
	OnProgress func(Progress)
}

// Columns names the data columns a sweep writes, matching row order.
func (o Options) Columns() []string {
	cols := make([]string, 0, len(o.Out)+2)
	cols = append(cols, o.Device.FullName())
	for _, d := range o.Out {
		cols = append(cols, d.FullName())
	}
	return append(cols, "time")
}

// Describe renders the header lines recording the run parameters.
func (o Options) Describe() []string {
	lines := []string{fmt.Sprintf("sweep %s from %s to %s in %d points",
		o.Device.FullName(), fmtG(o.Span.Start()), fmtG(o.Span.Stop()), o.Span.Points())}
	if o.BeforeWait > 0 {
		lines = append(lines, fmt.Sprintf("beforewait %s", o.BeforeWait))
	}
	if o.UpDown {
		lines = append(lines, "updown true")
	}
	if o.Async {
		lines = append(lines, "async true")
	}
	return lines
}

func fmtG(v float64) string { return fmt.Sprintf("%g", v) }

// Run executes the sweep, writing one row per point: the set value,
// the outputs, and the epoch time the point started. Cancelling the
// context aborts between points and returns the wrapped context error;
// rows already written stay on disk.
func Run(ctx context.Context, w RowWriter, o Options) (*Result, error) {
	if o.Device == nil {
		return nil, fmt.Errorf("sweep has no device to set")
	}
	values := o.Span.Values()
	if len(values) == 0 {
		return nil, ErrEmptySpan
	}
	if o.UpDown {
		values = append(values, o.Span.Reversed().values...)
	}

	log := logging.Get("sweep")
	log.Info("sweep started", "device", o.Device.FullName(),
		"start", o.Span.Start(), "stop", o.Span.Stop(), "points", len(values))

	res := &Result{Start: time.Now()}
	prog := newProgressReporter(o.OnProgress, len(values), res.Start)

	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return res, abortErr(res, err, log)
		}
		pointStart := time.Now()
		if err := o.Device.Set(ctx, v); err != nil {
			return res, err
		}
		wait := o.BeforeWait
		if i == 0 {
			wait += o.FirstWait
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return res, abortErr(res, err, log)
		}
		outs, err := readOut(ctx, o.Out, o.Async)
		if err != nil {
			return res, err
		}

		row := make([]float64, 0, len(outs)+2)
		row = append(row, v)
		row = append(row, outs...)
		row = append(row, epoch(pointStart))
		if err := w.WriteRow(row); err != nil {
			return res, err
		}
		res.Points++
		prog.step(v)
	}

	if o.Reset {
		if err := o.Device.Set(ctx, values[0]); err != nil {
			return res, fmt.Errorf("reset after sweep: %w", err)
		}
	}
	res.End = time.Now()
	prog.finish()
	log.Info("sweep finished", "points", res.Points, "elapsed", res.End.Sub(res.Start))
	return res, nil
}

func abortErr(res *Result, err error, log *logging.Logger) error {
	res.End = time.Now()
	log.Warn("run aborted", "points", res.Points)
	return fmt.Errorf("run aborted after %d points: %w", res.Points, err)
}

func readOut(ctx context.Context, out []*instrument.Device, async bool) ([]float64, error) {
	if !async {
		return instrument.ReadDevices(ctx, out)
	}
	var g instrument.Group
	g.Add(out...)
	return g.Go(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// progressReporter throttles progress callbacks.
type progressReporter struct {
	fn       func(Progress)
	total    int
	start    time.Time
	done     int
	lastEmit time.Time
	lastVal  float64
}

func newProgressReporter(fn func(Progress), total int, start time.Time) *progressReporter {
	return &progressReporter{fn: fn, total: total, start: start}
}

func (p *progressReporter) step(current float64) {
	p.done++
	p.lastVal = current
	if p.fn == nil {
		return
	}
	now := time.Now()
	if now.Sub(p.lastEmit) < progressEvery && p.done != p.total {
		return
	}
	p.lastEmit = now
	p.fn(p.snapshot(now))
}

func (p *progressReporter) finish() {
	if p.fn == nil || p.done == 0 {
		return
	}
	p.fn(p.snapshot(time.Now()))
}

func (p *progressReporter) snapshot(now time.Time) Progress {
	elapsed := now.Sub(p.start)
	var perPoint time.Duration
	if p.done > 0 {
		perPoint = elapsed / time.Duration(p.done)
	}
	return Progress{
		PointsDone:   p.done,
		PointsTotal:  p.total,
		CurrentValue: p.lastVal,
		Elapsed:      elapsed,
		PerPoint:     perPoint,
	}
}
