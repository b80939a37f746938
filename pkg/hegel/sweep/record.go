package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hegelab/hegel/pkg/hegel/instrument"
	"github.com/hegelab/hegel/pkg/hegel/logging"
)

// RecordOptions configures a periodic record run.
type RecordOptions struct {
	// Out is read at every tick.
	Out []*instrument.Device

	// Interval separates consecutive readouts.
	Interval time.Duration

	// NPoints bounds the run; 0 records until the context is
	// cancelled, which then counts as normal completion.
	NPoints int

	// Async reads the outputs in parallel across instruments.
	Async bool

	OnProgress func(Progress)
}

// Columns names the record data columns: time first, then the outputs.
func (o RecordOptions) Columns() []string {
	cols := make([]string, 0, len(o.Out)+1)
	cols = append(cols, "time")
	for _, d := range o.Out {
		cols = append(cols, d.FullName())
	}
	return cols
}

// Describe renders the header lines recording the run parameters.
func (o RecordOptions) Describe() []string {
	line := fmt.Sprintf("record every %s", o.Interval)
	if o.NPoints > 0 {
		line += fmt.Sprintf(", %d points", o.NPoints)
	}
	return []string{line}
}

// Record reads the outputs every Interval, writing rows of epoch time
// followed by the values. The first readout happens immediately.
func Record(ctx context.Context, w RowWriter, o RecordOptions) (*Result, error) {
	if len(o.Out) == 0 {
		return nil, fmt.Errorf("record has no output devices")
	}
	if o.Interval <= 0 {
		return nil, fmt.Errorf("record interval must be positive")
	}

	log := logging.Get("sweep")
	log.Info("record started", "interval", o.Interval, "npoints", o.NPoints)

	res := &Result{Start: time.Now()}
	prog := newProgressReporter(o.OnProgress, o.NPoints, res.Start)

	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

loop:
	for {
		pointStart := time.Now()
		outs, err := readOut(ctx, o.Out, o.Async)
		if err != nil {
			if stopErr(ctx, err) && o.NPoints == 0 {
				break
			}
			return res, abortErr(res, err, log)
		}
		row := make([]float64, 0, len(outs)+1)
		row = append(row, epoch(pointStart))
		row = append(row, outs...)
		if err := w.WriteRow(row); err != nil {
			return res, err
		}
		res.Points++
		if len(outs) > 0 {
			prog.step(outs[0])
		} else {
			prog.step(0)
		}

		if o.NPoints > 0 && res.Points >= o.NPoints {
			break
		}
		select {
		case <-ctx.Done():
			if o.NPoints == 0 {
				// Stopping an unbounded record is how it completes.
				break loop
			}
			return res, abortErr(res, ctx.Err(), log)
		case <-ticker.C:
		}
	}
	res.End = time.Now()
	prog.finish()
	log.Info("record finished", "points", res.Points, "elapsed", res.End.Sub(res.Start))
	return res, nil
}

func stopErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// Snap performs one synchronized readout and appends a single row of
// epoch time plus the values.
func Snap(ctx context.Context, w RowWriter, out []*instrument.Device, async bool) ([]float64, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("snap has no output devices")
	}
	now := time.Now()
	outs, err := readOut(ctx, out, async)
	if err != nil {
		return nil, err
	}
	row := make([]float64, 0, len(outs)+1)
	row = append(row, epoch(now))
	row = append(row, outs...)
	if err := w.WriteRow(row); err != nil {
		return nil, err
	}
	return row, nil
}

// SnapColumns names the snapshot columns for the given outputs.
func SnapColumns(out []*instrument.Device) []string {
	cols := make([]string, 0, len(out)+1)
	cols = append(cols, "time")
	for _, d := range out {
		cols = append(cols, d.FullName())
	}
	return cols
}
