package sweep_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/instrument"
	"github.com/hegelab/hegel/pkg/hegel/sweep"
)

type rowSink struct {
	mu   sync.Mutex
	rows [][]float64
}

func (s *rowSink) WriteRow(vals []float64) error {
	row := make([]float64, len(vals))
	copy(row, vals)
	s.mu.Lock()
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	return nil
}

func (s *rowSink) Rows() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// fakeDevs builds a settable device and a readout device that returns
// twice whatever was last set.
func fakeDevs() (*instrument.Device, *instrument.Device) {
	var mu sync.Mutex
	level := 0.0
	set := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Set: func(ctx context.Context, v float64) error {
			mu.Lock()
			level = v
			mu.Unlock()
			return nil
		},
		Get: func(ctx context.Context) (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			return level, nil
		},
	})
	read := instrument.NewDevice("dmm", instrument.DeviceSpec{
		Name: "readval",
		Get: func(ctx context.Context) (float64, error) {
			mu.Lock()
			defer mu.Unlock()
			return 2 * level, nil
		},
	})
	return set, read
}

func TestLinspace(t *testing.T) {
	s, err := sweep.Linspace(0, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, s.Values())
	assert.Equal(t, 5, s.Points())
	assert.Equal(t, 0.0, s.Start())
	assert.Equal(t, 1.0, s.Stop())

	s, err = sweep.Linspace(3, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, s.Values())

	_, err = sweep.Linspace(0, 1, 0)
	assert.ErrorIs(t, err, sweep.ErrEmptySpan)
}

func TestLogspace(t *testing.T) {
	s, err := sweep.Logspace(1, 1000, 4)
	require.NoError(t, err)
	vals := s.Values()
	require.Len(t, vals, 4)
	want := []float64{1, 10, 100, 1000}
	for i := range want {
		assert.InEpsilon(t, want[i], vals[i], 1e-12)
	}
}

func TestLogspaceNegative(t *testing.T) {
	s, err := sweep.Logspace(-1, -100, 3)
	require.NoError(t, err)
	vals := s.Values()
	want := []float64{-1, -10, -100}
	for i := range want {
		assert.InEpsilon(t, want[i], vals[i], 1e-12)
	}

	_, err = sweep.Logspace(-1, 100, 3)
	assert.Error(t, err, "mixed signs are rejected")
	_, err = sweep.Logspace(0, 100, 3)
	assert.Error(t, err, "zero endpoint is rejected")
}

func TestSpanReversed(t *testing.T) {
	s, err := sweep.List([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, s.Reversed().Values())
}

func TestSweepRun(t *testing.T) {
	set, read := fakeDevs()
	span, err := sweep.Linspace(0, 2, 3)
	require.NoError(t, err)

	var sink rowSink
	before := time.Now()
	res, err := sweep.Run(context.Background(), &sink, sweep.Options{
		Device: set,
		Span:   span,
		Out:    []*instrument.Device{read},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Points)
	assert.False(t, res.End.IsZero())

	rows := sink.Rows()
	require.Len(t, rows, 3)
	for i, wantSet := range []float64{0, 1, 2} {
		require.Len(t, rows[i], 3, "set value, readout, time")
		assert.Equal(t, wantSet, rows[i][0])
		assert.Equal(t, 2*wantSet, rows[i][1], "readout sees the set value")
		assert.GreaterOrEqual(t, rows[i][2], float64(before.Unix()))
	}
}

func TestSweepUpDown(t *testing.T) {
	set, read := fakeDevs()
	span, err := sweep.Linspace(0, 1, 3)
	require.NoError(t, err)

	var sink rowSink
	res, err := sweep.Run(context.Background(), &sink, sweep.Options{
		Device: set,
		Span:   span,
		Out:    []*instrument.Device{read},
		UpDown: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Points)

	var setVals []float64
	for _, r := range sink.Rows() {
		setVals = append(setVals, r[0])
	}
	assert.Equal(t, []float64{0, 0.5, 1, 1, 0.5, 0}, setVals)
}

func TestSweepReset(t *testing.T) {
	set, _ := fakeDevs()
	span, err := sweep.Linspace(0, 1, 2)
	require.NoError(t, err)

	var sink rowSink
	_, err = sweep.Run(context.Background(), &sink, sweep.Options{
		Device: set,
		Span:   span,
		Reset:  true,
	})
	require.NoError(t, err)
	v, ok := set.Cache()
	require.True(t, ok)
	assert.Equal(t, 0.0, v, "device returned to the first span value")
}

func TestSweepAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	sets := 0
	set := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Set: func(ctx context.Context, v float64) error {
			mu.Lock()
			sets++
			if sets == 2 {
				cancel()
			}
			mu.Unlock()
			return nil
		},
	})
	span, err := sweep.Linspace(0, 1, 100)
	require.NoError(t, err)

	var sink rowSink
	res, err := sweep.Run(ctx, &sink, sweep.Options{Device: set, Span: span})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "aborted")
	assert.Equal(t, 2, res.Points, "rows written before the abort survive")
	assert.Len(t, sink.Rows(), 2)
}

func TestSweepProgress(t *testing.T) {
	set, read := fakeDevs()
	span, err := sweep.Linspace(0, 1, 10)
	require.NoError(t, err)

	var mu sync.Mutex
	var last sweep.Progress
	calls := 0
	var sink rowSink
	_, err = sweep.Run(context.Background(), &sink, sweep.Options{
		Device: set,
		Span:   span,
		Out:    []*instrument.Device{read},
		OnProgress: func(p sweep.Progress) {
			mu.Lock()
			last = p
			calls++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, calls, 0)
	assert.Equal(t, 10, last.PointsDone)
	assert.Equal(t, 10, last.PointsTotal)
	assert.Equal(t, 1.0, last.CurrentValue)
	assert.Greater(t, last.Elapsed, time.Duration(0))
}

func TestSweepBeforeWait(t *testing.T) {
	set, read := fakeDevs()
	span, err := sweep.Linspace(0, 1, 3)
	require.NoError(t, err)

	var sink rowSink
	start := time.Now()
	_, err = sweep.Run(context.Background(), &sink, sweep.Options{
		Device:     set,
		Span:       span,
		Out:        []*instrument.Device{read},
		BeforeWait: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSweepColumns(t *testing.T) {
	set, read := fakeDevs()
	o := sweep.Options{Device: set, Out: []*instrument.Device{read}}
	assert.Equal(t, []string{"src.level", "dmm.readval", "time"}, o.Columns())
}

func TestRecordBounded(t *testing.T) {
	_, read := fakeDevs()
	var sink rowSink
	res, err := sweep.Record(context.Background(), &sink, sweep.RecordOptions{
		Out:      []*instrument.Device{read},
		Interval: 5 * time.Millisecond,
		NPoints:  4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Points)

	rows := sink.Rows()
	require.Len(t, rows, 4)
	for i := 1; i < len(rows); i++ {
		assert.Greater(t, rows[i][0], rows[i-1][0], "time column is monotonic")
	}
}

func TestRecordUnboundedStopsOnCancel(t *testing.T) {
	_, read := fakeDevs()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(40*time.Millisecond, cancel)

	var sink rowSink
	res, err := sweep.Record(ctx, &sink, sweep.RecordOptions{
		Out:      []*instrument.Device{read},
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err, "cancellation completes an unbounded record")
	assert.Greater(t, res.Points, 1)
	assert.Len(t, sink.Rows(), res.Points)
}

func TestRecordValidation(t *testing.T) {
	var sink rowSink
	_, err := sweep.Record(context.Background(), &sink, sweep.RecordOptions{
		Interval: time.Millisecond,
	})
	assert.Error(t, err, "no outputs")

	_, read := fakeDevs()
	_, err = sweep.Record(context.Background(), &sink, sweep.RecordOptions{
		Out: []*instrument.Device{read},
	})
	assert.Error(t, err, "no interval")
}

func TestSnap(t *testing.T) {
	set, read := fakeDevs()
	require.NoError(t, set.Set(context.Background(), 1.5))

	var sink rowSink
	row, err := sweep.Snap(context.Background(), &sink, []*instrument.Device{read}, false)
	require.NoError(t, err)
	require.Len(t, row, 2)
	assert.Equal(t, 3.0, row[1])
	require.Len(t, sink.Rows(), 1)

	assert.Equal(t, []string{"time", "dmm.readval"}, sweep.SnapColumns([]*instrument.Device{read}))
}

func TestSweepAsyncMatchesSync(t *testing.T) {
	set, read := fakeDevs()
	span, err := sweep.Linspace(0, 1, 4)
	require.NoError(t, err)

	var sink rowSink
	res, err := sweep.Run(context.Background(), &sink, sweep.Options{
		Device: set,
		Span:   span,
		Out:    []*instrument.Device{read},
		Async:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Points)
	for _, r := range sink.Rows() {
		assert.False(t, math.IsNaN(r[1]))
		assert.Equal(t, 2*r[0], r[1])
	}
}
