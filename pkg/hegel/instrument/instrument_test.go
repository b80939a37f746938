package instrument_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/instrument"
)

func openSource(t *testing.T) (*instrument.Registry, instrument.Instrument) {
	t.Helper()
	reg := instrument.NewRegistry(t.TempDir())
	in, err := reg.Open(context.Background(), "src", config.InstrumentConfig{Resource: "SIM::source"})
	require.NoError(t, err)
	t.Cleanup(func() { reg.CloseAll() })
	return reg, in
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		addr    string
		instr   string
		dev     string
		wantErr bool
	}{
		{addr: "src.level", instr: "src", dev: "level"},
		{addr: "dmm.readval", instr: "dmm", dev: "readval"},
		{addr: "noDot", wantErr: true},
		{addr: ".level", wantErr: true},
		{addr: "src.", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			instr, dev, err := instrument.SplitAddress(tt.addr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.instr, instr)
			assert.Equal(t, tt.dev, dev)
		})
	}
}

func TestDeviceCheckLimits(t *testing.T) {
	min, max := -1.0, 1.0
	d := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Min:  &min,
		Max:  &max,
		Set:  func(ctx context.Context, v float64) error { return nil },
	})

	assert.NoError(t, d.Check(0))
	assert.NoError(t, d.Check(-1))
	assert.NoError(t, d.Check(1))
	assert.Error(t, d.Check(1.5))
	assert.Error(t, d.Check(-1.5))

	// Set refuses out-of-range values before touching the instrument.
	err := d.Set(context.Background(), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above maximum")
}

func TestDeviceChoices(t *testing.T) {
	d := instrument.NewDevice("dmm", instrument.DeviceSpec{
		Name:    "nplc",
		Choices: []float64{0.1, 1, 10},
	})
	assert.NoError(t, d.Check(1))
	assert.Error(t, d.Check(2))
}

func TestDeviceCacheAndSetget(t *testing.T) {
	ctx := context.Background()
	_, in := openSource(t)

	level, err := in.Device("level")
	require.NoError(t, err)

	_, ok := level.Cache()
	assert.False(t, ok, "no cache before first exchange")

	require.NoError(t, level.Set(ctx, 2.5))

	// level is declared Setget, so the cache holds the re-read value.
	v, ok := level.Cache()
	require.True(t, ok)
	assert.InDelta(t, 2.5, v, 1e-12)

	got, err := level.Get(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-12)
}

func TestDeviceErrors(t *testing.T) {
	_, in := openSource(t)

	level, err := in.Device("level")
	require.NoError(t, err)
	assert.True(t, level.Settable())
	assert.True(t, level.Readable())
	assert.Equal(t, "src.level", level.FullName())

	_, err = in.Device("nonexistent")
	assert.Error(t, err)
}

func TestRegistryOpenGetClose(t *testing.T) {
	ctx := context.Background()
	reg := instrument.NewRegistry(t.TempDir())

	require.NoError(t, reg.OpenAll(ctx, map[string]config.InstrumentConfig{
		"src": {Resource: "SIM::source"},
		"dmm": {Resource: "SIM::meter"},
	}))
	defer reg.CloseAll()

	ins := reg.List()
	require.Len(t, ins, 2)

	in, err := reg.Get("dmm")
	require.NoError(t, err)
	assert.Equal(t, "SIM-meter", in.IDN().Model)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, instrument.ErrNotFound)

	// Opening the same name twice fails.
	_, err = reg.Open(ctx, "src", config.InstrumentConfig{Resource: "SIM::source"})
	assert.Error(t, err)

	require.NoError(t, reg.Close("src"))
	assert.Len(t, reg.List(), 1)
}

func TestRegistryFindDevice(t *testing.T) {
	ctx := context.Background()
	reg := instrument.NewRegistry(t.TempDir())
	_, err := reg.Open(ctx, "dmm", config.InstrumentConfig{Resource: "SIM::meter"})
	require.NoError(t, err)
	defer reg.CloseAll()

	d, err := reg.FindDevice("dmm.readval")
	require.NoError(t, err)
	assert.Equal(t, "dmm.readval", d.FullName())

	_, err = reg.FindDevice("dmm.bogus")
	assert.Error(t, err)
	_, err = reg.FindDevice("nope.readval")
	assert.ErrorIs(t, err, instrument.ErrNotFound)
}

func TestRegistryUnknownDriver(t *testing.T) {
	reg := instrument.NewRegistry(t.TempDir())
	_, err := reg.Open(context.Background(), "x", config.InstrumentConfig{
		Resource: "SIM::source",
		Driver:   "no-such-driver",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := instrument.NewRegistry(t.TempDir())
	require.NoError(t, reg.OpenAll(ctx, map[string]config.InstrumentConfig{
		"src": {Resource: "SIM::source"},
	}))
	defer reg.CloseAll()

	lines, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "SIM-source")
	assert.Contains(t, lines[1], "src.level = ")
}

func TestGroupOrderAndParallelism(t *testing.T) {
	ctx := context.Background()
	reg := instrument.NewRegistry(t.TempDir())
	require.NoError(t, reg.OpenAll(ctx, map[string]config.InstrumentConfig{
		"src": {Resource: "SIM::source"},
		"dmm": {Resource: "SIM::meter"},
	}))
	defer reg.CloseAll()

	level, err := reg.FindDevice("src.level")
	require.NoError(t, err)
	require.NoError(t, level.Set(ctx, 3.25))
	readval, err := reg.FindDevice("dmm.readval")
	require.NoError(t, err)
	rng, err := reg.FindDevice("dmm.range")
	require.NoError(t, err)

	var g instrument.Group
	g.Add(level, readval, rng)
	require.Equal(t, 3, g.Len())

	vals, err := g.Go(ctx)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.InDelta(t, 3.25, vals[0], 1e-12)
	assert.InDelta(t, 10, vals[2], 1e-12)
}

func TestGroupEmpty(t *testing.T) {
	var g instrument.Group
	vals, err := g.Go(context.Background())
	require.NoError(t, err)
	assert.Nil(t, vals)
}

func TestGroupFirstErrorCancels(t *testing.T) {
	slow := instrument.NewDevice("a", instrument.DeviceSpec{
		Name: "slow",
		Get: func(ctx context.Context) (float64, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return 1, nil
			}
		},
	})
	failing := instrument.NewDevice("b", instrument.DeviceSpec{
		Name: "bad",
		Get: func(ctx context.Context) (float64, error) {
			return 0, assert.AnError
		},
	})

	var g instrument.Group
	g.Add(slow, failing)

	start := time.Now()
	_, err := g.Go(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Less(t, time.Since(start), 2*time.Second, "failure should cancel the slow read")
}

func TestGroupSerializesPerInstrument(t *testing.T) {
	var mu sync.Mutex
	active := 0
	maxActive := 0
	get := func(ctx context.Context) (float64, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return 0, nil
	}

	var g instrument.Group
	for i := 0; i < 4; i++ {
		g.Add(instrument.NewDevice("same", instrument.DeviceSpec{Name: "d", Get: get}))
	}
	_, err := g.Go(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, maxActive, "same-instrument devices must not overlap")
}

func TestMoveRamps(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	d := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Get: func(ctx context.Context) (float64, error) {
			return 0, nil
		},
		Set: func(ctx context.Context, v float64) error {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
			return nil
		},
	})

	require.NoError(t, instrument.Move(context.Background(), d, 1, 5))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.InDelta(t, 1, seen[len(seen)-1], 1e-12, "ramp must land on the target")
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "ramp must be monotonic")
	}
	assert.Greater(t, len(seen), 2, "a rate-limited move takes several steps")
}

func TestMoveZeroRateJumps(t *testing.T) {
	var seen []float64
	d := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Set: func(ctx context.Context, v float64) error {
			seen = append(seen, v)
			return nil
		},
	})
	require.NoError(t, instrument.Move(context.Background(), d, 4, 0))
	assert.Equal(t, []float64{4}, seen)
}

func TestMoveCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := instrument.NewDevice("src", instrument.DeviceSpec{
		Name: "level",
		Get:  func(ctx context.Context) (float64, error) { return 0, nil },
		Set: func(ctx context.Context, v float64) error {
			cancel()
			return nil
		},
	})
	err := instrument.Move(ctx, d, 100, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
