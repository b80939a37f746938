package trace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/trace"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestNamerStamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 17, 30, 0, 0, time.Local)
	n := trace.NewNamer(0)

	tests := []struct {
		tmpl string
		want string
	}{
		{tmpl: "sweep_%T.txt", want: "sweep_20260301-173000.txt"},
		{tmpl: "%D/%t.txt", want: "20260301/173000.txt"},
		{tmpl: "run_{datetime}.txt", want: "run_20260301-173000.txt"},
		{tmpl: "{date}_{time}.txt", want: "20260301_173000.txt"},
		{tmpl: "plain.txt", want: "plain.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, i, err := n.Process(tt.tmpl, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, i)
		})
	}
}

func TestNamerCounterAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	n := trace.NewNamer(0)
	tmpl := filepath.Join(dir, "data_%02i.txt")

	name, i, err := n.Process(tmpl, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data_00.txt"), name)
	assert.Equal(t, 0, i)
	touch(t, name)

	// Occupy the next slot so the probe has to skip it.
	touch(t, filepath.Join(dir, "data_01.txt"))

	name, i, err = n.Process(tmpl, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data_02.txt"), name)
	assert.Equal(t, 2, i)

	// Padding widens past two digits without truncation.
	n.SetNextI(100)
	name, i, err = n.Process(tmpl, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data_100.txt"), name)
	assert.Equal(t, 100, i)
}

func TestNamerNextIField(t *testing.T) {
	dir := t.TempDir()
	n := trace.NewNamer(7)
	tmpl := filepath.Join(dir, "run_{next_i:03}.txt")

	name, i, err := n.Process(tmpl, time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run_007.txt"), name)
	assert.Equal(t, 7, i)
	assert.Equal(t, 8, n.NextI(), "using the counter advances it")
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep_001.txt")
	w, err := trace.NewWriter(path, trace.Header{
		Title:    "hegel sweep",
		Time:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local),
		Snapshot: []string{"src = Hegel Instruments,SIM-source,0,1.0", "src.level = 0"},
		Options:  []string{"sweep src.level from 0 to 1 in 3 points"},
		Columns:  []string{"src.level", "dmm.readval", "time"},
	})
	require.NoError(t, err)

	rows := [][]float64{
		{0, 0.1234567890123456789, 1},
		{0.5, -3.25e-7, 2},
		{1, 9.91e37, 3},
	}
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r))
	}
	assert.Equal(t, 3, w.Rows())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "double close is safe")

	f, err := trace.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"src.level", "dmm.readval", "time"}, f.Columns)
	require.Len(t, f.Rows, 3)
	for i, want := range rows {
		for j := range want {
			assert.InDelta(t, want[j], f.Rows[i][j], 1e-25, "row %d col %d", i, j)
		}
	}
	assert.Contains(t, f.Comments[0], "hegel sweep")
	assert.Contains(t, f.Comments, "src.level = 0")
}

func TestWriterRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	touch(t, path)
	_, err := trace.NewWriter(path, trace.Header{Columns: []string{"x"}})
	require.Error(t, err)
}

func TestWriterColumnMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	w, err := trace.NewWriter(path, trace.Header{Columns: []string{"a", "b"}})
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.WriteRow([]float64{1}))
	assert.NoError(t, w.WriteRow([]float64{1, 2}))
}

func TestWriterFlushesEveryRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	w, err := trace.NewWriter(path, trace.Header{Columns: []string{"x"}})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteRow([]float64{42}))

	// The row must be on disk before Close, as if the run aborted here.
	f, err := trace.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Rows, 1)
	assert.Equal(t, 42.0, f.Rows[0][0])
}

func TestAsyncWriterDrainsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	w, err := trace.NewWriter(path, trace.Header{Columns: []string{"x", "y"}})
	require.NoError(t, err)

	aw := trace.NewAsyncWriter(w, 8)
	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, aw.WriteRow([]float64{float64(i), float64(i) * 2}))
	}
	require.NoError(t, aw.Close())

	f, err := trace.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Rows, n, "close must drain the queue")
	for i, row := range f.Rows {
		assert.Equal(t, float64(i), row[0], "rows must stay in order")
	}

	assert.Error(t, aw.WriteRow([]float64{1, 2}), "write after close fails")
	assert.NoError(t, aw.Close(), "double close is safe")
}

func TestReadFileBadValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("# x\ty\n1\tnot-a-number\n"), 0o644))
	_, err := trace.ReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad value")
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	old := filepath.Join(dir, "old.txt")
	fresh := filepath.Join(dir, "sub", "fresh.txt")
	touch(t, old)
	touch(t, fresh)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	files, err := trace.ListFiles(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, fresh, files[0].Path, "newest first")
	assert.Equal(t, old, files[1].Path)
}
