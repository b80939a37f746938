package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addRun(t *testing.T, s *store.Store, kind string, start time.Time) *store.Run {
	t.Helper()
	run := &store.Run{
		Kind:     kind,
		Devices:  []string{"src.level", "dmm.readval"},
		Filename: "/data/" + kind + ".txt",
		Points:   11,
		Start:    start,
		End:      start.Add(time.Minute),
	}
	require.NoError(t, s.Add(run))
	require.NotEmpty(t, run.ID, "Add assigns an id")
	return run
}

func TestAddGet(t *testing.T) {
	s := openStore(t)
	run := addRun(t, s, "sweep", time.Now())

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "sweep", got.Kind)
	assert.Equal(t, run.Devices, got.Devices)
	assert.Equal(t, 11, got.Points)
	assert.WithinDuration(t, run.Start, got.Start, time.Millisecond)

	_, err = s.Get("no-such-run")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	base := time.Now().Add(-time.Hour)
	old := addRun(t, s, "record", base)
	mid := addRun(t, s, "sweep", base.Add(10*time.Minute))
	fresh := addRun(t, s, "snap", base.Add(20*time.Minute))

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, fresh.ID, runs[0].ID)
	assert.Equal(t, mid.ID, runs[1].ID)
	assert.Equal(t, old.ID, runs[2].ID)

	limited, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, fresh.ID, limited[0].ID)
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	old := addRun(t, s, "sweep", now.Add(-48*time.Hour))
	kept := addRun(t, s, "sweep", now)

	removed, err := s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, kept.ID, runs[0].ID)

	_, err = s.Get(old.ID)
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	removed, err = s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed, "prune is idempotent")
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("0\t1\n"), 0o644))

	sum1, err := store.ChecksumFile(path)
	require.NoError(t, err)
	assert.Len(t, sum1, 16, "xxh64 hex digest")

	sum2, err := store.ChecksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2, "deterministic")

	require.NoError(t, os.WriteFile(path, []byte("0\t2\n"), 0o644))
	sum3, err := store.ChecksumFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, sum1, sum3)

	_, err = store.ChecksumFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
