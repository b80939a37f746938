package daemon_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/daemon"
)

func TestWriteAndReadPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "hegeld.pid")

	require.NoError(t, daemon.WritePIDFile(pidPath))

	pid, err := daemon.ReadPIDFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPID_Garbage(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "hegeld.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("not a pid\n"), 0o644))

	_, err := daemon.ReadPIDFile(pidPath)
	assert.Error(t, err)
}

func TestIsRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "hegeld.pid")

	// No PID file means not running.
	assert.False(t, daemon.IsRunning(pidPath))

	// Our own PID is definitely running.
	require.NoError(t, daemon.WritePIDFile(pidPath))
	assert.True(t, daemon.IsRunning(pidPath))

	// A PID beyond the kernel's pid space is definitely not.
	require.NoError(t, os.WriteFile(pidPath, []byte("999999999"), 0o644))
	assert.False(t, daemon.IsRunning(pidPath))
}

func TestRemovePIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "hegeld.pid")

	require.NoError(t, daemon.WritePIDFile(pidPath))
	require.NoError(t, daemon.RemovePIDFile(pidPath))

	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))

	// Removing an already absent file is fine.
	assert.NoError(t, daemon.RemovePIDFile(pidPath))
}

func TestStatusFile_Ready(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hegeld.status")

	require.NoError(t, daemon.WriteStatusReady(path, "/run/hegel/hegeld.sock"))

	st, err := daemon.ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, "ready", st.Status)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "/run/hegel/hegeld.sock", st.Socket)
	assert.Empty(t, st.Error)
}

func TestStatusFile_Error(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hegeld.status")

	require.NoError(t, daemon.WriteStatusError(path, assert.AnError))

	st, err := daemon.ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, "error", st.Status)
	assert.Contains(t, st.Error, assert.AnError.Error())
}

func TestStatusFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hegeld.status")

	require.NoError(t, daemon.WriteStatusReady(path, "sock"))
	require.NoError(t, daemon.RemoveStatus(path))

	_, err := daemon.ReadStatus(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, daemon.RemoveStatus(path))
}

func TestStatusPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/state", "hegeld.status"), daemon.StatusPath("/tmp/state"))
}
