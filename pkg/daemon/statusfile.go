package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// StatusFile records the daemon startup outcome so a launching client
// can tell a slow start from a failed one.
type StatusFile struct {
	Status string `json:"status"`          // "ready" or "error"
	PID    int    `json:"pid,omitempty"`   // Process ID (only for ready status)
	Socket string `json:"socket,omitempty"`
	Error  string `json:"error,omitempty"` // Error message (only for error status)
}

// WriteStatusReady writes a ready status file naming the socket.
func WriteStatusReady(path, socket string) error {
	return writeStatus(path, &StatusFile{
		Status: "ready",
		PID:    os.Getpid(),
		Socket: socket,
	})
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status: "error",
		Error:  err.Error(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file. A missing file is not an error.
func RemoveStatus(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StatusPath returns the status file path for a state directory.
func StatusPath(stateDir string) string {
	return filepath.Join(stateDir, "hegeld.status")
}
