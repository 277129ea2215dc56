package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrDaemonAlreadyRunning reports a start attempt while a live cardviewd
// still holds the PID file.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// Status file verdicts exchanged during the start handshake.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// StatusFile is the startup handshake record: the daemon writes it once
// startup succeeds or fails, and the CLI polls it after a detached start.
type StatusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusPath returns the handshake file path under stateDir.
func StatusPath(stateDir string) string {
	return filepath.Join(stateDir, "cardview.status")
}

// WritePIDFile records the current process ID at path.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// ReadPIDFile parses the process ID stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// IsDaemonRunning reports whether the process named by the PID file is
// alive. A missing or malformed file, or a dead PID, all report false.
func IsDaemonRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// WriteStatusReady publishes a successful-start verdict with our PID.
func WriteStatusReady(path string) error {
	return writeStatus(path, StatusFile{Status: StatusReady, PID: os.Getpid()})
}

// WriteStatusError publishes a failed-start verdict carrying err.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, StatusFile{Status: StatusError, Error: err.Error()})
}

func writeStatus(path string, sf StatusFile) error {
	data, err := json.Marshal(sf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadStatus loads the handshake record at path.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("malformed status file %s: %w", path, err)
	}
	return &sf, nil
}

// RemoveStatus deletes the handshake file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}
