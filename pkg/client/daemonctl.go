package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
)

// DefaultPIDPath returns the default PID file path for cardviewd.
func DefaultPIDPath() string {
	return filepath.Join(xdg.DataHome, "cardview", "cardviewd.pid")
}

// DefaultStatusPath returns the default startup status file path.
func DefaultStatusPath() string {
	return filepath.Join(xdg.DataHome, "cardview", "cardview.status")
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to cardviewd binary (auto-discovered if empty)
	PID    string // PID file path
	Status string // Startup status file path
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.PID == "" {
		p.PID = DefaultPIDPath()
	}
	if p.Status == "" {
		p.Status = DefaultStatusPath()
	}
	return p
}

// StartDaemon launches cardviewd in the background and waits for it to
// report readiness via its startup status file.
// Idempotent: returns nil if the daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find cardviewd: %w", err)
	}

	// Clean up stale status file before starting
	_ = os.Remove(paths.Status)

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Detach so daemon outlives caller
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	// Poll for the startup handshake
	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if status, err := readStatusFile(paths.Status); err == nil {
			switch status.Status {
			case "ready":
				return nil
			case "error":
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via SIGTERM.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	pid, err := readPIDFile(paths.PID)
	if err != nil {
		return nil // Not running, nothing to do
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("signal daemon: %w", err)
	}

	// Wait for daemon to stop
	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	return StartDaemon(paths)
}

// resolveBinary finds the cardviewd binary to launch.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	// Try same directory as current executable
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "cardviewd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	// Try PATH
	if path, err := exec.LookPath("cardviewd"); err == nil {
		return path, nil
	}

	return "", errors.New("cardviewd not found")
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// readPIDFile reads a PID from a file.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}

	return pid, nil
}

type statusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

func readStatusFile(path string) (*statusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status statusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitHealthy polls the daemon's health endpoint until it answers or the
// context expires.
func WaitHealthy(ctx context.Context, baseURL string) error {
	c := New(baseURL)
	for {
		if c.Healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
