package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Use a temp directory that doesn't have a config file
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Path != DefaultDevicePath {
		t.Errorf("Device.Path = %q, want %q", cfg.Device.Path, DefaultDevicePath)
	}
	if cfg.Device.BlockSize != DefaultBlockSize {
		t.Errorf("Device.BlockSize = %d, want %d", cfg.Device.BlockSize, DefaultBlockSize)
	}
	if cfg.Scan.SettleDelay != DefaultSettleDelay {
		t.Errorf("Scan.SettleDelay = %v, want %v", cfg.Scan.SettleDelay, DefaultSettleDelay)
	}
	if cfg.Scan.Interval != DefaultInterval {
		t.Errorf("Scan.Interval = %v, want %v", cfg.Scan.Interval, DefaultInterval)
	}
	if cfg.HTTP.Listen != DefaultListen {
		t.Errorf("HTTP.Listen = %q, want %q", cfg.HTTP.Listen, DefaultListen)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty when no config file exists", cfg.File)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "cardview")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}

	content := `
device:
  path: /dev/sdb
scan:
  settle_delay: 1s
  interval: 30s
http:
  listen: ":9090"
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", tempDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Path != "/dev/sdb" {
		t.Errorf("Device.Path = %q, want /dev/sdb", cfg.Device.Path)
	}
	if cfg.Scan.SettleDelay != time.Second {
		t.Errorf("Scan.SettleDelay = %v, want 1s", cfg.Scan.SettleDelay)
	}
	if cfg.Scan.Interval != 30*time.Second {
		t.Errorf("Scan.Interval = %v, want 30s", cfg.Scan.Interval)
	}
	if cfg.HTTP.Listen != ":9090" {
		t.Errorf("HTTP.Listen = %q, want :9090", cfg.HTTP.Listen)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Unset keys keep their defaults.
	if cfg.Device.BlockSize != DefaultBlockSize {
		t.Errorf("Device.BlockSize = %d, want default %d", cfg.Device.BlockSize, DefaultBlockSize)
	}
	if cfg.File == "" {
		t.Error("File should record the config file path")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("CARDVIEW_DEVICE_PATH", "/dev/loop7")
	t.Setenv("CARDVIEW_HTTP_LISTEN", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.Path != "/dev/loop7" {
		t.Errorf("Device.Path = %q, want /dev/loop7", cfg.Device.Path)
	}
	if cfg.HTTP.Listen != ":7070" {
		t.Errorf("HTTP.Listen = %q, want :7070", cfg.HTTP.Listen)
	}
}

func TestWriteDefault(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", tempDir)

	if err := WriteDefault(); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	configPath := filepath.Join(tempDir, "cardview", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	// A second call must not clobber an existing file.
	if err := os.WriteFile(configPath, []byte("device:\n  path: /dev/custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDefault(); err != nil {
		t.Fatalf("WriteDefault() second call error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Path != "/dev/custom" {
		t.Errorf("WriteDefault overwrote an existing config file")
	}
}
