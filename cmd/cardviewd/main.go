package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesainslie/cardview/pkg/cardview/blockdev"
	"github.com/jamesainslie/cardview/pkg/cardview/config"
	"github.com/jamesainslie/cardview/pkg/cardview/logging"
	"github.com/jamesainslie/cardview/pkg/cardview/scan"
	"github.com/jamesainslie/cardview/pkg/daemon"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cardviewd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
		Components:   cfg.Logging.Components,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	log := logging.Get("daemon")

	if err := config.EnsureDataDir(); err != nil {
		return err
	}

	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	statusPath := daemon.StatusPath(config.DataDir())

	if daemon.IsDaemonRunning(pidPath) {
		return daemon.ErrDaemonAlreadyRunning
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			log.Warn("failed to remove pid file", "error", err)
		}
	}()

	catalog := daemon.NewCatalog()

	// Bind before reporting readiness so a taken port fails the start
	// handshake instead of dying after the CLI returned success.
	srv := daemon.NewServer(daemon.ServerConfig{
		Listen:  cfg.HTTP.Listen,
		Refresh: refreshSeconds(cfg.Scan.Interval),
	}, catalog)

	ln, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		werr := daemon.WriteStatusError(statusPath, err)
		if werr != nil {
			log.Warn("failed to write status file", "error", werr)
		}
		return fmt.Errorf("listen on %s: %w", cfg.HTTP.Listen, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := blockdev.NewBus(cfg.Device.Path, cfg.Device.BlockSize)
	scanner := daemon.NewScanner(scan.NewDeviceDriver(), bus, catalog,
		cfg.Scan.SettleDelay, cfg.Scan.Interval)

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner.Run(ctx)
	}()

	if cfg.File != "" {
		watcher, err := daemon.NewConfigWatcher(cfg.File, func() {
			reloaded, err := config.Load()
			if err != nil {
				log.Warn("config reload failed", "error", err)
				return
			}
			level, err := logging.ParseLevel(reloaded.Logging.Level)
			if err != nil {
				log.Warn("config reload: bad log level", "error", err)
				return
			}
			logging.SetLevel(level)
			log.Info("log level applied", "level", reloaded.Logging.Level)
		})
		if err != nil {
			log.Warn("config watch unavailable", "error", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	if err := daemon.WriteStatusReady(statusPath); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	defer func() {
		if err := daemon.RemoveStatus(statusPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove status file", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	log.Info("cardviewd started",
		"device", cfg.Device.Path, "listen", cfg.HTTP.Listen, "pid", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			cancel()
			<-scanDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	// An in-progress scan attempt always completes before the loop
	// observes cancellation; wait for it so the device lock is released.
	<-scanDone

	log.Info("cardviewd stopped")
	return nil
}

// refreshSeconds converts the scan interval into the page auto-refresh
// period, never faster than one second.
func refreshSeconds(interval time.Duration) int {
	s := int(interval / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
