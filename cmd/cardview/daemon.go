package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/cardview/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the cardviewd daemon",
	Long: `Manage the cardviewd daemon that scans the card device and serves
the catalog over HTTP.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cardviewd daemon",
	Long:  `Start the cardviewd daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the cardviewd daemon",
	Long:  `Stop the cardviewd daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the cardviewd daemon",
	Long:  `Stop and start the cardviewd daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show whether the cardviewd daemon is running and responding.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	printVerbose("starting daemon...")
	if err := client.StartDaemon(client.DaemonPaths{}); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printVerbose("daemon started successfully")
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pidPath := client.DefaultPIDPath()
	printVerbose("checking PID file: %s", pidPath)

	if !client.IsDaemonRunning(pidPath) {
		printVerbose("daemon not running (PID check failed)")
		return errors.New("daemon is not running")
	}

	if err := client.StopDaemon(client.DaemonPaths{}); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if err := client.RestartDaemon(client.DaemonPaths{}); err != nil {
		return fmt.Errorf("failed to restart daemon: %w", err)
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	pidPath := client.DefaultPIDPath()

	if !client.IsDaemonRunning(pidPath) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := client.New(serverURL())
	if !c.Healthy(ctx) {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running")
	printInfo("  Card: %s", snap.StatusLine())
	printInfo("  Files: %d", len(snap.Entries))
	printInfo("  Cycles: %d (%d failed)", snap.Cycles, snap.Failures)
	if !snap.ScannedAt.IsZero() {
		printInfo("  Last scan: %s", snap.ScannedAt.Format(time.RFC3339))
	}

	return nil
}
