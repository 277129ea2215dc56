package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/cardview/pkg/cardview/output"
	"github.com/jamesainslie/cardview/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current card catalog",
	Long: `Fetch the current catalog snapshot from the cardviewd daemon and
display the card status and file listing.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	url := serverURL()
	printVerbose("querying daemon at %s", url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := client.New(url)
	snap, err := c.Snapshot(ctx)
	if err != nil {
		if !client.IsDaemonRunning(client.DefaultPIDPath()) {
			return fmt.Errorf("daemon is not running (start with: cardview daemon start)")
		}
		return err
	}

	var f output.Formatter
	switch {
	case viper.GetBool("json"):
		f = &output.JSONFormatter{}
	case viper.GetBool("plain"):
		f = &output.PlainFormatter{}
	default:
		f = &output.PrettyFormatter{}
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, snap); err != nil {
		return err
	}
	_, err = buf.WriteTo(os.Stdout)
	return err
}
