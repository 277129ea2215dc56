// Package output renders catalog snapshots for terminal display.
package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// Formatter renders a snapshot into a buffer.
type Formatter interface {
	Format(w *bytes.Buffer, snap types.Snapshot) error
}

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, snap types.Snapshot) error {
	w.WriteString(f.formatHeader(snap))
	w.WriteString("\n")

	if snap.State == types.StateError {
		w.WriteString(ErrorBox.Render(ErrorStyle.Render(snap.Message)))
		w.WriteString("\n")
		if len(snap.Entries) > 0 {
			w.WriteString(MutedStyle.Render("Showing the last successful scan:"))
			w.WriteString("\n")
		}
	}

	w.WriteString(f.formatEntries(snap.Entries))
	return nil
}

// formatHeader builds the header box with scan metadata.
func (f *PrettyFormatter) formatHeader(snap types.Snapshot) string {
	var lines []string

	statusLabel := LabelStyle.Render("Status:")
	var statusValue string
	switch snap.State {
	case types.StateReady:
		statusValue = SuccessStyle.Render("ready")
	case types.StateError:
		statusValue = ErrorStyle.Render("error")
	default:
		statusValue = WarningStyle.Render("initializing")
	}
	lines = append(lines, fmt.Sprintf("%s %s", statusLabel, statusValue))

	var infoParts []string
	filesLabel := LabelStyle.Render("Files:")
	infoParts = append(infoParts, fmt.Sprintf("%s %s", filesLabel,
		ValueStyle.Render(fmt.Sprintf("%d", len(snap.Entries)))))

	if !snap.ScannedAt.IsZero() {
		scannedLabel := LabelStyle.Render("Scanned:")
		infoParts = append(infoParts, fmt.Sprintf("%s %s", scannedLabel,
			MutedStyle.Render(humanize.Time(snap.ScannedAt))))
	}

	cyclesLabel := LabelStyle.Render("Cycles:")
	cyclesValue := fmt.Sprintf("%d", snap.Cycles)
	if snap.Failures > 0 {
		cyclesValue = fmt.Sprintf("%d (%d failed)", snap.Cycles, snap.Failures)
	}
	infoParts = append(infoParts, fmt.Sprintf("%s %s", cyclesLabel,
		MutedStyle.Render(cyclesValue)))

	lines = append(lines, strings.Join(infoParts, "  "))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatEntries builds the file listing.
func (f *PrettyFormatter) formatEntries(entries []types.FileEntry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("(no files)") + "\n"
	}

	var b strings.Builder
	for _, e := range entries {
		name := NameStyle.Render(e.Name)
		if e.IsDir {
			b.WriteString(fmt.Sprintf("  %s %s\n", name, MutedStyle.Render("(directory)")))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", name, SizeStyle.Render(e.HumanSize())))
	}
	return b.String()
}

// PlainFormatter formats output as unstyled text, one entry per line.
// Used for non-TTY output and in quiet mode.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, snap types.Snapshot) error {
	fmt.Fprintf(w, "status: %s\n", snap.StatusLine())
	if !snap.ScannedAt.IsZero() {
		fmt.Fprintf(w, "scanned: %s\n", snap.ScannedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "cycles: %d\n", snap.Cycles)
	for _, e := range snap.Entries {
		if e.IsDir {
			fmt.Fprintf(w, "%s\tdir\n", e.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\n", e.Name, e.Size)
	}
	return nil
}
