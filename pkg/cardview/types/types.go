// Package types provides the core data model for the cardview appliance:
// catalog entries, scan status, and published snapshots, along with size
// formatting helpers shared by the page renderer and the CLI.
package types

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Bounds on the published catalog. These mirror the fixed capacity of the
// appliance and are deliberately constants rather than configuration.
const (
	// MaxEntries is the maximum number of entries a catalog holds.
	// Excess directory entries are dropped silently during a scan.
	MaxEntries = 32

	// MaxNameLen is the maximum length of an entry name in characters.
	// Longer names are truncated to this bound.
	MaxNameLen = 64
)

// FileEntry is one file or directory found in the root directory of the
// scanned volume. Entries are immutable once created.
type FileEntry struct {
	// Name is the entry name, at most MaxNameLen characters.
	Name string `json:"name"`

	// Size is the file size in bytes. Meaningless for directories.
	Size uint32 `json:"size"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`
}

// HumanSize returns the entry size formatted as a human-readable string.
func (e FileEntry) HumanSize() string {
	return FormatSize(int64(e.Size))
}

// State is the health of the storage subsystem.
type State int

// States from process start onward. The scanner moves the state between
// Ready and Error once per cycle; Initializing is only ever observed before
// the first cycle completes.
const (
	StateInitializing State = iota
	StateReady
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so State serializes as its
// string form in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ready":
		*s = StateReady
	case "error":
		*s = StateError
	default:
		*s = StateInitializing
	}
	return nil
}

// Snapshot is an atomically captured copy of the shared catalog state.
// Entries and the status fields always come from the same scan outcome:
// a Ready state pairs with the entries that scan produced, and an Error
// state pairs with the last successfully published entries (possibly
// stale, deliberately preserved).
type Snapshot struct {
	// State is the current health of the storage subsystem.
	State State `json:"state"`

	// Message is the diagnostic for StateError, empty otherwise.
	Message string `json:"message,omitempty"`

	// Entries is the published catalog in enumeration order.
	Entries []FileEntry `json:"entries"`

	// ScanID identifies the scan cycle that produced this state.
	ScanID string `json:"scan_id,omitempty"`

	// ScannedAt is when the producing cycle finished.
	ScannedAt time.Time `json:"scanned_at,omitzero"`

	// Cycles counts completed scan cycles since process start.
	Cycles uint64 `json:"cycles"`

	// Failures counts failed scan cycles since process start.
	Failures uint64 `json:"failures"`
}

// StatusLine returns a one-line description suitable for logs and the CLI.
func (s Snapshot) StatusLine() string {
	if s.State == StateError {
		return s.Message
	}
	return s.State.String()
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
