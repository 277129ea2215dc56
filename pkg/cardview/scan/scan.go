// Package scan implements one scan attempt against the storage device
// under the bus-ownership contract: the caller hands its bus to Attempt,
// and Attempt hands an equivalent bus back on every path, success or
// failure. Each driver layer takes ownership of the layer below it, so a
// failure mid-stack is unwound explicitly, layer by layer, before the bus
// is returned.
package scan

import (
	"fmt"

	"github.com/jamesainslie/cardview/pkg/cardview/blockdev"
	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// Diagnostics published verbatim as the error status message. These are a
// fixed set; consumers render them as-is.
const (
	DiagNoCard    = "No SD card detected"
	DiagNoVolume  = "Failed to open volume (format as FAT32)"
	DiagNoRootDir = "Failed to open root directory"
)

// Stage identifies where in an attempt a failure occurred.
type Stage int

// Attempt stages, in order. Enumeration and close never fail an attempt
// and so have no stage value.
const (
	StageProbe Stage = iota
	StageMount
	StageOpenRoot
)

// String returns the stage name used in logs and metrics labels.
func (s Stage) String() string {
	switch s {
	case StageProbe:
		return "probe"
	case StageMount:
		return "mount"
	case StageOpenRoot:
		return "open_root"
	default:
		return "unknown"
	}
}

// Error is a failed scan stage. Diagnostic is the published status
// message; Cause carries the underlying driver error for logs.
type Error struct {
	Stage      Stage
	Diagnostic string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Diagnostic, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Diagnostic)
}

// Unwrap returns the underlying driver error.
func (e *Error) Unwrap() error { return e.Cause }

// Driver attaches a card over a caller-owned bus. On failure the bus is
// untouched and remains with the caller.
type Driver interface {
	Attach(bus *blockdev.Bus) (Card, error)
}

// Card is an attached storage device. On a successful Mount the card's
// ownership passes into the returned Volume; on failure the caller keeps
// the card and must Detach it. Detach always hands the bus back.
type Card interface {
	Mount() (Volume, error)
	Detach() *blockdev.Bus
}

// Volume is a mounted filesystem. Unmount hands back the card it was
// mounted from; it never fails.
type Volume interface {
	OpenRoot() (Directory, error)
	Unmount() Card
}

// Directory is an open directory handle. Read returns up to limit entries
// in enumeration order plus a count of entries dropped as undecodable; an
// error from Read ends enumeration but never fails the attempt. Close is
// best effort.
type Directory interface {
	Read(limit int) ([]types.FileEntry, int, error)
	Close() error
}

// Outcome is the result of one attempt. Bus is set on every outcome — the
// caller's handle pair comes back whether the attempt succeeded or not —
// and is immediately reusable for the next attempt.
type Outcome struct {
	// Bus is the returned bus handle pair. Never nil.
	Bus *blockdev.Bus

	// Entries is the enumerated catalog on success, bounded to
	// types.MaxEntries with names bounded to types.MaxNameLen.
	Entries []types.FileEntry

	// Skipped counts entries dropped individually during enumeration.
	Skipped int

	// EnumErr is a device error that cut enumeration short. The entries
	// decoded before it are still published; this is informational only.
	EnumErr error

	// Err is the stage failure, nil on success.
	Err *Error
}

// Attempt performs one scan cycle over bus using drv: probe, mount, open
// root, enumerate, close. Ownership is threaded down the driver stack and
// unwound back out on every failure path, so Outcome.Bus is always the
// caller's pair.
func Attempt(drv Driver, bus *blockdev.Bus) Outcome {
	card, err := drv.Attach(bus)
	if err != nil {
		return Outcome{Bus: bus, Err: &Error{StageProbe, DiagNoCard, err}}
	}

	vol, err := card.Mount()
	if err != nil {
		return Outcome{Bus: card.Detach(), Err: &Error{StageMount, DiagNoVolume, err}}
	}

	dir, err := vol.OpenRoot()
	if err != nil {
		return Outcome{Bus: vol.Unmount().Detach(), Err: &Error{StageOpenRoot, DiagNoRootDir, err}}
	}

	entries, skipped, enumErr := dir.Read(types.MaxEntries)
	_ = dir.Close()

	// Bound defensively even if the driver over-delivered.
	if len(entries) > types.MaxEntries {
		skipped += len(entries) - types.MaxEntries
		entries = entries[:types.MaxEntries]
	}
	for i := range entries {
		entries[i].Name = boundName(entries[i].Name)
	}

	return Outcome{
		Bus:     vol.Unmount().Detach(),
		Entries: entries,
		Skipped: skipped,
		EnumErr: enumErr,
	}
}

// boundName truncates a name to types.MaxNameLen characters. A name of
// exactly the bound is preserved verbatim.
func boundName(name string) string {
	runes := []rune(name)
	if len(runes) <= types.MaxNameLen {
		return name
	}
	return string(runes[:types.MaxNameLen])
}
