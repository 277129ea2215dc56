// Package daemon implements the cardviewd internals: the shared catalog,
// the periodic scanner task, the embedded HTTP server, and process
// lifecycle helpers.
package daemon

import (
	"sync"
	"time"

	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// Catalog holds the published entry list and scan status behind a single
// mutex. It is the only synchronization point between the scanner (sole
// writer) and the HTTP handlers and CLI (readers). Every critical section
// does in-memory copying only, never device I/O, so readers contend for at
// most the cost of copying types.MaxEntries small records.
//
// The catalog is constructed explicitly in the daemon entrypoint and
// injected into both the scanner and the server.
type Catalog struct {
	mu        sync.Mutex
	state     types.State
	message   string
	entries   []types.FileEntry
	scanID    string
	scannedAt time.Time
	cycles    uint64
	failures  uint64
}

// NewCatalog creates an empty catalog in the Initializing state.
func NewCatalog() *Catalog {
	return &Catalog{state: types.StateInitializing}
}

// SetReady publishes a successful scan outcome: the entries replace the
// catalog wholesale and the status becomes Ready, in one critical section
// so no reader can observe the new entries under the old status.
func (c *Catalog) SetReady(entries []types.FileEntry, scanID string) {
	copied := copyEntries(entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = copied
	c.state = types.StateReady
	c.message = ""
	c.scanID = scanID
	c.scannedAt = time.Now()
	c.cycles++
}

// SetError publishes a failed scan outcome. The entries are deliberately
// left untouched: a stale-but-previously-valid listing under an Error
// status is the intended behavior, so a transient card glitch does not
// erase good data.
func (c *Catalog) SetError(message, scanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = types.StateError
	c.message = message
	c.scanID = scanID
	c.scannedAt = time.Now()
	c.cycles++
	c.failures++
}

// ReplaceAll clears and refills the entry list in one critical section,
// leaving the status fields alone.
func (c *Catalog) ReplaceAll(entries []types.FileEntry) {
	copied := copyEntries(entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = copied
}

// SetStatus sets the status pair in one critical section, leaving the
// entry list alone.
func (c *Catalog) SetStatus(state types.State, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.message = message
}

// Snapshot returns an atomically captured copy of the current state. The
// returned value shares no memory with the catalog, so callers can hold it
// for as long as they like.
func (c *Catalog) Snapshot() types.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return types.Snapshot{
		State:     c.state,
		Message:   c.message,
		Entries:   copyEntries(c.entries),
		ScanID:    c.scanID,
		ScannedAt: c.scannedAt,
		Cycles:    c.cycles,
		Failures:  c.failures,
	}
}

// copyEntries deep-copies an entry slice, bounding it to types.MaxEntries.
func copyEntries(entries []types.FileEntry) []types.FileEntry {
	if len(entries) > types.MaxEntries {
		entries = entries[:types.MaxEntries]
	}
	copied := make([]types.FileEntry, len(entries))
	copy(copied, entries)
	return copied
}
