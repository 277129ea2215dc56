package daemon

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

func TestCatalog_StartsInitializing(t *testing.T) {
	c := NewCatalog()

	snap := c.Snapshot()
	assert.Equal(t, types.StateInitializing, snap.State)
	assert.Empty(t, snap.Entries)
	assert.Zero(t, snap.Cycles)
}

func TestCatalog_SetReady(t *testing.T) {
	c := NewCatalog()
	entries := []types.FileEntry{
		{Name: "a.txt", Size: 1},
		{Name: "b", IsDir: true},
	}

	c.SetReady(entries, "scan-1")

	snap := c.Snapshot()
	assert.Equal(t, types.StateReady, snap.State)
	assert.Empty(t, snap.Message)
	assert.Equal(t, "scan-1", snap.ScanID)
	assert.Equal(t, uint64(1), snap.Cycles)
	assert.False(t, snap.ScannedAt.IsZero())
	require.Len(t, snap.Entries, 2)
}

func TestCatalog_SetErrorPreservesEntries(t *testing.T) {
	c := NewCatalog()
	c.SetReady([]types.FileEntry{{Name: "keep.txt", Size: 5}}, "scan-1")

	c.SetError("No SD card detected", "scan-2")

	snap := c.Snapshot()
	assert.Equal(t, types.StateError, snap.State)
	assert.Equal(t, "No SD card detected", snap.Message)
	assert.Equal(t, "scan-2", snap.ScanID)
	assert.Equal(t, uint64(2), snap.Cycles)
	assert.Equal(t, uint64(1), snap.Failures)

	// The stale listing survives the failure.
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "keep.txt", snap.Entries[0].Name)
}

func TestCatalog_ReadyClearsErrorMessage(t *testing.T) {
	c := NewCatalog()
	c.SetError("Failed to open volume (format as FAT32)", "scan-1")

	c.SetReady(nil, "scan-2")

	snap := c.Snapshot()
	assert.Equal(t, types.StateReady, snap.State)
	assert.Empty(t, snap.Message)
}

func TestCatalog_SnapshotIsDetached(t *testing.T) {
	c := NewCatalog()
	c.SetReady([]types.FileEntry{{Name: "x.bin", Size: 10}}, "scan-1")

	snap := c.Snapshot()
	snap.Entries[0].Name = "mutated"

	again := c.Snapshot()
	assert.Equal(t, "x.bin", again.Entries[0].Name)
}

func TestCatalog_CapsEntries(t *testing.T) {
	c := NewCatalog()
	var entries []types.FileEntry
	for i := 0; i < types.MaxEntries+10; i++ {
		entries = append(entries, types.FileEntry{Name: fmt.Sprintf("f%d", i)})
	}

	c.SetReady(entries, "scan-1")

	assert.Len(t, c.Snapshot().Entries, types.MaxEntries)
}

func TestCatalog_ConcurrentReadersSeeConsistentPairs(t *testing.T) {
	c := NewCatalog()

	done := make(chan struct{})
	writerDone := make(chan struct{})

	// Writer alternates between a ready outcome with entries and an error
	// outcome that must keep the previous entries.
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				c.SetReady([]types.FileEntry{{Name: "f.txt", Size: 1}}, "s")
			} else {
				c.SetError("No SD card detected", "s")
			}
		}
	}()

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 1000; i++ {
				snap := c.Snapshot()
				switch snap.State {
				case types.StateReady:
					if snap.Message != "" {
						t.Error("ready snapshot carries an error message")
						return
					}
				case types.StateError:
					if snap.Message != "No SD card detected" {
						t.Error("error snapshot without diagnostic")
						return
					}
				}
				// Entries never vanish once published.
				if snap.Cycles > 0 && len(snap.Entries) != 1 {
					t.Error("published entries lost")
					return
				}
			}
		}()
	}

	readers.Wait()
	close(done)
	<-writerDone
}
