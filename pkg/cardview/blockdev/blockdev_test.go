package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeImage creates a file-backed device image of n sectors, with the
// sector index stamped into the first byte of each sector.
func writeImage(t *testing.T, sectors int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.img")

	data := make([]byte, sectors*DefaultBlockSize)
	for i := 0; i < sectors; i++ {
		data[i*DefaultBlockSize] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestBus_Attach_MissingDevice(t *testing.T) {
	bus := NewBus(filepath.Join(t.TempDir(), "nope"), 0)

	dev, err := bus.Attach()
	require.Error(t, err)
	assert.Nil(t, dev)

	// The bus survives the failure and can be retried.
	assert.NotEmpty(t, bus.Path())
}

func TestBus_Attach_ReadAndRelease(t *testing.T) {
	bus := NewBus(writeImage(t, 8), 0)

	dev, err := bus.Attach()
	require.NoError(t, err)

	assert.Equal(t, DefaultBlockSize, dev.BlockSize())
	assert.Equal(t, int64(8), dev.NumBlocks())
	assert.Equal(t, int64(8*DefaultBlockSize), dev.Capacity())

	buf := make([]byte, DefaultBlockSize)
	require.NoError(t, dev.ReadBlocks(buf, 3))
	assert.Equal(t, byte(3), buf[0])

	// Multi-sector read.
	buf2 := make([]byte, 2*DefaultBlockSize)
	require.NoError(t, dev.ReadBlocks(buf2, 5))
	assert.Equal(t, byte(5), buf2[0])
	assert.Equal(t, byte(6), buf2[DefaultBlockSize])

	returned := dev.Release()
	assert.Same(t, bus, returned)
}

func TestBus_Attach_ExclusiveLock(t *testing.T) {
	bus := NewBus(writeImage(t, 4), 0)

	dev, err := bus.Attach()
	require.NoError(t, err)
	defer dev.Release()

	other := NewBus(bus.Path(), 0)
	second, err := other.Attach()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceBusy)
	assert.Nil(t, second)
}

func TestBus_Attach_LockFreedAfterRelease(t *testing.T) {
	bus := NewBus(writeImage(t, 4), 0)

	dev, err := bus.Attach()
	require.NoError(t, err)
	bus = dev.Release()

	dev, err = bus.Attach()
	require.NoError(t, err)
	dev.Release()
}

func TestDevice_ReadBlocks_OutOfRange(t *testing.T) {
	bus := NewBus(writeImage(t, 4), 0)

	dev, err := bus.Attach()
	require.NoError(t, err)
	defer dev.Release()

	buf := make([]byte, DefaultBlockSize)
	assert.ErrorIs(t, dev.ReadBlocks(buf, 4), ErrBlockOutOfRange)
	assert.ErrorIs(t, dev.ReadBlocks(buf, -1), ErrBlockOutOfRange)

	// Read straddling the end of the device.
	buf2 := make([]byte, 2*DefaultBlockSize)
	assert.ErrorIs(t, dev.ReadBlocks(buf2, 3), ErrBlockOutOfRange)
}

func TestDevice_ReadBlocks_PartialSector(t *testing.T) {
	bus := NewBus(writeImage(t, 4), 0)

	dev, err := bus.Attach()
	require.NoError(t, err)
	defer dev.Release()

	assert.Error(t, dev.ReadBlocks(make([]byte, 100), 0))
}

func TestBus_Attach_TooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	bus := NewBus(path, 0)
	_, err := bus.Attach()
	assert.Error(t, err)
}
