// Package blockdev provides exclusively owned block-level access to the
// storage peripheral. A Bus addresses one device node (or a file-backed
// image); attaching it yields a Device that holds the open handle and an
// exclusive advisory lock for as long as it stays attached.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBlockSize is the sector size used when none is configured.
// FAT media is addressed in 512-byte sectors.
const DefaultBlockSize = 512

// ErrDeviceBusy is returned when another process holds the device lock.
var ErrDeviceBusy = errors.New("device is locked by another process")

// ErrBlockOutOfRange is returned for reads past the end of the device.
var ErrBlockOutOfRange = errors.New("block index out of range")

// Bus is the caller-owned handle pair addressing the storage peripheral:
// the device node path (which peripheral) and the sector size used to talk
// to it. The Bus itself holds no open file; it is created once at startup
// and threaded through every scan cycle. Exactly one goroutine may own it
// at a time.
type Bus struct {
	path      string
	blockSize int
}

// NewBus creates a bus addressing the device node or image at path.
// A blockSize of 0 selects DefaultBlockSize.
func NewBus(path string, blockSize int) *Bus {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Bus{path: path, blockSize: blockSize}
}

// Path returns the device node or image path this bus addresses.
func (b *Bus) Path() string { return b.path }

// BlockSize returns the sector size in bytes.
func (b *Bus) BlockSize() int { return b.blockSize }

// Attach opens the addressed device read-only and takes an exclusive
// advisory lock on it. On failure the bus is untouched and remains with
// the caller. The returned Device owns the bus until Release is called.
func (b *Bus) Attach() (*Device, error) {
	f, err := os.OpenFile(b.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", b.path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", b.path, ErrDeviceBusy)
		}
		return nil, fmt.Errorf("locking %s: %w", b.path, err)
	}

	size, err := deviceSize(f)
	if err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("sizing %s: %w", b.path, err)
	}
	if size < int64(b.blockSize) {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("%s: device smaller than one sector", b.path)
	}

	return &Device{
		bus:  b,
		f:    f,
		size: size,
	}, nil
}

// Device is an attached storage device: the open, locked handle built from
// a Bus. It satisfies the block reader contract the volume layer mounts on.
type Device struct {
	bus  *Bus
	f    *os.File
	size int64
}

// BlockSize returns the sector size in bytes.
func (d *Device) BlockSize() int { return d.bus.blockSize }

// NumBlocks returns the number of addressable sectors.
func (d *Device) NumBlocks() int64 { return d.size / int64(d.bus.blockSize) }

// Capacity returns the device capacity in bytes.
func (d *Device) Capacity() int64 { return d.size }

// ReadBlocks reads len(dst)/BlockSize sectors starting at startBlock.
// dst must be a whole number of sectors long.
func (d *Device) ReadBlocks(dst []byte, startBlock int64) error {
	bs := int64(d.bus.blockSize)
	if len(dst)%int(bs) != 0 {
		return fmt.Errorf("read length %d is not a multiple of block size %d", len(dst), bs)
	}
	if startBlock < 0 || startBlock*bs+int64(len(dst)) > d.size {
		return fmt.Errorf("%w: block %d, %d bytes", ErrBlockOutOfRange, startBlock, len(dst))
	}

	if _, err := d.f.ReadAt(dst, startBlock*bs); err != nil && err != io.EOF {
		return fmt.Errorf("reading block %d: %w", startBlock, err)
	}
	return nil
}

// Release closes the handle, drops the lock, and hands the bus back to the
// caller. The Device must not be used afterwards. Close errors are ignored;
// the bus is returned unconditionally.
func (d *Device) Release() *Bus {
	if d.f != nil {
		_ = unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
		_ = d.f.Close()
		d.f = nil
	}
	return d.bus
}
