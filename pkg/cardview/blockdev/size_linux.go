package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

// deviceSize returns the capacity of f in bytes. Block devices report a
// zero size from fstat, so they are sized with the BLKGETSIZE64 ioctl.
func deviceSize(f *os.File) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, err
	}

	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
		if err != nil {
			return 0, err
		}
		return int64(size), nil
	}

	return st.Size, nil
}
