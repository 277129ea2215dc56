//go:build !linux

package blockdev

import "os"

// deviceSize returns the capacity of f in bytes. Without the Linux block
// ioctls only regular files (card images) can be sized.
func deviceSize(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
