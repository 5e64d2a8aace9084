//go:build windows

package fsutil

import "os"

// openFileNoFollow opens a file for writing.
// On Windows, O_NOFOLLOW is not available; WriteFileAtomic still refuses to
// replace a symlinked destination.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
