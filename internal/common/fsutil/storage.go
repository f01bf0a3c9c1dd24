package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const bytesPerGB = 1 << 30

// FreeStorageGB reports the remaining capacity of the filesystem holding
// path, in GiB.
func FreeStorageGB(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return float64(st.Bavail) * float64(st.Bsize) / bytesPerGB, nil
}

// DirSizeBytes walks dir and sums the size of all regular files.
func DirSizeBytes(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	return total, nil
}

// DirSizeGB is DirSizeBytes expressed in GiB.
func DirSizeGB(dir string) (float64, error) {
	b, err := DirSizeBytes(dir)
	if err != nil {
		return 0, err
	}
	return float64(b) / bytesPerGB, nil
}
