package blockdev

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// TmpfsPool is a RAM-backed filesystem hosting the backing stores of a
// batch. Its capacity is fixed when it is mounted.
type TmpfsPool struct {
	Dir       string
	SizeBytes uint64
}

// TmpfsManager mounts and unmounts tmpfs pools on fresh temporary
// directories.
type TmpfsManager struct {
	logger *slog.Logger
}

func NewTmpfsManager() *TmpfsManager {
	return &TmpfsManager{logger: slog.Default()}
}

func (m *TmpfsManager) MountPool(sizeBytes uint64) (*TmpfsPool, error) {
	dir, err := os.MkdirTemp("", "devfault-pool-*")
	if err != nil {
		return nil, fmt.Errorf("create tmpfs pool directory: %w", err)
	}

	opts := fmt.Sprintf("size=%d", sizeBytes)
	if err := unix.Mount("tmpfs", dir, "tmpfs", 0, opts); err != nil {
		os.Remove(dir)
		if errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("%w: mount tmpfs on %s: %w", ErrTmpfsMountFailed, dir, ErrNeedRoot)
		}
		return nil, fmt.Errorf("%w: mount tmpfs on %s: %v", ErrTmpfsMountFailed, dir, err)
	}

	m.logger.Debug("tmpfs pool mounted", "dir", dir, "size_bytes", sizeBytes)
	return &TmpfsPool{Dir: dir, SizeBytes: sizeBytes}, nil
}

func (m *TmpfsManager) UnmountPool(pool *TmpfsPool) error {
	if _, err := os.Stat(pool.Dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := unix.Unmount(pool.Dir, 0); err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unmount tmpfs pool %s: %w", pool.Dir, err)
	}

	if err := os.Remove(pool.Dir); err != nil {
		return fmt.Errorf("remove tmpfs pool directory %s: %w", pool.Dir, err)
	}

	return nil
}
