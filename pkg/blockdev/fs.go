package blockdev

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultFilesystem is used when no filesystem type is configured.
const DefaultFilesystem = "ext4"

// FilesystemProvisioner formats devices with a single configured
// filesystem type and mounts them on fresh temporary mountpoints.
type FilesystemProvisioner struct {
	fstype string
	logger *slog.Logger
}

func NewFilesystemProvisioner(fstype string) *FilesystemProvisioner {
	if fstype == "" {
		fstype = DefaultFilesystem
	}
	return &FilesystemProvisioner{fstype: fstype, logger: slog.Default()}
}

func (p *FilesystemProvisioner) Format(ctx context.Context, devicePath string) error {
	cmd := exec.CommandContext(ctx, "mkfs."+p.fstype, "-F", devicePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: mkfs.%s %s: %v: %s", ErrFormatFailed, p.fstype, devicePath, err, strings.TrimSpace(string(out)))
	}

	p.logger.Debug("device formatted", "device", devicePath, "fstype", p.fstype)
	return nil
}

func (p *FilesystemProvisioner) Mount(devicePath string) (string, error) {
	mountpoint, err := os.MkdirTemp("", "devfault-mnt-*")
	if err != nil {
		return "", fmt.Errorf("create mountpoint: %w", err)
	}

	if err := unix.Mount(devicePath, mountpoint, p.fstype, 0, ""); err != nil {
		os.Remove(mountpoint)
		return "", fmt.Errorf("%w: mount %s on %s: %v", ErrMountFailed, devicePath, mountpoint, err)
	}

	p.logger.Debug("device mounted", "device", devicePath, "mountpoint", mountpoint)
	return mountpoint, nil
}

// Unmount detaches the filesystem and removes the mountpoint directory.
// If the unmount itself fails the directory is left in place rather than
// deleted, so un-flushed data stays inspectable.
func (p *FilesystemProvisioner) Unmount(mountpoint string) error {
	if _, err := os.Stat(mountpoint); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := unix.Unmount(mountpoint, 0); err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unmount %s: %w", mountpoint, err)
	}

	if err := os.Remove(mountpoint); err != nil {
		return fmt.Errorf("remove mountpoint %s: %w", mountpoint, err)
	}

	return nil
}
