package blockdev

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

const loopControlPath = "/dev/loop-control"

// LoopService binds backing stores to loop devices through the kernel's
// loop-control interface.
type LoopService struct {
	logger *slog.Logger
}

func NewLoopService() *LoopService {
	return &LoopService{logger: slog.Default()}
}

func (s *LoopService) Attach(store *BackingStore) (*LoopBinding, error) {
	ctl, err := os.OpenFile(loopControlPath, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open %s: %w", loopControlPath, ErrNeedRoot)
		}
		return nil, fmt.Errorf("open %s: %w", loopControlPath, err)
	}
	defer ctl.Close()

	num, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFreeLoopDevice, err)
	}
	devicePath := fmt.Sprintf("/dev/loop%d", num)

	dev, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open loop device %s: %w", devicePath, err)
	}
	defer dev.Close()

	backing, err := os.OpenFile(store.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open backing file %s: %w", store.Path, err)
	}
	defer backing.Close()

	// A concurrent process can grab the same free slot between GET_FREE
	// and SET_FD. That race is accepted; the caller just fails and may
	// retry the whole attach.
	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return nil, fmt.Errorf("%w: bind %s to %s: %v", ErrLoopAttachFailed, store.Path, devicePath, err)
	}

	var info unix.LoopInfo64
	copy(info.File_name[:], store.Path)
	if err := unix.IoctlLoopSetStatus64(int(dev.Fd()), &info); err != nil {
		// The binding works without the status record, it just shows up
		// unnamed in losetup listings.
		s.logger.Warn("failed to set loop device status", "device", devicePath, "error", err)
	}

	s.logger.Debug("loop device attached", "device", devicePath, "backing", store.Path)

	return &LoopBinding{DevicePath: devicePath, Store: store}, nil
}

func (s *LoopService) Detach(binding *LoopBinding) error {
	dev, err := os.OpenFile(binding.DevicePath, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open loop device %s: %w", binding.DevicePath, err)
	}
	defer dev.Close()

	if err := unix.IoctlSetInt(int(dev.Fd()), unix.LOOP_CLR_FD, 0); err != nil {
		// ENXIO means no backing file is bound: already detached.
		if errors.Is(err, unix.ENXIO) {
			return nil
		}
		return fmt.Errorf("detach loop device %s: %w", binding.DevicePath, err)
	}

	return nil
}
