package blockdev

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/devfault/devfault/pkg/dmtable"
)

// DMService materializes compiled mapping tables as named device-mapper
// devices by shelling out to dmsetup.
type DMService struct {
	logger *slog.Logger
}

func NewDMService() *DMService {
	return &DMService{logger: slog.Default()}
}

func (s *DMService) Create(ctx context.Context, name string, table dmtable.Table, underlying string) (*MappedDevice, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMappedDeviceFailed, err)
	}

	cmd := exec.CommandContext(ctx, "dmsetup", "create", name)
	cmd.Stdin = strings.NewReader(table.Format(underlying))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: dmsetup create %s: %v: %s", ErrMappedDeviceFailed, name, err, strings.TrimSpace(string(out)))
	}

	s.logger.Debug("mapped device created", "name", name, "underlying", underlying, "segments", len(table.Segments))

	return &MappedDevice{
		Name:       name,
		DevicePath: "/dev/mapper/" + name,
		Underlying: underlying,
	}, nil
}

func (s *DMService) Remove(ctx context.Context, device *MappedDevice) error {
	if !s.exists(ctx, device.Name) {
		s.logger.Debug("mapped device already removed", "name", device.Name)
		return nil
	}

	if out, err := exec.CommandContext(ctx, "dmsetup", "remove", device.Name).CombinedOutput(); err != nil {
		return fmt.Errorf("dmsetup remove %s: %w: %s", device.Name, err, strings.TrimSpace(string(out)))
	}

	return nil
}

func (s *DMService) exists(ctx context.Context, name string) bool {
	return exec.CommandContext(ctx, "dmsetup", "info", name).Run() == nil
}
