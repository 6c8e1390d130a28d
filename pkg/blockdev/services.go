// Package blockdev provisions the OS-level pieces of an ephemeral virtual
// block device: sparse backing files, loop device bindings, device-mapper
// instances, filesystems, and tmpfs pools.
//
// Every external capability is expressed as a narrow interface so the
// orchestration layer can be exercised against deterministic test doubles.
// Creation order is store -> loop -> mapped device -> filesystem; teardown
// runs strictly in reverse, and every teardown operation is idempotent.
package blockdev

import (
	"context"

	"github.com/devfault/devfault/pkg/dmtable"
)

// BackingStore is a byte-addressable file backing a loop device. Ephemeral
// stores were created by this process and are deleted on teardown;
// pre-existing user files adopted as stores are never deleted.
type BackingStore struct {
	Path      string
	SizeBytes uint64
	Ephemeral bool
}

// LoopBinding is a backing store attached to a kernel loop device.
type LoopBinding struct {
	DevicePath string // e.g. /dev/loop4
	Store      *BackingStore
}

// MappedDevice is a named device-mapper instance layered over a loop
// device, materialized from a compiled fault-mapping table.
type MappedDevice struct {
	Name       string
	DevicePath string // /dev/mapper/<name>
	Underlying string // device path the table's linear targets map onto
}

// BackingStoreProvider allocates and deletes backing files.
type BackingStoreProvider interface {
	// Create produces a sparse file of exactly sizeBytes logical length.
	Create(path string, sizeBytes uint64) (*BackingStore, error)
	// Adopt wraps an existing user file as a non-ephemeral store.
	Adopt(path string) (*BackingStore, error)
	// Destroy deletes the file behind an ephemeral store. Non-ephemeral
	// stores and already-deleted files are left alone, successfully.
	Destroy(store *BackingStore) error
}

// LoopDeviceService attaches backing stores to loop devices. Allocation of
// the first free device slot is delegated to the kernel and is not
// synchronized across processes; concurrent invocations of the whole tool
// may race for a slot, which is an accepted external race.
type LoopDeviceService interface {
	Attach(store *BackingStore) (*LoopBinding, error)
	// Detach is idempotent: detaching an already-detached or missing
	// device is success.
	Detach(binding *LoopBinding) error
}

// DeviceMapperService loads compiled mapping tables into the kernel.
type DeviceMapperService interface {
	Create(ctx context.Context, name string, table dmtable.Table, underlying string) (*MappedDevice, error)
	// Remove is idempotent: removing a name the kernel no longer knows is
	// success.
	Remove(ctx context.Context, device *MappedDevice) error
}

// FilesystemService formats and mounts devices. Mount creates a fresh
// unique mountpoint directory per call; Unmount removes it only after a
// successful unmount, leaving it in place for inspection otherwise.
type FilesystemService interface {
	Format(ctx context.Context, devicePath string) error
	Mount(devicePath string) (mountpoint string, err error)
	// Unmount is idempotent: unmounting a path that is not mounted is
	// success.
	Unmount(mountpoint string) error
}

// TmpfsService mounts RAM-backed pools that host backing stores. Pool
// capacity is fixed at mount time, so callers must size it for the sum of
// every store it will hold before mounting.
type TmpfsService interface {
	MountPool(sizeBytes uint64) (*TmpfsPool, error)
	// UnmountPool is idempotent. It must run after every store inside the
	// pool has been released.
	UnmountPool(pool *TmpfsPool) error
}
