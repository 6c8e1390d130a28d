package blockdev

import "errors"

var (
	// Size / input errors
	ErrInvalidSizeSpec = errors.New("invalid size specification")

	// Backing store errors
	ErrStoreExists = errors.New("backing store file already exists")

	// Loop device errors
	ErrNoFreeLoopDevice = errors.New("no free loop device available")
	ErrLoopAttachFailed = errors.New("failed to attach backing store to loop device")

	// Device-mapper errors
	ErrMappedDeviceFailed = errors.New("failed to create mapped device")

	// Filesystem errors
	ErrFormatFailed = errors.New("failed to format device")
	ErrMountFailed  = errors.New("failed to mount device")

	// Tmpfs pool errors
	ErrTmpfsMountFailed = errors.New("failed to mount tmpfs pool")

	// Permission errors
	ErrNeedRoot = errors.New("operation requires root privileges")
)
