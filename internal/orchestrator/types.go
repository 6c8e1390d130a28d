package orchestrator

import (
	"github.com/devfault/devfault/pkg/blockdev"
)

// State tracks how far a DeviceRecord has progressed through its
// lifecycle. Failure at any step moves the record to StateFailed after its
// already-acquired sub-resources are rolled back.
type State int

const (
	StatePending State = iota
	StateStoreCreated
	StateLoopAttached
	StateMappingApplied
	StateFormatted
	StateMounted
	StateLive
	StateFailed
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStoreCreated:
		return "store-created"
	case StateLoopAttached:
		return "loop-attached"
	case StateMappingApplied:
		return "mapping-applied"
	case StateFormatted:
		return "formatted"
	case StateMounted:
		return "mounted"
	case StateLive:
		return "live"
	case StateFailed:
		return "failed"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// DeviceRecord aggregates every resource one device instance acquired.
// Fields are cleared as their resources are released, which makes repeated
// teardown of the same record a no-op.
type DeviceRecord struct {
	Index     int    // 1-based position in the batch
	Name      string // session-scoped unique name, used for the mapped device
	SizeBytes uint64
	State     State

	Store      *blockdev.BackingStore
	Loop       *blockdev.LoopBinding
	Mapped     *blockdev.MappedDevice
	Mountpoint string
}

// DevicePath returns the path user I/O should target: the mapped device
// when a fault table was applied, the raw loop device otherwise.
func (r *DeviceRecord) DevicePath() string {
	if r.Mapped != nil {
		return r.Mapped.DevicePath
	}
	if r.Loop != nil {
		return r.Loop.DevicePath
	}
	return ""
}

// BatchSession owns the device records of one invocation, plus the shared
// tmpfs pool when one was requested.
type BatchSession struct {
	ID      string
	Records []*DeviceRecord
	Pool    *blockdev.TmpfsPool
}

// Live returns the records that completed setup and await teardown.
func (s *BatchSession) Live() []*DeviceRecord {
	var live []*DeviceRecord
	for _, r := range s.Records {
		if r.State == StateLive {
			live = append(live, r)
		}
	}
	return live
}

// BatchOptions configures one batch run.
type BatchOptions struct {
	// Count is the number of device instances, >= 1.
	Count int

	// SizeBytes fixes every instance's size. When MinSizeBytes and
	// MaxSizeBytes are both set they take precedence and each instance's
	// size is drawn uniformly from [MinSizeBytes, MaxSizeBytes]. Drawn
	// sizes are rounded up to a whole number of 512-byte blocks.
	SizeBytes    uint64
	MinSizeBytes uint64
	MaxSizeBytes uint64

	// AdoptPath uses an existing user file as the backing store instead of
	// creating a sparse one. The file's current size is the device size and
	// the file is never deleted. Requires Count == 1 and excludes the size
	// fields and UseTmpfs.
	AdoptPath string

	// UseTmpfs hosts all backing files in one shared tmpfs pool sized to
	// the exact sum of the instance sizes.
	UseTmpfs bool

	// WorkDir hosts backing files when UseTmpfs is off. Empty means the
	// system temp directory.
	WorkDir string

	// FaultSpec, when non-empty, layers a fault-mapping device over each
	// loop device. Grammar: "N" or "N-M" tokens, comma separated, in
	// 512-byte blocks.
	FaultSpec string

	// Filesystem, when non-empty, formats and mounts each device with the
	// named filesystem type.
	Filesystem string

	// FailFast aborts the whole run on the first instance failure instead
	// of the default continue-on-error batch semantics. Used by
	// single-instance commands.
	FailFast bool
}
