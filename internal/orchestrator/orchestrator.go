// Package orchestrator manages the lifecycle of a batch of ephemeral
// block devices: sequential setup with per-instance failure isolation, a
// single blocking release gate, and best-effort teardown in reverse
// acquisition order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/devfault/devfault/internal/journal"
	"github.com/devfault/devfault/pkg/blockdev"
	"github.com/devfault/devfault/pkg/dmtable"
	"github.com/devfault/devfault/pkg/utils"
)

// Orchestrator composes the blockdev capability services into batch
// lifecycles. It runs strictly sequentially: one instance at a time, one
// blocking wait per batch.
type Orchestrator struct {
	stores blockdev.BackingStoreProvider
	loops  blockdev.LoopDeviceService
	mapper blockdev.DeviceMapperService
	fs     blockdev.FilesystemService
	tmpfs  blockdev.TmpfsService
	ledger Ledger
	logger *slog.Logger
	rand   *rand.Rand
}

func New(
	stores blockdev.BackingStoreProvider,
	loops blockdev.LoopDeviceService,
	mapper blockdev.DeviceMapperService,
	fs blockdev.FilesystemService,
	tmpfs blockdev.TmpfsService,
	ledger Ledger,
) *Orchestrator {
	return &Orchestrator{
		stores: stores,
		loops:  loops,
		mapper: mapper,
		fs:     fs,
		tmpfs:  tmpfs,
		ledger: ledger,
		logger: slog.Default(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run performs one full batch lifecycle: setup, release wait, teardown.
// With FailFast the first setup failure aborts after local rollback;
// otherwise failed instances are skipped and an all-failed batch still
// completes cleanly with an empty live set.
func (o *Orchestrator) Run(ctx context.Context, opts BatchOptions, release ReleaseSignal) error {
	session, err := o.SetupBatch(ctx, opts)
	if err != nil {
		return err
	}

	live := session.Live()
	if len(live) == 0 {
		o.logger.InfoContext(ctx, "no devices were set up", "attempted", opts.Count)
		o.TeardownBatch(ctx, session)
		return nil
	}

	for _, rec := range live {
		o.logger.InfoContext(ctx, "device live",
			"name", rec.Name,
			"device", rec.DevicePath(),
			"mountpoint", rec.Mountpoint,
			"size_bytes", rec.SizeBytes)
	}
	o.logger.InfoContext(ctx, "batch ready", "live", len(live), "failed", opts.Count-len(live))

	if err := release.Wait(); err != nil {
		// teardown proceeds regardless; the gate only delays it
		o.logger.WarnContext(ctx, "release wait interrupted", "error", err)
	}

	o.TeardownBatch(ctx, session)
	return nil
}

// SetupBatch resolves all instance sizes, mounts the shared tmpfs pool
// when requested, and brings up each instance in order. Instance failures
// roll back that instance's sub-resources and, unless FailFast is set, the
// batch continues with the next instance.
func (o *Orchestrator) SetupBatch(ctx context.Context, opts BatchOptions) (*BatchSession, error) {
	if opts.AdoptPath != "" && opts.UseTmpfs {
		return nil, fmt.Errorf("an adopted backing file cannot be hosted in a tmpfs pool")
	}

	sizes, err := o.resolveSizes(opts)
	if err != nil {
		return nil, err
	}

	sessionID, err := utils.NewUUID7()
	if err != nil {
		return nil, fmt.Errorf("create session id: %w", err)
	}
	session := &BatchSession{ID: sessionID}

	if err := o.ledger.RecordSession(ctx, sessionID); err != nil {
		o.logger.WarnContext(ctx, "failed to journal session", "error", err)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	if opts.UseTmpfs {
		// capacity is fixed at mount time, so it must cover the exact sum
		// of all member sizes resolved above
		var total uint64
		for _, s := range sizes {
			total += s
		}
		pool, err := o.tmpfs.MountPool(total)
		if err != nil {
			return nil, fmt.Errorf("mount shared tmpfs pool: %w", err)
		}
		session.Pool = pool
		workDir = pool.Dir
		o.record(ctx, sessionID, journal.KindTmpfs, pool.Dir)
	}

	for i, size := range sizes {
		rec := &DeviceRecord{
			Index:     i + 1,
			Name:      fmt.Sprintf("devfault-%s-%d", utils.ShortID(sessionID), i+1),
			SizeBytes: size,
			State:     StatePending,
		}
		session.Records = append(session.Records, rec)

		if err := o.setupRecord(ctx, sessionID, rec, workDir, opts); err != nil {
			o.logger.ErrorContext(ctx, "device setup failed",
				"name", rec.Name,
				"state", rec.State.String(),
				"error", err)
			o.teardownRecord(ctx, sessionID, rec)
			rec.State = StateFailed

			if opts.FailFast {
				o.TeardownBatch(ctx, session)
				return nil, fmt.Errorf("set up device %s: %w", rec.Name, err)
			}
			continue
		}
		rec.State = StateLive
	}

	return session, nil
}

// setupRecord acquires one instance's resources in strict order:
// store -> loop -> [mapping] -> [format -> mount].
func (o *Orchestrator) setupRecord(ctx context.Context, sessionID string, rec *DeviceRecord, workDir string, opts BatchOptions) error {
	var store *blockdev.BackingStore
	var err error
	if opts.AdoptPath != "" {
		store, err = o.stores.Adopt(opts.AdoptPath)
		if err != nil {
			return fmt.Errorf("adopt backing file: %w", err)
		}
		rec.SizeBytes = store.SizeBytes
	} else {
		store, err = o.stores.Create(filepath.Join(workDir, rec.Name+".img"), rec.SizeBytes)
		if err != nil {
			return fmt.Errorf("create backing store: %w", err)
		}
	}
	rec.Store = store
	rec.State = StateStoreCreated
	if store.Ephemeral {
		// adopted files are never reaped, so cleanup must not see them
		o.record(ctx, sessionID, journal.KindFile, store.Path)
	}

	loop, err := o.loops.Attach(store)
	if err != nil {
		return fmt.Errorf("attach loop device: %w", err)
	}
	rec.Loop = loop
	rec.State = StateLoopAttached
	o.record(ctx, sessionID, journal.KindLoop, loop.DevicePath)

	if opts.FaultSpec != "" {
		totalBlocks := dmtable.TotalBlocks(rec.SizeBytes)
		ranges, err := dmtable.ParseRanges(opts.FaultSpec, totalBlocks)
		if err != nil {
			return fmt.Errorf("parse fault spec: %w", err)
		}
		table := dmtable.Compile(ranges, totalBlocks)

		mapped, err := o.mapper.Create(ctx, rec.Name, table, loop.DevicePath)
		if err != nil {
			return fmt.Errorf("create mapped device: %w", err)
		}
		rec.Mapped = mapped
		rec.State = StateMappingApplied
		o.record(ctx, sessionID, journal.KindDM, mapped.Name)
	}

	if opts.Filesystem != "" {
		if err := o.fs.Format(ctx, rec.DevicePath()); err != nil {
			return fmt.Errorf("format device: %w", err)
		}
		rec.State = StateFormatted

		mountpoint, err := o.fs.Mount(rec.DevicePath())
		if err != nil {
			return fmt.Errorf("mount device: %w", err)
		}
		rec.Mountpoint = mountpoint
		rec.State = StateMounted
		o.record(ctx, sessionID, journal.KindMount, mountpoint)
	}

	return nil
}

// TeardownBatch releases every live record best-effort, then the shared
// tmpfs pool last. Teardown errors are logged and never escalate; records
// are independent, so one record's failure does not block the others.
func (o *Orchestrator) TeardownBatch(ctx context.Context, session *BatchSession) {
	for _, rec := range session.Live() {
		o.teardownRecord(ctx, session.ID, rec)
		rec.State = StateTornDown
	}

	o.teardownPool(ctx, session)

	if err := o.ledger.MarkSessionReleased(ctx, session.ID); err != nil {
		o.logger.WarnContext(ctx, "failed to journal session release", "error", err)
	}
}

// teardownRecord releases one record's resources in reverse acquisition
// order. It doubles as the local rollback for a half-built record: fields
// are cleared as they are released, so calling it again is a no-op.
func (o *Orchestrator) teardownRecord(ctx context.Context, sessionID string, rec *DeviceRecord) {
	if rec.Mountpoint != "" {
		if err := o.fs.Unmount(rec.Mountpoint); err != nil {
			o.logger.WarnContext(ctx, "failed to unmount device", "name", rec.Name, "mountpoint", rec.Mountpoint, "error", err)
		} else {
			o.release(ctx, sessionID, journal.KindMount, rec.Mountpoint)
			rec.Mountpoint = ""
		}
	}

	if rec.Mapped != nil {
		if err := o.mapper.Remove(ctx, rec.Mapped); err != nil {
			o.logger.WarnContext(ctx, "failed to remove mapped device", "name", rec.Name, "error", err)
		} else {
			o.release(ctx, sessionID, journal.KindDM, rec.Mapped.Name)
			rec.Mapped = nil
		}
	}

	if rec.Loop != nil {
		if err := o.loops.Detach(rec.Loop); err != nil {
			o.logger.WarnContext(ctx, "failed to detach loop device", "name", rec.Name, "device", rec.Loop.DevicePath, "error", err)
		} else {
			o.release(ctx, sessionID, journal.KindLoop, rec.Loop.DevicePath)
			rec.Loop = nil
		}
	}

	if rec.Store != nil {
		if err := o.stores.Destroy(rec.Store); err != nil {
			o.logger.WarnContext(ctx, "failed to delete backing store", "name", rec.Name, "path", rec.Store.Path, "error", err)
		} else {
			o.release(ctx, sessionID, journal.KindFile, rec.Store.Path)
			rec.Store = nil
		}
	}
}

func (o *Orchestrator) teardownPool(ctx context.Context, session *BatchSession) {
	if session.Pool == nil {
		return
	}
	if err := o.tmpfs.UnmountPool(session.Pool); err != nil {
		o.logger.WarnContext(ctx, "failed to unmount tmpfs pool", "dir", session.Pool.Dir, "error", err)
		return
	}
	o.release(ctx, session.ID, journal.KindTmpfs, session.Pool.Dir)
	session.Pool = nil
}

// record journals an acquired resource; journal failures are logged, never
// propagated, since the journal is diagnostics only.
func (o *Orchestrator) record(ctx context.Context, sessionID, kind, ref string) {
	if err := o.ledger.RecordResource(ctx, sessionID, kind, ref); err != nil {
		o.logger.WarnContext(ctx, "failed to journal resource", "kind", kind, "ref", ref, "error", err)
	}
}

func (o *Orchestrator) release(ctx context.Context, sessionID, kind, ref string) {
	if err := o.ledger.MarkReleased(ctx, sessionID, kind, ref); err != nil {
		o.logger.WarnContext(ctx, "failed to journal resource release", "kind", kind, "ref", ref, "error", err)
	}
}

// resolveSizes computes every instance's size up front. Randomized sizes
// are drawn uniformly from [min, max]; all sizes are rounded up to a whole
// number of blocks so the mapping table covers the device exactly.
func (o *Orchestrator) resolveSizes(opts BatchOptions) ([]uint64, error) {
	if opts.Count < 1 {
		return nil, fmt.Errorf("%w: instance count %d", blockdev.ErrInvalidSizeSpec, opts.Count)
	}

	if opts.AdoptPath != "" {
		if opts.Count != 1 {
			return nil, fmt.Errorf("%w: an adopted backing file supports exactly one instance", blockdev.ErrInvalidSizeSpec)
		}
		if opts.SizeBytes != 0 || opts.MinSizeBytes != 0 || opts.MaxSizeBytes != 0 {
			return nil, fmt.Errorf("%w: an adopted backing file keeps its own size", blockdev.ErrInvalidSizeSpec)
		}
		// the real size is read from the file during setup
		return []uint64{0}, nil
	}

	randomized := opts.MinSizeBytes != 0 || opts.MaxSizeBytes != 0
	if randomized && opts.MinSizeBytes > opts.MaxSizeBytes {
		return nil, fmt.Errorf("%w: min size %d exceeds max size %d", blockdev.ErrInvalidSizeSpec, opts.MinSizeBytes, opts.MaxSizeBytes)
	}
	if !randomized && opts.SizeBytes == 0 {
		return nil, fmt.Errorf("%w: size is zero", blockdev.ErrInvalidSizeSpec)
	}

	sizes := make([]uint64, opts.Count)
	for i := range sizes {
		size := opts.SizeBytes
		if randomized {
			size = opts.MinSizeBytes + o.drawSpan(opts.MaxSizeBytes-opts.MinSizeBytes)
		}
		sizes[i] = roundUpToBlock(size)
	}

	return sizes, nil
}

// drawSpan returns a uniform value in [0, span]. Full-width unsigned
// arithmetic keeps spans above 2^63-1 from panicking the signed rand
// helpers; the span+1 wrap when span covers all of uint64 is handled
// separately.
func (o *Orchestrator) drawSpan(span uint64) uint64 {
	if span == math.MaxUint64 {
		return o.rand.Uint64()
	}
	return o.rand.Uint64() % (span + 1)
}

func roundUpToBlock(sizeBytes uint64) uint64 {
	blocks := (sizeBytes + dmtable.BlockSize - 1) / dmtable.BlockSize
	return blocks * dmtable.BlockSize
}
