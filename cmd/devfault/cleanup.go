package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/devfault/devfault/internal/journal"
	"github.com/devfault/devfault/pkg/blockdev"
)

type cleanupCmd struct {
	Journal string `long:"journal" description:"path to the resource journal database" default:"/var/lib/devfault/devfault.db"`
	DryRun  bool   `long:"dry-run" description:"list leaked resources without releasing them"`
}

func init() {
	mustAddCmd("cleanup",
		"Release resources leaked by killed runs",
		`Cleanup reads the resource journal and releases everything earlier
runs acquired but never released, e.g. after the process was killed while
its devices were live. Resources are released in reverse acquisition
order: mounts, then mapped devices, then loop devices, then backing files,
then tmpfs pools. Failures are logged and skipped.`,
		&cleanupCmd{})
}

func (c *cleanupCmd) Execute([]string) error {
	ctx := context.Background()

	j, err := journal.Open(ctx, c.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	leaked, err := j.ListLeaked(ctx)
	if err != nil {
		return fmt.Errorf("list leaked resources: %w", err)
	}
	if len(leaked) == 0 {
		fmt.Println("no leaked resources")
		return nil
	}

	if c.DryRun {
		for _, r := range leaked {
			fmt.Fprintf(os.Stdout, "%s\t%s\t(session %s, created %s)\n", r.Kind, r.Ref, r.SessionID, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	reaper := newReaper()
	released := 0
	// release strictly in reverse acquisition order across all sessions
	for _, kind := range []string{journal.KindMount, journal.KindDM, journal.KindLoop, journal.KindFile, journal.KindTmpfs} {
		for _, r := range leaked {
			if r.Kind != kind {
				continue
			}
			if err := reaper.release(ctx, r); err != nil {
				slog.Warn("failed to release leaked resource", "kind", r.Kind, "ref", r.Ref, "error", err)
				continue
			}
			if err := j.MarkReleased(ctx, r.SessionID, r.Kind, r.Ref); err != nil {
				slog.Warn("failed to journal release", "kind", r.Kind, "ref", r.Ref, "error", err)
			}
			released++
		}
	}

	fmt.Printf("released %d of %d leaked resources\n", released, len(leaked))
	return nil
}

// reaper maps journal kinds onto the blockdev teardown operations, all of
// which are idempotent, so reaping a resource the kernel already forgot is
// harmless.
type reaper struct {
	stores *blockdev.SparseFileProvider
	loops  *blockdev.LoopService
	mapper *blockdev.DMService
	fs     *blockdev.FilesystemProvisioner
	tmpfs  *blockdev.TmpfsManager
}

func newReaper() *reaper {
	return &reaper{
		stores: blockdev.NewSparseFileProvider(),
		loops:  blockdev.NewLoopService(),
		mapper: blockdev.NewDMService(),
		fs:     blockdev.NewFilesystemProvisioner(""),
		tmpfs:  blockdev.NewTmpfsManager(),
	}
}

func (r *reaper) release(ctx context.Context, res *journal.Resource) error {
	switch res.Kind {
	case journal.KindMount:
		return r.fs.Unmount(res.Ref)
	case journal.KindDM:
		return r.mapper.Remove(ctx, &blockdev.MappedDevice{Name: res.Ref, DevicePath: "/dev/mapper/" + res.Ref})
	case journal.KindLoop:
		return r.loops.Detach(&blockdev.LoopBinding{DevicePath: res.Ref})
	case journal.KindFile:
		return r.stores.Destroy(&blockdev.BackingStore{Path: res.Ref, Ephemeral: true})
	case journal.KindTmpfs:
		return r.tmpfs.UnmountPool(&blockdev.TmpfsPool{Dir: res.Ref})
	default:
		return fmt.Errorf("unknown resource kind %q", res.Kind)
	}
}
