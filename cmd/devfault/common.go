package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/devfault/devfault/internal/journal"
	"github.com/devfault/devfault/internal/orchestrator"
	"github.com/devfault/devfault/pkg/blockdev"
)

// SizeFlag parses human-readable size strings ("512M", "1G", "4096") into
// a byte count.
type SizeFlag uint64

func (s *SizeFlag) UnmarshalFlag(value string) error {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("%w: %q", blockdev.ErrInvalidSizeSpec, value)
	}
	*s = SizeFlag(n)
	return nil
}

func (s SizeFlag) MarshalFlag() (string, error) {
	return humanize.IBytes(uint64(s)), nil
}

// commonOpts are shared by every device-provisioning command.
type commonOpts struct {
	Dir       string `long:"dir" description:"directory hosting backing files (default: system temp dir)"`
	Journal   string `long:"journal" description:"path to the resource journal database" default:"/var/lib/devfault/devfault.db"`
	NoJournal bool   `long:"no-journal" description:"do not record acquired resources in the journal"`
	NoWait    bool   `long:"no-wait" description:"tear devices down immediately instead of waiting for Enter"`
}

// newOrchestrator wires the production services. A broken journal degrades
// to a warning: the journal is diagnostics, never a reason to refuse work.
func (c *commonOpts) newOrchestrator(ctx context.Context, fstype string) (*orchestrator.Orchestrator, func()) {
	ledger := orchestrator.Ledger(orchestrator.NewNoOpLedger())
	closeFn := func() {}

	if !c.NoJournal {
		j, err := journal.Open(ctx, c.Journal)
		if err != nil {
			slog.Warn("resource journal unavailable, continuing without it", "path", c.Journal, "error", err)
		} else {
			ledger = j
			closeFn = func() { j.Close() }
		}
	}

	orch := orchestrator.New(
		blockdev.NewSparseFileProvider(),
		blockdev.NewLoopService(),
		blockdev.NewDMService(),
		blockdev.NewFilesystemProvisioner(fstype),
		blockdev.NewTmpfsManager(),
		ledger,
	)

	return orch, closeFn
}

func (c *commonOpts) release() orchestrator.ReleaseSignal {
	if c.NoWait {
		return orchestrator.Released()
	}
	return &orchestrator.OperatorPrompt{In: os.Stdin, Out: os.Stderr}
}
