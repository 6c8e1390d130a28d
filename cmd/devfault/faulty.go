package main

import (
	"context"

	"github.com/devfault/devfault/internal/orchestrator"
)

type faultyCmd struct {
	commonOpts

	Size   SizeFlag `long:"size" short:"s" required:"true" description:"device size, e.g. 512M or 1G"`
	Faults string   `long:"faults" short:"f" required:"true" description:"block ranges that fail I/O, e.g. \"500,1000-1010\" (512-byte blocks)"`
	Fs     string   `long:"fs" description:"format the device with this filesystem and mount it"`
	Tmpfs  bool     `long:"tmpfs" description:"back the device with a RAM-backed tmpfs pool"`
}

func init() {
	mustAddCmd("faulty",
		"Create a block device with injected I/O faults",
		`Faulty layers a device-mapper table over the loop device so that I/O
to the listed block ranges fails deterministically while all other blocks
pass through to the backing file. Formatting a device whose fault ranges
cover filesystem metadata will fail; that is the point.`,
		&faultyCmd{})
}

func (c *faultyCmd) Execute([]string) error {
	ctx := context.Background()
	orch, closeJournal := c.newOrchestrator(ctx, c.Fs)
	defer closeJournal()

	return orch.Run(ctx, orchestrator.BatchOptions{
		Count:      1,
		SizeBytes:  uint64(c.Size),
		UseTmpfs:   c.Tmpfs,
		WorkDir:    c.Dir,
		FaultSpec:  c.Faults,
		Filesystem: c.Fs,
		FailFast:   true,
	}, c.release())
}
