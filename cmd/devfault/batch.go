package main

import (
	"context"
	"fmt"

	"github.com/devfault/devfault/internal/orchestrator"
	"github.com/devfault/devfault/pkg/blockdev"
)

type batchCmd struct {
	commonOpts

	Count   int      `long:"count" short:"n" required:"true" description:"number of devices to create"`
	Size    SizeFlag `long:"size" short:"s" description:"fixed size for every device"`
	MinSize SizeFlag `long:"min-size" description:"lower bound for randomized device sizes"`
	MaxSize SizeFlag `long:"max-size" description:"upper bound for randomized device sizes"`
	Faults  string   `long:"faults" short:"f" description:"block ranges that fail I/O, applied to every device"`
	Fs      string   `long:"fs" description:"format each device with this filesystem and mount it"`
	Tmpfs   bool     `long:"tmpfs" description:"host all backing files in one shared tmpfs pool"`
}

func init() {
	mustAddCmd("batch",
		"Create a batch of ephemeral block devices",
		`Batch creates N devices with fixed or randomized sizes. A failing
instance is rolled back and skipped; the rest of the batch proceeds. All
surviving devices are torn down together after the operator presses Enter.`,
		&batchCmd{})
}

func (c *batchCmd) Execute([]string) error {
	if (c.MinSize == 0) != (c.MaxSize == 0) {
		return fmt.Errorf("%w: --min-size and --max-size must be given together", blockdev.ErrInvalidSizeSpec)
	}
	if c.Size == 0 && c.MinSize == 0 {
		return fmt.Errorf("%w: give --size, or --min-size with --max-size", blockdev.ErrInvalidSizeSpec)
	}

	ctx := context.Background()
	orch, closeJournal := c.newOrchestrator(ctx, c.Fs)
	defer closeJournal()

	return orch.Run(ctx, orchestrator.BatchOptions{
		Count:        c.Count,
		SizeBytes:    uint64(c.Size),
		MinSizeBytes: uint64(c.MinSize),
		MaxSizeBytes: uint64(c.MaxSize),
		UseTmpfs:     c.Tmpfs,
		WorkDir:      c.Dir,
		FaultSpec:    c.Faults,
		Filesystem:   c.Fs,
	}, c.release())
}
