package main

import (
	"context"
	"errors"

	"github.com/devfault/devfault/internal/orchestrator"
)

type createCmd struct {
	commonOpts

	Size  SizeFlag `long:"size" short:"s" description:"device size, e.g. 512M or 1G"`
	File  string   `long:"file" short:"f" description:"use this existing file as the backing store; it is kept after teardown"`
	Fs    string   `long:"fs" description:"format the device with this filesystem and mount it, e.g. ext4"`
	Tmpfs bool     `long:"tmpfs" description:"back the device with a RAM-backed tmpfs pool"`
}

func init() {
	mustAddCmd("create",
		"Create a single ephemeral block device",
		`Create allocates a sparse backing file, attaches it to a free loop
device, and optionally formats and mounts it. The device stays up until the
operator presses Enter, then everything is torn down and deleted. With
--file an existing file backs the device instead; it is left in place on
teardown.`,
		&createCmd{})
}

func (c *createCmd) Execute([]string) error {
	if (c.Size == 0) == (c.File == "") {
		return errors.New("exactly one of --size or --file is required")
	}
	if c.File != "" && c.Tmpfs {
		return errors.New("--file and --tmpfs are mutually exclusive")
	}

	ctx := context.Background()
	orch, closeJournal := c.newOrchestrator(ctx, c.Fs)
	defer closeJournal()

	return orch.Run(ctx, orchestrator.BatchOptions{
		Count:      1,
		SizeBytes:  uint64(c.Size),
		AdoptPath:  c.File,
		UseTmpfs:   c.Tmpfs,
		WorkDir:    c.Dir,
		Filesystem: c.Fs,
		FailFast:   true,
	}, c.release())
}
