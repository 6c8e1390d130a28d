package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ReleaseSignal gates the teardown of a live batch. Wait blocks
// indefinitely until the external release arrives; there is no timeout and
// no polling. Killing the process while waiting leaks the batch's
// resources, which the journal records for later cleanup.
type ReleaseSignal interface {
	Wait() error
}

// OperatorPrompt releases the batch when the operator sends a line on In,
// typically pressing Enter on a terminal.
type OperatorPrompt struct {
	In  io.Reader
	Out io.Writer
}

func (p *OperatorPrompt) Wait() error {
	fmt.Fprintln(p.Out, "devices are live - press Enter to tear them down")

	_, err := bufio.NewReader(p.In).ReadString('\n')
	if errors.Is(err, io.EOF) {
		// closed stdin counts as a release, not an error
		return nil
	}
	return err
}

type releasedSignal struct{}

func (releasedSignal) Wait() error { return nil }

// Released returns an already-satisfied signal, for immediate teardown
// runs and tests.
func Released() ReleaseSignal {
	return releasedSignal{}
}
