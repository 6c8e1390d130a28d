package orchestrator

import "context"

// Ledger receives a record of every resource the orchestrator acquires and
// releases. The production implementation is *journal.Journal; ledger
// failures are logged and never fail the operation being journaled.
type Ledger interface {
	RecordSession(ctx context.Context, sessionID string) error
	MarkSessionReleased(ctx context.Context, sessionID string) error
	RecordResource(ctx context.Context, sessionID, kind, ref string) error
	MarkReleased(ctx context.Context, sessionID, kind, ref string) error
}

type NoOpLedger struct{}

func NewNoOpLedger() *NoOpLedger { return &NoOpLedger{} }

func (*NoOpLedger) RecordSession(context.Context, string) error { return nil }

func (*NoOpLedger) MarkSessionReleased(context.Context, string) error { return nil }

func (*NoOpLedger) RecordResource(context.Context, string, string, string) error { return nil }

func (*NoOpLedger) MarkReleased(context.Context, string, string, string) error { return nil }
