// Package notify implements the best-effort progress notification
// component (SPEC_FULL §4.12): a fire-and-forget publisher the Pipeline
// Runner, Queue Processor, and Backfill Engine may use to drive an
// external dashboard. Failure to publish never fails a step or a queue
// row, mirroring spec §4.5 step 2c's "best-effort... failure must NOT fail
// the step" rule.
package notify

import "context"

// Event describes one progress/done/failed notification.
type Event struct {
	Kind    string // "progress" | "done" | "failed"
	VideoID string
	Step    string
	Message string
}

// Notifier is the publish surface every caller depends on.
type Notifier interface {
	Progress(ctx context.Context, e Event)
	Done(ctx context.Context, e Event)
	Failed(ctx context.Context, e Event)
}

// NoopNotifier discards every event; it is the default when no external
// dashboard is configured.
type NoopNotifier struct{}

func (NoopNotifier) Progress(context.Context, Event) {}
func (NoopNotifier) Done(context.Context, Event)     {}
func (NoopNotifier) Failed(context.Context, Event)   {}

var _ Notifier = NoopNotifier{}
