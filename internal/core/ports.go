package core

import (
	"context"
	"time"
)

// =============================================================================
// Page Evaluation Port
// =============================================================================

// PageEvaluator is the one-shot expression channel into the remote page.
// Implementations connect to the browser's remote-debugging endpoint, evaluate
// a single expression (awaiting any promise it returns), and disconnect. No
// connection is held between calls.
type PageEvaluator interface {
	// Evaluate runs a JavaScript expression in the target page and returns
	// its result. The expression must be read-only unless the caller is an
	// explicit sync operation.
	Evaluate(ctx context.Context, expression string) (interface{}, error)
}

// =============================================================================
// Backend Collaborator Port
// =============================================================================

// BackendNotifier delivers fire-and-forget notifications to the main backend.
// All methods are best-effort: callers log failures and continue; a delivery
// failure never aborts the local state transition that triggered it.
type BackendNotifier interface {
	// NotifyLinked reports a link-state change for an owner.
	NotifyLinked(ctx context.Context, ownerID string, linked bool) error

	// ReportMessages forwards a batch of captured messages.
	ReportMessages(ctx context.Context, ownerID string, messages []BufferedMessage) error

	// ReportSyncStatus reports sync progress counters.
	ReportSyncStatus(ctx context.Context, ownerID string, lastSyncAt time.Time, syncCount int) error
}

// =============================================================================
// Persistence Port
// =============================================================================

// SyncStore persists sync counters and journals message batches so that
// counters survive process restarts. The in-memory SyncState still resets when
// the browser process exits; only the durable counters live here.
type SyncStore interface {
	// LoadSyncState returns the persisted counters for an owner. A missing
	// row returns a zero snapshot, not an error.
	LoadSyncState(ctx context.Context, ownerID string) (lastSyncAt *time.Time, syncCount int, err error)

	// RecordSyncCompletion updates the persisted counters after a successful
	// sync.
	RecordSyncCompletion(ctx context.Context, ownerID string, completedAt time.Time) (syncCount int, err error)

	// AppendMessageBatch journals receipt of a webhook message batch.
	AppendMessageBatch(ctx context.Context, ownerID string, count int, receivedAt time.Time) error

	// Close releases the underlying database handles.
	Close() error
}
