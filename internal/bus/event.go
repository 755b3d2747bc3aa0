package bus

import "time"

// Event kinds published by the sync engine and HTTP surface.
const (
	// KindBackfillRequested asks the backfill worker to resync one account.
	// Payload: BackfillRequest.
	KindBackfillRequested = "backfill.requested"
	// KindSyncProgress carries SyncRun counter snapshots during a backfill.
	KindSyncProgress = "sync.progress"
	// KindMessageUpserted signals that a message row changed.
	KindMessageUpserted = "message.upserted"
	// KindAccountStatus signals an account status transition.
	KindAccountStatus = "account.status"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// BackfillRequest is the payload for KindBackfillRequested.
type BackfillRequest struct {
	AccountID string
	Provider  string
}
