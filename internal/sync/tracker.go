package sync

import (
	"time"

	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Tracker maintains the durable per-account SyncRun record and mirrors it to
// the bus and metrics. Progress is last-write-wins; a write after a terminal
// state simply begins a new observation.
type Tracker struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewTracker creates a sync state tracker.
func NewTracker(db *store.DB, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{db: db, bus: b, logger: logger}
}

// Start resets the run record to syncing.
func (t *Tracker) Start(accountID, providerName string) error {
	if err := t.db.StartSyncRun(accountID, providerName); err != nil {
		return err
	}
	syncRunStatus.WithLabelValues(accountID, providerName).Set(statusCode(store.SyncSyncing))
	t.publish(accountID, providerName)
	return nil
}

// Progress persists the latest counter snapshot. Persistence errors are
// logged, not returned: losing one progress write must not abort a run.
func (t *Tracker) Progress(run *store.SyncRun) {
	if err := t.db.UpdateSyncProgress(run); err != nil {
		t.logger.Warn("failed to persist sync progress",
			zap.Error(err), zap.String("account_id", run.AccountID))
		return
	}
	t.publish(run.AccountID, run.Provider)
}

// Complete marks the run completed.
func (t *Tracker) Complete(accountID, providerName string) {
	if err := t.db.CompleteSyncRun(accountID, providerName); err != nil {
		t.logger.Error("failed to mark sync run completed",
			zap.Error(err), zap.String("account_id", accountID))
		return
	}
	syncRunStatus.WithLabelValues(accountID, providerName).Set(statusCode(store.SyncCompleted))
	t.publish(accountID, providerName)
}

// Fail marks the run failed with the given reason.
func (t *Tracker) Fail(accountID, providerName, reason string) {
	if err := t.db.FailSyncRun(accountID, providerName, reason); err != nil {
		t.logger.Error("failed to mark sync run failed",
			zap.Error(err), zap.String("account_id", accountID))
		return
	}
	syncRunStatus.WithLabelValues(accountID, providerName).Set(statusCode(store.SyncFailed))
	t.publish(accountID, providerName)
}

func (t *Tracker) publish(accountID, providerName string) {
	run, err := t.db.GetSyncRun(accountID, providerName)
	if err != nil {
		return
	}
	t.bus.Publish(bus.Event{
		Kind:      bus.KindSyncProgress,
		Timestamp: time.Now(),
		Payload:   run,
	})
}
