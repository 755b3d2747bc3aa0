package store

import (
	"database/sql"
	"time"
)

// StartSyncRun resets the run record for (account, provider) to syncing.
// Starting over a terminal record begins a new run: counters reset, the old
// error is cleared.
func (db *DB) StartSyncRun(accountID, provider string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_runs (account_id, provider, status, current_step, chats_processed, chats_skipped, messages_processed, attachments_processed, error, started_at, updated_at)
		VALUES (?, ?, ?, '', 0, 0, 0, 0, '', ?, ?)
		ON CONFLICT(account_id, provider) DO UPDATE SET
			status = excluded.status,
			current_step = '',
			chats_processed = 0,
			chats_skipped = 0,
			messages_processed = 0,
			attachments_processed = 0,
			error = '',
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`,
		accountID, provider, SyncSyncing, now, now)
	return err
}

// UpdateSyncProgress writes the latest counter snapshot (last write wins).
// It succeeds on terminal records too: a progress write after completion is
// treated as observations for a new run, never an error.
func (db *DB) UpdateSyncProgress(run *SyncRun) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_runs (account_id, provider, status, current_step, chats_processed, chats_skipped, messages_processed, attachments_processed, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT(account_id, provider) DO UPDATE SET
			status = ?,
			current_step = ?,
			chats_processed = ?,
			chats_skipped = ?,
			messages_processed = ?,
			attachments_processed = ?,
			updated_at = ?`,
		run.AccountID, run.Provider, SyncSyncing, run.CurrentStep,
		run.ChatsProcessed, run.ChatsSkipped, run.MessagesProcessed, run.AttachmentsProcessed,
		now, now,
		SyncSyncing, run.CurrentStep,
		run.ChatsProcessed, run.ChatsSkipped, run.MessagesProcessed, run.AttachmentsProcessed,
		now)
	return err
}

// CompleteSyncRun marks the run completed.
func (db *DB) CompleteSyncRun(accountID, provider string) error {
	_, err := db.Exec(`
		UPDATE sync_runs SET status = ?, current_step = 'done', updated_at = ?
		WHERE account_id = ? AND provider = ?`,
		SyncCompleted, time.Now().UnixMilli(), accountID, provider)
	return err
}

// FailSyncRun marks the run failed with the given reason.
func (db *DB) FailSyncRun(accountID, provider, reason string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_runs (account_id, provider, status, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, provider) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		accountID, provider, SyncFailed, reason, now, now)
	return err
}

// GetSyncRun returns the run record for (account, provider). A never-synced
// account reports an idle run rather than an error.
func (db *DB) GetSyncRun(accountID, provider string) (*SyncRun, error) {
	var r SyncRun
	err := db.QueryRow(`
		SELECT account_id, provider, status, current_step, chats_processed, chats_skipped, messages_processed, attachments_processed, error, started_at, updated_at
		FROM sync_runs WHERE account_id = ? AND provider = ?`, accountID, provider).
		Scan(&r.AccountID, &r.Provider, &r.Status, &r.CurrentStep,
			&r.ChatsProcessed, &r.ChatsSkipped, &r.MessagesProcessed, &r.AttachmentsProcessed,
			&r.Error, &r.StartedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return &SyncRun{AccountID: accountID, Provider: provider, Status: SyncIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
