package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAccountNotFound is returned when no account matches a
// (provider, external_id) pair. It is fatal to the single event that
// carried it and is never retried locally.
var ErrAccountNotFound = errors.New("account not found")

// UpsertAccount inserts or updates an account keyed on (provider, external_id).
// Returns the local row id. A soft-deleted account is revived.
func (db *DB) UpsertAccount(a *Account) (string, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO accounts (id, owner, provider, external_id, status, owner_external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, external_id) DO UPDATE SET
			owner = excluded.owner,
			status = excluded.status,
			owner_external_id = CASE WHEN excluded.owner_external_id != '' THEN excluded.owner_external_id ELSE accounts.owner_external_id END,
			deleted_at = 0,
			updated_at = excluded.updated_at`,
		id, a.Owner, a.Provider, a.ExternalID, a.Status, a.OwnerExternalID, now, now)
	if err != nil {
		return "", err
	}
	return db.accountID(a.Provider, a.ExternalID)
}

// GetAccountByExternalID resolves an account by (provider, external_id).
// Soft-deleted accounts are not resolved.
func (db *DB) GetAccountByExternalID(provider, externalID string) (*Account, error) {
	var a Account
	err := db.QueryRow(`
		SELECT id, owner, provider, external_id, status, owner_external_id, owner_name, owner_profile, owner_synced_at, deleted_at
		FROM accounts
		WHERE provider = ? AND external_id = ? AND deleted_at = 0`,
		provider, externalID).
		Scan(&a.ID, &a.Owner, &a.Provider, &a.ExternalID, &a.Status, &a.OwnerExternalID,
			&a.OwnerName, &a.OwnerProfile, &a.OwnerSyncedAt, &a.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", provider, externalID, ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount returns an account by local id, including soft-deleted ones.
func (db *DB) GetAccount(id string) (*Account, error) {
	var a Account
	err := db.QueryRow(`
		SELECT id, owner, provider, external_id, status, owner_external_id, owner_name, owner_profile, owner_synced_at, deleted_at
		FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Owner, &a.Provider, &a.ExternalID, &a.Status, &a.OwnerExternalID,
			&a.OwnerName, &a.OwnerProfile, &a.OwnerSyncedAt, &a.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns all non-deleted accounts.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.Query(`
		SELECT id, owner, provider, external_id, status, owner_external_id, owner_name, owner_profile, owner_synced_at, deleted_at
		FROM accounts WHERE deleted_at = 0 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Owner, &a.Provider, &a.ExternalID, &a.Status, &a.OwnerExternalID,
			&a.OwnerName, &a.OwnerProfile, &a.OwnerSyncedAt, &a.DeletedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetAccountStatus updates only the status column.
func (db *DB) SetAccountStatus(id, status string) error {
	_, err := db.Exec(`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	return err
}

// SoftDeleteAccount marks an account disconnected without removing its mirror data.
func (db *DB) SoftDeleteAccount(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE accounts SET status = ?, deleted_at = ?, updated_at = ? WHERE id = ?`,
		AccountDisconnected, now, now, id)
	return err
}

// SetOwnerProfile records the owner's refreshed profile on the account row
// and stamps owner_synced_at, which gates the next refresh.
func (db *DB) SetOwnerProfile(id, ownerExternalID, name, payload string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE accounts SET owner_external_id = ?, owner_name = ?, owner_profile = ?, owner_synced_at = ?, updated_at = ?
		WHERE id = ?`,
		ownerExternalID, name, payload, now, now, id)
	return err
}

func (db *DB) accountID(provider, externalID string) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM accounts WHERE provider = ? AND external_id = ?`,
		provider, externalID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}
	return id, nil
}
