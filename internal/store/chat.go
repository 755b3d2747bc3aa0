package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UpsertChat inserts or updates a chat keyed on (account_id, external_id) and
// returns the local row id. last_activity_at only moves forward so replayed or
// reordered events cannot rewind a chat; chats are never deleted.
func (db *DB) UpsertChat(c *Chat) (string, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO chats (id, account_id, external_id, chat_type, name, last_activity_at, unread_count, archived, read_only, provider_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, external_id) DO UPDATE SET
			chat_type = excluded.chat_type,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			last_activity_at = MAX(chats.last_activity_at, excluded.last_activity_at),
			unread_count = excluded.unread_count,
			archived = excluded.archived,
			read_only = excluded.read_only,
			provider_metadata = CASE WHEN excluded.provider_metadata != '' THEN excluded.provider_metadata ELSE chats.provider_metadata END,
			updated_at = excluded.updated_at`,
		id, c.AccountID, c.ExternalID, c.Type, c.Name, c.LastActivityAt,
		c.UnreadCount, c.Archived, c.ReadOnly, c.ProviderMetadata, now, now)
	if err != nil {
		return "", err
	}

	var rowID string
	err = db.QueryRow(`SELECT id FROM chats WHERE account_id = ? AND external_id = ?`,
		c.AccountID, c.ExternalID).Scan(&rowID)
	return rowID, err
}

// GetChat returns a single chat by local id, or nil if absent.
func (db *DB) GetChat(id string) (*Chat, error) {
	return db.scanChat(db.QueryRow(`
		SELECT id, account_id, external_id, chat_type, name, last_activity_at, unread_count, archived, read_only, provider_metadata
		FROM chats WHERE id = ?`, id))
}

// GetChatByExternalID returns a chat by (account_id, external_id), or nil if absent.
func (db *DB) GetChatByExternalID(accountID, externalID string) (*Chat, error) {
	return db.scanChat(db.QueryRow(`
		SELECT id, account_id, external_id, chat_type, name, last_activity_at, unread_count, archived, read_only, provider_metadata
		FROM chats WHERE account_id = ? AND external_id = ?`, accountID, externalID))
}

func (db *DB) scanChat(row *sql.Row) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.AccountID, &c.ExternalID, &c.Type, &c.Name,
		&c.LastActivityAt, &c.UnreadCount, &c.Archived, &c.ReadOnly, &c.ProviderMetadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns an account's chats sorted by last activity descending.
func (db *DB) ListChats(accountID string, limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, account_id, external_id, chat_type, name, last_activity_at, unread_count, archived, read_only, provider_metadata
		FROM chats
		WHERE account_id = ?
		ORDER BY last_activity_at DESC
		LIMIT ? OFFSET ?`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.AccountID, &c.ExternalID, &c.Type, &c.Name,
			&c.LastActivityAt, &c.UnreadCount, &c.Archived, &c.ReadOnly, &c.ProviderMetadata); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatCount returns the number of chats mirrored for an account.
func (db *DB) ChatCount(accountID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}
