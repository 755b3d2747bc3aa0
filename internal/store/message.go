package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UpsertMessage inserts or updates a message keyed on (account_id, external_id)
// and returns the local row id. The ingestion upsert refreshes content fields
// but leaves the read flag alone when the incoming value is unset, so a replay
// cannot unread a message that a point event already marked read. A NULL chat
// ref is never written over a resolved one.
func (db *DB) UpsertMessage(m *Message) (string, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()

	var chatID any
	if m.ChatID != "" {
		chatID = m.ChatID
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, account_id, chat_id, external_id, sender_id, content, message_type, is_outgoing, is_read, sent_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, external_id) DO UPDATE SET
			chat_id = COALESCE(excluded.chat_id, messages.chat_id),
			sender_id = excluded.sender_id,
			content = excluded.content,
			message_type = excluded.message_type,
			is_outgoing = excluded.is_outgoing,
			is_read = MAX(messages.is_read, excluded.is_read),
			sent_at = excluded.sent_at,
			metadata = CASE WHEN excluded.metadata != '' THEN excluded.metadata ELSE messages.metadata END,
			updated_at = excluded.updated_at`,
		id, m.AccountID, chatID, m.ExternalID, m.SenderID, m.Content, m.Type,
		m.IsOutgoing, m.IsRead, m.SentAt, m.Metadata, now, now)
	if err != nil {
		return "", err
	}

	var rowID string
	err = db.QueryRow(`SELECT id FROM messages WHERE account_id = ? AND external_id = ?`,
		m.AccountID, m.ExternalID).Scan(&rowID)
	return rowID, err
}

// MarkMessageRead sets only the read flag; content, sender and timestamps are
// untouched. Unknown messages are a no-op, not an error.
func (db *DB) MarkMessageRead(accountID, externalID string) error {
	_, err := db.Exec(`
		UPDATE messages SET is_read = 1, updated_at = ?
		WHERE account_id = ? AND external_id = ?`,
		time.Now().UnixMilli(), accountID, externalID)
	return err
}

// UpdateMessageContent replaces only the content of an edited message.
func (db *DB) UpdateMessageContent(accountID, externalID, content string) error {
	_, err := db.Exec(`
		UPDATE messages SET content = ?, updated_at = ?
		WHERE account_id = ? AND external_id = ?`,
		content, time.Now().UnixMilli(), accountID, externalID)
	return err
}

// MarkMessageDeleted tombstones a message; the row is kept for ordering and
// attachment references.
func (db *DB) MarkMessageDeleted(accountID, externalID string) error {
	_, err := db.Exec(`
		UPDATE messages SET deleted = 1, content = '', updated_at = ?
		WHERE account_id = ? AND external_id = ?`,
		time.Now().UnixMilli(), accountID, externalID)
	return err
}

// GetMessageByExternalID returns a message by (account_id, external_id), or nil if absent.
func (db *DB) GetMessageByExternalID(accountID, externalID string) (*Message, error) {
	var m Message
	var chatID sql.NullString
	err := db.QueryRow(`
		SELECT id, account_id, chat_id, external_id, sender_id, content, message_type, is_outgoing, is_read, deleted, sent_at, metadata
		FROM messages WHERE account_id = ? AND external_id = ?`, accountID, externalID).
		Scan(&m.ID, &m.AccountID, &chatID, &m.ExternalID, &m.SenderID, &m.Content,
			&m.Type, &m.IsOutgoing, &m.IsRead, &m.Deleted, &m.SentAt, &m.Metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ChatID = chatID.String
	return &m, nil
}

// ListMessages returns a chat's messages using keyset pagination by sent_at.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, account_id, COALESCE(chat_id, ''), external_id, sender_id, content, message_type, is_outgoing, is_read, deleted, sent_at, metadata
		FROM messages
		WHERE chat_id = ? AND sent_at < ?
		ORDER BY sent_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ChatID, &m.ExternalID, &m.SenderID,
			&m.Content, &m.Type, &m.IsOutgoing, &m.IsRead, &m.Deleted, &m.SentAt, &m.Metadata); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AttachOrphanMessages links bulk-imported messages that referenced a chat by
// external id only. Returns the number of rows reconciled.
func (db *DB) AttachOrphanMessages(accountID, chatExternalID, chatID string) (int64, error) {
	result, err := db.Exec(`
		UPDATE messages SET chat_id = ?, updated_at = ?
		WHERE account_id = ? AND chat_id IS NULL
		  AND json_extract(metadata, '$.chat_external_id') = ?`,
		chatID, time.Now().UnixMilli(), accountID, chatExternalID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MessageCount returns the number of messages mirrored for an account.
func (db *DB) MessageCount(accountID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}
