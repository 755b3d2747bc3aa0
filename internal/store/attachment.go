package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertAttachment inserts or updates an attachment keyed on
// (message_id, external_id) and returns the local row id. The caller decides
// which persistence tier applies; the store enforces that a blob reference and
// inline content are never stored together.
func (db *DB) UpsertAttachment(a *Attachment) (string, error) {
	if a.BlobURL != "" && len(a.InlineContent) > 0 {
		return "", fmt.Errorf("attachment %s: blob_url and inline_content are mutually exclusive", a.ExternalID)
	}

	now := time.Now().UnixMilli()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO attachments (id, message_id, external_id, kind, source_url, filename, size, mime_type, blob_url, inline_content, unavailable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, external_id) DO UPDATE SET
			kind = excluded.kind,
			source_url = excluded.source_url,
			filename = excluded.filename,
			size = excluded.size,
			mime_type = excluded.mime_type,
			blob_url = excluded.blob_url,
			inline_content = excluded.inline_content,
			unavailable = excluded.unavailable,
			updated_at = excluded.updated_at`,
		id, a.MessageID, a.ExternalID, a.Kind, a.SourceURL, a.Filename, a.Size,
		a.MimeType, a.BlobURL, a.InlineContent, a.Unavailable, now, now)
	if err != nil {
		return "", err
	}

	var rowID string
	err = db.QueryRow(`SELECT id FROM attachments WHERE message_id = ? AND external_id = ?`,
		a.MessageID, a.ExternalID).Scan(&rowID)
	return rowID, err
}

// ListAttachments returns the attachments of a message.
func (db *DB) ListAttachments(messageID string) ([]Attachment, error) {
	rows, err := db.Query(`
		SELECT id, message_id, external_id, kind, source_url, filename, size, mime_type, blob_url, inline_content, unavailable
		FROM attachments WHERE message_id = ? ORDER BY created_at`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attachments []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ExternalID, &a.Kind, &a.SourceURL,
			&a.Filename, &a.Size, &a.MimeType, &a.BlobURL, &a.InlineContent, &a.Unavailable); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
