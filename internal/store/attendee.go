package store

import (
	"time"

	"github.com/google/uuid"
)

// UpsertAttendee inserts or updates a chat membership keyed on
// (chat_id, external_id) and returns the local row id.
func (db *DB) UpsertAttendee(a *Attendee) (string, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()

	var contactID any
	if a.ContactID != "" {
		contactID = a.ContactID
	}
	_, err := db.Exec(`
		INSERT INTO attendees (id, chat_id, external_id, contact_id, is_self, hidden, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, external_id) DO UPDATE SET
			contact_id = COALESCE(excluded.contact_id, attendees.contact_id),
			is_self = excluded.is_self,
			hidden = excluded.hidden,
			updated_at = excluded.updated_at`,
		id, a.ChatID, a.ExternalID, contactID, a.IsSelf, a.Hidden, now, now)
	if err != nil {
		return "", err
	}

	var rowID string
	err = db.QueryRow(`SELECT id FROM attendees WHERE chat_id = ? AND external_id = ?`,
		a.ChatID, a.ExternalID).Scan(&rowID)
	return rowID, err
}

// ListAttendees returns the attendees of a chat.
func (db *DB) ListAttendees(chatID string) ([]Attendee, error) {
	rows, err := db.Query(`
		SELECT id, chat_id, external_id, COALESCE(contact_id, ''), is_self, hidden
		FROM attendees WHERE chat_id = ? ORDER BY created_at`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attendees []Attendee
	for rows.Next() {
		var a Attendee
		if err := rows.Scan(&a.ID, &a.ChatID, &a.ExternalID, &a.ContactID, &a.IsSelf, &a.Hidden); err != nil {
			return nil, err
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}
