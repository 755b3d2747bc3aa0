package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UpsertContact inserts or updates a contact keyed on (account_id, external_id)
// and returns the local row id. Every sighting fully overwrites the previous
// field values: the latest observation wins even when it carries fewer fields.
func (db *DB) UpsertContact(c *Contact) (string, error) {
	now := time.Now().UnixMilli()
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO contacts (id, account_id, external_id, first_name, last_name, display_name, headline, avatar_url, network_distance, is_connection, enriched, enrichment_payload, last_interaction_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, external_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			display_name = excluded.display_name,
			headline = excluded.headline,
			avatar_url = excluded.avatar_url,
			network_distance = excluded.network_distance,
			is_connection = excluded.is_connection,
			enriched = excluded.enriched,
			enrichment_payload = excluded.enrichment_payload,
			last_interaction_at = excluded.last_interaction_at,
			updated_at = excluded.updated_at`,
		id, c.AccountID, c.ExternalID, c.FirstName, c.LastName, c.DisplayName,
		c.Headline, c.AvatarURL, c.NetworkDistance, c.IsConnection, c.Enriched,
		c.EnrichmentPayload, c.LastInteractionAt, now, now)
	if err != nil {
		return "", err
	}

	var rowID string
	err = db.QueryRow(`SELECT id FROM contacts WHERE account_id = ? AND external_id = ?`,
		c.AccountID, c.ExternalID).Scan(&rowID)
	return rowID, err
}

// GetContactByExternalID returns a contact by (account_id, external_id), or nil if absent.
func (db *DB) GetContactByExternalID(accountID, externalID string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, account_id, external_id, first_name, last_name, display_name, headline, avatar_url, network_distance, is_connection, enriched, enrichment_payload, last_interaction_at
		FROM contacts WHERE account_id = ? AND external_id = ?`, accountID, externalID).
		Scan(&c.ID, &c.AccountID, &c.ExternalID, &c.FirstName, &c.LastName, &c.DisplayName,
			&c.Headline, &c.AvatarURL, &c.NetworkDistance, &c.IsConnection, &c.Enriched,
			&c.EnrichmentPayload, &c.LastInteractionAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ContactCount returns the number of contacts mirrored for an account.
func (db *DB) ContactCount(accountID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}
