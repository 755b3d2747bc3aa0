package store

import (
	"time"

	"github.com/google/uuid"
)

// InsertProfileView records one profile view sighting. Duplicate sightings
// (same viewer, same timestamp) collapse into one row.
func (db *DB) InsertProfileView(v *ProfileView) error {
	_, err := db.Exec(`
		INSERT INTO profile_views (id, account_id, viewer_id, viewer_name, viewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, viewer_id, viewed_at) DO UPDATE SET
			viewer_name = CASE WHEN excluded.viewer_name != '' THEN excluded.viewer_name ELSE profile_views.viewer_name END`,
		uuid.NewString(), v.AccountID, v.ViewerID, v.ViewerName, v.ViewedAt, time.Now().UnixMilli())
	return err
}

// ListProfileViews returns an account's profile views, newest first.
func (db *DB) ListProfileViews(accountID string, limit int) ([]ProfileView, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, account_id, viewer_id, viewer_name, viewed_at
		FROM profile_views WHERE account_id = ?
		ORDER BY viewed_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var views []ProfileView
	for rows.Next() {
		var v ProfileView
		if err := rows.Scan(&v.ID, &v.AccountID, &v.ViewerID, &v.ViewerName, &v.ViewedAt); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
