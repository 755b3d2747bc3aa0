package store

// SearchMessages performs a full-text search on message content for one account.
func (db *DB) SearchMessages(accountID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT m.id, m.account_id, COALESCE(m.chat_id, ''), m.external_id, m.sender_id, m.content,
		       m.message_type, m.is_outgoing, m.is_read, m.deleted, m.sent_at, m.metadata,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ? AND m.account_id = ?
		ORDER BY rank LIMIT ?`, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.AccountID, &r.Message.ChatID, &r.Message.ExternalID,
			&r.Message.SenderID, &r.Message.Content, &r.Message.Type, &r.Message.IsOutgoing,
			&r.Message.IsRead, &r.Message.Deleted, &r.Message.SentAt, &r.Message.Metadata,
			&r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
