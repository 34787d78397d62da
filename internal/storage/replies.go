package storage

import "time"

func (s *Store) SaveReply(r Reply) error {
	received := r.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO replies (id, prospect_id, from_addr, subject, body, intent, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProspectID, r.From, r.Subject, r.Body, r.Intent, formatTime(received),
	)
	return err
}

// ListReplies returns stored replies, newest first.
func (s *Store) ListReplies(limit, offset int) ([]Reply, error) {
	rows, err := s.db.Query(`
		SELECT id, prospect_id, from_addr, subject, body, intent, received_at
		FROM replies ORDER BY received_at DESC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reply
	for rows.Next() {
		var r Reply
		var received string
		if err := rows.Scan(&r.ID, &r.ProspectID, &r.From, &r.Subject, &r.Body, &r.Intent, &received); err != nil {
			return nil, err
		}
		if r.ReceivedAt, err = parseTime("received_at", received); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
