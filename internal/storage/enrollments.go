package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const enrollmentColumns = `id, prospect_id, sequence_id, status, current_step, next_action_at, last_error, updated_at`

// Enroll creates an active enrollment at step 1, due at now, unless one
// already exists for the (prospectID, sequenceID) pair. created reports
// whether a row was inserted. It returns ErrNotFound for an unknown prospect.
func (s *Store) Enroll(prospectID, sequenceID string, now time.Time) (created bool, err error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM prospects WHERE prospect_id = ?`, prospectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking prospect %s: %w", prospectID, err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}

	ts := formatTime(now)
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO prospect_sequences (prospect_id, sequence_id, status, current_step, next_action_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		prospectID, sequenceID, StatusActive, ts, ts,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetDueActions returns active enrollments whose next action time is at or
// before now, oldest first.
func (s *Store) GetDueActions(now time.Time) ([]Enrollment, error) {
	return s.queryEnrollments(`
		SELECT `+enrollmentColumns+` FROM prospect_sequences
		WHERE status = ? AND next_action_at <= ?
		ORDER BY next_action_at ASC, id ASC`,
		StatusActive, formatTime(now),
	)
}

func (s *Store) GetEnrollment(id int64) (Enrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM prospect_sequences WHERE id = ?`, id)
	return scanEnrollment(row)
}

func (s *Store) GetEnrollmentFor(prospectID, sequenceID string) (Enrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM prospect_sequences WHERE prospect_id = ? AND sequence_id = ?`,
		prospectID, sequenceID)
	return scanEnrollment(row)
}

func (s *Store) ListEnrollments(prospectID string) ([]Enrollment, error) {
	return s.queryEnrollments(`SELECT `+enrollmentColumns+` FROM prospect_sequences WHERE prospect_id = ? ORDER BY id ASC`, prospectID)
}

// AdvanceEnrollment moves an active enrollment from fromStep to fromStep+1
// and reschedules it. The update only applies while the row is still active
// at fromStep, so a step is never counted twice; otherwise ErrConflict.
func (s *Store) AdvanceEnrollment(id int64, fromStep int, next, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE prospect_sequences
		SET current_step = current_step + 1, next_action_at = ?, last_error = '', updated_at = ?
		WHERE id = ? AND current_step = ? AND status = ?`,
		formatTime(next), formatTime(now), id, fromStep, StatusActive,
	)
	if err != nil {
		return err
	}
	return affectedOne(res, ErrConflict)
}

// FailEnrollment marks an enrollment terminally failed with reason.
func (s *Store) FailEnrollment(id int64, reason string, now time.Time) error {
	return s.setEnrollmentStatus(id, StatusFailed, reason, now)
}

// FinishEnrollment marks an enrollment as having completed its sequence.
func (s *Store) FinishEnrollment(id int64, now time.Time) error {
	return s.setEnrollmentStatus(id, StatusFinished, "", now)
}

func (s *Store) setEnrollmentStatus(id int64, status, reason string, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE prospect_sequences SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, reason, formatTime(now), id, StatusActive,
	)
	if err != nil {
		return err
	}
	if err := affectedOne(res, ErrNotFound); err != nil {
		if _, getErr := s.GetEnrollment(id); getErr == nil {
			return ErrConflict
		}
		return err
	}
	return nil
}

// FinishProspectEnrollments finishes every active enrollment of a prospect
// and returns how many rows changed.
func (s *Store) FinishProspectEnrollments(prospectID string, now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE prospect_sequences SET status = ?, updated_at = ?
		WHERE prospect_id = ? AND status = ?`,
		StatusFinished, formatTime(now), prospectID, StatusActive,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearAllEnrollments deletes every enrollment row. Prospects are untouched.
func (s *Store) ClearAllEnrollments() (int, error) {
	res, err := s.db.Exec(`DELETE FROM prospect_sequences`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountEnrollmentsByStatus returns row counts keyed by status.
func (s *Store) CountEnrollmentsByStatus() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM prospect_sequences GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryEnrollments(query string, args ...any) ([]Enrollment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEnrollment(sc rowScanner) (Enrollment, error) {
	var e Enrollment
	var nextAt, updatedAt string
	err := sc.Scan(&e.ID, &e.ProspectID, &e.SequenceID, &e.Status, &e.CurrentStep, &nextAt, &e.LastError, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	if err != nil {
		return Enrollment{}, err
	}
	if e.NextActionAt, err = parseTime("next_action_at", nextAt); err != nil {
		return Enrollment{}, err
	}
	if e.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}
