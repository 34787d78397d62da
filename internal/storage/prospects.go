package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const prospectColumns = `prospect_id, full_name, email, linkedin_url, title, company_name, company_domain, status, created_at`

// UpsertProspect inserts p unless a prospect with the same id or email
// already exists. Existing rows are never overwritten.
func (s *Store) UpsertProspect(p Prospect) error {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := p.Status
	if status == "" {
		status = ProspectActive
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO prospects (`+prospectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FullName, strings.TrimSpace(p.Email), p.LinkedInURL, p.Title,
		p.CompanyName, p.CompanyDomain, status, formatTime(created),
	)
	return err
}

func (s *Store) GetProspect(id string) (Prospect, error) {
	row := s.db.QueryRow(`SELECT `+prospectColumns+` FROM prospects WHERE prospect_id = ?`, id)
	return scanProspect(row)
}

// GetProspectByEmail matches the address case-insensitively.
func (s *Store) GetProspectByEmail(email string) (Prospect, error) {
	row := s.db.QueryRow(`SELECT `+prospectColumns+` FROM prospects WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email))
	return scanProspect(row)
}

func (s *Store) ListProspects(limit, offset int) ([]Prospect, error) {
	rows, err := s.db.Query(`SELECT `+prospectColumns+` FROM prospects ORDER BY created_at ASC, prospect_id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountProspects() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM prospects`).Scan(&n)
	return n, err
}

// ListUnenrolledProspects returns ids of prospects that have no enrollment in
// any sequence.
func (s *Store) ListUnenrolledProspects() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT p.prospect_id FROM prospects p
		LEFT JOIN prospect_sequences ps ON p.prospect_id = ps.prospect_id
		WHERE ps.prospect_id IS NULL
		ORDER BY p.created_at ASC, p.prospect_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) SetProspectStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE prospects SET status = ? WHERE prospect_id = ?`, status, id)
	if err != nil {
		return err
	}
	return affectedOne(res, ErrNotFound)
}

func scanProspect(sc rowScanner) (Prospect, error) {
	var p Prospect
	var createdAt string
	err := sc.Scan(&p.ID, &p.FullName, &p.Email, &p.LinkedInURL, &p.Title,
		&p.CompanyName, &p.CompanyDomain, &p.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Prospect{}, ErrNotFound
	}
	if err != nil {
		return Prospect{}, err
	}
	if p.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Prospect{}, err
	}
	return p, nil
}
