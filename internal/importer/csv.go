// Package importer loads prospects from CSV exports.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/outreach/internal/storage"
)

// Column headers of the prospect export.
const (
	colFirstName = "First Name"
	colLastName  = "Last Name"
	colEmail     = "Email"
	colLinkedIn  = "Person Linkedin Url"
	colTitle     = "Title"
	colCompany   = "Company Name"
	colWebsite   = "Website"
)

// ProspectID derives the stable prospect id from an email address.
func ProspectID(email string) string {
	return "prospect_" + strings.ToLower(strings.TrimSpace(email))
}

type Upserter interface {
	UpsertProspect(p storage.Prospect) error
}

// Result summarises one import.
type Result struct {
	Rows     int // data rows read
	Imported int // rows handed to the store
	Skipped  int // rows without an email address
}

// ReadCSV parses a prospect export. Only the Email column is required;
// other known columns are optional and unknown columns are ignored.
func ReadCSV(r io.Reader) ([]storage.Prospect, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, errors.New("csv is empty")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := idx[colEmail]; !ok {
		return nil, 0, fmt.Errorf("missing required column %q", colEmail)
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []storage.Prospect
	skipped := 0
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, skipped, fmt.Errorf("line %d: %w", line, err)
		}
		email := field(rec, colEmail)
		if email == "" {
			skipped++
			continue
		}
		name := strings.TrimSpace(field(rec, colFirstName) + " " + field(rec, colLastName))
		out = append(out, storage.Prospect{
			ID:            ProspectID(email),
			FullName:      name,
			Email:         email,
			LinkedInURL:   field(rec, colLinkedIn),
			Title:         field(rec, colTitle),
			CompanyName:   field(rec, colCompany),
			CompanyDomain: domainOf(field(rec, colWebsite)),
		})
	}
	return out, skipped, nil
}

// Import reads r and upserts every prospect. Rows whose email or id already
// exist are left untouched by the store.
func Import(r io.Reader, store Upserter) (Result, error) {
	prospects, skipped, err := ReadCSV(r)
	res := Result{Rows: len(prospects) + skipped, Skipped: skipped}
	if err != nil {
		return res, err
	}
	for _, p := range prospects {
		if err := store.UpsertProspect(p); err != nil {
			return res, fmt.Errorf("saving %s: %w", p.Email, err)
		}
		res.Imported++
	}
	return res, nil
}

// domainOf reduces a website column ("https://www.acme.io/about") to its
// host ("acme.io").
func domainOf(website string) string {
	s := strings.ToLower(strings.TrimSpace(website))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
