package api

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/kalambet/outreach/internal/importer"
	"github.com/kalambet/outreach/internal/storage"
)

// errEmailTaken means the email already belongs to a prospect with a
// different id.
var errEmailTaken = errors.New("email already belongs to another prospect")

// ProspectInput is the body of POST /prospects and the add_prospect tool.
type ProspectInput struct {
	ID            string `json:"prospect_id"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	LinkedInURL   string `json:"linkedin_url"`
	Title         string `json:"title"`
	CompanyName   string `json:"company_name"`
	CompanyDomain string `json:"company_domain"`
}

func (in ProspectInput) validate() error {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("invalid email %q", in.Email)
	}
	return nil
}

// addProspect stores in unless it already exists. created is false when a
// prospect with the same id was already present; that prospect is
// returned unchanged.
func addProspect(store *storage.Store, in ProspectInput) (p storage.Prospect, created bool, err error) {
	if err := in.validate(); err != nil {
		return storage.Prospect{}, false, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = importer.ProspectID(in.Email)
	}

	existing, err := store.GetProspect(id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Prospect{}, false, err
	}

	if err := store.UpsertProspect(storage.Prospect{
		ID:            id,
		FullName:      strings.TrimSpace(in.FullName),
		Email:         strings.TrimSpace(in.Email),
		LinkedInURL:   in.LinkedInURL,
		Title:         in.Title,
		CompanyName:   in.CompanyName,
		CompanyDomain: in.CompanyDomain,
	}); err != nil {
		return storage.Prospect{}, false, err
	}
	p, err = store.GetProspect(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Prospect{}, false, errEmailTaken
	}
	return p, err == nil, err
}
