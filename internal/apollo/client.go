// Package apollo sources prospects from the Apollo.io people search.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/outreach/internal/importer"
	"github.com/kalambet/outreach/internal/storage"
)

const defaultBaseURL = "https://api.apollo.io/v1"

// SearchParams filters the people search. Employee ranges use Apollo's
// "min,max" notation, e.g. "11,50".
type SearchParams struct {
	Titles         []string `json:"person_titles,omitempty"`
	Locations      []string `json:"person_locations,omitempty"`
	EmployeeRanges []string `json:"organization_num_employees_ranges,omitempty"`
	Page           int      `json:"page,omitempty"`
	PerPage        int      `json:"per_page,omitempty"`
}

type Organization struct {
	Name          string `json:"name"`
	WebsiteURL    string `json:"website_url"`
	PrimaryDomain string `json:"primary_domain"`
}

// Contact is one person returned by the search.
type Contact struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	EmailStatus  string        `json:"email_status"`
	LinkedInURL  string        `json:"linkedin_url"`
	Organization *Organization `json:"organization"`
}

// Prospect converts c for storage. ok is false when c has no email.
func (c Contact) Prospect() (p storage.Prospect, ok bool) {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return storage.Prospect{}, false
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	p = storage.Prospect{
		ID:          importer.ProspectID(email),
		FullName:    name,
		Email:       email,
		LinkedInURL: c.LinkedInURL,
		Title:       c.Title,
	}
	if o := c.Organization; o != nil {
		p.CompanyName = o.Name
		p.CompanyDomain = o.PrimaryDomain
	}
	return p, true
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SearchPeople calls mixed_people/search and returns the contacts.
func (c *Client) SearchPeople(ctx context.Context, params SearchParams) ([]Contact, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mixed_people/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching people: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("searching people: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return out.Contacts, nil
}

type Upserter interface {
	UpsertProspect(p storage.Prospect) error
}

// Source searches Apollo and stores every contact that has an email.
// It returns how many contacts were found and how many were stored.
func (c *Client) Source(ctx context.Context, params SearchParams, store Upserter) (found, stored int, err error) {
	contacts, err := c.SearchPeople(ctx, params)
	if err != nil {
		return 0, 0, err
	}
	for _, ct := range contacts {
		p, ok := ct.Prospect()
		if !ok {
			continue
		}
		if err := store.UpsertProspect(p); err != nil {
			return len(contacts), stored, fmt.Errorf("saving %s: %w", p.Email, err)
		}
		stored++
	}
	return len(contacts), stored, nil
}
