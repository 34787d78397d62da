package apollo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/outreach/internal/storage"
)

const searchResponse = `{
  "contacts": [
    {"id": "c1", "name": "Jane Doe", "title": "VP of Engineering", "email": "jane.doe@example.test",
     "linkedin_url": "http://www.linkedin.com/in/janedoe",
     "organization": {"name": "ExampleCorp", "website_url": "http://www.example.test", "primary_domain": "example.test"}},
    {"id": "c2", "first_name": "No", "last_name": "Email", "title": "CEO"}
  ],
  "pagination": {"page": 1, "per_page": 2, "total_entries": 2, "total_pages": 1}
}`

type memStore struct {
	saved []storage.Prospect
}

func (m *memStore) UpsertProspect(p storage.Prospect) error {
	m.saved = append(m.saved, p)
	return nil
}

func TestSearchPeople(t *testing.T) {
	var got SearchParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/mixed_people/search" {
			http.NotFound(w, r)
			return
		}
		if k := r.Header.Get("X-Api-Key"); k != "apollo-key" {
			t.Errorf("X-Api-Key = %q", k)
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, searchResponse)
	}))
	defer srv.Close()

	c := NewClient("apollo-key", srv.URL+"/v1/")
	contacts, err := c.SearchPeople(context.Background(), SearchParams{
		Titles:         []string{"CTO"},
		Locations:      []string{"Berlin"},
		EmployeeRanges: []string{"11,50"},
	})
	if err != nil {
		t.Fatalf("SearchPeople: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts", len(contacts))
	}
	if got.Titles[0] != "CTO" || got.Locations[0] != "Berlin" || got.EmployeeRanges[0] != "11,50" {
		t.Errorf("request = %+v", got)
	}
}

func TestSearchPeople_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewClient("bad", srv.URL).SearchPeople(context.Background(), SearchParams{}); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestSource_SkipsContactsWithoutEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse)
	}))
	defer srv.Close()

	m := &memStore{}
	found, stored, err := NewClient("k", srv.URL).Source(context.Background(), SearchParams{}, m)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if found != 2 || stored != 1 {
		t.Errorf("found=%d stored=%d, want 2/1", found, stored)
	}
	p := m.saved[0]
	if p.ID != "prospect_jane.doe@example.test" || p.FullName != "Jane Doe" {
		t.Errorf("prospect = %+v", p)
	}
	if p.CompanyName != "ExampleCorp" || p.CompanyDomain != "example.test" {
		t.Errorf("company = %q / %q", p.CompanyName, p.CompanyDomain)
	}
}

func TestContactProspect_NameFallback(t *testing.T) {
	p, ok := Contact{FirstName: "Ann", LastName: "Lee", Email: "ann@acme.test"}.Prospect()
	if !ok || p.FullName != "Ann Lee" {
		t.Errorf("Prospect() = %+v, %v", p, ok)
	}
}
