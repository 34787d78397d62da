package api

import (
	"time"

	"github.com/kalambet/outreach/internal/storage"
)

// Status is a point-in-time summary of the outreach database.
type Status struct {
	Prospects   int            `json:"prospects"`
	Enrollments map[string]int `json:"enrollments"`
	DueNow      int            `json:"due_now"`
	CheckedAt   time.Time      `json:"checked_at"`
}

func BuildStatus(store *storage.Store, now time.Time) (Status, error) {
	n, err := store.CountProspects()
	if err != nil {
		return Status{}, err
	}
	counts, err := store.CountEnrollmentsByStatus()
	if err != nil {
		return Status{}, err
	}
	due, err := store.GetDueActions(now)
	if err != nil {
		return Status{}, err
	}
	return Status{Prospects: n, Enrollments: counts, DueNow: len(due), CheckedAt: now}, nil
}
