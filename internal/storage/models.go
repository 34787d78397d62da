package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the record changed since it was read.
var ErrConflict = errors.New("conflict")

// Enrollment statuses.
const (
	StatusActive   = "active"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Prospect statuses.
const (
	ProspectActive       = "active"
	ProspectFailed       = "failed"
	ProspectUnsubscribed = "unsubscribed"
)

type Prospect struct {
	ID            string    `json:"prospect_id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	LinkedInURL   string    `json:"linkedin_url,omitempty"`
	Title         string    `json:"title,omitempty"`
	CompanyName   string    `json:"company_name,omitempty"`
	CompanyDomain string    `json:"company_domain,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// FirstName returns the first whitespace-separated part of FullName.
func (p Prospect) FirstName() string {
	for i, r := range p.FullName {
		if r == ' ' || r == '\t' {
			return p.FullName[:i]
		}
	}
	return p.FullName
}

// Enrollment is one prospect's position in one outreach sequence.
type Enrollment struct {
	ID           int64     `json:"id"`
	ProspectID   string    `json:"prospect_id"`
	SequenceID   string    `json:"sequence_id"`
	Status       string    `json:"status"`
	CurrentStep  int       `json:"current_step"`
	NextActionAt time.Time `json:"next_action_at"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Reply struct {
	ID         string    `json:"id"`
	ProspectID string    `json:"prospect_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Intent     string    `json:"intent"`
	ReceivedAt time.Time `json:"received_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
