// Package events publishes outreach lifecycle events (emails sent,
// enrollments closed, replies received) for downstream consumers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEmailSent          = "email.sent"
	TypeEnrollmentFailed   = "enrollment.failed"
	TypeEnrollmentFinished = "enrollment.finished"
	TypeReplyReceived      = "reply.received"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ProspectID string         `json:"prospect_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh ID and the given time in UTC.
func New(typ, prospectID string, at time.Time, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ProspectID: prospectID,
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Open returns an AMQP publisher when url is set and a log-only publisher
// otherwise.
func Open(url, exchange string, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return NewLogPublisher(logger), nil
	}
	return DialAMQP(url, exchange)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("event", "type", ev.Type, "event_id", ev.ID, "prospect_id", ev.ProspectID, "data", ev.Data)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
