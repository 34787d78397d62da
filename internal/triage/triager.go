// Package triage reads prospect replies from the mailbox, classifies their
// intent and dispatches the follow-up: unsubscribe on NEGATIVE, an operator
// notification on interest or a question.
package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outreach/internal/events"
	"github.com/kalambet/outreach/internal/metrics"
	"github.com/kalambet/outreach/internal/storage"
)

// JobReplyNotify is the job type that asks the notification worker to
// email the operator about a reply.
const JobReplyNotify = "reply_notify"

// Reply is an inbound message from a known prospect.
type Reply struct {
	UID        uint32
	ProspectID string
	From       string
	Subject    string
	Body       string
	Intent     Intent
	ReceivedAt time.Time
}

// NotifyPayload is the JSON payload of a reply_notify job.
type NotifyPayload struct {
	ReplyID      string `json:"reply_id"`
	ProspectID   string `json:"prospect_id"`
	ProspectName string `json:"prospect_name"`
	Company      string `json:"company"`
	From         string `json:"from"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Intent       string `json:"intent"`
}

// Store is the storage surface triage needs.
type Store interface {
	GetProspectByEmail(email string) (storage.Prospect, error)
	SetProspectStatus(id, status string) error
	FinishProspectEnrollments(prospectID string, now time.Time) (int, error)
	SaveReply(r storage.Reply) error
	EnqueueJob(job storage.Job) error
}

type IntentClassifier interface {
	Classify(ctx context.Context, body string) Intent
}

type Config struct {
	CheckLimit   int
	PollInterval time.Duration
}

type Triager struct {
	inbox      Inbox
	store      Store
	classifier IntentClassifier
	events     events.Publisher
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

func New(inbox Inbox, store Store, classifier IntentClassifier, pub events.Publisher, cfg Config) *Triager {
	if cfg.CheckLimit <= 0 {
		cfg.CheckLimit = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if pub == nil {
		pub = events.NewLogPublisher(slog.Default())
	}
	return &Triager{
		inbox:      inbox,
		store:      store,
		classifier: classifier,
		events:     pub,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
}

// Poll fetches unread mail, keeps messages from known prospects and
// classifies each one. Mail from unknown senders is ignored.
func (t *Triager) Poll(ctx context.Context) ([]Reply, error) {
	replies, _, err := t.poll(ctx)
	return replies, err
}

// poll also returns the UIDs of ignored messages so they can be marked
// seen with the handled replies.
func (t *Triager) poll(ctx context.Context) (replies []Reply, ignored []uint32, err error) {
	msgs, err := t.inbox.FetchUnseen(ctx, t.cfg.CheckLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching unseen mail: %w", err)
	}

	for _, m := range msgs {
		p, err := t.store.GetProspectByEmail(m.From)
		if errors.Is(err, storage.ErrNotFound) {
			t.logger.Debug("ignoring mail from unknown sender", "from", m.From)
			ignored = append(ignored, m.UID)
			continue
		}
		if err != nil {
			return replies, ignored, fmt.Errorf("looking up %s: %w", m.From, err)
		}

		received := m.Date
		if received.IsZero() {
			received = t.now()
		}
		replies = append(replies, Reply{
			UID:        m.UID,
			ProspectID: p.ID,
			From:       m.From,
			Subject:    m.Subject,
			Body:       m.Body,
			Intent:     t.classifier.Classify(ctx, m.Body),
			ReceivedAt: received.UTC(),
		})
	}
	return replies, ignored, nil
}

// Dispatch records r and acts on its intent.
func (t *Triager) Dispatch(ctx context.Context, r Reply) error {
	log := t.logger.With("prospect_id", r.ProspectID, "intent", r.Intent)
	id := uuid.New().String()
	if err := t.store.SaveReply(storage.Reply{
		ID:         id,
		ProspectID: r.ProspectID,
		From:       r.From,
		Subject:    r.Subject,
		Body:       r.Body,
		Intent:     string(r.Intent),
		ReceivedAt: r.ReceivedAt,
	}); err != nil {
		return fmt.Errorf("saving reply: %w", err)
	}
	metrics.RecordReply(string(r.Intent))

	switch r.Intent {
	case Negative:
		if err := t.store.SetProspectStatus(r.ProspectID, storage.ProspectUnsubscribed); err != nil {
			return fmt.Errorf("unsubscribing %s: %w", r.ProspectID, err)
		}
		n, err := t.store.FinishProspectEnrollments(r.ProspectID, t.now())
		if err != nil {
			return fmt.Errorf("stopping sequences for %s: %w", r.ProspectID, err)
		}
		log.Info("prospect unsubscribed", "enrollments_finished", n)
	case PositiveInterest, Question:
		if err := t.enqueueNotify(id, r); err != nil {
			return err
		}
		log.Info("operator notification queued")
	default:
		log.Info("reply recorded")
	}

	ev := events.New(events.TypeReplyReceived, r.ProspectID, t.now(), map[string]any{
		"reply_id": id,
		"intent":   string(r.Intent),
		"subject":  r.Subject,
	})
	if err := t.events.Publish(ctx, ev); err != nil {
		log.Warn("publishing reply event", "error", err)
	}
	return nil
}

func (t *Triager) enqueueNotify(replyID string, r Reply) error {
	payload := NotifyPayload{
		ReplyID:    replyID,
		ProspectID: r.ProspectID,
		From:       r.From,
		Subject:    r.Subject,
		Body:       r.Body,
		Intent:     string(r.Intent),
	}
	if p, err := t.store.GetProspectByEmail(r.From); err == nil {
		payload.ProspectName = p.FullName
		payload.Company = p.CompanyName
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := t.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobReplyNotify,
		PayloadJSON: string(data),
	}); err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}
	return nil
}

// RunOnce polls and dispatches every reply found. A reply is marked seen
// only after it is dispatched; one whose dispatch fails stays unread and is
// retried next poll. The count of dispatched replies is returned.
func (t *Triager) RunOnce(ctx context.Context) (int, error) {
	replies, seen, err := t.poll(ctx)
	n := 0
	for _, r := range replies {
		if derr := t.Dispatch(ctx, r); derr != nil {
			t.logger.Error("dispatching reply, leaving it unread", "prospect_id", r.ProspectID,
				"uid", r.UID, "subject", r.Subject, "error", derr)
			continue
		}
		seen = append(seen, r.UID)
		n++
	}
	if len(seen) > 0 {
		if merr := t.inbox.MarkSeen(ctx, seen); merr != nil {
			// Handled replies come back next poll and are recorded again.
			err = errors.Join(err, fmt.Errorf("marking replies seen: %w", merr))
		}
	}
	return n, err
}

// Run polls every PollInterval until ctx is cancelled.
func (t *Triager) Run(ctx context.Context) {
	t.logger.Info("reply poller started", "interval", t.cfg.PollInterval)
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if n, err := t.RunOnce(ctx); err != nil {
			t.logger.Error("reply poll failed", "error", err)
		} else if n > 0 {
			t.logger.Info("replies triaged", "count", n)
		}
		select {
		case <-ctx.Done():
			t.logger.Info("reply poller stopped")
			return
		case <-ticker.C:
		}
	}
}
