// Package notify emails the operator about replies that need a human.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/triage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	ReclaimStaleJobs(cutoff time.Time) (int, error)
}

// staleClaim is how long a job may sit in running before it is assumed
// lost. Sending one notification takes seconds.
const staleClaim = 10 * time.Minute

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Worker processes reply_notify jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	mailer Mailer
	to     string
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker sends notifications to the operator address to. If
// pollInterval is <= 0, it defaults to 5s.
func NewWorker(store JobStore, mailer Mailer, to string, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		store:  store,
		mailer: mailer,
		to:     to,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled. Stale claims are swept on
// start and then once per staleClaim.
func (w *Worker) Run(ctx context.Context) {
	var lastSweep time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		if time.Since(lastSweep) >= staleClaim {
			w.Reclaim(time.Now())
			lastSweep = time.Now()
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("notify worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Reclaim requeues jobs claimed before now-staleClaim.
func (w *Worker) Reclaim(now time.Time) int {
	n, err := w.store.ReclaimStaleJobs(now.Add(-staleClaim))
	if err != nil {
		w.logger.Error("reclaiming stale jobs", "error", err)
		return 0
	}
	if n > 0 {
		w.logger.Warn("requeued stale notification jobs", "count", n)
	}
	return n
}

// RunOnce claims and processes a single reply_notify job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{triage.JobReplyNotify})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("notification failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p triage.NotifyPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if w.to == "" {
		return fmt.Errorf("no operator address configured")
	}

	subject, body := render(p)
	if err := w.mailer.Send(ctx, w.to, subject, body); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	w.logger.Info("operator notified", "prospect_id", p.ProspectID, "intent", p.Intent)
	return nil
}

func render(p triage.NotifyPayload) (subject, body string) {
	who := p.ProspectName
	if who == "" {
		who = p.From
	}
	if p.Company != "" {
		who += " (" + p.Company + ")"
	}
	subject = fmt.Sprintf("[%s] Reply from %s", p.Intent, who)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s replied to your outreach.\n\n", who)
	fmt.Fprintf(&sb, "Intent:  %s\n", p.Intent)
	fmt.Fprintf(&sb, "From:    %s\n", p.From)
	fmt.Fprintf(&sb, "Subject: %s\n", p.Subject)
	sb.WriteString("\n---\n")
	sb.WriteString(p.Body)
	sb.WriteString("\n")
	return subject, sb.String()
}
