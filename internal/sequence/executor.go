package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/outreach/internal/composer"
	"github.com/kalambet/outreach/internal/events"
	"github.com/kalambet/outreach/internal/metrics"
	"github.com/kalambet/outreach/internal/research"
	"github.com/kalambet/outreach/internal/storage"
)

// Outcome is what happened to one due action.
type Outcome int

const (
	// OutcomeSent: email accepted by the transport, enrollment advanced.
	OutcomeSent Outcome = iota + 1
	// OutcomeSendFailed: transport refused; enrollment untouched.
	OutcomeSendFailed
	// OutcomeFailed: enrollment moved to failed.
	OutcomeFailed
	// OutcomeFinished: no step left; enrollment moved to finished.
	OutcomeFinished
	// OutcomeSkipped: transient error before sending; enrollment untouched.
	OutcomeSkipped
	// OutcomeSentUnrecorded: email accepted but the enrollment could not be
	// advanced. The step stays due and is sent again next cycle, so
	// delivery is at least once.
	OutcomeSentUnrecorded
)

// sent reports whether an email went out.
func (o Outcome) sent() bool {
	return o == OutcomeSent || o == OutcomeSentUnrecorded
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeFailed:
		return "failed"
	case OutcomeFinished:
		return "finished"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSentUnrecorded:
		return "sent_unrecorded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ExecStore is the storage surface the executor needs.
type ExecStore interface {
	GetProspect(id string) (storage.Prospect, error)
	SetProspectStatus(id, status string) error
	AdvanceEnrollment(id int64, fromStep int, next, now time.Time) error
	FailEnrollment(id int64, reason string, now time.Time) error
	FinishEnrollment(id int64, now time.Time) error
}

type Researcher interface {
	Research(ctx context.Context, p storage.Prospect) research.Result
}

// Writer turns a hook into "Subject: ...\n\nbody" content.
type Writer interface {
	Write(ctx context.Context, p storage.Prospect, hook string) (string, error)
}

// Mailer is the outbound transport. A nil error means the message was
// accepted.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type ExecutorDeps struct {
	Store      ExecStore
	Catalog    Catalog
	Researcher Researcher
	Writer     Writer
	Mailer     Mailer
	Sender     composer.Sender
	Clock      Clock
	Events     events.Publisher
	Logger     *slog.Logger
}

// Executor performs the current step of one enrollment.
type Executor struct {
	store    ExecStore
	catalog  Catalog
	research Researcher
	writer   Writer
	mailer   Mailer
	sender   composer.Sender
	clock    Clock
	events   events.Publisher
	logger   *slog.Logger
}

func NewExecutor(d ExecutorDeps) *Executor {
	if d.Clock == nil {
		d.Clock = RealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.NewLogPublisher(d.Logger)
	}
	return &Executor{
		store:    d.Store,
		catalog:  d.Catalog,
		research: d.Researcher,
		writer:   d.Writer,
		mailer:   d.Mailer,
		sender:   d.Sender,
		clock:    d.Clock,
		events:   d.Events,
		logger:   d.Logger,
	}
}

// Execute runs the current step of e. It never returns an error: every
// failure is folded into the Outcome and, where terminal, into the
// enrollment row.
func (x *Executor) Execute(ctx context.Context, e storage.Enrollment) Outcome {
	out := x.execute(ctx, e)
	metrics.RecordAction(out.String())
	return out
}

func (x *Executor) execute(ctx context.Context, e storage.Enrollment) Outcome {
	log := x.logger.With("enrollment_id", e.ID, "prospect_id", e.ProspectID, "step", e.CurrentStep)

	p, err := x.store.GetProspect(e.ProspectID)
	if errors.Is(err, storage.ErrNotFound) {
		return x.fail(ctx, log, e, "prospect not found")
	}
	if err != nil {
		log.Error("loading prospect", "error", err)
		return OutcomeSkipped
	}
	if p.Email == "" {
		if err := x.store.SetProspectStatus(p.ID, storage.ProspectFailed); err != nil {
			log.Error("marking prospect failed", "error", err)
		}
		return x.fail(ctx, log, e, "prospect has no email address")
	}
	if p.Status == storage.ProspectUnsubscribed {
		return x.finish(ctx, log, e, "prospect unsubscribed")
	}

	def, ok := x.catalog[e.SequenceID]
	if !ok {
		return x.fail(ctx, log, e, fmt.Sprintf("unknown sequence %q", e.SequenceID))
	}
	step, ok := def.Step(e.CurrentStep)
	if !ok {
		return x.finish(ctx, log, e, "sequence complete")
	}

	var email composer.Email
	switch step.Kind {
	case StepResearch:
		res := x.research.Research(ctx, p)
		metrics.RecordResearch(res.Kind.String())
		switch res.Kind {
		case research.KindHook:
		case research.KindNotFound:
			return x.fail(ctx, log, e, "no hook found: "+res.Reason)
		default:
			log.Warn("research failed, will retry", "error", res.Err)
			return OutcomeSkipped
		}
		content, err := x.writer.Write(ctx, p, res.Hook)
		if err != nil {
			log.Warn("composing email failed, will retry", "error", err)
			return OutcomeSkipped
		}
		email = composer.ParseEmail(content)
	case StepTemplate:
		email, err = step.Render(composer.NewTemplateData(p, x.sender))
		if err != nil {
			log.Error("rendering follow-up", "error", err)
			return OutcomeSkipped
		}
	}

	if err := x.mailer.Send(ctx, p.Email, email.Subject, email.Body); err != nil {
		log.Warn("send failed, will retry next cycle", "error", err)
		return OutcomeSendFailed
	}

	now := x.clock.Now()
	next := now.Add(def.Wait(step))
	out := OutcomeSent
	if err := x.store.AdvanceEnrollment(e.ID, e.CurrentStep, next, now); err != nil {
		log.Error("email sent but enrollment not advanced, step may be sent again",
			"subject", email.Subject, "error", err)
		out = OutcomeSentUnrecorded
	} else {
		log.Info("email sent", "subject", email.Subject, "next_action_at", next)
	}
	x.publish(ctx, log, events.New(events.TypeEmailSent, p.ID, now, map[string]any{
		"enrollment_id": e.ID,
		"sequence_id":   e.SequenceID,
		"step":          e.CurrentStep,
		"subject":       email.Subject,
	}))
	return out
}

func (x *Executor) fail(ctx context.Context, log *slog.Logger, e storage.Enrollment, reason string) Outcome {
	now := x.clock.Now()
	if err := x.store.FailEnrollment(e.ID, reason, now); err != nil {
		log.Error("marking enrollment failed", "reason", reason, "error", err)
		return OutcomeSkipped
	}
	log.Warn("enrollment failed", "reason", reason)
	x.publish(ctx, log, events.New(events.TypeEnrollmentFailed, e.ProspectID, now, map[string]any{
		"enrollment_id": e.ID,
		"sequence_id":   e.SequenceID,
		"step":          e.CurrentStep,
		"reason":        reason,
	}))
	return OutcomeFailed
}

func (x *Executor) finish(ctx context.Context, log *slog.Logger, e storage.Enrollment, reason string) Outcome {
	now := x.clock.Now()
	if err := x.store.FinishEnrollment(e.ID, now); err != nil {
		log.Error("marking enrollment finished", "error", err)
		return OutcomeSkipped
	}
	log.Info("enrollment finished", "reason", reason)
	x.publish(ctx, log, events.New(events.TypeEnrollmentFinished, e.ProspectID, now, map[string]any{
		"enrollment_id": e.ID,
		"sequence_id":   e.SequenceID,
		"reason":        reason,
	}))
	return OutcomeFinished
}

func (x *Executor) publish(ctx context.Context, log *slog.Logger, ev events.Event) {
	if err := x.events.Publish(ctx, ev); err != nil {
		log.Warn("publishing event", "type", ev.Type, "error", err)
	}
}
