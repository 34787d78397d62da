package sequence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/outreach/internal/events"
	"github.com/kalambet/outreach/internal/research"
	"github.com/kalambet/outreach/internal/storage"
)

const day = 24 * time.Hour

func TestExecute_ResearchStepSendsAndAdvances(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")

	f.clock.Advance(time.Minute)
	if got := f.exec.Execute(context.Background(), e); got != OutcomeSent {
		t.Fatalf("outcome = %v, want sent", got)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mailer.sent))
	}
	m := f.mailer.sent[0]
	if m.To != "ann@acme.test" || m.Subject != "Series B" {
		t.Errorf("sent %+v", m)
	}
	if !strings.HasPrefix(m.Body, "Hi Ann,") {
		t.Errorf("body = %q", m.Body)
	}
	if len(f.writer.hooks) != 1 || f.writer.hooks[0] != "Congrats on the Series B." {
		t.Errorf("writer hooks = %v", f.writer.hooks)
	}

	got, _ := f.store.GetEnrollment(e.ID)
	if got.CurrentStep != 2 || got.Status != storage.StatusActive {
		t.Errorf("after send: step=%d status=%s", got.CurrentStep, got.Status)
	}
	want := t0.Add(time.Minute).Add(3 * day)
	if !got.NextActionAt.Equal(want) {
		t.Errorf("NextActionAt = %v, want %v", got.NextActionAt, want)
	}
}

func TestExecute_NoHookFailsEnrollment(t *testing.T) {
	f := newFixture(t)
	f.researcher.result = research.NotFound("nothing recent")
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")

	if got := f.exec.Execute(context.Background(), e); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	if len(f.mailer.sent) != 0 {
		t.Error("no email should be sent without a hook")
	}
	got, _ := f.store.GetEnrollment(e.ID)
	if got.Status != storage.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.LastError, "no hook found") {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestExecute_TransientErrorsLeaveEnrollmentUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		want  Outcome
	}{
		{
			name:  "research error",
			setup: func(f *fixture) { f.researcher.result = research.Failed(errors.New("search timeout")) },
			want:  OutcomeSkipped,
		},
		{
			name:  "writer error",
			setup: func(f *fixture) { f.writer.err = errors.New("llm unavailable") },
			want:  OutcomeSkipped,
		},
		{
			name:  "send error",
			setup: func(f *fixture) { f.mailer.err = errTransport },
			want:  OutcomeSendFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
			before := f.enrolled(t, "p1")

			f.clock.Advance(time.Hour)
			if got := f.exec.Execute(context.Background(), before); got != tt.want {
				t.Fatalf("outcome = %v, want %v", got, tt.want)
			}
			after, _ := f.store.GetEnrollment(before.ID)
			if after != before {
				t.Errorf("enrollment changed:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestExecute_TemplateStepSkipsResearch(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")
	if err := f.store.AdvanceEnrollment(e.ID, 1, t0, t0); err != nil {
		t.Fatalf("AdvanceEnrollment: %v", err)
	}
	e, _ = f.store.GetEnrollment(e.ID)

	if got := f.exec.Execute(context.Background(), e); got != OutcomeSent {
		t.Fatalf("outcome = %v, want sent", got)
	}
	if f.researcher.calls != 0 {
		t.Errorf("research called %d times for a template step", f.researcher.calls)
	}
	m := f.mailer.sent[0]
	if m.Subject != "Following up" {
		t.Errorf("subject = %q", m.Subject)
	}
	if !strings.HasPrefix(m.Body, "Hi Ann,") || !strings.HasSuffix(m.Body, "Dana") {
		t.Errorf("body = %q", m.Body)
	}
	got, _ := f.store.GetEnrollment(e.ID)
	if got.CurrentStep != 3 {
		t.Errorf("step = %d, want 3", got.CurrentStep)
	}
}

func TestExecute_PastLastStepFinishes(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")
	for step := 1; step <= 3; step++ {
		if err := f.store.AdvanceEnrollment(e.ID, step, t0, t0); err != nil {
			t.Fatalf("AdvanceEnrollment(%d): %v", step, err)
		}
	}
	e, _ = f.store.GetEnrollment(e.ID)

	if got := f.exec.Execute(context.Background(), e); got != OutcomeFinished {
		t.Fatalf("outcome = %v, want finished", got)
	}
	if len(f.mailer.sent) != 0 {
		t.Error("nothing should be sent past the last step")
	}
	got, _ := f.store.GetEnrollment(e.ID)
	if got.Status != storage.StatusFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
}

func TestExecute_FallbackSubject(t *testing.T) {
	f := newFixture(t)
	f.writer.content = "Hi Ann, saw the news about the round."
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")

	if got := f.exec.Execute(context.Background(), e); got != OutcomeSent {
		t.Fatalf("outcome = %v, want sent", got)
	}
	m := f.mailer.sent[0]
	if m.Subject != "A thought" {
		t.Errorf("subject = %q, want fallback", m.Subject)
	}
	if m.Body != f.writer.content {
		t.Errorf("body = %q", m.Body)
	}
}

func TestExecute_UnsubscribedProspectFinishes(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")
	if err := f.store.SetProspectStatus("p1", storage.ProspectUnsubscribed); err != nil {
		t.Fatalf("SetProspectStatus: %v", err)
	}

	if got := f.exec.Execute(context.Background(), e); got != OutcomeFinished {
		t.Fatalf("outcome = %v, want finished", got)
	}
	if f.researcher.calls != 0 || len(f.mailer.sent) != 0 {
		t.Error("unsubscribed prospect must not be researched or emailed")
	}
}

func TestExecute_MissingEmailFailsProspect(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "")
	e := f.enrolled(t, "p1")

	if got := f.exec.Execute(context.Background(), e); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	p, _ := f.store.GetProspect("p1")
	if p.Status != storage.ProspectFailed {
		t.Errorf("prospect status = %s, want failed", p.Status)
	}
}

func TestExecute_UnknownSequenceFails(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	if _, err := f.store.Enroll("p1", "seq_retired", t0); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	e, _ := f.store.GetEnrollmentFor("p1", "seq_retired")

	if got := f.exec.Execute(context.Background(), e); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
}

// vanishingStore reports every prospect as missing.
type vanishingStore struct {
	*storage.Store
}

func (vanishingStore) GetProspect(string) (storage.Prospect, error) {
	return storage.Prospect{}, storage.ErrNotFound
}

func TestExecute_MissingProspectFailsEnrollment(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")

	x := NewExecutor(ExecutorDeps{
		Store:      vanishingStore{f.store},
		Catalog:    testCatalog(t),
		Researcher: f.researcher,
		Writer:     f.writer,
		Mailer:     f.mailer,
		Clock:      f.clock,
	})
	if got := x.Execute(context.Background(), e); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	got, _ := f.store.GetEnrollment(e.ID)
	if got.Status != storage.StatusFailed || got.LastError != "prospect not found" {
		t.Errorf("enrollment = %+v", got)
	}
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestExecute_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	f.exec = NewExecutor(ExecutorDeps{
		Store:      f.store,
		Catalog:    testCatalog(t),
		Researcher: f.researcher,
		Writer:     f.writer,
		Mailer:     f.mailer,
		Clock:      f.clock,
		Events:     pub,
	})
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	addProspect(t, f.store, "p2", "Bo Chen", "bo@acme.test")
	e1 := f.enrolled(t, "p1")
	e2 := f.enrolled(t, "p2")

	f.exec.Execute(context.Background(), e1)
	f.researcher.result = research.NotFound("no news")
	f.exec.Execute(context.Background(), e2)

	if len(pub.events) != 2 {
		t.Fatalf("got %d events, want 2", len(pub.events))
	}
	if pub.events[0].Type != events.TypeEmailSent || pub.events[0].ProspectID != "p1" {
		t.Errorf("first event = %+v", pub.events[0])
	}
	if pub.events[1].Type != events.TypeEnrollmentFailed || pub.events[1].ProspectID != "p2" {
		t.Errorf("second event = %+v", pub.events[1])
	}
}

// stuckStore fails every advance.
type stuckStore struct {
	*storage.Store
}

func (stuckStore) AdvanceEnrollment(int64, int, time.Time, time.Time) error {
	return errors.New("database is locked")
}

func TestExecute_AdvanceFailureAfterSend(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	e := f.enrolled(t, "p1")

	x := NewExecutor(ExecutorDeps{
		Store:      stuckStore{f.store},
		Catalog:    testCatalog(t),
		Researcher: f.researcher,
		Writer:     f.writer,
		Mailer:     f.mailer,
		Clock:      f.clock,
	})
	if got := x.Execute(context.Background(), e); got != OutcomeSentUnrecorded {
		t.Fatalf("outcome = %v, want sent_unrecorded", got)
	}
	if len(f.mailer.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(f.mailer.sent))
	}
	got, _ := f.store.GetEnrollment(e.ID)
	if got.CurrentStep != 1 || got.Status != storage.StatusActive {
		t.Errorf("enrollment = %+v, want still active at step 1", got)
	}

	var sum Summary
	sum.add(OutcomeSentUnrecorded)
	if sum.Sent != 1 || sum.Unrecorded != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeSendFailed.String() != "send_failed" {
		t.Errorf("String() = %q", OutcomeSendFailed.String())
	}
	if OutcomeSentUnrecorded.String() != "sent_unrecorded" {
		t.Errorf("String() = %q", OutcomeSentUnrecorded.String())
	}
	if Outcome(42).String() != "outcome(42)" {
		t.Errorf("String() = %q", Outcome(42).String())
	}
}
