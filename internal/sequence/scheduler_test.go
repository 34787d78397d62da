package sequence

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/outreach/internal/storage"
)

type staticDue struct {
	actions []storage.Enrollment
	err     error
}

func (s staticDue) GetDueActions(time.Time) ([]storage.Enrollment, error) {
	return s.actions, s.err
}

// scriptedRunner returns outcomes in order and records what it executed.
type scriptedRunner struct {
	outcomes []Outcome
	ran      []int64
	panicOn  int64
}

func (r *scriptedRunner) Execute(_ context.Context, e storage.Enrollment) Outcome {
	if r.panicOn != 0 && e.ID == r.panicOn {
		panic("boom")
	}
	r.ran = append(r.ran, e.ID)
	o := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	return o
}

func dueBatch(n int) []storage.Enrollment {
	out := make([]storage.Enrollment, n)
	for i := range out {
		out[i] = storage.Enrollment{ID: int64(i + 1), ProspectID: "p", CurrentStep: 1}
	}
	return out
}

func TestRunOnce_PacesBetweenSends(t *testing.T) {
	clock := newFakeClock(t0)
	runner := &scriptedRunner{outcomes: []Outcome{OutcomeSent, OutcomeSent, OutcomeSent}}
	s := NewScheduler(staticDue{actions: dueBatch(3)}, runner, clock, SchedulerConfig{})

	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Due != 3 || sum.Sent != 3 {
		t.Errorf("summary = %+v", sum)
	}
	want := []time.Duration{5 * time.Minute, 5 * time.Minute}
	if got := clock.Waits(); !reflect.DeepEqual(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestRunOnce_NoPacingAfterNonSend(t *testing.T) {
	clock := newFakeClock(t0)
	runner := &scriptedRunner{outcomes: []Outcome{OutcomeFailed, OutcomeSendFailed, OutcomeSent, OutcomeSkipped}}
	s := NewScheduler(staticDue{actions: dueBatch(4)}, runner, clock, SchedulerConfig{PacingDelay: time.Minute})

	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := clock.Waits(); !reflect.DeepEqual(got, []time.Duration{time.Minute}) {
		t.Errorf("waits = %v, want one pacing wait after the send", got)
	}
	want := Summary{Due: 4, Sent: 1, SendFailed: 1, Failed: 1, Skipped: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
}

func TestRunOnce_PacesAfterUnrecordedSend(t *testing.T) {
	clock := newFakeClock(t0)
	runner := &scriptedRunner{outcomes: []Outcome{OutcomeSentUnrecorded, OutcomeSent}}
	s := NewScheduler(staticDue{actions: dueBatch(2)}, runner, clock, SchedulerConfig{PacingDelay: time.Minute})

	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := clock.Waits(); !reflect.DeepEqual(got, []time.Duration{time.Minute}) {
		t.Errorf("waits = %v, want one pacing wait", got)
	}
	want := Summary{Due: 2, Sent: 2, Unrecorded: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
}

func TestRunOnce_NegativePacingDisables(t *testing.T) {
	clock := newFakeClock(t0)
	runner := &scriptedRunner{outcomes: []Outcome{OutcomeSent, OutcomeSent}}
	s := NewScheduler(staticDue{actions: dueBatch(2)}, runner, clock, SchedulerConfig{PacingDelay: -1})

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := clock.Waits(); len(got) != 0 {
		t.Errorf("waits = %v, want none", got)
	}
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	runner := &scriptedRunner{outcomes: []Outcome{OutcomeSent}, panicOn: 2}
	s := NewScheduler(staticDue{actions: dueBatch(3)}, runner, newFakeClock(t0), SchedulerConfig{PacingDelay: -1})

	_, err := s.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicked: boom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	if !reflect.DeepEqual(runner.ran, []int64{1}) {
		t.Errorf("ran = %v", runner.ran)
	}
}

func TestRunOnce_DueSourceError(t *testing.T) {
	s := NewScheduler(staticDue{err: errors.New("database is locked")}, &scriptedRunner{}, newFakeClock(t0), SchedulerConfig{})
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error from due source")
	}
}

// cancellingDue fails or returns nothing, and cancels ctx on its Nth call.
type cancellingDue struct {
	calls    int
	stopAt   int
	failures map[int]bool
	cancel   context.CancelFunc
}

func (c *cancellingDue) GetDueActions(time.Time) ([]storage.Enrollment, error) {
	c.calls++
	if c.calls == c.stopAt {
		c.cancel()
	}
	if c.failures[c.calls] {
		return nil, errors.New("disk I/O error")
	}
	return nil, nil
}

func TestRun_BacksOffAfterFailedCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newFakeClock(t0)
	due := &cancellingDue{stopAt: 3, failures: map[int]bool{2: true}, cancel: cancel}
	s := NewScheduler(due, &scriptedRunner{}, clock, SchedulerConfig{
		PollInterval: 30 * time.Second,
		ErrorBackoff: 2 * time.Minute,
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if due.calls != 3 {
		t.Errorf("cycles = %d, want 3", due.calls)
	}
	want := []time.Duration{30 * time.Second, 2 * time.Minute}
	if got := clock.Waits(); !reflect.DeepEqual(got[:2], want) {
		t.Errorf("waits = %v, want prefix %v", got, want)
	}
}

// The end-to-end path through the real store: enroll, run a cycle, and
// check the action is not due again until the wait has elapsed.
func TestScheduler_EnrollSendThenWait(t *testing.T) {
	f := newFixture(t)
	addProspect(t, f.store, "p1", "Ann Lee", "ann@acme.test")
	f.enrolled(t, "p1")

	due, err := f.store.GetDueActions(f.clock.Now())
	if err != nil {
		t.Fatalf("GetDueActions: %v", err)
	}
	if len(due) != 1 || due[0].ProspectID != "p1" || due[0].CurrentStep != 1 {
		t.Fatalf("due = %+v, want p1 at step 1", due)
	}

	s := NewScheduler(f.store, f.exec, f.clock, SchedulerConfig{})
	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Sent != 1 {
		t.Fatalf("summary = %+v, want one send", sum)
	}

	e, _ := f.store.GetEnrollmentFor("p1", "seq_standard_01")
	if e.CurrentStep != 2 {
		t.Errorf("step = %d, want 2", e.CurrentStep)
	}

	f.clock.Advance(3*day - time.Second)
	if due, _ := f.store.GetDueActions(f.clock.Now()); len(due) != 0 {
		t.Errorf("due before wait elapsed: %+v", due)
	}
	f.clock.Advance(time.Second)
	if due, _ := f.store.GetDueActions(f.clock.Now()); len(due) != 1 {
		t.Errorf("due after wait = %d, want 1", len(due))
	}
}
