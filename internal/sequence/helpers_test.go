package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/outreach/internal/composer"
	"github.com/kalambet/outreach/internal/research"
	"github.com/kalambet/outreach/internal/storage"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// fakeClock fires every After immediately and advances its own time by
// the requested duration, recording each wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeResearcher struct {
	result research.Result
	calls  int
}

func (f *fakeResearcher) Research(_ context.Context, _ storage.Prospect) research.Result {
	f.calls++
	return f.result
}

type fakeWriter struct {
	content string
	err     error
	hooks   []string
}

func (f *fakeWriter) Write(_ context.Context, _ storage.Prospect, hook string) (string, error) {
	f.hooks = append(f.hooks, hook)
	return f.content, f.err
}

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addProspect(t *testing.T, s *storage.Store, id, name, email string) {
	t.Helper()
	p := storage.Prospect{ID: id, FullName: name, Email: email, Title: "CTO", CompanyName: "Acme"}
	if err := s.UpsertProspect(p); err != nil {
		t.Fatalf("UpsertProspect(%s): %v", id, err)
	}
}

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	def, err := DefaultDefinition("seq_standard_01", 3)
	if err != nil {
		t.Fatalf("DefaultDefinition: %v", err)
	}
	return NewCatalog(def)
}

type fixture struct {
	store      *storage.Store
	clock      *fakeClock
	researcher *fakeResearcher
	writer     *fakeWriter
	mailer     *fakeMailer
	exec       *Executor
	enroller   *Enroller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      openTestStore(t),
		clock:      newFakeClock(t0),
		researcher: &fakeResearcher{result: research.Found("Congrats on the Series B.")},
		writer:     &fakeWriter{content: "Subject: Series B\n\nHi Ann,\n\nCongrats on the round.\n\nDana"},
		mailer:     &fakeMailer{},
	}
	f.exec = NewExecutor(ExecutorDeps{
		Store:      f.store,
		Catalog:    testCatalog(t),
		Researcher: f.researcher,
		Writer:     f.writer,
		Mailer:     f.mailer,
		Sender:     composer.Sender{Name: "Dana"},
		Clock:      f.clock,
	})
	f.enroller = NewEnroller(f.store, f.clock)
	return f
}

// enrolled enrolls id and returns the stored row.
func (f *fixture) enrolled(t *testing.T, id string) storage.Enrollment {
	t.Helper()
	if err := f.enroller.Enroll(context.Background(), id, "seq_standard_01"); err != nil {
		t.Fatalf("Enroll(%s): %v", id, err)
	}
	e, err := f.store.GetEnrollmentFor(id, "seq_standard_01")
	if err != nil {
		t.Fatalf("GetEnrollmentFor(%s): %v", id, err)
	}
	return e
}

var errTransport = errors.New("smtp: 421 service not available")
