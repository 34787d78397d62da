package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addProspect(t *testing.T, s *Store, id, email string) {
	t.Helper()
	if err := s.UpsertProspect(Prospect{ID: id, FullName: "Test " + id, Email: email, CompanyName: "Acme"}); err != nil {
		t.Fatalf("UpsertProspect(%s): %v", id, err)
	}
}

// TestMigrationsIdempotent opens the same directory twice and verifies the
// migration set is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("applied %d migrations, want 2", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_prospect_sequences_due", "idx_replies_received", "idx_jobs_status_run_after"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestJobQueue_ClaimCompleteFail(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-1", Type: "reply_notify", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if j, err := s.ClaimNextJob([]string{"other"}); err != nil || j != nil {
		t.Fatalf("ClaimNextJob(other) = %v, %v; want nil, nil", j, err)
	}

	j, err := s.ClaimNextJob([]string{"reply_notify"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if j == nil || j.ID != "job-1" || j.Status != JobRunning {
		t.Fatalf("claimed %+v, want job-1 running", j)
	}

	if again, _ := s.ClaimNextJob([]string{"reply_notify"}); again != nil {
		t.Errorf("running job claimed twice")
	}

	if err := s.FailJob("job-1", "smtp down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobPending || got.Attempts != 1 || got.LastError != "smtp down" {
		t.Errorf("after first failure: %+v", got)
	}
	if !got.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter = %v, want a backoff in the future", got.RunAfter)
	}

	if err := s.FailJob("job-1", "smtp still down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, _ = s.GetJob("job-1")
	if got.Status != JobFailed {
		t.Errorf("Status = %q, want %q after max attempts", got.Status, JobFailed)
	}

	if err := s.EnqueueJob(Job{ID: "job-2", Type: "reply_notify", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"reply_notify"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("job-2"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestReclaimStaleJobs(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"job-1", "job-2"} {
		if err := s.EnqueueJob(Job{ID: id, Type: "reply_notify", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}
	if _, err := s.ClaimNextJob([]string{"reply_notify"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	// A cutoff in the past leaves a fresh claim alone.
	if n, err := s.ReclaimStaleJobs(time.Now().Add(-time.Hour)); err != nil || n != 0 {
		t.Fatalf("ReclaimStaleJobs(past) = %d, %v; want 0, nil", n, err)
	}

	n, err := s.ReclaimStaleJobs(time.Now().Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("ReclaimStaleJobs = %d, %v; want 1, nil", n, err)
	}
	got, _ := s.GetJob("job-1")
	if got.Status != JobPending || got.Attempts != 1 || got.LastError != "claim expired" {
		t.Errorf("reclaimed job = %+v", got)
	}
	if other, _ := s.GetJob("job-2"); other.Status != JobPending || other.Attempts != 0 {
		t.Errorf("unclaimed job touched: %+v", other)
	}

	// The second lost claim exhausts max_attempts.
	if j, _ := s.ClaimNextJob([]string{"reply_notify"}); j == nil || j.ID != "job-1" {
		t.Fatalf("reclaimed job not claimable again: %+v", j)
	}
	s.ReclaimStaleJobs(time.Now().Add(time.Second))
	if got, _ := s.GetJob("job-1"); got.Status != JobFailed {
		t.Errorf("Status = %q, want %q", got.Status, JobFailed)
	}
}

func TestSaveAndListReplies(t *testing.T) {
	s := openTestStore(t)
	addProspect(t, s, "p1", "ann@acme.test")

	older := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	for _, r := range []Reply{
		{ID: "r1", ProspectID: "p1", From: "ann@acme.test", Subject: "Re: hi", Body: "sounds good", Intent: "POSITIVE_INTEREST", ReceivedAt: older},
		{ID: "r2", ProspectID: "p1", From: "ann@acme.test", Subject: "Re: hi", Body: "pricing?", Intent: "QUESTION", ReceivedAt: newer},
	} {
		if err := s.SaveReply(r); err != nil {
			t.Fatalf("SaveReply(%s): %v", r.ID, err)
		}
	}

	got, err := s.ListReplies(10, 0)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d replies, want 2", len(got))
	}
	if got[0].ID != "r2" || got[1].ID != "r1" {
		t.Errorf("order = %s,%s; want r2,r1", got[0].ID, got[1].ID)
	}
	if !got[1].ReceivedAt.Equal(older) {
		t.Errorf("ReceivedAt = %v, want %v", got[1].ReceivedAt, older)
	}
}
