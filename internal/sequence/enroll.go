// Package sequence runs prospects through multi-step email sequences:
// enrollment, per-step execution and the scheduler loop that drives them.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/outreach/internal/storage"
)

// EnrollStore is the storage surface enrollment needs.
type EnrollStore interface {
	Enroll(prospectID, sequenceID string, now time.Time) (bool, error)
	ListUnenrolledProspects() ([]string, error)
}

type Enroller struct {
	store  EnrollStore
	clock  Clock
	logger *slog.Logger
}

func NewEnroller(store EnrollStore, clock Clock) *Enroller {
	if clock == nil {
		clock = RealClock()
	}
	return &Enroller{store: store, clock: clock, logger: slog.Default()}
}

// Enroll puts a prospect at step 1 of sequenceID, due immediately. Enrolling
// an already-enrolled pair is a no-op that keeps the original schedule.
// Unknown prospects yield storage.ErrNotFound.
func (e *Enroller) Enroll(ctx context.Context, prospectID, sequenceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	created, err := e.store.Enroll(prospectID, sequenceID, e.clock.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("enrolling %s: %w", prospectID, err)
		}
		return fmt.Errorf("enrolling %s in %s: %w", prospectID, sequenceID, err)
	}
	if created {
		e.logger.Info("prospect enrolled", "prospect_id", prospectID, "sequence_id", sequenceID)
	} else {
		e.logger.Debug("prospect already enrolled", "prospect_id", prospectID, "sequence_id", sequenceID)
	}
	return nil
}

// EnrollAll enrolls every prospect that has no enrollment yet and returns
// how many were enrolled.
func (e *Enroller) EnrollAll(ctx context.Context, sequenceID string) (int, error) {
	ids, err := e.store.ListUnenrolledProspects()
	if err != nil {
		return 0, fmt.Errorf("listing unenrolled prospects: %w", err)
	}

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		created, err := e.store.Enroll(id, sequenceID, e.clock.Now())
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("enrolling %s: %w", id, err)
		}
		if created {
			n++
		}
	}
	e.logger.Info("bulk enrollment complete", "sequence_id", sequenceID, "enrolled", n)
	return n, nil
}
