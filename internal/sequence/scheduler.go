package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kalambet/outreach/internal/metrics"
	"github.com/kalambet/outreach/internal/storage"
)

// DueSource lists enrollments that are due at now.
type DueSource interface {
	GetDueActions(now time.Time) ([]storage.Enrollment, error)
}

// StepRunner executes one due action.
type StepRunner interface {
	Execute(ctx context.Context, e storage.Enrollment) Outcome
}

type SchedulerConfig struct {
	PollInterval time.Duration // sleep after a clean cycle
	PacingDelay  time.Duration // gap between two sends in one cycle
	ErrorBackoff time.Duration // sleep after a failed cycle
}

// Summary counts the outcomes of one cycle.
type Summary struct {
	Due        int
	Sent       int
	SendFailed int
	Failed     int
	Finished   int
	Skipped    int
	Unrecorded int // sent but not advanced; also counted in Sent
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeSent:
		s.Sent++
	case OutcomeSentUnrecorded:
		s.Sent++
		s.Unrecorded++
	case OutcomeSendFailed:
		s.SendFailed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeFinished:
		s.Finished++
	default:
		s.Skipped++
	}
}

// Scheduler drives due actions through the executor, one at a time.
type Scheduler struct {
	due    DueSource
	runner StepRunner
	clock  Clock
	cfg    SchedulerConfig
	logger *slog.Logger
}

// NewScheduler fills zero durations in cfg with 60s poll, 5m pacing and
// 60s error backoff. A negative PacingDelay disables pacing.
func NewScheduler(due DueSource, runner StepRunner, clock Clock, cfg SchedulerConfig) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = 0
	} else if cfg.PacingDelay == 0 {
		cfg.PacingDelay = 5 * time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 60 * time.Second
	}
	return &Scheduler{due: due, runner: runner, clock: clock, cfg: cfg, logger: slog.Default()}
}

// Run loops until ctx is cancelled. A failed cycle is logged and followed
// by ErrorBackoff instead of PollInterval; it never stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"poll_interval", s.cfg.PollInterval, "pacing_delay", s.cfg.PacingDelay)
	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return
		}

		sum, err := s.RunOnce(ctx)
		metrics.RecordCycle(err)
		wait := s.cfg.PollInterval
		if err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler cycle failed", "error", err, "backoff", s.cfg.ErrorBackoff)
			wait = s.cfg.ErrorBackoff
		} else if sum.Due > 0 {
			s.logger.Info("scheduler cycle complete",
				"due", sum.Due, "sent", sum.Sent, "send_failed", sum.SendFailed,
				"failed", sum.Failed, "finished", sum.Finished, "skipped", sum.Skipped, "unrecorded", sum.Unrecorded)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.clock.After(wait):
		}
	}
}

// RunOnce processes every action due now, in order. After each send it
// waits PacingDelay, except after the last action of the batch. A panic
// inside the cycle is recovered and returned as an error.
func (s *Scheduler) RunOnce(ctx context.Context) (sum Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler cycle panicked: %v\n%s", r, debug.Stack())
		}
	}()

	due, err := s.due.GetDueActions(s.clock.Now())
	if err != nil {
		return sum, fmt.Errorf("fetching due actions: %w", err)
	}
	sum.Due = len(due)

	for i, e := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := s.runner.Execute(ctx, e)
		sum.add(out)

		if !out.sent() || i == len(due)-1 || s.cfg.PacingDelay == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case <-s.clock.After(s.cfg.PacingDelay):
		}
	}
	return sum, nil
}
