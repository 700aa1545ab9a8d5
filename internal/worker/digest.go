package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

type (
	UserLister interface {
		ListUserIDs(ctx context.Context) ([]int64, error)
	}

	DigestSource interface {
		MonthlyDigest(ctx context.Context, userID int64, period core.Period) (*amqp.DigestMessage, error)
	}

	DigestPublisher interface {
		PublishDigest(ctx context.Context, digest *amqp.DigestMessage) error
	}
)

// DigestJob summarizes the previous month for every user.
type DigestJob struct {
	users     UserLister
	reports   DigestSource
	publisher DigestPublisher
	now       func() time.Time
}

func NewDigestJob(users UserLister, reports DigestSource, publisher DigestPublisher) *DigestJob {
	return &DigestJob{users: users, reports: reports, publisher: publisher, now: time.Now}
}

// Run publishes one digest per user and returns how many were sent. A
// failing user is logged and skipped; the last such error is returned.
func (j *DigestJob) Run(ctx context.Context) (int, error) {
	period := core.PeriodOf(j.now()).Previous()
	ids, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	sent := 0
	var lastErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		msg, err := j.reports.MonthlyDigest(ctx, id, period)
		if err == nil {
			err = j.publisher.PublishDigest(ctx, msg)
		}
		if err != nil {
			slog.ErrorContext(ctx, "Monthly digest failed",
				"component", "digest",
				"user_id", id,
				"period", period.String(),
				"error", err)
			lastErr = err
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Monthly digest completed",
		"component", "digest",
		"period", period.String(),
		"users", len(ids),
		"sent", sent)
	return sent, lastErr
}

// Scheduler runs a DigestJob on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     *DigestJob
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

// NewScheduler parses a standard five-field cron spec.
func NewScheduler(spec string, job *DigestJob, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), job: job, timeout: timeout}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.job.Run(ctx); err != nil {
		slog.Error("Scheduled digest run finished with errors", "component", "digest", "error", err)
	}
}

// Start begins scheduling. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("digest scheduler is already running")
	}
	s.running = true
	s.cron.Start()

	for _, e := range s.cron.Entries() {
		slog.Info("Digest scheduler started", "component", "digest", "next_run", e.Next.Format(time.RFC3339))
	}
	return nil
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		slog.InfoContext(ctx, "Digest scheduler stopped gracefully", "component", "digest")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Digest scheduler stop timed out", "component", "digest")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
