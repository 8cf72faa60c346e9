// Package scheduler runs the periodic key sweeps on crontab schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mileusna/crontab"

	"keyforge/internal/config"
	"keyforge/internal/infrastructure"
	"keyforge/pkg/contracts/domain"
)

// JobTimeout bounds a single sweep
const JobTimeout = 2 * time.Minute

// Sweeper is the key maintenance surface the scheduler drives
type Sweeper interface {
	ExpireDue(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) ([]string, error)
	ReportStats(ctx context.Context) (domain.KeyStats, error)
}

// Scheduler owns the crontab and the jobs registered on it
type Scheduler struct {
	cfg     config.SchedulerConfig
	sweeper Sweeper
	logger  *slog.Logger

	// one lock per job; a tick that finds the job still running is skipped
	locks map[string]*sync.Mutex
}

// New creates a scheduler. Nothing runs until Run.
func New(cfg config.SchedulerConfig, sweeper Sweeper, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "scheduler")),
		locks: map[string]*sync.Mutex{
			"expire":  {},
			"cleanup": {},
			"stats":   {},
		},
	}
}

type job struct {
	name string
	spec string
	fn   func(context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"expire", s.cfg.ExpirySchedule, s.SweepExpired},
		{"cleanup", s.cfg.CleanupSchedule, s.CleanupExpired},
		{"stats", s.cfg.StatsSchedule, s.ReportStats},
	}
}

// Run sweeps expired keys once, registers the configured jobs and blocks
// until ctx is done. A job with an empty schedule is not registered.
func (s *Scheduler) Run(ctx context.Context) error {
	ctab := crontab.New()
	defer ctab.Shutdown()

	for _, j := range s.jobs() {
		if j.spec == "" {
			continue
		}
		if err := ctab.AddJob(j.spec, s.wrap(j)); err != nil {
			return fmt.Errorf("failed to schedule %s job %q: %w", j.name, j.spec, err)
		}
		s.logger.Info("job scheduled",
			slog.String("job", j.name),
			slog.String("schedule", j.spec))
	}

	// temporary keys may have expired while the service was down
	if s.cfg.ExpirySchedule != "" {
		s.wrap(job{"expire", s.cfg.ExpirySchedule, s.SweepExpired})()
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) wrap(j job) func() {
	return func() {
		mu := s.locks[j.name]
		if !mu.TryLock() {
			s.logger.Warn("previous run still in progress, skipping",
				slog.String("job", j.name))
			return
		}
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()
		ctx = infrastructure.WithTraceID(ctx, infrastructure.GenerateTraceID())

		start := time.Now()
		if err := j.fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled job failed",
				slog.String("job", j.name),
				slog.String("error", err.Error()),
				slog.Duration("duration", time.Since(start)))
		}
	}
}

// SweepExpired deactivates temporary keys past their expiry
func (s *Scheduler) SweepExpired(ctx context.Context) error {
	ids, err := s.sweeper.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired temporary keys",
			slog.Int("count", len(ids)))
	}
	return nil
}

// CleanupExpired removes expired temporary keys
func (s *Scheduler) CleanupExpired(ctx context.Context) error {
	ids, err := s.sweeper.Cleanup(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "removed expired keys",
			slog.Int("count", len(ids)))
	}
	return nil
}

// ReportStats publishes a stats report
func (s *Scheduler) ReportStats(ctx context.Context) error {
	st, err := s.sweeper.ReportStats(ctx)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "stats reported",
		slog.Int("total_keys", st.TotalKeys),
		slog.Int("active", st.Active))
	return nil
}
