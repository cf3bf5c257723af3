package app

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"

	"meal-subscription/internal/subscription"
)

// DefaultRetentionDays is how long ledger rows are kept by the cleanup job.
const DefaultRetentionDays = 90

// Renewer is the part of a session store the renewal job drives.
type Renewer interface {
	Renew(ctx context.Context, today civil.Date) (subscription.Subscription, bool, error)
}

// Cleaner prunes old ledger rows.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// Scheduler runs the subscription renewal and ledger cleanup jobs.
type Scheduler struct {
	cron      *cron.Cron
	registry  *subscription.Registry
	cleaner   Cleaner
	retention int
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler. cleaner may be nil.
func NewScheduler(registry *subscription.Registry, cleaner Cleaner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
		registry:  registry,
		cleaner:   cleaner,
		retention: DefaultRetentionDays,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start(renewalSchedule string) error {
	if _, err := s.cron.AddFunc(renewalSchedule, func() { s.RenewAll(context.Background()) }); err != nil {
		return err
	}
	s.logger.Info("scheduled renewal job", "schedule", renewalSchedule)

	if s.cleaner != nil {
		if _, err := s.cron.AddFunc("@daily", func() { s.CleanupLedger(context.Background()) }); err != nil {
			return err
		}
		s.logger.Info("scheduled ledger cleanup job", "retention_days", s.retention)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RenewAll renews every live session whose window has ended and returns how
// many subscriptions changed.
func (s *Scheduler) RenewAll(ctx context.Context) int {
	today := civil.DateOf(s.now())
	changed := 0
	s.registry.Each(func(userID string, store *subscription.Store) {
		if renewOne(ctx, store, today, s.logger.With("user_id", userID)) {
			changed++
		}
	})
	s.logger.Info("renewal run finished", "date", today.String(), "changed", changed)
	return changed
}

func renewOne(ctx context.Context, r Renewer, today civil.Date, logger *slog.Logger) bool {
	sub, changed, err := r.Renew(ctx, today)
	if err != nil {
		logger.Error("renewal failed", "error", err)
		return changed
	}
	if changed {
		logger.Info("subscription renewed",
			"subscription_id", sub.ID, "active", sub.IsActive, "end", sub.EndDate.String())
	}
	return changed
}

// CleanupLedger removes ledger rows older than the retention period.
func (s *Scheduler) CleanupLedger(ctx context.Context) {
	n, err := s.cleaner.Cleanup(ctx, s.retention)
	if err != nil {
		s.logger.Error("ledger cleanup failed", "error", err)
		return
	}
	s.logger.Info("ledger cleanup finished", "removed", n)
}
