// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/digital-banking/internal/repository"
)

// Scheduler prunes expired transfer idempotency keys and logs bank stats
type Scheduler struct {
	cron      *cron.Cron
	store     repository.Store
	log       *logrus.Logger
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// New creates a scheduler; jobs are added with Register
func New(store repository.Store, log *logrus.Logger, retention time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		store:     store,
		log:       log,
		retention: retention,
		timeout:   30 * time.Second,
		now:       time.Now,
	}
}

// Register schedules the prune and stats jobs. An empty schedule disables a job.
func (s *Scheduler) Register(pruneSpec, statsSpec string) error {
	if pruneSpec != "" {
		if _, err := s.cron.AddFunc(pruneSpec, s.PruneRequests); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", pruneSpec, err)
		}
	}
	if statsSpec != "" {
		if _, err := s.cron.AddFunc(statsSpec, s.LogStats); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", statsSpec, err)
		}
	}
	return nil
}

// Jobs returns the number of scheduled jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// PruneRequests forgets transfer request ids older than the retention
func (s *Scheduler) PruneRequests() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.store.PruneRequests(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.log.Errorf("Failed to prune transfer requests: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("Pruned %d transfer requests", n)
	}
}

// LogStats writes the dashboard counters to the log
func (s *Scheduler) LogStats() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.log.Errorf("Failed to collect stats: %v", err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"customers":  stats.TotalCustomers,
		"accounts":   stats.TotalAccounts,
		"operations": stats.TotalOperations,
	}).Info("Bank stats")
}
