// Package scheduler runs periodic archive syncs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Syncer is anything that can bring the archive up to date.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Scheduler triggers Sync runs according to a cron expression.
type Scheduler struct {
	ctx     context.Context
	syncer  Syncer
	logger  *logrus.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler builds a Scheduler. The context bounds every sync run;
// cancelling it aborts an in-flight sync.
func NewScheduler(ctx context.Context, syncer Syncer, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		syncer:  syncer,
		logger:  logger,
		cron:    cron.New(),
		timeout: 30 * time.Minute,
	}
}

// Start registers the sync job and starts the cron loop. The
// schedule uses standard five-field cron syntax, e.g. "*/30 * * * *".
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runSync)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if err := s.syncer.Sync(ctx); err != nil {
		s.logger.WithError(err).Error("scheduled sync failed")
	}
}

// Stop halts the cron loop. Jobs already running are left to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
