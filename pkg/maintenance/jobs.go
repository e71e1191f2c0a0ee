package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openfolio/identity/pkg/observability"
	"github.com/openfolio/identity/pkg/user"
)

const (
	sessionPurgeSchedule = "@every 30m"
	lockoutResetSchedule = "@hourly"

	// lockoutResetAge is how long a locked account stays locked before the
	// failed-login counter is cleared. Login lockouts are sticky until this
	// job runs.
	lockoutResetAge = 24 * time.Hour

	jobTimeout = 5 * time.Minute
)

// Scheduler owns the cron runner for identity housekeeping.
type Scheduler struct {
	cron  *cron.Cron
	users *user.Store
	log   *observability.Logger
}

// NewScheduler creates the housekeeping scheduler. Jobs do not run until
// Start is called.
func NewScheduler(users *user.Store, log *observability.Logger) (*Scheduler, error) {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Scheduler{
		cron:  cron.New(),
		users: users,
		log:   log,
	}

	if _, err := s.cron.AddFunc(sessionPurgeSchedule, s.purgeSessions); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(lockoutResetSchedule, s.resetLockouts); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Maintenance scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Maintenance scheduler stopped")
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	purged, err := s.users.PurgeExpiredSessions(ctx, time.Now())
	if err != nil {
		s.log.WithError(err).Error("Session purge failed")
		return
	}
	if purged > 0 {
		s.log.WithField("purged", purged).Info("Purged expired sessions")
	}
}

func (s *Scheduler) resetLockouts() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	reset, err := s.users.ResetStaleLoginTries(ctx, time.Now().Add(-lockoutResetAge))
	if err != nil {
		s.log.WithError(err).Error("Lockout reset failed")
		return
	}
	if reset > 0 {
		s.log.WithField("accounts", reset).Info("Reset stale login counters")
	}
}
