/*
scheduler.go - Automated day rollover

PURPOSE:
  Creates the new day's record right after midnight so the streak is
  derived from yesterday even if the user opens nothing that day. Day
  initialization is idempotent, so a rollover racing a settlement is
  harmless.

DESIGN:
  - robfig/cron job on a configurable spec (default "0 0 * * *")
  - Runs in the wallet clock's timezone
  - Runs once immediately on start to cover downtime over midnight

USAGE:
  scheduler := NewDayRolloverScheduler(engine, "0 0 * * *", loc, log)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sportwallet/engine/wallet"
)

// DayRolloverScheduler initializes each new day on a cron schedule.
type DayRolloverScheduler struct {
	Wallet  *wallet.Engine
	Spec    string
	Timeout time.Duration

	cron    *cron.Cron
	log     *logrus.Entry
	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewDayRolloverScheduler creates a stopped scheduler.
func NewDayRolloverScheduler(engine *wallet.Engine, spec string, loc *time.Location, log *logrus.Entry) *DayRolloverScheduler {
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "scheduler")
	}
	if loc == nil {
		loc = engine.Clock().Location()
	}
	return &DayRolloverScheduler{
		Wallet:  engine,
		Spec:    spec,
		Timeout: 30 * time.Second,
		cron:    cron.New(cron.WithLocation(loc)),
		log:     log,
	}
}

// Start registers the job and begins the scheduler.
func (s *DayRolloverScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	id, err := s.cron.AddFunc(s.Spec, s.RunNow)
	if err != nil {
		return fmt.Errorf("scheduler: invalid spec %q: %w", s.Spec, err)
	}
	s.entryID = id

	// Run immediately on start
	s.RunNow()

	s.cron.Start()
	s.running = true
	s.log.Infof("[Scheduler] Started day rollover with spec %q", s.Spec)
	return nil
}

// Stop waits for a running job to finish.
func (s *DayRolloverScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.running = false
	s.log.Info("[Scheduler] Stopped")
}

// RunNow initializes today immediately.
func (s *DayRolloverScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	today := s.Wallet.Today()
	rec, err := s.Wallet.EnsureDayInitialized(ctx, today)
	if err != nil {
		s.log.WithError(err).Errorf("[Scheduler] Day rollover failed for %s", today)
		return
	}
	s.log.WithFields(logrus.Fields{
		"day":           rec.Day,
		"streak_days":   rec.StreakDays,
		"bonus_percent": rec.BonusPercent,
	}).Info("[Scheduler] Day ready")
}

// NextRun returns when the rollover fires next; zero when stopped.
func (s *DayRolloverScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}
