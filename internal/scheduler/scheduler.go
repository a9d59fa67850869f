// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the session sweep on a cron spec (UTC).
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	ctx     context.Context
	cancel  context.CancelFunc
	sweepFn func(ctx context.Context) error
	entryID cron.EntryID
	started bool
}

func New(spec string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) SetSweepFunction(f func(ctx context.Context) error) {
	s.sweepFn = f
}

// Start registers the sweep and starts the cron loop. Without a sweep
// function it does nothing.
func (s *Scheduler) Start() error {
	if s.sweepFn == nil {
		log.Println("⚠️ Sweep function not set, scheduler will not run")
		return nil
	}
	if s.started {
		return errors.New("scheduler already started")
	}
	id, err := s.cron.AddFunc(s.spec, s.runSweep)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	log.Printf("📅 Scheduler started - session sweep runs on %q", s.spec)
	return nil
}

func (s *Scheduler) runSweep() {
	if err := s.sweepFn(s.ctx); err != nil {
		log.Printf("❌ Session sweep failed: %v", err)
	}
}

// Next returns the time of the next scheduled sweep.
func (s *Scheduler) Next() (time.Time, bool) {
	if !s.started {
		return time.Time{}, false
	}
	return s.cron.Entry(s.entryID).Next, true
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	log.Println("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.started && len(s.cron.Entries()) > 0
}
