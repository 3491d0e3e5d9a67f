package scheduler

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleJobFailer marks running jobs with no recent updates as failed.
type StaleJobFailer interface {
	FailStaleRunning(olderThan string, reason string) (int, error)
}

// Scheduler runs periodic maintenance tasks. Currently its only duty is
// sweeping sync jobs that claim to be running but stopped reporting
// progress, which happens when the process dies mid-import.
type Scheduler struct {
	cron       *cron.Cron
	jobs       StaleJobFailer
	staleAfter time.Duration
}

// New creates a maintenance scheduler. staleAfter is how long a running
// job may go without an update before it is declared dead.
func New(jobs StaleJobFailer, staleAfter time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		jobs:       jobs,
		staleAfter: staleAfter,
	}
}

// Start registers the sweep and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 5m", s.sweepStaleJobs); err != nil {
		return fmt.Errorf("scheduler: register stale job sweep: %w", err)
	}
	s.cron.Start()
	log.Printf("Scheduler: started (stale job cutoff %s)", s.staleAfter)
	return nil
}

// Stop halts the cron loop and waits for any in-flight sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler: stopped")
}

func (s *Scheduler) sweepStaleJobs() {
	cutoff := fmt.Sprintf("%d minutes", int(s.staleAfter.Minutes()))
	n, err := s.jobs.FailStaleRunning(cutoff, "job stalled: no progress updates")
	if err != nil {
		log.Printf("Scheduler: stale job sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Scheduler: marked %d stale running job(s) as failed", n)
	}
}
