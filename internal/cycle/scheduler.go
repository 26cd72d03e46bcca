package cycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the daily cycle at a fixed local wall-clock time.
type Scheduler struct {
	cron       *cron.Cron
	runner     *Runner
	entryID    cron.EntryID
	fetchDaily bool
}

// NewScheduler creates a scheduler running in loc.
func NewScheduler(runner *Runner, loc *time.Location, fetchDaily bool) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		runner:     runner,
		fetchDaily: fetchDaily,
	}
}

// Start schedules the daily trigger. hour and minute are local wall-clock
// values in the scheduler's timezone.
func (s *Scheduler) Start(hour, minute int) error {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)

	entryID, err := s.cron.AddFunc(spec, s.runDaily)
	if err != nil {
		return fmt.Errorf("scheduling daily trigger: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	log.Printf("Daily cycle scheduled at %02d:%02d", hour, minute)
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running job.
func (s *Scheduler) Stop() {
	log.Println("Stopping cycle scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Cycle scheduler stopped")
}

// NextRun returns the next scheduled daily trigger time.
func (s *Scheduler) NextRun() *time.Time {
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// runDaily executes the scheduled cycle. An in-flight cycle makes the
// trigger a no-op.
func (s *Scheduler) runDaily() {
	log.Println("Running scheduled daily cycle...")
	if _, err := s.runner.RunCycle(context.Background(), s.fetchDaily); err != nil {
		log.Printf("Scheduled cycle did not run: %v", err)
	}
}
