package deadletter

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 30 * time.Second

// Janitor sweeps the persisted dead-letter backlog on a cron schedule:
// it reports the backlog size and purges entries older than the retention
// window. Replay is manual (dlqreplay); the janitor only keeps the table
// from growing without bound.
type Janitor struct {
	store     Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// NewJanitor creates a janitor. The schedule is a standard five-field cron
// expression.
func NewJanitor(store Store, retention time.Duration, schedule string) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		schedule:  schedule,
	}
}

// Start begins the sweep schedule.
func (j *Janitor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	log.Printf("deadletter: janitor started (schedule=%q, retention=%s)", j.schedule, j.retention)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	log.Println("deadletter: janitor stopped")
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	purged, err := j.store.PurgeDeadLettersBefore(ctx, time.Now().UTC().Add(-j.retention))
	if err != nil {
		log.Printf("deadletter: purge failed: %v", err)
		return
	}

	backlog, err := j.store.CountDeadLetters(ctx)
	if err != nil {
		log.Printf("deadletter: count failed: %v", err)
		return
	}

	if purged > 0 || backlog > 0 {
		log.Printf("deadletter: sweep purged=%d backlog=%d", purged, backlog)
	}
}
