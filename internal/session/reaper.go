package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically drops idle sessions from a Manager.
type Reaper struct {
	manager      *Manager
	maxIdle      time.Duration
	interval     time.Duration
	scheduler    *cron.Cron
	purgeChannel chan int
}

func NewReaper(
	manager *Manager,
	maxIdle time.Duration,
	interval time.Duration,
	channelCapacity int,
) *Reaper {
	return &Reaper{
		manager:      manager,
		maxIdle:      maxIdle,
		interval:     interval,
		scheduler:    cron.New(),
		purgeChannel: make(chan int, channelCapacity),
	}
}

// ListenPurges calls callback with the number of sessions dropped by every
// run that dropped at least one.
func (r *Reaper) ListenPurges(callback func(purged int)) {
	go func() {
		for purged := range r.purgeChannel {
			callback(purged)
		}
	}()
}

// PurgeNow runs one purge immediately.
func (r *Reaper) PurgeNow() int {
	purged := r.manager.PurgeIdle(r.maxIdle)
	if purged > 0 {
		select {
		case r.purgeChannel <- purged:
		default:
		}
	}

	return purged
}

// Run schedules the purge every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.scheduler.Schedule(cron.Every(r.interval), cron.FuncJob(func() {
		r.PurgeNow()
	}))
	r.scheduler.Start()

	go func() {
		<-ctx.Done()
		<-r.scheduler.Stop().Done()
		close(r.purgeChannel)
	}()
}
