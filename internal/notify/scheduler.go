package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "pcal/internal/log"
	"pcal/internal/model"
)

// cronLogger adapts internal/log to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Scheduler runs periodic jobs (reminder checks, automatic backups) on cron
// schedules. Overlapping runs of the same job are skipped.
type Scheduler struct {
	c *cron.Cron
}

// NewScheduler creates a stopped scheduler evaluating specs in loc.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	l := cronLogger{}
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

// Add registers fn under name. schedule accepts the standard 5-field format and
// descriptors such as "@every 1m" or "@daily".
func (s *Scheduler) Add(name, schedule string, fn func()) error {
	id, err := s.c.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, schedule, err)
	}
	appLog.Info("scheduled job", "job", name, "schedule", schedule, "entry", int(id))
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.c.Start() }

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Len is the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.c.Entries()) }

// ReminderJob returns a job that checks list() with n and calls deliver
// once per occurrence: an occurrence already reminded about is not
// delivered again on later ticks. clock defaults to time.Now.
func ReminderJob(n *Notifier, list func() []model.EventSeries, deliver func(Reminder), clock func() time.Time) func() {
	if clock == nil {
		clock = time.Now
	}
	var (
		mu   sync.Mutex
		sent = make(map[string]time.Time)
	)
	return func() {
		now := clock()
		r := n.Check(now, list())

		mu.Lock()
		defer mu.Unlock()
		for k, start := range sent {
			if start.Before(now) {
				delete(sent, k)
			}
		}
		if r == nil {
			return
		}
		key := r.Occurrence.InstanceKey
		if _, ok := sent[key]; ok {
			return
		}
		sent[key] = r.Occurrence.Start
		deliver(*r)
	}
}
