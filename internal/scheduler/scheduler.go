// Package scheduler provides cron-based scheduling for recurring casts, such
// as the daily greeting.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a started cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard 5-field
// expression format (min, hour, dom, month, dow). Panicking jobs are recovered
// so one bad cast never kills the scheduler.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task under the given cron expression. It returns an
// error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "expr", expr)
	return nil
}

// Stop stops the scheduler. Running jobs finish; no new ones fire.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
