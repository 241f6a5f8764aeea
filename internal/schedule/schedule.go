package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/vpload/internal/logger"
)

// parser accepts standard 5-field expressions and descriptors like @daily
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled load. Each fire gets a fresh call.
type Job func(ctx context.Context) error

// Scheduler fires a Job on a cron schedule until its context is cancelled.
// A fire that arrives while the previous load is still running is skipped.
type Scheduler struct {
	expr  string
	sched cron.Schedule
	job   Job
}

func New(expr string, job Job) (*Scheduler, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}

	return &Scheduler{expr: expr, sched: sched, job: job}, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

// Run blocks until ctx is done, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logger.CronLogger{}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	c.Schedule(s.sched, cron.FuncJob(func() {
		start := time.Now()
		if err := s.job(ctx); err != nil {
			logger.Error("scheduled load failed", "schedule", s.expr, "error", err)
			return
		}
		logger.Info("scheduled load finished", "schedule", s.expr, "duration", time.Since(start))
	}))

	c.Start()
	logger.Info("scheduler started", "schedule", s.expr, "next", s.Next(time.Now()))

	<-ctx.Done()

	logger.Debug("scheduler stopping")
	<-c.Stop().Done()

	return ctx.Err()
}
