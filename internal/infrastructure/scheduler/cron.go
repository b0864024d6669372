package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"DigestScheduler/internal/ports"
)

// CronScheduler triggers the job on a standard five-field cron expression.
// A trigger that fires while the previous run is still going is skipped.
type CronScheduler struct {
	expr   string
	loc    *time.Location
	logger *slog.Logger

	mu sync.Mutex
	c  *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(expr string, loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{expr: expr, loc: loc, logger: logger}
}

// Start registers job and starts the cron loop. The loop stops with ctx or Stop.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil {
		return nil
	}

	log := cronLogger{c.logger}
	runner := cron.New(
		cron.WithLocation(c.loc),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	if _, err := runner.AddFunc(c.expr, func() { job(time.Now().In(c.loc)) }); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", c.expr)
	}

	c.c = runner
	runner.Start()
	next, _ := c.Next(time.Now())
	c.logger.Info("scheduler started", "expr", c.expr, "tz", c.loc.String(), "next_run", next)

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the cron loop and waits for a running job, or for ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.c
	c.c = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}
	select {
	case <-runner.Stop().Done():
		c.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for running cycle")
	}
}

// Next reports the next activation after t.
func (c *CronScheduler) Next(t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(c.expr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid cron expression %q", c.expr)
	}
	return sched.Next(t.In(c.loc)), nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
