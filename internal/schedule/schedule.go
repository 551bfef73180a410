// Package schedule repeats a job on a 5-field cron expression.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 2 * * *" for 2am daily.
func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Loop calls fn at every activation of spec in loc until ctx is cancelled.
// The first call happens at the first activation, not immediately.
func Loop(ctx context.Context, spec string, loc *time.Location, logger *zap.Logger, fn func(context.Context)) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return run(ctx, sched, func() time.Time { return time.Now().In(loc) }, time.After, logger, fn)
}

func run(ctx context.Context, sched cron.Schedule, now func() time.Time, after func(time.Duration) <-chan time.Time, logger *zap.Logger, fn func(context.Context)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := now()
		next := sched.Next(current)
		wait := next.Sub(current)
		logger.Info("next scheduled run",
			zap.String("at", next.Format("Mon Jan 2 15:04")),
			zap.Duration("in", wait.Round(time.Second)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(wait):
		}
		fn(ctx)
	}
}
