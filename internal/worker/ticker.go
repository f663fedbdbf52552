package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/hackgods/surgical-authorization-tracker/internal/redis"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Runner executes a Job once at start and then on every tick until its
// context is cancelled. Each run gets its own timeout.
type Runner struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Job      Job
	Log      *zap.Logger
	// OnError is called after a failed run, e.g. to count it.
	OnError func(error)
}

func (r Runner) Run(ctx context.Context) error {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}

	r.runOnce(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info("shutdown signal received, stopping worker", zap.String("worker", r.Name))
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r Runner) runOnce(ctx context.Context) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.Job(runCtx); err != nil {
		r.Log.Error("worker run failed", zap.String("worker", r.Name), zap.Error(err))
		if r.OnError != nil {
			r.OnError(err)
		}
		return
	}
	r.Log.Debug("worker run complete", zap.String("worker", r.Name), zap.Duration("took", time.Since(start)))
}

// Exclusive wraps job so that only one holder of key runs it at a time.
// A run that finds the lock held elsewhere is skipped, not failed.
func Exclusive(locker redisclient.Locker, key string, job Job, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		err := locker.WithLock(ctx, key, job)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			log.Debug("run skipped, lock held elsewhere", zap.String("key", key))
			return nil
		}
		return err
	}
}
