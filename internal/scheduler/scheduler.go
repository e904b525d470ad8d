// Package scheduler runs periodic jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"pnl-arena/internal/errs"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner runs jobs with a shared base context. A job still running when its next tick
// fires is skipped for that tick, and a panicking job is logged and recovered.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New creates a runner whose jobs receive ctx and stop firing once it is done. Specs
// accept an optional seconds field and descriptors such as "@every 30s".
func New(ctx context.Context, logger *zap.Logger) *Runner {
	logger = logger.Named("scheduler")
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		logger:  logger,
		baseCtx: ctx,
	}
}

// Add registers job under name on spec.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		started := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.logger.Warn("Job failed", zap.String("job", name), zap.Error(err))
			return
		}
		r.logger.Debug("Job finished", zap.String("job", name), zap.Duration("took", time.Since(started)))
	})
	if err != nil {
		return 0, fmt.Errorf("%w: job %s spec %q: %w", errs.ErrInvalidConfiguration, name, spec, err)
	}
	return id, nil
}

// Start begins running jobs in the background.
func (r *Runner) Start() {
	r.logger.Info("Scheduler started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
