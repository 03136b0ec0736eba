package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work. It receives the worker context, which is
// cancelled on Stop.
type Job func(ctx context.Context)

// CronWorker runs a Job on a cron schedule. Runs never overlap: a tick that
// arrives while the previous run is still going is skipped.
type CronWorker struct {
	name     string
	schedule cron.Schedule
	spec     string
	job      Job
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	cancel    context.CancelFunc
	isRunning bool
}

// NewCronWorker parses spec (standard five-field cron or descriptors such as
// "@every 5m") and returns a stopped worker
func NewCronWorker(name, spec string, job Job, logger *zap.Logger) (*CronWorker, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return &CronWorker{
		name:     name,
		schedule: schedule,
		spec:     spec,
		job:      job,
		logger:   logger,
	}, nil
}

// Start schedules the job
func (w *CronWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("%s already running", w.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	log := cronLogger{logger: w.logger.With(zap.String("worker_name", w.name))}
	w.scheduler = cron.New(cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))
	w.scheduler.Schedule(w.schedule, cron.FuncJob(func() {
		if runCtx.Err() != nil {
			return
		}
		w.job(runCtx)
	}))
	w.scheduler.Start()

	w.cancel = cancel
	w.isRunning = true

	w.logger.Info("Cron worker started", zap.String("worker_name", w.name), zap.String("schedule", w.spec))
	return nil
}

// Stop cancels the worker context and waits for a running job to return
func (w *CronWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	scheduler, cancel := w.scheduler, w.cancel
	w.mu.Unlock()

	cancel()
	<-scheduler.Stop().Done()

	w.logger.Info("Cron worker stopped", zap.String("worker_name", w.name))
	return nil
}

// Name returns the worker name for identification
func (w *CronWorker) Name() string {
	return w.name
}

// cronLogger routes scheduler diagnostics to zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
