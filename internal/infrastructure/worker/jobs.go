package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/application/workflow"
)

// Sweeper is the engine operation the sweep job drives
type Sweeper interface {
	SweepAutoApprovals(ctx context.Context, now time.Time) (*workflow.SweepResult, error)
}

// SweepJob auto-approves timed-out steps on each tick
type SweepJob struct {
	sweeper Sweeper
	clock   port.Clock
	logger  *zap.Logger

	mu   sync.Mutex
	runs int
	last *workflow.SweepResult
}

func NewSweepJob(sweeper Sweeper, clock port.Clock, logger *zap.Logger) *SweepJob {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &SweepJob{sweeper: sweeper, clock: clock, logger: logger}
}

// Run performs one sweep. Per-instance failures are logged by the engine and
// reported in the result; only a failure to list instances is logged here.
func (j *SweepJob) Run(ctx context.Context) {
	result, err := j.sweeper.SweepAutoApprovals(ctx, j.clock.Now())
	if err != nil {
		j.logger.Error("Auto-approval sweep failed", zap.Error(err))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	if result != nil {
		j.last = result
	}
}

// Stats returns the number of runs and the latest result
func (j *SweepJob) Stats() (int, *workflow.SweepResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs, j.last
}

// NotificationRetrier re-delivers stored notifications
type NotificationRetrier interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// NewNotificationRetryJob returns a Job that re-sends up to batch undelivered notifications
func NewNotificationRetryJob(retrier NotificationRetrier, batch int, logger *zap.Logger) Job {
	return func(ctx context.Context) {
		sent, err := retrier.RetryPending(ctx, batch)
		if err != nil {
			logger.Error("Notification retry failed", zap.Error(err))
			return
		}
		if sent > 0 {
			logger.Info("Notifications re-delivered", zap.Int("count", sent))
		}
	}
}
