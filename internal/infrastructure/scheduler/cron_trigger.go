package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// DailyHour and DailyMinute are the local time of the daily reconciliation
	DailyHour   int
	DailyMinute int
	// DailyEnabled turns the daily reconciliation on
	DailyEnabled bool

	// RetryInterval is the period of the cancellation retry job, 0 disables it
	RetryInterval time.Duration

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		DailyHour:     3,
		DailyMinute:   0,
		DailyEnabled:  true,
		RetryInterval: 10 * time.Minute,
		CheckInterval: time.Minute,
	}
}

// JobSubmitter accepts jobs by kind
type JobSubmitter interface {
	Submit(kind JobKind) (*Job, error)
}

// CronTrigger submits the reconciliation once a day and the cancellation
// retry on a fixed interval
type CronTrigger struct {
	config    CronTriggerConfig
	submitter JobSubmitter
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
	lastRetryAt time.Time
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter JobSubmitter, logger *zap.Logger) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.Bool("daily_enabled", c.config.DailyEnabled),
		zap.Int("daily_hour", c.config.DailyHour),
		zap.Int("daily_minute", c.config.DailyMinute),
		zap.Duration("retry_interval", c.config.RetryInterval),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits whatever is due at the current time
func (c *CronTrigger) checkAndTrigger() {
	now := c.now()

	if c.dailyDue(now) {
		c.submit(JobKindReconciliation)
	}
	if c.retryDue(now) {
		c.submit(JobKindCancellationRetry)
	}
}

func (c *CronTrigger) dailyDue(now time.Time) bool {
	if !c.config.DailyEnabled {
		return false
	}
	if now.Hour() != c.config.DailyHour || now.Minute() != c.config.DailyMinute {
		return false
	}

	today := now.Format("2006-01-02")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRunDate == today {
		return false
	}
	c.lastRunDate = today
	return true
}

func (c *CronTrigger) retryDue(now time.Time) bool {
	if c.config.RetryInterval <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastRetryAt.IsZero() && now.Sub(c.lastRetryAt) < c.config.RetryInterval {
		return false
	}
	c.lastRetryAt = now
	return true
}

func (c *CronTrigger) submit(kind JobKind) {
	job, err := c.submitter.Submit(kind)
	switch {
	case errors.Is(err, ErrJobAlreadyQueued):
		c.logger.Debug("Job still in flight, skipping trigger", zap.String("kind", string(kind)))
	case err != nil:
		c.logger.Error("Failed to submit job", zap.String("kind", string(kind)), zap.Error(err))
	default:
		c.logger.Info("Job triggered",
			zap.String("kind", string(kind)),
			zap.String("job_id", job.ID.String()),
		)
	}
}
