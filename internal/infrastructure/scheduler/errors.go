package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrJobAlreadyQueued is returned when a job of the same kind is queued or running
	ErrJobAlreadyQueued = errors.New("job of this kind is already queued or running")

	// ErrUnknownJobKind is returned when no runner is registered for a job kind
	ErrUnknownJobKind = errors.New("unknown job kind")
)
