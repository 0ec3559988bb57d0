package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting work to a stopped pool
	ErrSchedulerNotRunning = errors.New("scheduler: not running")

	// ErrJobQueueFull is returned when the job queue cannot take more work
	ErrJobQueueFull = errors.New("scheduler: job queue is full")
)
