package dispatch

import "time"

// TimerHandle is a scheduled callback that can still be stopped.
type TimerHandle interface {
	Stop() bool
}

// Scheduler schedules callbacks for later execution. The production
// implementation wraps the runtime timer; tests substitute a manual one that
// fires on demand.
type Scheduler interface {
	AfterFunc(delay time.Duration, callback func()) TimerHandle
}

type clockScheduler struct{}

// NewScheduler returns the runtime-timer backed scheduler.
func NewScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) AfterFunc(delay time.Duration, callback func()) TimerHandle {
	return time.AfterFunc(delay, callback)
}
