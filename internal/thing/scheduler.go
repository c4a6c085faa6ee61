package thing

import (
	"sync"
	"time"
)

// Scheduler runs polling jobs and asynchronous work for handlers.
type Scheduler interface {
	// ScheduleWithFixedDelay runs fn after initialDelay and then again delay
	// after each run has finished. Runs never overlap. The returned func
	// cancels the job; it does not interrupt a run in progress.
	ScheduleWithFixedDelay(fn func(), initialDelay time.Duration, delay time.Duration) (cancel func())
	// Execute runs fn on a worker goroutine.
	Execute(fn func())
}

type scheduler struct{}

func NewScheduler() Scheduler {
	return &scheduler{}
}

func (s *scheduler) ScheduleWithFixedDelay(fn func(), initialDelay time.Duration, delay time.Duration) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		timer := time.NewTimer(initialDelay)
		defer timer.Stop()
		for {
			select {
			case <-done:
				return
			case <-timer.C:
				// A cancel that raced the timer wins.
				select {
				case <-done:
					return
				default:
				}
				fn()
				timer.Reset(delay)
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}

func (s *scheduler) Execute(fn func()) {
	go fn()
}
