package draft

import (
	"sync"
	"time"
)

// Scheduler owns the single pending debounced task for a draft. Scheduling a
// new task replaces any prior pending one, so rapid edits coalesce into one
// write. Implementations must be safe for concurrent use.
type Scheduler interface {
	// Schedule enqueues task, cancelling any task still pending.
	Schedule(task func())

	// Cancel drops the pending task, if any. Tasks already started are not
	// interrupted.
	Cancel()
}

// timerScheduler delays tasks on a time.AfterFunc timer.
type timerScheduler struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewTimerScheduler returns a Scheduler firing tasks after the given delay.
func NewTimerScheduler(delay time.Duration) Scheduler {
	return &timerScheduler{delay: delay}
}

func (s *timerScheduler) Schedule(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, task)
}

func (s *timerScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ManualScheduler holds the pending task until Fire is called. It exists so
// tests can drive debounce behavior deterministically without a clock.
type ManualScheduler struct {
	mu      sync.Mutex
	pending func()

	// Scheduled counts Schedule calls, including replaced ones.
	Scheduled int
}

func (s *ManualScheduler) Schedule(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = task
	s.Scheduled++
}

func (s *ManualScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Fire runs and clears the pending task. Firing with nothing pending is a
// no-op.
func (s *ManualScheduler) Fire() {
	s.mu.Lock()
	task := s.pending
	s.pending = nil
	s.mu.Unlock()
	if task != nil {
		task()
	}
}

// HasPending reports whether a task is waiting.
func (s *ManualScheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
