package app

import (
	"log"
	"sync"
	"time"
)

// TimerService tracks per-attempt time limits and fires auto-submit when one
// expires. The expiry callback goes through the same submit path as a manual
// submit, so a duplicate fire is absorbed by its idempotence guard.
type TimerService struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	expire func(assignmentID string)
}

func NewTimerService() *TimerService {
	return &TimerService{timers: make(map[string]*time.Timer)}
}

// Bind installs the expiry callback. Must be called before Schedule.
func (t *TimerService) Bind(expire func(assignmentID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expire = expire
}

// Schedule arms (or re-arms) the countdown for one attempt.
func (t *TimerService) Schedule(assignmentID string, d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[assignmentID]; ok {
		timer.Stop()
	}
	t.timers[assignmentID] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, assignmentID)
		expire := t.expire
		t.mu.Unlock()
		if expire == nil {
			log.Printf("timer fired for assignment %s with no expiry handler bound", assignmentID)
			return
		}
		expire(assignmentID)
	})
}

// Cancel disarms the countdown, typically after a manual submit.
func (t *TimerService) Cancel(assignmentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[assignmentID]; ok {
		timer.Stop()
		delete(t.timers, assignmentID)
	}
}

// Shutdown stops every outstanding timer.
func (t *TimerService) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
