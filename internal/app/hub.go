package app

import (
	"sync"
	"time"

	"classquiz-service/internal/domain"
)

// StudentProgress is one row of the teacher's live monitoring view.
type StudentProgress struct {
	AssignmentID          string                  `json:"assignmentId"`
	StudentID             string                  `json:"studentId"`
	StudentName           string                  `json:"studentName"`
	Status                domain.AssignmentStatus `json:"status"`
	Answered              int                     `json:"answered"`
	CurrentQuestionIndex  int                     `json:"currentQuestionIndex"`
	StartedAt             *time.Time              `json:"startedAt,omitempty"`
	Completed             bool                    `json:"completed"`
	Base50ScorePercentage int                     `json:"base50ScorePercentage"`
}

// SessionEvent is pushed to every subscriber of a (quiz, class) pair whenever
// the session state or any student's progress changes. Delivery is
// at-least-once; clients must tolerate duplicates.
type SessionEvent struct {
	Session  domain.Session    `json:"session"`
	Progress []StudentProgress `json:"progress,omitempty"`
}

// Hub fans session events out to subscribed clients. Slow subscribers have
// their stale event dropped rather than blocking the broadcast.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[chan SessionEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan SessionEvent]struct{})}
}

func topicKey(quizID, classID string) string {
	return quizID + "/" + classID
}

// Subscribe returns a channel of session events for one (quiz, class) pair.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(quizID, classID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)
	key := topicKey(quizID, classID)

	h.mu.Lock()
	subs, ok := h.topics[key]
	if !ok {
		subs = make(map[chan SessionEvent]struct{})
		h.topics[key] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.topics[key]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.topics, key)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the pair.
func (h *Hub) Publish(quizID, classID string, ev SessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[topicKey(quizID, classID)] {
		select {
		case ch <- ev:
		default:
			// Dropping the stale event keeps slow clients from blocking broadcast.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
