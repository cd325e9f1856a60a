// Package alarm is a thin seam around platform timers. It owns no business
// logic: it guarantees at most one outstanding timer per schedule and delivers
// fire events to a single subscriber.
package alarm

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Fire is the payload delivered when a schedule's timer elapses.
type Fire struct {
	ScheduleID   string
	MedicationID string
	At           time.Time // the instant the timer was armed for
}

// Handler receives fire events. It is invoked on the timer's goroutine.
type Handler func(Fire)

// Scheduler arms one timer per schedule against a clock.Clock, so tests can
// drive it with a mock.
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	handler Handler
	timers  map[string]*clock.Timer
	closed  bool
}

func NewScheduler(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clk:    clk,
		timers: make(map[string]*clock.Timer),
	}
}

// Subscribe sets the fire handler. Call it before arming anything; fires with
// no subscriber are dropped.
func (s *Scheduler) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Arm schedules a fire for scheduleID no earlier than at, replacing any
// previously armed timer for the same schedule. Re-arming is cancel-then-set
// under one lock, never an additive second timer.
func (s *Scheduler) Arm(scheduleID, medicationID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if prev, ok := s.timers[scheduleID]; ok {
		prev.Stop()
	}
	delay := at.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	var t *clock.Timer
	t = s.clk.AfterFunc(delay, func() {
		s.mu.Lock()
		// A timer that was replaced or cancelled after scheduling must not
		// deliver its fire.
		if cur, ok := s.timers[scheduleID]; !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, scheduleID)
		handler := s.handler
		s.mu.Unlock()

		if handler != nil {
			handler(Fire{ScheduleID: scheduleID, MedicationID: medicationID, At: at})
		}
	})
	s.timers[scheduleID] = t
}

// Cancel stops the outstanding timer for scheduleID, if any. Safe to call when
// nothing is armed.
func (s *Scheduler) Cancel(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[scheduleID]; ok {
		t.Stop()
		delete(s.timers, scheduleID)
	}
}

// Armed reports whether a timer is currently outstanding for scheduleID.
func (s *Scheduler) Armed(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[scheduleID]
	return ok
}

// Close stops every timer and rejects further arming.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}
