package room

import (
	"time"

	"github.com/wfunc/bb84server/timer"
)

// DefaultAutoAdvanceDelay is the pause between a completed round and the next one.
const DefaultAutoAdvanceDelay = 3 * time.Second

// Scheduler holds the single pending auto-advance of a room. It is only
// touched from the room loop, so it needs no locking.
type Scheduler struct {
	timers  *timer.TimerManager
	delay   time.Duration
	seq     int64
	pending int64
	timerID int64
}

func NewScheduler(timers *timer.TimerManager, delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultAutoAdvanceDelay
	}
	return &Scheduler{timers: timers, delay: delay}
}

// Schedule replaces any pending task with fire, run after the delay with the
// handle it was scheduled under.
func (s *Scheduler) Schedule(fire func(handle int64)) int64 {
	s.Cancel()
	s.seq++
	handle := s.seq
	s.timerID = s.timers.AddTimer(s.delay, 0, func() { fire(handle) })
	s.pending = handle
	return handle
}

// Cancel drops the pending task. It reports whether one was pending.
func (s *Scheduler) Cancel() bool {
	if s.pending == 0 {
		return false
	}
	s.timers.RemoveTimer(s.timerID)
	s.pending = 0
	return true
}

// Claim consumes handle if it is still the pending one. A handle cancelled
// after its timer already fired is stale and is refused.
func (s *Scheduler) Claim(handle int64) bool {
	if handle == 0 || handle != s.pending {
		return false
	}
	s.pending = 0
	return true
}

// Pending reports whether an auto-advance is waiting.
func (s *Scheduler) Pending() bool {
	return s.pending != 0
}
