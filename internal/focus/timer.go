// Package focus implements a focus/break countdown that can be synced to the end of
// the task currently running.
package focus

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

const (
	FocusDuration = 50 * time.Minute
	BreakDuration = 10 * time.Minute
	tickInterval  = time.Second
)

// Mode is the phase the timer counts down.
type Mode int

const (
	ModeFocus Mode = iota
	ModeBreak
)

func (m Mode) String() string {
	if m == ModeBreak {
		return "break"
	}
	return "focus"
}

func (m Mode) duration() time.Duration {
	if m == ModeBreak {
		return BreakDuration
	}
	return FocusDuration
}

// Timer counts down one phase at a time. When a phase runs out the timer stops,
// switches to the other phase and calls onComplete with the phase that finished.
type Timer struct {
	clock      clock.Clock
	onComplete func(Mode)

	mu        sync.Mutex
	mode      Mode
	remaining time.Duration
	stop      chan struct{}
	done      chan struct{}
}

// New returns a stopped timer in focus mode.
func New(c clock.Clock, onComplete func(Mode)) *Timer {
	if c == nil {
		c = clock.New()
	}
	if onComplete == nil {
		onComplete = func(Mode) {}
	}
	return &Timer{
		clock:      c,
		onComplete: onComplete,
		mode:       ModeFocus,
		remaining:  FocusDuration,
	}
}

// Start begins counting down. In focus mode with an active task, the remaining time
// is first set to the time left until that task's end. Starting a running timer does
// nothing.
func (t *Timer) Start(active *models.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}

	now := t.clock.Now()
	if t.mode == ModeFocus && active != nil {
		if left, ok := untilEnd(*active, now); ok {
			t.remaining = left
		}
	}

	target := now.Add(t.remaining)
	ticker := t.clock.Ticker(tickInterval)
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go t.run(ticker, target, stop, done)
}

func (t *Timer) run(ticker *clock.Ticker, target time.Time, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			finished, ok := t.tick(target, stop)
			if !ok {
				return
			}
			if finished != nil {
				t.onComplete(*finished)
				return
			}
		}
	}
}

// tick updates the remaining time. It returns the finished mode when the phase ran
// out and ok=false when the run was cancelled meanwhile.
func (t *Timer) tick(target time.Time, stop chan struct{}) (*Mode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != stop {
		return nil, false
	}

	left := target.Sub(t.clock.Now())
	if left <= 0 {
		finished := t.mode
		t.stop, t.done = nil, nil
		t.switchLocked()
		return &finished, true
	}
	t.remaining = left.Truncate(time.Second)
	if t.remaining < left {
		t.remaining += time.Second
	}
	return nil, true
}

// Pause halts the countdown and keeps the remaining time.
func (t *Timer) Pause() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Stop pauses and switches between focus and break, resetting the countdown to the
// new phase's full length.
func (t *Timer) Stop() {
	t.Pause()
	t.mu.Lock()
	t.switchLocked()
	t.mu.Unlock()
}

// Reset pauses and restores the full length of the current phase.
func (t *Timer) Reset() {
	t.Pause()
	t.mu.Lock()
	t.remaining = t.mode.duration()
	t.mu.Unlock()
}

func (t *Timer) switchLocked() {
	if t.mode == ModeFocus {
		t.mode = ModeBreak
	} else {
		t.mode = ModeFocus
	}
	t.remaining = t.mode.duration()
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Timer) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Display renders the remaining time as MM:SS.
func (t *Timer) Display() string {
	return FormatRemaining(t.Remaining())
}

// FormatRemaining renders d as zero-padded minutes and seconds.
func FormatRemaining(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// untilEnd returns the time from now until the end of task's window on now's date.
func untilEnd(task models.Task, now time.Time) (time.Duration, bool) {
	tr := task.TimeFor(timeutil.FormatDate(now))
	start, _ := timeutil.MinutesFromTime(tr.Time)
	end, ok := timeutil.MinutesFromTime(tr.EndTime)
	if !ok {
		end = start + timeutil.DefaultDurationMinutes
	}

	remainingMinutes := end - (now.Hour()*60 + now.Minute())
	if remainingMinutes <= 0 {
		return 0, false
	}
	left := time.Duration(remainingMinutes) * time.Minute
	if secs := now.Second(); secs > 0 {
		left -= time.Duration(secs) * time.Second
	}
	return left, true
}
