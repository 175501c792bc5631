package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
)

// AutoCompletePassed completes every uncompleted, timed task of today whose end has
// passed. Multi-day tasks are only completed on their last day. It returns the ids it
// completed; running it twice completes nothing new.
func (s *Store) AutoCompletePassed(ctx context.Context, today string, now time.Time) ([]string, error) {
	current, _ := timeutil.MinutesFromTime(timeutil.CurrentTimeString(now))

	var (
		completed []string
		errs      []error
	)
	for _, t := range s.GetTasksSpanningDate(today) {
		if t.Completed {
			continue
		}
		if t.IsMultiDay() && today < t.EndDate {
			continue
		}
		tr := t.TimeFor(today)
		if tr.Time == "" {
			continue
		}
		if _, end := window(tr); current <= end {
			continue
		}

		if _, err := s.CompleteTask(ctx, t.StartDate, t.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		completed = append(completed, t.ID)
	}
	return completed, errors.Join(errs...)
}

// AutoCompleteNow runs AutoCompletePassed for the store clock's current day in loc.
func (s *Store) AutoCompleteNow(ctx context.Context, loc *time.Location) ([]string, error) {
	now := s.clock.Now().In(loc)
	return s.AutoCompletePassed(ctx, timeutil.FormatDate(now), now)
}

// Sweeper calls fn on every tick of its clock until stopped.
type Sweeper struct {
	clock    clock.Clock
	interval time.Duration
	fn       func(context.Context)
	log      logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(c clock.Clock, interval time.Duration, fn func(context.Context), log logrus.FieldLogger) *Sweeper {
	if c == nil {
		c = clock.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{clock: c, interval: interval, fn: fn, log: log}
}

// Start begins ticking. Starting a running sweeper does nothing.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := w.clock.Ticker(w.interval)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	w.log.WithField("interval", w.interval).Info("auto-complete sweeper started")
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.fn(ctx)
			}
		}
	}()
}

// Stop halts the sweeper and waits for a running sweep to return.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Info("auto-complete sweeper stopped")
}

// Running reports whether the sweeper is started.
func (w *Sweeper) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}
