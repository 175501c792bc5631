// Package schedule keeps a user's date-keyed task buckets in memory, mirrors every
// mutation to a TaskRepository and classifies tasks relative to the current time.
//
// Mutations are optimistic: the local change is applied under the store lock and is
// visible to readers before the remote write finishes. A remote write that still fails
// after retrying is rolled back locally unless the task was changed again meanwhile.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrRemoteWrite  = errors.New("remote write failed")
	ErrRemoteRead   = errors.New("remote read failed")
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock AutoCompleteNow reads.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger remote failures are reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithRetry sets how often and how far apart remote writes are attempted.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(s *Store) {
		if attempts < 1 {
			attempts = 1
		}
		s.attempts = attempts
		s.delay = delay
	}
}

// WithUser binds the store to a signed-in user from the start.
func WithUser(userID string) Option {
	return func(s *Store) { s.userID = userID }
}

// WithIDGenerator replaces the task id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store owns the in-memory buckets of one user. A nil repository or an empty user
// makes the store local-only.
type Store struct {
	repo     repository.TaskRepository
	clock    clock.Clock
	log      logrus.FieldLogger
	newID    func() string
	attempts uint
	delay    time.Duration

	mu        sync.RWMutex
	userID    string
	schedules map[string][]models.Task
	revisions map[string]uint64
}

// NewStore creates a Store backed by repo.
func NewStore(repo repository.TaskRepository, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		clock:     clock.New(),
		log:       logrus.StandardLogger(),
		newID:     uuid.NewString,
		attempts:  defaultRetryAttempts,
		delay:     defaultRetryDelay,
		schedules: make(map[string][]models.Task),
		revisions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the user the store persists for, or "" when local-only.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUser switches the store to another user. Buckets are cleared when the user
// changes; an empty id makes the store local-only.
func (s *Store) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == userID {
		return
	}
	s.userID = userID
	s.schedules = make(map[string][]models.Task)
	for id := range s.revisions {
		s.revisions[id]++
	}
}

// GetTasksForDate returns the bucket stored under exactly dateKey.
func (s *Store) GetTasksForDate(dateKey string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.schedules[dateKey])
}

// GetTasksSpanningDate returns the tasks stored under dateKey plus every multi-day
// task from any bucket whose range covers dateKey, each task at most once.
func (s *Store) GetTasksSpanningDate(dateKey string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	result := make([]models.Task, 0, len(s.schedules[dateKey]))
	for _, t := range s.schedules[dateKey] {
		seen[t.ID] = struct{}{}
		result = append(result, t.Clone())
	}

	keys := make([]string, 0, len(s.schedules))
	for k := range s.schedules {
		if k != dateKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, t := range s.schedules[k] {
			if !t.IsMultiDay() || !t.Covers(dateKey) {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			result = append(result, t.Clone())
		}
	}
	return result
}

// GetTaskTimeForDate returns the time window of task on dateKey.
func (s *Store) GetTaskTimeForDate(task models.Task, dateKey string) models.TimeRange {
	return task.TimeFor(dateKey)
}

// AddTask inserts a task at the front of the dateKey bucket, renumbers the bucket
// and persists it. The returned task carries the computed id, order and dates.
func (s *Store) AddTask(ctx context.Context, dateKey string, input models.Task) (models.Task, error) {
	if !timeutil.IsDateKey(dateKey) {
		return models.Task{}, models.ErrInvalidDateKey
	}

	task := input.Clone()
	if task.ID == "" {
		task.ID = s.newID()
	}
	task.StartDate = dateKey
	task.GuestEmails = models.NormalizeGuestEmails(task.GuestEmails)
	if err := task.Normalize(); err != nil {
		return models.Task{}, err
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	task.UserID = s.userID
	task.SetOrder(0)
	bucket := make([]models.Task, 0, len(s.schedules[dateKey])+1)
	bucket = append(bucket, task)
	bucket = append(bucket, s.schedules[dateKey]...)
	shifted := renumber(bucket)
	s.schedules[dateKey] = bucket
	rev := s.bumpLocked(task.ID)
	userID := s.userID
	s.mu.Unlock()

	if !s.remoteEnabled(userID) {
		return task, nil
	}

	saved, err := s.save(ctx, userID, dateKey, task)
	if err != nil {
		s.mu.Lock()
		if s.revisions[task.ID] == rev {
			s.removeLocked(dateKey, task.ID)
		}
		s.mu.Unlock()
		s.logRemote("add", dateKey, task.ID, err)
		return task, fmt.Errorf("%w: add task: %v", ErrRemoteWrite, err)
	}
	s.applyTimestamps(dateKey, saved, rev)
	task.CreatedAt, task.UpdatedAt = saved.CreatedAt, saved.UpdatedAt

	// Siblings moved down one slot; their new positions are best effort.
	siblings := make([]models.Task, 0, len(shifted))
	for _, t := range shifted {
		if t.ID != task.ID {
			siblings = append(siblings, t)
		}
	}
	if err := s.saveAll(ctx, userID, dateKey, siblings); err != nil {
		s.logRemote("renumber", dateKey, task.ID, err)
	}
	return task, nil
}

// TaskPatch lists the fields an update replaces. Nil fields are left unchanged.
type TaskPatch struct {
	Title        *string
	Description  *string
	Time         *string
	EndTime      *string
	StartDate    *string
	DurationDays *int
	DailyTimes   *map[string]models.TimeRange
	Completed    *bool
	MeetingType  *models.MeetingType
	MeetingURL   *string
	GuestEmails  *[]string
}

func (p TaskPatch) apply(t *models.Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Time != nil {
		t.Time = *p.Time
	}
	if p.EndTime != nil {
		t.EndTime = *p.EndTime
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.DurationDays != nil {
		t.DurationDays = *p.DurationDays
	}
	if p.DailyTimes != nil {
		t.DailyTimes = *p.DailyTimes
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.MeetingType != nil {
		t.MeetingType = *p.MeetingType
	}
	if p.MeetingURL != nil {
		t.MeetingURL = *p.MeetingURL
	}
	if p.GuestEmails != nil {
		t.GuestEmails = models.NormalizeGuestEmails(*p.GuestEmails)
	}
}

// UpdateTask merges patch over the task stored under dateKey, recomputing the end
// date. A new start date moves the task to the end of that date's bucket.
func (s *Store) UpdateTask(ctx context.Context, dateKey, taskID string, patch TaskPatch) (models.Task, error) {
	if patch.DurationDays != nil && *patch.DurationDays < 1 {
		return models.Task{}, models.ErrInvalidDuration
	}
	if patch.StartDate != nil && !timeutil.IsDateKey(*patch.StartDate) {
		return models.Task{}, models.ErrInvalidDateKey
	}

	s.mu.Lock()
	idx := indexOf(s.schedules[dateKey], taskID)
	if idx < 0 {
		s.mu.Unlock()
		return models.Task{}, ErrTaskNotFound
	}
	prev := s.schedules[dateKey][idx].Clone()
	next := prev.Clone()
	patch.apply(&next)
	if err := next.Normalize(); err != nil {
		s.mu.Unlock()
		return models.Task{}, err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return models.Task{}, err
	}

	moved := next.StartDate != dateKey
	if moved {
		s.removeLocked(dateKey, taskID)
		next.SetOrder(len(s.schedules[next.StartDate]))
		s.schedules[next.StartDate] = append(s.schedules[next.StartDate], next)
	} else {
		s.schedules[dateKey][idx] = next
	}
	rev := s.bumpLocked(taskID)
	userID := s.userID
	s.mu.Unlock()

	if !s.remoteEnabled(userID) {
		return next.Clone(), nil
	}

	saved, err := s.save(ctx, userID, next.StartDate, next)
	if err == nil && moved {
		err = s.withRetry(ctx, func() error {
			return s.repo.Delete(ctx, userID, dateKey, taskID)
		})
		if err != nil {
			// The old record is still there; drop the copy under the new key.
			if cleanupErr := s.repo.Delete(ctx, userID, next.StartDate, taskID); cleanupErr != nil {
				s.logRemote("update cleanup", next.StartDate, taskID, cleanupErr)
			}
		}
	}
	if err != nil {
		s.mu.Lock()
		if s.revisions[taskID] == rev {
			if moved {
				s.removeLocked(next.StartDate, taskID)
				s.insertLocked(dateKey, prev, idx)
			} else {
				s.replaceLocked(dateKey, prev)
			}
		}
		s.mu.Unlock()
		s.logRemote("update", dateKey, taskID, err)
		return prev, fmt.Errorf("%w: update task: %v", ErrRemoteWrite, err)
	}

	s.applyTimestamps(next.StartDate, saved, rev)
	next.CreatedAt, next.UpdatedAt = saved.CreatedAt, saved.UpdatedAt
	return next.Clone(), nil
}

// ToggleTaskComplete flips the completed flag of a task and persists it.
func (s *Store) ToggleTaskComplete(ctx context.Context, dateKey, taskID string) (models.Task, error) {
	return s.setCompleted(ctx, dateKey, taskID, nil)
}

// CompleteTask marks a task completed. Completing a completed task is a no-op.
func (s *Store) CompleteTask(ctx context.Context, dateKey, taskID string) (models.Task, error) {
	done := true
	return s.setCompleted(ctx, dateKey, taskID, &done)
}

func (s *Store) setCompleted(ctx context.Context, dateKey, taskID string, value *bool) (models.Task, error) {
	s.mu.Lock()
	idx := indexOf(s.schedules[dateKey], taskID)
	if idx < 0 {
		s.mu.Unlock()
		return models.Task{}, ErrTaskNotFound
	}
	task := &s.schedules[dateKey][idx]
	if value != nil && task.Completed == *value {
		current := task.Clone()
		s.mu.Unlock()
		return current, nil
	}
	task.Completed = !task.Completed
	updated := task.Clone()
	rev := s.bumpLocked(taskID)
	userID := s.userID
	s.mu.Unlock()

	if !s.remoteEnabled(userID) {
		return updated, nil
	}

	saved, err := s.save(ctx, userID, dateKey, updated)
	if err != nil {
		s.mu.Lock()
		if s.revisions[taskID] == rev {
			if i := indexOf(s.schedules[dateKey], taskID); i >= 0 {
				s.schedules[dateKey][i].Completed = !updated.Completed
			}
		}
		s.mu.Unlock()
		s.logRemote("toggle", dateKey, taskID, err)
		updated.Completed = !updated.Completed
		return updated, fmt.Errorf("%w: toggle task: %v", ErrRemoteWrite, err)
	}
	s.applyTimestamps(dateKey, saved, rev)
	updated.UpdatedAt = saved.UpdatedAt
	return updated, nil
}

// DeleteTask removes a task locally, then remotely. When the remote delete fails
// the task is appended back to its bucket and an error is returned.
func (s *Store) DeleteTask(ctx context.Context, dateKey, taskID string) error {
	s.mu.Lock()
	removed, _, ok := s.removeLocked(dateKey, taskID)
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	s.bumpLocked(taskID)
	userID := s.userID
	s.mu.Unlock()

	if !s.remoteEnabled(userID) {
		return nil
	}

	err := s.withRetry(ctx, func() error {
		return s.repo.Delete(ctx, userID, dateKey, taskID)
	})
	if err != nil {
		s.mu.Lock()
		if indexOf(s.schedules[dateKey], taskID) < 0 {
			s.insertLocked(dateKey, removed, len(s.schedules[dateKey]))
			s.bumpLocked(taskID)
		}
		s.mu.Unlock()
		s.logRemote("delete", dateKey, taskID, err)
		return fmt.Errorf("%w: delete task: %v", ErrRemoteWrite, err)
	}
	return nil
}

// ReorderTasks assigns order by position in orderedIDs. Ids that are not in the
// bucket are ignored; bucket tasks missing from orderedIDs keep their relative order
// after the listed ones. Changed tasks are persisted concurrently and a partial
// failure is not rolled back.
func (s *Store) ReorderTasks(ctx context.Context, dateKey string, orderedIDs []string) error {
	s.mu.Lock()
	bucket := s.schedules[dateKey]
	byID := make(map[string]models.Task, len(bucket))
	for _, t := range bucket {
		byID[t.ID] = t
	}

	reordered := make([]models.Task, 0, len(bucket))
	used := make(map[string]struct{}, len(bucket))
	for _, id := range orderedIDs {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := used[id]; dup {
			continue
		}
		used[id] = struct{}{}
		reordered = append(reordered, t)
	}
	for _, t := range bucket {
		if _, ok := used[t.ID]; !ok {
			reordered = append(reordered, t)
		}
	}

	changed := renumber(reordered)
	s.schedules[dateKey] = reordered
	for _, t := range changed {
		s.bumpLocked(t.ID)
	}
	userID := s.userID
	s.mu.Unlock()

	if !s.remoteEnabled(userID) || len(changed) == 0 {
		return nil
	}
	if err := s.saveAll(ctx, userID, dateKey, changed); err != nil {
		s.logRemote("reorder", dateKey, "", err)
		return fmt.Errorf("%w: reorder tasks: %v", ErrRemoteWrite, err)
	}
	return nil
}

// LoadUserTasks replaces all buckets with the user's tasks from the repository.
// On failure local state is left untouched.
func (s *Store) LoadUserTasks(ctx context.Context) error {
	userID := s.UserID()
	if !s.remoteEnabled(userID) {
		return nil
	}

	tasks, err := s.repo.GetAll(ctx, userID)
	if err != nil {
		s.logRemote("load", "", "", err)
		return fmt.Errorf("%w: load tasks: %v", ErrRemoteRead, err)
	}

	schedules := make(map[string][]models.Task)
	for _, t := range tasks {
		key := t.Date
		if key == "" {
			key = t.StartDate
		}
		if t.Order == nil {
			t.SetOrder(len(schedules[key]))
		}
		schedules[key] = append(schedules[key], t)
	}
	for key := range schedules {
		SortTasks(schedules[key])
		renumber(schedules[key])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return nil
	}
	s.schedules = schedules
	for _, t := range tasks {
		s.bumpLocked(t.ID)
	}
	return nil
}

// LoadTasksForDate replaces the dateKey bucket with the repository's content.
func (s *Store) LoadTasksForDate(ctx context.Context, dateKey string) error {
	userID := s.UserID()
	if !s.remoteEnabled(userID) {
		return nil
	}

	tasks, err := s.repo.GetByDate(ctx, userID, dateKey)
	if err != nil {
		s.logRemote("load", dateKey, "", err)
		return fmt.Errorf("%w: load tasks for %s: %v", ErrRemoteRead, dateKey, err)
	}

	bucket := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Order == nil {
			t.SetOrder(len(bucket))
		}
		bucket = append(bucket, t)
	}
	SortTasks(bucket)
	renumber(bucket)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return nil
	}
	s.schedules[dateKey] = bucket
	for _, t := range bucket {
		s.bumpLocked(t.ID)
	}
	return nil
}

// HasDate reports whether a bucket for dateKey is cached.
func (s *Store) HasDate(dateKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.schedules[dateKey]
	return ok
}

func (s *Store) remoteEnabled(userID string) bool {
	return s.repo != nil && userID != ""
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
}

func (s *Store) save(ctx context.Context, userID, dateKey string, task models.Task) (*models.Task, error) {
	var saved *models.Task
	err := s.withRetry(ctx, func() error {
		var err error
		saved, err = s.repo.Save(ctx, userID, dateKey, &task)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) saveAll(ctx context.Context, userID, dateKey string, tasks []models.Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			_, err := s.save(gctx, userID, dateKey, t)
			return err
		})
	}
	return g.Wait()
}

func (s *Store) applyTimestamps(dateKey string, saved *models.Task, rev uint64) {
	if saved == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revisions[saved.ID] != rev {
		return
	}
	if i := indexOf(s.schedules[dateKey], saved.ID); i >= 0 {
		s.schedules[dateKey][i].CreatedAt = saved.CreatedAt
		s.schedules[dateKey][i].UpdatedAt = saved.UpdatedAt
	}
}

func (s *Store) logRemote(op, dateKey, taskID string, err error) {
	s.log.WithFields(logrus.Fields{
		"op":      op,
		"date":    dateKey,
		"task_id": taskID,
	}).WithError(err).Warn("remote task store operation failed")
}

func (s *Store) bumpLocked(taskID string) uint64 {
	s.revisions[taskID]++
	return s.revisions[taskID]
}

func (s *Store) removeLocked(dateKey, taskID string) (models.Task, int, bool) {
	bucket := s.schedules[dateKey]
	idx := indexOf(bucket, taskID)
	if idx < 0 {
		return models.Task{}, -1, false
	}
	removed := bucket[idx]
	bucket = append(bucket[:idx:idx], bucket[idx+1:]...)
	renumber(bucket)
	s.schedules[dateKey] = bucket
	return removed, idx, true
}

func (s *Store) insertLocked(dateKey string, task models.Task, idx int) {
	bucket := s.schedules[dateKey]
	if idx < 0 || idx > len(bucket) {
		idx = len(bucket)
	}
	next := make([]models.Task, 0, len(bucket)+1)
	next = append(next, bucket[:idx]...)
	next = append(next, task)
	next = append(next, bucket[idx:]...)
	renumber(next)
	s.schedules[dateKey] = next
}

func (s *Store) replaceLocked(dateKey string, task models.Task) {
	if i := indexOf(s.schedules[dateKey], task.ID); i >= 0 {
		order := s.schedules[dateKey][i].Order
		task.Order = order
		s.schedules[dateKey][i] = task
	}
}

// renumber sets order to each task's position and returns copies of the tasks whose
// order changed.
func renumber(bucket []models.Task) []models.Task {
	var changed []models.Task
	for i := range bucket {
		if bucket[i].Order != nil && *bucket[i].Order == i {
			continue
		}
		bucket[i].SetOrder(i)
		changed = append(changed, bucket[i].Clone())
	}
	return changed
}

func indexOf(bucket []models.Task, taskID string) int {
	for i := range bucket {
		if bucket[i].ID == taskID {
			return i
		}
	}
	return -1
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
