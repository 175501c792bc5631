package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/day-planner-api/internal/calendarlink"
	"github.com/yukikurage/day-planner-api/internal/constants"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
	"github.com/yukikurage/day-planner-api/internal/schedule"
	"github.com/yukikurage/day-planner-api/internal/timeutil"
	"google.golang.org/api/calendar/v3"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrInvalidDate            = errors.New("date must be formatted as YYYY-MM-DD")
	ErrTextRequired           = errors.New("text is required")
	ErrAIServiceNotConfigured = errors.New("AI service is not configured")
	ErrAINoTasksGenerated     = errors.New("AI did not generate any tasks")
	ErrAINoValidTasks         = errors.New("no valid tasks could be created from AI output")
)

// ScheduleOptions configures a ScheduleService.
type ScheduleOptions struct {
	Clock         clock.Clock
	Location      *time.Location
	Logger        logrus.FieldLogger
	RetryAttempts uint
	RetryDelay    time.Duration
	Drafter       TaskDrafter
}

type storeEntry struct {
	store *schedule.Store
	ready chan struct{}
	err   error
}

// ScheduleService holds one schedule.Store per signed-in user and exposes the
// day-planner operations on top of them.
type ScheduleService struct {
	repo    repository.TaskRepository
	drafter TaskDrafter
	clock   clock.Clock
	loc     *time.Location
	log     logrus.FieldLogger
	retry   uint
	delay   time.Duration

	mu     sync.Mutex
	stores map[string]*storeEntry
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(repo repository.TaskRepository, opts ScheduleOptions) *ScheduleService {
	s := &ScheduleService{
		repo:    repo,
		drafter: opts.Drafter,
		clock:   opts.Clock,
		loc:     opts.Location,
		log:     opts.Logger,
		retry:   opts.RetryAttempts,
		delay:   opts.RetryDelay,
		stores:  make(map[string]*storeEntry),
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.retry < 1 {
		s.retry = 1
	}
	return s
}

// Now returns the current time in the service's zone.
func (s *ScheduleService) Now() time.Time {
	return s.clock.Now().In(s.loc)
}

// Today returns the date-key of Now.
func (s *ScheduleService) Today() string {
	return timeutil.FormatDate(s.Now())
}

// StoreFor returns the user's store, creating and loading it on first use. A failed
// load is not cached.
func (s *ScheduleService) StoreFor(ctx context.Context, userID string) (*schedule.Store, error) {
	s.mu.Lock()
	entry, ok := s.stores[userID]
	if !ok {
		entry = &storeEntry{
			store: schedule.NewStore(s.repo,
				schedule.WithUser(userID),
				schedule.WithClock(s.clock),
				schedule.WithLogger(s.log.WithField("user_id", userID)),
				schedule.WithRetry(s.retry, s.delay),
			),
			ready: make(chan struct{}),
		}
		s.stores[userID] = entry
	}
	s.mu.Unlock()

	if !ok {
		entry.err = entry.store.LoadUserTasks(ctx)
		if entry.err != nil {
			s.mu.Lock()
			if s.stores[userID] == entry {
				delete(s.stores, userID)
			}
			s.mu.Unlock()
		}
		close(entry.ready)
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.store, nil
}

// Forget drops the user's cached store, e.g. on logout.
func (s *ScheduleService) Forget(userID string) {
	s.mu.Lock()
	delete(s.stores, userID)
	s.mu.Unlock()
}

// DayView is everything a client needs to render one date.
type DayView struct {
	Date       string
	Today      string
	IsToday    bool
	Tasks      []models.Task
	Buckets    schedule.Buckets
	Highlights *schedule.Highlights
}

// Day returns the sorted tasks visible on dateKey with their buckets. Highlights are
// only computed for today.
func (s *ScheduleService) Day(ctx context.Context, userID, dateKey string) (*DayView, error) {
	if !timeutil.IsDateKey(dateKey) {
		return nil, ErrInvalidDate
	}
	store, err := s.StoreFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	today := timeutil.FormatDate(now)
	tasks := store.GetTasksSpanningDate(dateKey)
	schedule.SortTasks(tasks)

	view := &DayView{
		Date:    dateKey,
		Today:   today,
		IsToday: dateKey == today,
		Tasks:   tasks,
		Buckets: schedule.Classify(tasks, dateKey, today, now),
	}
	if view.IsToday {
		h := schedule.Highlight(tasks, dateKey, now)
		view.Highlights = &h
	}
	return view, nil
}

// AddTask creates a task on dateKey.
func (s *ScheduleService) AddTask(ctx context.Context, userID, dateKey string, task models.Task) (*models.Task, error) {
	if !timeutil.IsDateKey(dateKey) {
		return nil, ErrInvalidDate
	}
	store, err := s.StoreFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	created, err := store.AddTask(ctx, dateKey, task)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask applies patch to a task visible on dateKey.
func (s *ScheduleService) UpdateTask(ctx context.Context, userID, dateKey, taskID string, patch schedule.TaskPatch) (*models.Task, error) {
	store, bucket, err := s.locate(ctx, userID, dateKey, taskID)
	if err != nil {
		return nil, err
	}
	updated, err := store.UpdateTask(ctx, bucket, taskID, patch)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &updated, nil
}

// ToggleTask flips the completed flag of a task visible on dateKey.
func (s *ScheduleService) ToggleTask(ctx context.Context, userID, dateKey, taskID string) (*models.Task, error) {
	store, bucket, err := s.locate(ctx, userID, dateKey, taskID)
	if err != nil {
		return nil, err
	}
	task, err := store.ToggleTaskComplete(ctx, bucket, taskID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &task, nil
}

// DeleteTask removes a task visible on dateKey.
func (s *ScheduleService) DeleteTask(ctx context.Context, userID, dateKey, taskID string) error {
	store, bucket, err := s.locate(ctx, userID, dateKey, taskID)
	if err != nil {
		return err
	}
	return mapStoreError(store.DeleteTask(ctx, bucket, taskID))
}

// ReorderTasks reorders the dateKey bucket and returns it.
func (s *ScheduleService) ReorderTasks(ctx context.Context, userID, dateKey string, orderedIDs []string) ([]models.Task, error) {
	if !timeutil.IsDateKey(dateKey) {
		return nil, ErrInvalidDate
	}
	store, err := s.StoreFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = store.ReorderTasks(ctx, dateKey, orderedIDs)
	return store.GetTasksForDate(dateKey), err
}

// CalendarLink builds the calendar link and event of a task on dateKey.
func (s *ScheduleService) CalendarLink(ctx context.Context, userID, dateKey, taskID string) (string, *calendar.Event, error) {
	store, _, err := s.locate(ctx, userID, dateKey, taskID)
	if err != nil {
		return "", nil, err
	}
	var task *models.Task
	for _, t := range store.GetTasksSpanningDate(dateKey) {
		if t.ID == taskID {
			t := t
			task = &t
			break
		}
	}
	if task == nil {
		return "", nil, ErrTaskNotFound
	}

	link, err := calendarlink.EventURL(*task, dateKey)
	if err != nil {
		return "", nil, err
	}
	event, err := calendarlink.Event(*task, dateKey, s.loc)
	if err != nil {
		return "", nil, err
	}
	return link, event, nil
}

// Sweep auto-completes the user's passed tasks of today.
func (s *ScheduleService) Sweep(ctx context.Context, userID string) ([]string, error) {
	store, err := s.StoreFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return store.AutoCompleteNow(ctx, s.loc)
}

// SweepAll sweeps every cached store. Failures are logged per user.
func (s *ScheduleService) SweepAll(ctx context.Context) {
	s.mu.Lock()
	stores := make(map[string]*schedule.Store, len(s.stores))
	for userID, entry := range s.stores {
		select {
		case <-entry.ready:
			if entry.err == nil {
				stores[userID] = entry.store
			}
		default:
		}
	}
	s.mu.Unlock()

	now := s.Now()
	today := timeutil.FormatDate(now)
	for userID, store := range stores {
		completed, err := store.AutoCompletePassed(ctx, today, now)
		log := s.log.WithField("user_id", userID)
		if err != nil {
			log.WithError(err).Warn("auto-complete sweep failed")
		}
		if len(completed) > 0 {
			log.WithField("completed", len(completed)).Info("auto-completed passed tasks")
		}
	}
}

// HistoryInput filters the task history.
type HistoryInput struct {
	UserID    string
	Completed *bool
	DateFrom  string
	DateTo    string
	Page      int
	PageSize  int
}

// History lists a user's persisted tasks, newest date first.
func (s *ScheduleService) History(ctx context.Context, input HistoryInput) ([]models.Task, int64, error) {
	for _, d := range []string{input.DateFrom, input.DateTo} {
		if d != "" && !timeutil.IsDateKey(d) {
			return nil, 0, ErrInvalidDate
		}
	}
	tasks, total, err := s.repo.List(ctx, repository.TaskFilter{
		UserID:    input.UserID,
		Completed: input.Completed,
		DateFrom:  input.DateFrom,
		DateTo:    input.DateTo,
		Page:      input.Page,
		PageSize:  input.PageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, total, nil
}

// DraftTasks uses AI to draft tasks on dateKey from free text. Drafts are validated
// like user input and are not saved.
func (s *ScheduleService) DraftTasks(ctx context.Context, dateKey, text string) ([]models.Task, error) {
	if s.drafter == nil {
		return nil, ErrAIServiceNotConfigured
	}
	if !timeutil.IsDateKey(dateKey) {
		return nil, ErrInvalidDate
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextRequired
	}

	generated, err := s.drafter.DraftTasks(ctx, dateKey, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tasks: %w", err)
	}
	if len(generated) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(generated) > constants.MaxDraftTasks {
		generated = generated[:constants.MaxDraftTasks]
	}

	drafts := make([]models.Task, 0, len(generated))
	for _, g := range generated {
		task := models.Task{
			ID:           uuid.NewString(),
			Title:        strings.TrimSpace(g.Title),
			Description:  strings.TrimSpace(g.Description),
			StartDate:    dateKey,
			DurationDays: g.DurationDays,
		}
		if timeutil.IsClock(g.Time) {
			task.Time = g.Time
			task.EndTime = timeutil.DefaultEndTime(g.Time)
			if timeutil.IsClock(g.EndTime) {
				task.EndTime = g.EndTime
			}
		}
		if err := task.Normalize(); err != nil {
			continue
		}
		if err := task.Validate(); err != nil {
			continue
		}
		drafts = append(drafts, task)
	}

	if len(drafts) == 0 {
		return nil, ErrAINoValidTasks
	}
	return drafts, nil
}

// locate finds the bucket holding taskID as seen from dateKey: the dateKey bucket
// itself, or the start date of a multi-day task covering dateKey.
func (s *ScheduleService) locate(ctx context.Context, userID, dateKey, taskID string) (*schedule.Store, string, error) {
	if !timeutil.IsDateKey(dateKey) {
		return nil, "", ErrInvalidDate
	}
	store, err := s.StoreFor(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	for _, t := range store.GetTasksSpanningDate(dateKey) {
		if t.ID == taskID {
			return store, t.StartDate, nil
		}
	}
	return nil, "", ErrTaskNotFound
}

func mapStoreError(err error) error {
	if errors.Is(err, schedule.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return err
}
