package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/repository"
)

var errUnavailable = errors.New("backend unavailable")

// fakeRepository keeps records in a map and fails writes while failWrites is set.
type fakeRepository struct {
	mu         sync.Mutex
	records    map[string]models.Task
	failWrites bool
	failReads  bool
	saves      int
	deletes    int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]models.Task)}
}

func (r *fakeRepository) setFailWrites(fail bool) {
	r.mu.Lock()
	r.failWrites = fail
	r.mu.Unlock()
}

func (r *fakeRepository) Save(_ context.Context, userID, dateKey string, task *models.Task) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failWrites {
		return nil, errUnavailable
	}
	record := task.Clone()
	record.UserID = userID
	record.Date = dateKey
	record.DocKey = models.DocKey(userID, dateKey, task.ID)
	r.records[record.DocKey] = record
	return &record, nil
}

func (r *fakeRepository) GetByDate(_ context.Context, userID, dateKey string) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errUnavailable
	}
	var out []models.Task
	for _, t := range r.sorted() {
		if t.UserID == userID && t.Date == dateKey {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepository) GetAll(_ context.Context, userID string) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReads {
		return nil, errUnavailable
	}
	var out []models.Task
	for _, t := range r.sorted() {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepository) Delete(_ context.Context, userID, dateKey, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.failWrites {
		return errUnavailable
	}
	delete(r.records, models.DocKey(userID, dateKey, taskID))
	return nil
}

func (r *fakeRepository) List(ctx context.Context, filter repository.TaskFilter) ([]models.Task, int64, error) {
	tasks, err := r.GetAll(ctx, filter.UserID)
	return tasks, int64(len(tasks)), err
}

func (r *fakeRepository) get(userID, dateKey, taskID string) (models.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.records[models.DocKey(userID, dateKey, taskID)]
	return t, ok
}

func (r *fakeRepository) put(userID string, task models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.UserID = userID
	if task.Date == "" {
		task.Date = task.StartDate
	}
	task.DocKey = models.DocKey(userID, task.Date, task.ID)
	r.records[task.DocKey] = task
}

func (r *fakeRepository) sorted() []models.Task {
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.Task, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.records[k])
	}
	return out
}
