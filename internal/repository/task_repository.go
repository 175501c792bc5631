package repository

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/yukikurage/day-planner-api/internal/database"
	"github.com/yukikurage/day-planner-api/internal/models"
	"github.com/yukikurage/day-planner-api/internal/utils"
	"gorm.io/gorm"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewTaskRepository creates a new TaskRepository stamping records with wall time
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return NewTaskRepositoryWithClock(db, clock.New())
}

// NewTaskRepositoryWithClock creates a TaskRepository that reads CreatedAt and
// UpdatedAt from c
func NewTaskRepositoryWithClock(db *gorm.DB, c clock.Clock) TaskRepository {
	return &GormTaskRepository{db: db, clock: c}
}

// Save upserts a task. Date always mirrors the bucket key, CreatedAt is kept from
// the first write and UpdatedAt is refreshed on every write.
func (r *GormTaskRepository) Save(ctx context.Context, userID, dateKey string, task *models.Task) (*models.Task, error) {
	record := task.Clone()
	record.UserID = userID
	if record.StartDate == "" {
		record.StartDate = dateKey
	}
	if err := record.Normalize(); err != nil {
		return nil, err
	}
	record.Date = dateKey
	record.DocKey = models.DocKey(userID, dateKey, record.ID)
	if err := record.Validate(); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	record.UpdatedAt = now
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Task
		err := tx.Where("doc_key = ?", record.DocKey).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record.CreatedAt = now
			return tx.Create(&record).Error
		case err != nil:
			return err
		}
		record.CreatedAt = existing.CreatedAt
		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save task %s", record.DocKey)
	}
	return &record, nil
}

// GetByDate returns a user's tasks stored under dateKey
func (r *GormTaskRepository) GetByDate(ctx context.Context, userID, dateKey string) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).
		Scopes(database.ForUser(userID)).
		Where("date = ?", dateKey).
		Find(&tasks).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to get tasks for %s", dateKey)
	}
	return tasks, nil
}

// GetAll returns all tasks of a user
func (r *GormTaskRepository) GetAll(ctx context.Context, userID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).
		Scopes(database.ForUser(userID)).
		Find(&tasks).Error; err != nil {
		return nil, errors.Wrap(err, "failed to get all tasks")
	}
	return tasks, nil
}

// Delete hard deletes a task so its key can be reused
func (r *GormTaskRepository) Delete(ctx context.Context, userID, dateKey, taskID string) error {
	return errors.WithStack(r.db.WithContext(ctx).
		Where("doc_key = ?", models.DocKey(userID, dateKey, taskID)).
		Delete(&models.Task{}).Error)
}

// List retrieves tasks with filtering and pagination, newest date first
func (r *GormTaskRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", filter.UserID)

	if filter.Completed != nil {
		query = query.Where("completed = ?", *filter.Completed)
	}
	if filter.DateFrom != "" {
		query = query.Where("date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		query = query.Where("date <= ?", filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.WithStack(err)
	}

	listQuery := query.Order("date DESC").Order("sort_order ASC").Order("time ASC")
	if filter.Page > 0 && filter.PageSize > 0 {
		listQuery = listQuery.Scopes(database.Paginate(utils.NewPaginationParams(filter.Page, filter.PageSize)))
	}

	var tasks []models.Task
	if err := listQuery.Find(&tasks).Error; err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return tasks, total, nil
}
