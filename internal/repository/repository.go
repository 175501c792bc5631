package repository

import (
	"context"

	"github.com/yukikurage/day-planner-api/internal/models"
)

// TaskRepository defines the interface for task persistence. Records are keyed by
// user, date-key and task id.
type TaskRepository interface {
	// Save creates or replaces the task stored under (userID, dateKey, task.ID)
	Save(ctx context.Context, userID, dateKey string, task *models.Task) (*models.Task, error)

	// GetByDate returns the tasks of a user whose date equals dateKey
	GetByDate(ctx context.Context, userID, dateKey string) ([]models.Task, error)

	// GetAll returns every task of a user
	GetAll(ctx context.Context, userID string) ([]models.Task, error)

	// Delete removes the task stored under (userID, dateKey, taskID)
	Delete(ctx context.Context, userID, dateKey, taskID string) error

	// List retrieves tasks with filtering and pagination
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	UserID    string
	Completed *bool
	DateFrom  string
	DateTo    string
	Page      int
	PageSize  int
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id string) (*models.User, error)

	// FindByUsername finds a user by username
	FindByUsername(username string) (*models.User, error)
}
