package store

import (
	"context"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
)

// TaskFilter selects the tasks of one user created inside an inclusive
// time window.
type TaskFilter struct {
	UserID int64
	From   time.Time
	To     time.Time
}

// Matches reports whether task satisfies the filter.
func (f TaskFilter) Matches(task *domain.Task) bool {
	if task == nil || task.CreatedBy != f.UserID {
		return false
	}
	return !task.CreatedAt.Before(f.From) && !task.CreatedAt.After(f.To)
}

// ExclusiveFn runs inside an exclusive section for one user. The scoped
// store must be used for every read and write made inside the section.
type ExclusiveFn func(ctx context.Context, scoped TaskStore) error

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create persists a new task and returns the stored copy.
	// The store assigns ID and CreatedAt; any values set by the caller are ignored.
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// GetByID retrieves a task by its ID.
	// Returns nil and no error when the task does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// FindAll returns the tasks matching filter, newest first with ties
	// broken by descending ID. The result is never nil.
	FindAll(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// Update replaces Title and Status of the stored task with the same ID.
	// CreatedBy and CreatedAt of the stored task are preserved.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// DeleteByID removes the task with the given ID.
	// Deleting a task that does not exist is not an error.
	DeleteByID(ctx context.Context, id int64) error

	// CountActiveByUser counts the user's tasks in an active status.
	CountActiveByUser(ctx context.Context, userID int64) (int64, error)

	// RunExclusive runs fn while holding an exclusive section for userID.
	// Two sections for the same user never overlap. Sections for
	// different users may run concurrently.
	RunExclusive(ctx context.Context, userID int64, fn ExclusiveFn) error
}
