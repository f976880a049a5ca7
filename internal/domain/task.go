package domain

import (
	"errors"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusOpen       TaskStatus = "OPEN"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusClosed     TaskStatus = "CLOSED"
)

// Common validation errors for Task
var (
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidTaskOwner  = errors.New("task owner must be a positive user ID")
	ErrInvalidTaskID     = errors.New("task ID must be positive")
	ErrNilTask           = errors.New("task cannot be nil")
)

// Bounds of the representable time range. Both values round-trip through a
// PostgreSQL timestamptz column and are used when a caller leaves a range
// bound unspecified.
var (
	MinTime = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxTime = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)
)

// Task is a unit of work owned by a single user.
//
// ID and CreatedAt are assigned by the store on creation. CreatedBy and
// CreatedAt never change afterwards; only Title and Status are mutable.
type Task struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewTask creates a new, not yet persisted Task.
// Returns an error if validation fails.
func NewTask(title string, status TaskStatus, createdBy int64) (*Task, error) {
	task := &Task{
		Title:     strings.TrimSpace(title),
		Status:    status,
		CreatedBy: createdBy,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the client-controlled fields of the Task.
// It does not look at ID or CreatedAt, which belong to the store.
func (t *Task) Validate() error {
	if err := t.ValidateContent(); err != nil {
		return err
	}

	if t.CreatedBy <= 0 {
		return ErrInvalidTaskOwner
	}

	return nil
}

// ValidateContent checks only the fields that may change after creation.
func (t *Task) ValidateContent() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTaskTitle
	}

	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	return nil
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusDone, TaskStatusClosed:
		return true
	default:
		return false
	}
}

// IsActive reports whether s counts towards a user's active task limit.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusOpen || s == TaskStatusInProgress
}

// ActiveTaskStatuses lists the statuses that count as active.
func ActiveTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusOpen, TaskStatusInProgress}
}

// Clone returns a copy of the task that shares no state with t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
