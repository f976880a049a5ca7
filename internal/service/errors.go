package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by TaskService. Callers classify failures with
// errors.Is; the API layer maps each class to an HTTP status.
//
//   - ErrInvalidArgument: malformed input, mapped to 400
//   - ErrNotFound: the referenced task does not exist, mapped to 404
//   - ErrBusinessRuleViolation: a lifecycle rule rejected the operation, mapped to 403
//
// Anything else is an unexpected failure.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNotFound              = errors.New("task not found")
	ErrBusinessRuleViolation = errors.New("business rule violation")

	// ErrActiveTaskLimit means the user already holds the maximum number of active tasks.
	ErrActiveTaskLimit = fmt.Errorf("%w: active task limit reached", ErrBusinessRuleViolation)

	// ErrTaskTooYoung means the task has not reached the minimum age for deletion.
	ErrTaskTooYoung = fmt.Errorf("%w: task too young to delete", ErrBusinessRuleViolation)
)

// TaskServiceError is a custom error type for task service errors.
// Message is safe to show to API clients.
type TaskServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
func NewTaskServiceError(operation, message string, err error) *TaskServiceError {
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// invalidArgument wraps cause so that it matches both ErrInvalidArgument and cause.
func invalidArgument(operation string, cause error) *TaskServiceError {
	return NewTaskServiceError(operation, cause.Error(), fmt.Errorf("%w: %w", ErrInvalidArgument, cause))
}

func notFound(operation string, id int64) *TaskServiceError {
	return NewTaskServiceError(operation, fmt.Sprintf("task with id %d not found", id), ErrNotFound)
}
