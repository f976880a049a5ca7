// Package service contains the task lifecycle use cases.
//
// TaskService enforces two rules on top of the store.TaskStore contract:
// a user may hold at most Policy.MaxActiveTasks tasks in an active status,
// and a task may only be deleted once it is Policy.MinDeleteAge old. Each
// rule check runs in the same per-user exclusive section as the write it
// guards.
//
// Errors are *TaskServiceError values wrapping one of ErrInvalidArgument,
// ErrNotFound or ErrBusinessRuleViolation; anything else is unexpected.
package service
