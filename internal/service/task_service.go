package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/events"
	"github.com/phrazzld/todo-api/internal/platform/logger"
	"github.com/phrazzld/todo-api/internal/redact"
	"github.com/phrazzld/todo-api/internal/store"
)

// Policy holds the task lifecycle rules.
type Policy struct {
	// MaxActiveTasks is the most OPEN or IN_PROGRESS tasks a user may hold.
	MaxActiveTasks int64
	// MinDeleteAge is how old a task must be, in whole minutes, before deletion.
	MinDeleteAge time.Duration
}

// DefaultPolicy returns the standard rules: 10 active tasks, 5 minutes.
func DefaultPolicy() Policy {
	return Policy{
		MaxActiveTasks: 10,
		MinDeleteAge:   5 * time.Minute,
	}
}

// Option configures the task service.
type Option func(*taskServiceImpl)

// WithPolicy replaces the default lifecycle rules.
func WithPolicy(p Policy) Option {
	return func(s *taskServiceImpl) {
		s.policy = p
	}
}

// WithClock overrides the clock used for the deletion age rule and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *taskServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// TaskService provides task lifecycle operations.
type TaskService interface {
	// CreateTask stores a new task for task.CreatedBy, subject to the active task limit.
	CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)

	// GetTaskByID returns the task, or nil without error when it does not exist.
	GetTaskByID(ctx context.Context, id int64) (*domain.Task, error)

	// GetTasks returns the user's tasks created within [from, to], newest first.
	GetTasks(ctx context.Context, from, to time.Time, userID int64) ([]*domain.Task, error)

	// UpdateTask replaces title and status of an existing task.
	// Reactivating an inactive task is subject to the active task limit.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// DeleteTask removes a task that has reached the minimum deletion age.
	DeleteTask(ctx context.Context, id int64) error

	// CountActiveTasks returns how many OPEN or IN_PROGRESS tasks the user holds.
	CountActiveTasks(ctx context.Context, userID int64) (int64, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	store   store.TaskStore
	emitter events.EventEmitter
	logger  *slog.Logger
	policy  Policy
	now     func() time.Time
}

// NewTaskService creates a new TaskService.
// It returns an error if the store is nil or the policy is invalid.
// A nil emitter discards events; a nil logger uses slog.Default().
func NewTaskService(
	taskStore store.TaskStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...Option,
) (TaskService, error) {
	if taskStore == nil {
		return nil, domain.NewValidationError("taskStore", "cannot be nil", domain.ErrValidation)
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &taskServiceImpl{
		store:   taskStore,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "task_service")),
		policy:  DefaultPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.policy.MaxActiveTasks <= 0 {
		return nil, domain.NewValidationError("policy.MaxActiveTasks", "must be positive", domain.ErrValidation)
	}
	if s.policy.MinDeleteAge < 0 {
		return nil, domain.NewValidationError("policy.MinDeleteAge", "cannot be negative", domain.ErrValidation)
	}

	return s, nil
}

// CreateTask implements TaskService.CreateTask.
// The active task count is checked and the task inserted inside one
// exclusive section for the owner, so concurrent creates cannot overshoot the limit.
func (s *taskServiceImpl) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	const op = "create_task"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task == nil {
		return nil, invalidArgument(op, domain.ErrNilTask)
	}
	if err := task.Validate(); err != nil {
		log.Debug("rejected invalid task", slog.String("error", err.Error()))
		return nil, invalidArgument(op, err)
	}

	var created *domain.Task
	err := s.store.RunExclusive(ctx, task.CreatedBy, func(ctx context.Context, tx store.TaskStore) error {
		if err := s.checkActiveLimit(ctx, tx, op, task.CreatedBy); err != nil {
			return err
		}

		var err error
		created, err = tx.Create(ctx, task)
		if err != nil {
			return NewTaskServiceError(op, "failed to save task", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, slog.Int64("user_id", task.CreatedBy))
	}

	log.Info("task created",
		slog.Int64("task_id", created.ID),
		slog.Int64("user_id", created.CreatedBy),
		slog.String("status", string(created.Status)))
	s.emit(ctx, events.TypeTaskCreated, created)

	return created, nil
}

// GetTaskByID implements TaskService.GetTaskByID.
func (s *taskServiceImpl) GetTaskByID(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get_task", NewTaskServiceError("get_task", "failed to load task", err),
			slog.Int64("task_id", id))
	}
	return task, nil
}

// GetTasks implements TaskService.GetTasks.
// Range defaults are the caller's concern; an inverted range yields no tasks.
func (s *taskServiceImpl) GetTasks(ctx context.Context, from, to time.Time, userID int64) ([]*domain.Task, error) {
	tasks, err := s.store.FindAll(ctx, store.TaskFilter{UserID: userID, From: from, To: to})
	if err != nil {
		return nil, s.fail(ctx, "get_tasks", NewTaskServiceError("get_tasks", "failed to list tasks", err),
			slog.Int64("user_id", userID))
	}
	return tasks, nil
}

// UpdateTask implements TaskService.UpdateTask.
// The owner and creation time of the stored task are kept; the active task
// limit is checked against the stored owner when an inactive task becomes active.
func (s *taskServiceImpl) UpdateTask(ctx context.Context, task *domain.Task) error {
	const op = "update_task"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task == nil {
		return invalidArgument(op, domain.ErrNilTask)
	}
	if task.ID <= 0 {
		return invalidArgument(op, domain.ErrInvalidTaskID)
	}
	if err := task.ValidateContent(); err != nil {
		return invalidArgument(op, err)
	}

	existing, err := s.store.GetByID(ctx, task.ID)
	if err != nil {
		return s.fail(ctx, op, NewTaskServiceError(op, "failed to load task", err), slog.Int64("task_id", task.ID))
	}
	if existing == nil {
		return notFound(op, task.ID)
	}

	var updated *domain.Task
	err = s.store.RunExclusive(ctx, existing.CreatedBy, func(ctx context.Context, tx store.TaskStore) error {
		current, err := tx.GetByID(ctx, task.ID)
		if err != nil {
			return NewTaskServiceError(op, "failed to load task", err)
		}
		if current == nil {
			return notFound(op, task.ID)
		}

		if task.Status.IsActive() && !current.Status.IsActive() {
			if err := s.checkActiveLimit(ctx, tx, op, current.CreatedBy); err != nil {
				return err
			}
		}

		next := current.Clone()
		next.Title = task.Title
		next.Status = task.Status
		if err := tx.Update(ctx, next); err != nil {
			if store.IsNotFoundError(err) {
				return notFound(op, task.ID)
			}
			return NewTaskServiceError(op, "failed to save task", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return s.fail(ctx, op, err, slog.Int64("task_id", task.ID))
	}

	log.Info("task updated",
		slog.Int64("task_id", updated.ID),
		slog.String("status", string(updated.Status)))
	s.emit(ctx, events.TypeTaskUpdated, updated)

	return nil
}

// DeleteTask implements TaskService.DeleteTask.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id int64) error {
	const op = "delete_task"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if id <= 0 {
		return invalidArgument(op, domain.ErrInvalidTaskID)
	}

	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return s.fail(ctx, op, NewTaskServiceError(op, "failed to load task", err), slog.Int64("task_id", id))
	}
	if existing == nil {
		return notFound(op, id)
	}

	var deleted *domain.Task
	err = s.store.RunExclusive(ctx, existing.CreatedBy, func(ctx context.Context, tx store.TaskStore) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return NewTaskServiceError(op, "failed to load task", err)
		}
		if current == nil {
			return notFound(op, id)
		}

		elapsed := int64(s.now().Sub(current.CreatedAt) / time.Minute)
		minAge := int64(s.policy.MinDeleteAge / time.Minute)
		if elapsed < minAge {
			return NewTaskServiceError(op,
				fmt.Sprintf("cannot delete task created less than %d minutes ago, elapsed: %d minutes",
					minAge, elapsed),
				ErrTaskTooYoung)
		}

		if err := tx.DeleteByID(ctx, id); err != nil {
			return NewTaskServiceError(op, "failed to delete task", err)
		}
		deleted = current
		return nil
	})
	if err != nil {
		return s.fail(ctx, op, err, slog.Int64("task_id", id))
	}

	log.Info("task deleted", slog.Int64("task_id", id))
	s.emit(ctx, events.TypeTaskDeleted, deleted)

	return nil
}

// CountActiveTasks implements TaskService.CountActiveTasks.
func (s *taskServiceImpl) CountActiveTasks(ctx context.Context, userID int64) (int64, error) {
	count, err := s.store.CountActiveByUser(ctx, userID)
	if err != nil {
		return 0, s.fail(ctx, "count_active_tasks",
			NewTaskServiceError("count_active_tasks", "failed to count active tasks", err),
			slog.Int64("user_id", userID))
	}
	return count, nil
}

// checkActiveLimit must run inside an exclusive section for userID.
func (s *taskServiceImpl) checkActiveLimit(ctx context.Context, tx store.TaskStore, op string, userID int64) error {
	count, err := tx.CountActiveByUser(ctx, userID)
	if err != nil {
		return NewTaskServiceError(op, "failed to count active tasks", err)
	}
	if count >= s.policy.MaxActiveTasks {
		return NewTaskServiceError(op,
			fmt.Sprintf("user cannot have more than %d active tasks, current count: %d",
				s.policy.MaxActiveTasks, count),
			ErrActiveTaskLimit)
	}
	return nil
}

// fail logs err at a level matching its class and returns it as a *TaskServiceError.
func (s *taskServiceImpl) fail(ctx context.Context, op string, err error, attrs ...any) error {
	var svcErr *TaskServiceError
	if !errors.As(err, &svcErr) {
		err = NewTaskServiceError(op, "operation failed", err)
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	args := append([]any{slog.String("operation", op), slog.String("error", redact.Error(err))}, attrs...)

	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrNotFound):
		log.Debug("task operation rejected", args...)
	case errors.Is(err, ErrBusinessRuleViolation):
		log.Info("task operation violated a business rule", args...)
	default:
		log.Error("task operation failed", args...)
	}
	return err
}

// emit publishes a lifecycle event. Failures are logged and never returned.
func (s *taskServiceImpl) emit(ctx context.Context, eventType string, task *domain.Task) {
	event := events.NewTaskEvent(eventType, task, s.now())
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to emit task event",
			slog.String("event_type", eventType),
			slog.Int64("task_id", event.TaskID),
			slog.String("error", redact.Error(err)))
	}
}
