package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/platform/logger"
	"github.com/phrazzld/todo-api/internal/redact"
	"github.com/phrazzld/todo-api/internal/store"
)

const taskEntity = "task"

const (
	insertTaskSQL = `
		INSERT INTO task (title, status, created_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	selectTaskByIDSQL = `
		SELECT id, title, status, created_by, created_at
		FROM task
		WHERE id = $1`

	selectTasksSQL = `
		SELECT id, title, status, created_by, created_at
		FROM task
		WHERE created_by = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC, id DESC`

	updateTaskSQL = `
		UPDATE task
		SET title = $1, status = $2
		WHERE id = $3`

	deleteTaskSQL = `DELETE FROM task WHERE id = $1`

	countActiveTasksSQL = `
		SELECT COUNT(*)
		FROM task
		WHERE created_by = $1 AND status IN ($2, $3)`

	lockUserSQL = `SELECT pg_advisory_xact_lock($1)`
)

// Option configures a PostgresTaskStore.
type Option func(*PostgresTaskStore)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresTaskStore) {
		if now != nil {
			s.now = now
		}
	}
}

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// db may be a *sql.DB or a *sql.Tx. With a *sql.DB, RunExclusive opens its own
// transaction; with a *sql.Tx it locks inside the caller's transaction.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger, opts ...Option) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a store bound to tx that shares this store's logger and clock.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
		now:    s.now,
	}
}

// Create implements store.TaskStore.Create.
// CreatedAt is truncated to microseconds so the returned value equals the stored one.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task == nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrNilTask)
	}
	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.Int64("user_id", task.CreatedBy))
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	created := task.Clone()
	created.ID = 0
	createdAt := s.now().UTC().Truncate(time.Microsecond)

	err := s.db.QueryRowContext(
		ctx,
		insertTaskSQL,
		created.Title,
		string(created.Status),
		created.CreatedBy,
		createdAt,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", redact.Error(err)),
			slog.Int64("user_id", task.CreatedBy))
		return nil, store.NewStoreError(taskEntity, "create", "failed to insert task", MapError(err))
	}
	created.CreatedAt = created.CreatedAt.UTC()

	log.Info("task created",
		slog.Int64("task_id", created.ID),
		slog.Int64("user_id", created.CreatedBy),
		slog.String("status", string(created.Status)))
	return created, nil
}

// GetByID implements store.TaskStore.GetByID.
// It returns nil and no error when no task has the given ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("retrieving task by ID", slog.Int64("task_id", id))

	task, err := scanTask(s.db.QueryRowContext(ctx, selectTaskByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.Int64("task_id", id))
			return nil, nil
		}
		log.Error("failed to get task by ID",
			slog.String("error", redact.Error(err)),
			slog.Int64("task_id", id))
		return nil, store.NewStoreError(taskEntity, "get", "failed to query task", MapError(err))
	}

	return task, nil
}

// FindAll implements store.TaskStore.FindAll.
func (s *PostgresTaskStore) FindAll(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, selectTasksSQL, filter.UserID, filter.From.UTC(), filter.To.UTC())
	if err != nil {
		log.Error("failed to query tasks",
			slog.String("error", redact.Error(err)),
			slog.Int64("user_id", filter.UserID))
		return nil, store.NewStoreError(taskEntity, "find", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row",
				slog.String("error", redact.Error(err)),
				slog.Int64("user_id", filter.UserID))
			return nil, store.NewStoreError(taskEntity, "find", "failed to scan task row", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows",
			slog.String("error", redact.Error(err)),
			slog.Int64("user_id", filter.UserID))
		return nil, store.NewStoreError(taskEntity, "find", "failed to iterate task rows", MapError(err))
	}

	log.Debug("tasks retrieved",
		slog.Int64("user_id", filter.UserID),
		slog.Int("count", len(tasks)))
	return tasks, nil
}

// Update implements store.TaskStore.Update.
// Only title and status are written; owner and creation time are never touched.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task == nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrNilTask)
	}
	if err := task.ValidateContent(); err != nil {
		log.Warn("task validation failed during update",
			slog.String("error", err.Error()),
			slog.Int64("task_id", task.ID))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, updateTaskSQL, task.Title, string(task.Status), task.ID)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", redact.Error(err)),
			slog.Int64("task_id", task.ID))
		return store.NewStoreError(taskEntity, "update", "failed to update task", MapError(err))
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		if store.IsNotFoundError(err) {
			log.Debug("task not found for update", slog.Int64("task_id", task.ID))
			return err
		}
		return store.NewStoreError(taskEntity, "update", "failed to check result", err)
	}

	log.Info("task updated",
		slog.Int64("task_id", task.ID),
		slog.String("status", string(task.Status)))
	return nil
}

// DeleteByID implements store.TaskStore.DeleteByID.
// Deleting a missing task succeeds without effect.
func (s *PostgresTaskStore) DeleteByID(ctx context.Context, id int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, deleteTaskSQL, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", redact.Error(err)),
			slog.Int64("task_id", id))
		return store.NewStoreError(taskEntity, "delete", "failed to delete task", MapError(err))
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		log.Debug("delete matched no task", slog.Int64("task_id", id))
		return nil
	}

	log.Info("task deleted", slog.Int64("task_id", id))
	return nil
}

// CountActiveByUser implements store.TaskStore.CountActiveByUser.
func (s *PostgresTaskStore) CountActiveByUser(ctx context.Context, userID int64) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	active := domain.ActiveTaskStatuses()
	var count int64
	err := s.db.QueryRowContext(
		ctx,
		countActiveTasksSQL,
		userID,
		string(active[0]),
		string(active[1]),
	).Scan(&count)
	if err != nil {
		log.Error("failed to count active tasks",
			slog.String("error", redact.Error(err)),
			slog.Int64("user_id", userID))
		return 0, store.NewStoreError(taskEntity, "count", "failed to count active tasks", MapError(err))
	}

	return count, nil
}

// RunExclusive implements store.TaskStore.RunExclusive using a transaction-scoped
// advisory lock keyed on the user ID.
func (s *PostgresTaskStore) RunExclusive(ctx context.Context, userID int64, fn store.ExclusiveFn) error {
	if beginner, ok := s.db.(store.TxBeginner); ok {
		return store.RunInTransaction(ctx, beginner, func(ctx context.Context, tx *sql.Tx) error {
			scoped := s.WithTx(tx)
			if err := scoped.lockUser(ctx, userID); err != nil {
				return err
			}
			return fn(ctx, scoped)
		})
	}

	if err := s.lockUser(ctx, userID); err != nil {
		return err
	}
	return fn(ctx, s)
}

func (s *PostgresTaskStore) lockUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, lockUserSQL, userID); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to acquire user lock",
			slog.String("error", redact.Error(err)),
			slog.Int64("user_id", userID))
		return store.NewStoreError(taskEntity, "lock", "failed to acquire user lock", MapError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status string

	if err := row.Scan(&task.ID, &task.Title, &status, &task.CreatedBy, &task.CreatedAt); err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.CreatedAt = task.CreatedAt.UTC()
	return &task, nil
}
