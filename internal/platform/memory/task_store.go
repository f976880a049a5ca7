// Package memory provides a process-local implementation of store.TaskStore.
// Data lives only as long as the process.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/platform/logger"
	"github.com/phrazzld/todo-api/internal/store"
)

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store's base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *TaskStore) {
		if l != nil {
			s.logger = l.With(slog.String("component", "memory_task_store"))
		}
	}
}

// TaskStore keeps tasks in a map guarded by a RWMutex.
// Stored values are copies; callers never share memory with the store.
type TaskStore struct {
	mu     sync.RWMutex
	tasks  map[int64]domain.Task
	lastID atomic.Int64

	// userLocks holds one *sync.Mutex per user for RunExclusive.
	userLocks sync.Map

	now    func() time.Time
	logger *slog.Logger
}

// NewTaskStore returns an empty store whose first assigned ID is 1.
func NewTaskStore(opts ...Option) *TaskStore {
	s := &TaskStore{
		tasks:  make(map[int64]domain.Task),
		now:    time.Now,
		logger: slog.Default().With(slog.String("component", "memory_task_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrNilTask)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	stored := *task
	stored.ID = s.lastID.Add(1)
	stored.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.tasks[stored.ID] = stored
	s.mu.Unlock()

	logger.FromContextOrDefault(ctx, s.logger).Debug("task created",
		slog.Int64("task_id", stored.ID),
		slog.Int64("user_id", stored.CreatedBy))

	return &stored, nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return &t, nil
}

// FindAll implements store.TaskStore.FindAll.
func (s *TaskStore) FindAll(_ context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	out := make([]*domain.Task, 0)

	s.mu.RLock()
	for _, t := range s.tasks {
		if filter.Matches(&t) {
			c := t
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

// Update implements store.TaskStore.Update.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrNilTask)
	}
	if err := task.ValidateContent(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	existing, ok := s.tasks[task.ID]
	if ok {
		existing.Title = task.Title
		existing.Status = task.Status
		s.tasks[task.ID] = existing
	}
	s.mu.Unlock()

	if !ok {
		return store.ErrTaskNotFound
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("task updated",
		slog.Int64("task_id", task.ID),
		slog.String("status", string(task.Status)))
	return nil
}

// DeleteByID implements store.TaskStore.DeleteByID.
func (s *TaskStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	return nil
}

// CountActiveByUser implements store.TaskStore.CountActiveByUser.
func (s *TaskStore) CountActiveByUser(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.tasks {
		if t.CreatedBy == userID && t.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

// RunExclusive implements store.TaskStore.RunExclusive with a per-user mutex.
// fn must not call RunExclusive for the same user.
func (s *TaskStore) RunExclusive(ctx context.Context, userID int64, fn store.ExclusiveFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return fn(ctx, s)
}

func (s *TaskStore) userLock(userID int64) *sync.Mutex {
	if l, ok := s.userLocks.Load(userID); ok {
		return l.(*sync.Mutex)
	}
	l, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return l.(*sync.Mutex)
}
