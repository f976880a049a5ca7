package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/platform/logger"
	"github.com/phrazzld/todo-api/internal/redact"
	"github.com/phrazzld/todo-api/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is used when no TTL option is given.
	DefaultTTL = 5 * time.Minute
	// DefaultKeyPrefix namespaces every key written by the cache.
	DefaultKeyPrefix = "todo:"
)

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithTTL sets the expiry of cached tasks. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *TaskStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the namespace prepended to every key.
func WithKeyPrefix(prefix string) Option {
	return func(s *TaskStore) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used when no request logger is in the context.
func WithLogger(l *slog.Logger) Option {
	return func(s *TaskStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// TaskStore decorates a store.TaskStore with cache-aside lookups by id.
type TaskStore struct {
	inner  store.TaskStore
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore wraps inner with a cache held in rdb.
func NewTaskStore(inner store.TaskStore, rdb redis.Cmdable, opts ...Option) *TaskStore {
	s := &TaskStore{
		inner:  inner,
		rdb:    rdb,
		ttl:    DefaultTTL,
		prefix: DefaultKeyPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "task_cache"))
	return s
}

// Key returns the cache key for a task id.
func (s *TaskStore) Key(id int64) string {
	return s.prefix + "task:" + strconv.FormatInt(id, 10)
}

// Create stores the task in the wrapped store and primes the cache with the result.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	created, err := s.inner.Create(ctx, task)
	if err != nil {
		return nil, err
	}
	s.put(ctx, created)
	return created, nil
}

// GetByID serves the task from Redis when present, otherwise loads it from
// the wrapped store and caches it. Absent tasks are not cached.
func (s *TaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	raw, err := s.rdb.Get(ctx, s.Key(id)).Bytes()
	switch {
	case err == nil:
		var task domain.Task
		jsonErr := json.Unmarshal(raw, &task)
		if jsonErr == nil {
			return &task, nil
		}
		s.warn(ctx, "discarding undecodable cache entry", jsonErr, id)
		s.evict(ctx, id)
	case errors.Is(err, redis.Nil):
	default:
		s.warn(ctx, "cache read failed, falling back to store", err, id)
		return s.inner.GetByID(ctx, id)
	}

	task, err := s.inner.GetByID(ctx, id)
	if err != nil || task == nil {
		return task, err
	}
	s.put(ctx, task)
	return task, nil
}

// FindAll always reads from the wrapped store.
func (s *TaskStore) FindAll(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return s.inner.FindAll(ctx, filter)
}

// Update writes through and invalidates the cached entry.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := s.inner.Update(ctx, task); err != nil {
		return err
	}
	if task != nil {
		s.evict(ctx, task.ID)
	}
	return nil
}

// DeleteByID deletes from the wrapped store and invalidates the cached entry.
func (s *TaskStore) DeleteByID(ctx context.Context, id int64) error {
	if err := s.inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

// CountActiveByUser always reads from the wrapped store.
func (s *TaskStore) CountActiveByUser(ctx context.Context, userID int64) (int64, error) {
	return s.inner.CountActiveByUser(ctx, userID)
}

// RunExclusive delegates to the wrapped store. Inside fn, lookups bypass the
// cache and every touched id is evicted again once the section has ended,
// so a reader cannot re-cache a value the section has not yet committed.
func (s *TaskStore) RunExclusive(ctx context.Context, userID int64, fn store.ExclusiveFn) error {
	touched := &touchedIDs{}
	err := s.inner.RunExclusive(ctx, userID, func(ctx context.Context, scoped store.TaskStore) error {
		return fn(ctx, &exclusiveStore{TaskStore: scoped, cache: s, touched: touched})
	})
	for _, id := range touched.list() {
		s.evict(ctx, id)
	}
	return err
}

func (s *TaskStore) put(ctx context.Context, task *domain.Task) {
	raw, err := json.Marshal(task)
	if err != nil {
		s.warn(ctx, "failed to encode task for cache", err, task.ID)
		return
	}
	if err := s.rdb.Set(ctx, s.Key(task.ID), raw, s.ttl).Err(); err != nil {
		s.warn(ctx, "cache write failed", err, task.ID)
	}
}

func (s *TaskStore) evict(ctx context.Context, id int64) {
	if err := s.rdb.Del(ctx, s.Key(id)).Err(); err != nil {
		s.warn(ctx, "cache invalidation failed", err, id)
	}
}

func (s *TaskStore) warn(ctx context.Context, msg string, err error, id int64) {
	logger.FromContextOrDefault(ctx, s.logger).Warn(msg,
		slog.Int64("task_id", id),
		slog.String("error", redact.Error(err)))
}

// exclusiveStore is the scoped store handed to fn inside RunExclusive.
type exclusiveStore struct {
	store.TaskStore
	cache   *TaskStore
	touched *touchedIDs
}

func (e *exclusiveStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	created, err := e.TaskStore.Create(ctx, task)
	if err != nil {
		return nil, err
	}
	e.touched.add(created.ID)
	return created, nil
}

func (e *exclusiveStore) Update(ctx context.Context, task *domain.Task) error {
	if err := e.TaskStore.Update(ctx, task); err != nil {
		return err
	}
	e.touched.add(task.ID)
	e.cache.evict(ctx, task.ID)
	return nil
}

func (e *exclusiveStore) DeleteByID(ctx context.Context, id int64) error {
	if err := e.TaskStore.DeleteByID(ctx, id); err != nil {
		return err
	}
	e.touched.add(id)
	e.cache.evict(ctx, id)
	return nil
}

type touchedIDs struct {
	mu  sync.Mutex
	ids []int64
}

func (t *touchedIDs) add(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = append(t.ids, id)
}

func (t *touchedIDs) list() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.ids...)
}
