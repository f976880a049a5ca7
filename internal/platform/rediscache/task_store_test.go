package rediscache_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/platform/memory"
	"github.com/phrazzld/todo-api/internal/platform/rediscache"
	"github.com/phrazzld/todo-api/internal/service"
	"github.com/phrazzld/todo-api/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often lookups reach the wrapped store.
type countingStore struct {
	store.TaskStore
	gets atomic.Int32
}

func (c *countingStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	c.gets.Add(1)
	return c.TaskStore.GetByID(ctx, id)
}

// redisClient connects to TODO_TEST_REDIS_URL when set, otherwise to an
// in-process miniredis server.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("TODO_TEST_REDIS_URL")
	if url == "" {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newCachedStore(t *testing.T, rdb redis.Cmdable) (*rediscache.TaskStore, *countingStore) {
	t.Helper()
	inner := &countingStore{TaskStore: memory.NewTaskStore()}
	prefix := fmt.Sprintf("todo-test:%d:", time.Now().UnixNano())
	cache := rediscache.NewTaskStore(inner, rdb,
		rediscache.WithKeyPrefix(prefix),
		rediscache.WithTTL(time.Minute))
	return cache, inner
}

func newTask(owner int64) *domain.Task {
	return &domain.Task{Title: "cached", Status: domain.TaskStatusOpen, CreatedBy: owner}
}

func TestKey(t *testing.T) {
	t.Parallel()

	cache := rediscache.NewTaskStore(memory.NewTaskStore(), nil)
	assert.Equal(t, "todo:task:42", cache.Key(42))

	custom := rediscache.NewTaskStore(memory.NewTaskStore(), nil, rediscache.WithKeyPrefix("x:"))
	assert.Equal(t, "x:task:7", custom.Key(7))
}

func TestTaskStore_ReadThrough(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, inner := newCachedStore(t, rdb)

	created, err := cache.Create(ctx, newTask(1))
	require.NoError(t, err)

	ttl, err := rdb.TTL(ctx, cache.Key(created.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "create primes the cache with a TTL")

	got, err := cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.Zero(t, inner.gets.Load(), "primed entry is served from Redis")

	require.NoError(t, rdb.Del(ctx, cache.Key(created.ID)).Err())
	_, err = cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.gets.Load(), "a miss loads once, then hits")

	t.Cleanup(func() { rdb.Del(context.Background(), cache.Key(created.ID)) })
}

func TestTaskStore_AbsentTaskIsNotCached(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, _ := newCachedStore(t, rdb)

	got, err := cache.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := rdb.Exists(ctx, cache.Key(999)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestTaskStore_Invalidation(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, _ := newCachedStore(t, rdb)

	created, err := cache.Create(ctx, newTask(1))
	require.NoError(t, err)

	next := created.Clone()
	next.Title = "renamed"
	next.Status = domain.TaskStatusDone
	require.NoError(t, cache.Update(ctx, next))

	got, err := cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, domain.TaskStatusDone, got.Status)

	require.NoError(t, cache.DeleteByID(ctx, created.ID))
	got, err = cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "deleted task must not be served from cache")
}

func TestTaskStore_InvalidationInsideExclusiveSection(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, _ := newCachedStore(t, rdb)

	created, err := cache.Create(ctx, newTask(3))
	require.NoError(t, err)

	err = cache.RunExclusive(ctx, 3, func(ctx context.Context, scoped store.TaskStore) error {
		next := created.Clone()
		next.Status = domain.TaskStatusClosed
		return scoped.Update(ctx, next)
	})
	require.NoError(t, err)

	got, err := cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusClosed, got.Status)
}

func TestTaskStore_UndecodableEntryFallsBack(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, inner := newCachedStore(t, rdb)

	created, err := cache.Create(ctx, newTask(1))
	require.NoError(t, err)
	require.NoError(t, rdb.Set(ctx, cache.Key(created.ID), "{not json", time.Minute).Err())

	got, err := cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int32(1), inner.gets.Load())
}

func TestTaskStore_RedisUnavailable(t *testing.T) {
	t.Parallel()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	cache, inner := newCachedStore(t, rdb)

	created, err := cache.Create(ctx, newTask(5))
	require.NoError(t, err, "cache write failures never fail a create")

	got, err := cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int32(1), inner.gets.Load())

	next := created.Clone()
	next.Status = domain.TaskStatusDone
	require.NoError(t, cache.Update(ctx, next))

	count, err := cache.CountActiveByUser(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, count)

	all, err := cache.FindAll(ctx, store.TaskFilter{UserID: 5, From: domain.MinTime, To: domain.MaxTime})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	err = cache.RunExclusive(ctx, 5, func(ctx context.Context, scoped store.TaskStore) error {
		return scoped.DeleteByID(ctx, created.ID)
	})
	require.NoError(t, err)

	got, err = cache.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTaskStore_InnerErrorsPropagate(t *testing.T) {
	t.Parallel()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	cache, _ := newCachedStore(t, rdb)

	err := cache.Update(context.Background(), &domain.Task{ID: 77, Title: "a", Status: domain.TaskStatusOpen})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = cache.Create(context.Background(), &domain.Task{Title: "", Status: domain.TaskStatusOpen, CreatedBy: 1})
	assert.Error(t, err)
}

func TestTaskStore_ThroughService(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	cache, inner := newCachedStore(t, rdb)

	svc, err := service.NewTaskService(cache, nil, nil,
		service.WithPolicy(service.Policy{MaxActiveTasks: 10, MinDeleteAge: 0}))
	require.NoError(t, err)

	created, err := svc.CreateTask(ctx, &domain.Task{Title: "a", Status: domain.TaskStatusOpen, CreatedBy: 9})
	require.NoError(t, err)

	got, err := svc.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
	_, err = svc.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.gets.Load(), "second read is served from Redis")

	require.NoError(t, svc.UpdateTask(ctx, &domain.Task{ID: created.ID, Title: "b", Status: domain.TaskStatusDone}))

	got, err = svc.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Title)
	assert.Equal(t, domain.TaskStatusDone, got.Status)

	require.NoError(t, svc.DeleteTask(ctx, created.ID))

	got, err = svc.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := rdb.Exists(ctx, cache.Key(created.ID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
