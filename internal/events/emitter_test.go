package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockEventHandler is a mock implementation of EventHandler for testing
type MockEventHandler struct {
	mu           sync.Mutex
	HandledCount int
	LastEvent    *TaskEvent
	HandlerError error
}

func (h *MockEventHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.HandledCount++
	h.LastEvent = event
	return h.HandlerError
}

func TestNewTaskEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	task := &domain.Task{ID: 4, Title: "a", Status: domain.TaskStatusOpen, CreatedBy: 9}

	event := NewTaskEvent(TypeTaskCreated, task, at)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeTaskCreated, event.Type)
	assert.Equal(t, int64(4), event.TaskID)
	assert.Equal(t, int64(9), event.UserID)
	assert.Equal(t, domain.TaskStatusOpen, event.Status)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())
	assert.True(t, event.OccurredAt.Equal(at))

	other := NewTaskEvent(TypeTaskDeleted, nil, at)
	assert.NotEqual(t, event.ID, other.ID)
	assert.Zero(t, other.TaskID)
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	event := NewTaskEvent(TypeTaskUpdated, &domain.Task{ID: 1, CreatedBy: 2}, time.Now())

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit nil event", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler := &MockEventHandler{}
		emitter.RegisterHandler(handler)

		assert.NoError(t, emitter.EmitEvent(context.Background(), nil))
		assert.Zero(t, handler.HandledCount)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Same(t, event, handler1.LastEvent)
		assert.Same(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		first := &MockEventHandler{HandlerError: errors.New("first failure")}
		second := &MockEventHandler{HandlerError: errors.New("second failure")}
		third := &MockEventHandler{}
		emitter.RegisterHandler(first)
		emitter.RegisterHandler(second)
		emitter.RegisterHandler(third)

		err := emitter.EmitEvent(context.Background(), event)

		assert.EqualError(t, err, "first failure")
		assert.Equal(t, 1, third.HandledCount, "later handlers still run")
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		assert.NotPanics(t, func() {
			_ = NewInMemoryEventEmitter(nil).EmitEvent(context.Background(), event)
		})
	})
}

func TestHandlerFunc(t *testing.T) {
	var got *TaskEvent
	h := HandlerFunc(func(ctx context.Context, e *TaskEvent) error {
		got = e
		return nil
	})

	event := NewTaskEvent(TypeTaskCreated, nil, time.Now())
	require.NoError(t, h.HandleEvent(context.Background(), event))
	assert.Same(t, event, got)
}

func TestNopEmitter(t *testing.T) {
	assert.NoError(t, NopEmitter{}.EmitEvent(context.Background(), nil))
}

func TestAuditLogHandler(t *testing.T) {
	buf := &syncBuffer{}
	l := slog.New(slog.NewJSONHandler(buf, nil))
	handler := NewAuditLogHandler(l)

	event := NewTaskEvent(TypeTaskDeleted, &domain.Task{ID: 11, CreatedBy: 3, Status: domain.TaskStatusDone}, time.Now())
	require.NoError(t, handler.HandleEvent(context.Background(), event))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"task.deleted"`)
	assert.Contains(t, out, `"task_id":11`)
	assert.Contains(t, out, `"component":"audit"`)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
