package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/todo-api/internal/redact"
)

// Errors returned by AsyncEmitter.EmitEvent.
var (
	ErrQueueClosed = errors.New("event queue is closed")
	ErrQueueFull   = errors.New("event queue is full")
)

// AsyncEmitterConfig holds configuration for the asynchronous emitter.
type AsyncEmitterConfig struct {
	// WorkerCount is the number of goroutines delivering events.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// QueueSize is the buffer size of the event queue.
	// If negative, defaults to 0 (unbuffered).
	QueueSize int
}

// DefaultAsyncEmitterConfig returns an AsyncEmitterConfig with reasonable defaults.
func DefaultAsyncEmitterConfig() AsyncEmitterConfig {
	return AsyncEmitterConfig{
		WorkerCount: 2,
		QueueSize:   100,
	}
}

type queuedEvent struct {
	ctx   context.Context
	event *TaskEvent
}

// AsyncEmitter queues events and delivers them to another emitter from a
// pool of workers, so handlers never run on the request path.
//
// Events are accepted only between Start and Stop. A full queue rejects the
// event instead of blocking the caller.
type AsyncEmitter struct {
	next        EventEmitter
	queue       chan queuedEvent
	workerCount int
	logger      *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewAsyncEmitter creates an AsyncEmitter forwarding to next.
func NewAsyncEmitter(next EventEmitter, cfg AsyncEmitterConfig, logger *slog.Logger) *AsyncEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "event_dispatcher"))

	if cfg.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", cfg.WorkerCount),
			slog.Int("default_count", 1))
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	return &AsyncEmitter{
		next:        next,
		queue:       make(chan queuedEvent, cfg.QueueSize),
		workerCount: cfg.WorkerCount,
		logger:      logger,
	}
}

// Start launches the workers. Calling Start more than once has no effect.
func (e *AsyncEmitter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true

	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.logger.Info("event dispatcher started",
		slog.Int("worker_count", e.workerCount),
		slog.Int("queue_size", cap(e.queue)))
}

// EmitEvent enqueues event for delivery. The event keeps the values of ctx
// (request logger, trace id) but not its cancellation.
func (e *AsyncEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	if event == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrQueueClosed
	}

	select {
	case e.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(e.queue))
	}
}

// Stop rejects new events and waits for queued ones to be delivered, or
// for ctx to end, whichever comes first.
func (e *AsyncEmitter) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("event dispatcher stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("event dispatcher stop timed out", slog.Int("pending_events", len(e.queue)))
		return ctx.Err()
	}
}

func (e *AsyncEmitter) worker(id int) {
	defer e.wg.Done()
	for qe := range e.queue {
		e.deliver(id, qe)
	}
}

func (e *AsyncEmitter) deliver(workerID int, qe queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				slog.Int("worker_id", workerID),
				slog.String("event_id", qe.event.ID.String()),
				slog.Any("panic", r))
		}
	}()

	if err := e.next.EmitEvent(qe.ctx, qe.event); err != nil {
		e.logger.Error("event delivery failed",
			slog.Int("worker_id", workerID),
			slog.String("event_id", qe.event.ID.String()),
			slog.String("event_type", qe.event.Type),
			slog.String("error", redact.Error(err)))
	}
}
