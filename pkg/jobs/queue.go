package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers    int
	bufferSize int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With(zap.String("queue", name)),
		jobs:       make(chan Job, cfg.BufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop drains buffered jobs and shuts the pool down. The jobs channel is
// never closed, so a racing Enqueue can at worst buffer a job that nobody
// picks up, not panic.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue submits a job for asynchronous processing. It never blocks;
// when the buffer is full the job is dropped and an error returned so
// the caller can decide whether the loss matters.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s is full", q.name)
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			for {
				select {
				case job := <-q.jobs:
					q.process(job, id)
				default:
					return
				}
			}
		case job := <-q.jobs:
			q.process(job, id)
		}
	}
}

func (q *Queue) process(job Job, workerID int) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			return
		}

		job.Attempt++
		q.logger.Warn("job failed",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Int("worker", workerID),
			zap.Error(err),
		)
		if job.Attempt > q.maxRetries {
			q.logger.Error("job dropped after retries",
				zap.String("job_id", job.ID),
				zap.String("type", job.Type),
			)
			return
		}

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
}
