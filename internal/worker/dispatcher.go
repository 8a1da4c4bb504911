package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/prreel/api/internal/logger"
)

// Queue options for pipeline tasks. Stage failures are terminal, so asynq
// must never retry on its own.
const (
	PipelineQueue     = "pipeline"
	pipelineTimeout   = 15 * time.Minute
	pipelineRetention = 24 * time.Hour
)

// AsynqDispatcher enqueues pipeline runs on Redis through asynq
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func NewPipelineTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(PipelinePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := NewPipelineTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(PipelineQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(pipelineTimeout),
		asynq.Retention(pipelineRetention),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.Job(jobID).WithField("task_id", info.ID).Debug("pipeline enqueued")
	return nil
}

// ErrQueueFull is returned by LocalPool when no slot is free in the queue
var ErrQueueFull = errors.New("pipeline queue is full")

// ErrPoolStopped is returned after Stop
var ErrPoolStopped = errors.New("pipeline pool is stopped")

// LocalPool runs pipelines on a fixed number of in-process workers. It is
// meant for development and single-instance deployments without asynq.
type LocalPool struct {
	run     func(ctx context.Context, jobID string)
	queue   chan string
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewLocalPool creates a pool that calls run for each dispatched job
func NewLocalPool(workers, queueSize int, run func(ctx context.Context, jobID string)) *LocalPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalPool{
		run:     run,
		queue:   make(chan string, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *LocalPool) Start() {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	logger.Log.WithField("workers", p.workers).Info("local pipeline pool started")
}

func (p *LocalPool) work(id int) {
	defer p.wg.Done()
	for jobID := range p.queue {
		entry := logger.Job(jobID).WithField("worker", id)
		entry.Debug("worker picked up job")
		ctx, cancel := context.WithTimeout(p.ctx, pipelineTimeout)
		p.run(ctx, jobID)
		cancel()
		entry.Debug("worker finished job")
	}
}

// Dispatch queues the job without blocking
func (p *LocalPool) Dispatch(_ context.Context, jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs, lets queued jobs finish and waits for the workers
func (p *LocalPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	logger.Log.Info("local pipeline pool stopped")
}
