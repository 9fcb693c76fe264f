// Package queue runs scan jobs under a priority order and a concurrency
// bound. Jobs live in process memory only: the queue is an accelerator in
// front of the durable schedule repository, never a source of truth.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tableguard/tableguard/internal/errclass"
	"github.com/tableguard/tableguard/internal/metrics"
	"github.com/tableguard/tableguard/pkg/types"
	"go.uber.org/zap"
)

// ScanExecutor runs a job's scan operation. scan.Registry satisfies it.
type ScanExecutor interface {
	Execute(ctx context.Context, scanType types.ScanType, target types.Target) (*types.ScanResult, error)
}

// JobSpec describes a job to enqueue.
type JobSpec struct {
	ScheduleID string
	ScanType   types.ScanType
	Target     types.Target
	Priority   types.Priority
	MaxRetries int

	// OnDone, when set, is invoked once with the terminal job (COMPLETED or
	// FAILED). The scheduler driver uses it to write run outcomes back to
	// the schedule repository.
	OnDone func(job *types.Job)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Retrying  int `json:"retrying"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Config holds configuration for the queue.
type Config struct {
	MaxConcurrent   int
	RetryBaseDelay  time.Duration // retry n waits n * RetryBaseDelay
	HistoryLimit    int           // terminal jobs kept for GetJob
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   5,
		RetryBaseDelay:  time.Second,
		HistoryLimit:    256,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Queue is a priority-ordered, bounded-concurrency job runner. All job state
// transitions happen under the queue mutex; the scan call itself runs
// outside it.
type Queue struct {
	cfg      Config
	executor ScanExecutor
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	waiting   []*types.Job // priority order, FIFO within a tier
	running   map[string]*types.Job
	retrying  map[string]*types.Job // waiting out a retry delay
	done      map[string]*types.Job // bounded terminal history
	doneOrder []string
	onDone    map[string]func(*types.Job)
	completed int64
	failed    int64

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes optional collaborators.
type Option func(*Queue)

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func New(cfg Config, executor ScanExecutor, logger *zap.Logger, opts ...Option) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:      cfg,
		executor: executor,
		logger:   logger,
		running:  make(map[string]*types.Job),
		retrying: make(map[string]*types.Job),
		done:     make(map[string]*types.Job),
		onDone:   make(map[string]func(*types.Job)),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the dispatch loop.
func (q *Queue) Start() {
	q.logger.Info("Starting job queue", zap.Int("max_concurrent", q.cfg.MaxConcurrent))
	q.wg.Add(1)
	go q.dispatchLoop()
}

// Stop cancels the dispatch loop and waits for in-flight jobs, up to the
// shutdown timeout.
func (q *Queue) Stop() error {
	q.logger.Info("Stopping job queue", zap.Duration("timeout", q.cfg.ShutdownTimeout))
	q.cancel()

	doneCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		q.logger.Info("Job queue stopped gracefully")
		return nil
	case <-time.After(q.cfg.ShutdownTimeout):
		q.logger.Warn("Job queue shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// Enqueue inserts a new job in priority position: high before normal before
// low, stable FIFO within a tier. It returns the assigned job ID and wakes
// the dispatcher if it is idle.
func (q *Queue) Enqueue(spec JobSpec) (string, error) {
	if spec.Priority == "" {
		spec.Priority = types.PriorityNormal
	}
	job := types.NewJob(spec.ScheduleID, spec.ScanType, spec.Target, spec.Priority, spec.MaxRetries)
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("job validation failed: %w", err)
	}

	q.mu.Lock()
	q.insert(job, false)
	if spec.OnDone != nil {
		q.onDone[job.ID] = spec.OnDone
	}
	q.mu.Unlock()

	q.logger.Info("Job enqueued",
		zap.String("job_id", job.ID),
		zap.String("scan_type", string(job.ScanType)),
		zap.String("target", job.Target.String()),
		zap.String("priority", string(job.Priority)),
	)

	q.metrics.IncJobsEnqueued()
	q.signal()
	return job.ID, nil
}

// insert places job into the waiting list. A fresh job goes behind every
// waiting job of its own tier; a retried job goes in front of them.
func (q *Queue) insert(job *types.Job, front bool) {
	w := job.Priority.Weight()
	idx := len(q.waiting)
	for i, queued := range q.waiting {
		qw := queued.Priority.Weight()
		if qw > w || (front && qw == w) {
			idx = i
			break
		}
	}

	q.waiting = append(q.waiting, nil)
	copy(q.waiting[idx+1:], q.waiting[idx:])
	q.waiting[idx] = job
	job.Status = types.StatusPending
}

// GetJob looks a job up wherever it currently lives: waiting, running,
// retrying or the terminal history. It returns a copy.
func (q *Queue) GetJob(jobID string) (*types.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.running[jobID]; ok {
		c := *job
		return &c, true
	}
	if job, ok := q.retrying[jobID]; ok {
		c := *job
		return &c, true
	}
	if job, ok := q.done[jobID]; ok {
		c := *job
		return &c, true
	}
	for _, job := range q.waiting {
		if job.ID == jobID {
			c := *job
			return &c, true
		}
	}
	return nil, false
}

// GetStats returns current queue counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:   len(q.waiting),
		Running:   len(q.running),
		Retrying:  len(q.retrying),
		Completed: int(q.completed),
		Failed:    int(q.failed),
		Total:     len(q.waiting) + len(q.running) + len(q.retrying) + len(q.done),
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatchLoop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
			q.dispatch()
		}
	}
}

// dispatch starts waiting jobs from the front of the queue until the
// concurrency bound is reached.
func (q *Queue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.waiting) > 0 && len(q.running) < q.cfg.MaxConcurrent {
		job := q.waiting[0]
		q.waiting = q.waiting[1:]

		now := time.Now().UTC()
		job.Status = types.StatusRunning
		job.StartedAt = &now
		q.running[job.ID] = job

		q.wg.Add(1)
		go q.runJob(job)
	}
}

func (q *Queue) runJob(job *types.Job) {
	defer q.wg.Done()
	defer q.signal()

	q.logger.Info("Starting job execution",
		zap.String("job_id", job.ID),
		zap.String("scan_type", string(job.ScanType)),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
	)

	started := time.Now()
	result, err := q.executor.Execute(q.ctx, job.ScanType, job.Target)
	duration := time.Since(started)

	if err == nil {
		q.metrics.ObserveScan(string(job.ScanType), "", duration)
		q.complete(job, result)
		return
	}

	q.metrics.ObserveScan(string(job.ScanType), string(errclass.Classify(err).Kind), duration)
	q.handleFailure(job, err)
}

func (q *Queue) complete(job *types.Job, result *types.ScanResult) {
	q.mu.Lock()
	delete(q.running, job.ID)
	now := time.Now().UTC()
	job.Status = types.StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	q.completed++
	q.remember(job)
	callback := q.takeCallback(job.ID)
	q.mu.Unlock()

	q.logger.Info("Job completed successfully",
		zap.String("job_id", job.ID),
		zap.Duration("duration", now.Sub(job.CreatedAt)),
	)

	if callback != nil {
		c := *job
		callback(&c)
	}
}

// handleFailure retries the same job in place with a linear delay of
// RetryBaseDelay * retryCount, re-inserting it at the front of its priority
// tier so retries are serviced ahead of fresh work. Exhausted jobs go FAILED
// and are dropped from further processing.
func (q *Queue) handleFailure(job *types.Job, err error) {
	q.mu.Lock()
	delete(q.running, job.ID)

	if !job.ShouldRetry() {
		now := time.Now().UTC()
		job.Status = types.StatusFailed
		job.CompletedAt = &now
		job.Error = err.Error()
		q.failed++
		q.remember(job)
		callback := q.takeCallback(job.ID)
		q.mu.Unlock()

		q.logger.Error("Job failed permanently",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.RetryCount+1),
			zap.Error(err),
		)

		if callback != nil {
			c := *job
			callback(&c)
		}
		return
	}

	job.IncrementRetry()
	job.Status = types.StatusRetrying
	job.Error = err.Error()
	q.retrying[job.ID] = job
	q.mu.Unlock()

	q.metrics.IncJobsRetried()
	delay := time.Duration(job.RetryCount) * q.cfg.RetryBaseDelay
	q.logger.Warn("Job failed, retrying",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
		zap.Error(err),
	)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(delay):
		}

		q.mu.Lock()
		delete(q.retrying, job.ID)
		q.insert(job, true)
		q.mu.Unlock()
		q.signal()
	}()
}

// takeCallback removes and returns the completion hook; caller holds q.mu.
func (q *Queue) takeCallback(jobID string) func(*types.Job) {
	callback := q.onDone[jobID]
	delete(q.onDone, jobID)
	return callback
}

// remember stores a terminal job in the bounded history; caller holds q.mu.
func (q *Queue) remember(job *types.Job) {
	q.done[job.ID] = job
	q.doneOrder = append(q.doneOrder, job.ID)
	for len(q.doneOrder) > q.cfg.HistoryLimit {
		delete(q.done, q.doneOrder[0])
		q.doneOrder = q.doneOrder[1:]
	}
}
