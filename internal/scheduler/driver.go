// Package scheduler owns the schedule repository and the driver loop that
// turns due schedules into scan executions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/tableguard/tableguard/internal/errclass"
	"github.com/tableguard/tableguard/internal/limiter"
	"github.com/tableguard/tableguard/internal/metrics"
	"github.com/tableguard/tableguard/internal/queue"
	"github.com/tableguard/tableguard/internal/retry"
	"github.com/tableguard/tableguard/internal/schedule"
	"github.com/tableguard/tableguard/internal/tracing"
	"github.com/tableguard/tableguard/pkg/types"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ScanExecutor runs one scan operation. scan.Registry satisfies it.
type ScanExecutor interface {
	Execute(ctx context.Context, scanType types.ScanType, target types.Target) (*types.ScanResult, error)
}

// Config holds driver configuration.
type Config struct {
	BatchSize     int  // max due schedules handled per tick
	UseQueue      bool // dispatch through the job queue instead of inline
	JobMaxRetries int  // queue-level retries for dispatched jobs
	RetryPolicy   retry.Policy
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		UseQueue:      true,
		JobMaxRetries: 2,
		RetryPolicy:   retry.DefaultPolicy(),
	}
}

// TickResult summarizes one driver pass.
type TickResult struct {
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Driver is the external-facing control loop. It does not self-schedule: an
// outside trigger (HTTP hit, infrastructure cron, CLI) invokes Tick.
type Driver struct {
	cfg      Config
	repo     Repository
	executor ScanExecutor
	queue    *queue.Queue
	resolver *schedule.Resolver
	retrier  *retry.Executor
	limiter  limiter.RateLimiter
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	logger   *zap.Logger

	now func() time.Time
}

// Option customizes optional collaborators.
type Option func(*Driver)

func WithQueue(q *queue.Queue) Option {
	return func(d *Driver) { d.queue = q }
}

func WithRateLimiter(l limiter.RateLimiter) Option {
	return func(d *Driver) { d.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

func NewDriver(cfg Config, repo Repository, executor ScanExecutor, resolver *schedule.Resolver, logger *zap.Logger, opts ...Option) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.RetryPolicy.MaxAttempts <= 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}

	d := &Driver{
		cfg:      cfg,
		repo:     repo,
		executor: executor,
		resolver: resolver,
		retrier:  retry.New(logger),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.UseQueue && d.queue == nil {
		d.cfg.UseQueue = false
	}
	return d
}

// Tick performs one driver pass: list due schedules, run each, write back
// outcomes. A failing schedule never aborts the pass; every due schedule
// gets at least one attempt per tick.
func (d *Driver) Tick(ctx context.Context) (TickResult, error) {
	started := d.now()

	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.StartSpan(ctx, "scheduler.tick")
		defer span.End()
	}

	due, err := d.repo.ListDue(ctx, started, d.cfg.BatchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("failed to list due schedules: %w", err)
	}

	result := TickResult{Due: len(due)}
	d.logger.Info("Scheduler tick", zap.Int("due", len(due)))

	for _, s := range due {
		if d.limiter != nil && !d.limiter.Allow(string(s.ScanType)) {
			d.logger.Warn("Schedule skipped by rate limiter",
				zap.String("schedule_id", s.ID),
				zap.String("scan_type", string(s.ScanType)),
			)
			d.metrics.IncSchedulesSkipped()
			result.Skipped++
			continue
		}

		if d.cfg.UseQueue {
			if err := d.dispatch(s); err != nil {
				d.logger.Error("Failed to dispatch schedule",
					zap.String("schedule_id", s.ID),
					zap.Error(err),
				)
				result.Failed++
				continue
			}
			result.Dispatched++
			continue
		}

		if err := d.runSchedule(ctx, s); err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	d.metrics.ObserveTick(result.Due, d.now().Sub(started))
	return result, nil
}

// dispatch hands a due schedule to the job queue. The completion hook writes
// the outcome back to the repository when the job reaches a terminal state.
func (d *Driver) dispatch(s *types.Schedule) error {
	sched := *s
	_, err := d.queue.Enqueue(queue.JobSpec{
		ScheduleID: s.ID,
		ScanType:   s.ScanType,
		Target:     s.Target,
		Priority:   types.PriorityNormal,
		MaxRetries: d.cfg.JobMaxRetries,
		OnDone: func(job *types.Job) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if job.Status == types.StatusCompleted {
				d.recordSuccess(ctx, &sched)
				return
			}
			d.recordFailure(ctx, &sched, fmt.Errorf("%s", job.Error))
		},
	})
	return err
}

// runSchedule executes a schedule inline through the retry executor and
// records the outcome.
func (d *Driver) runSchedule(ctx context.Context, s *types.Schedule) error {
	scanStart := d.now()

	op := func(ctx context.Context) error {
		_, err := d.executor.Execute(ctx, s.ScanType, s.Target)
		return err
	}

	var err error
	if d.tracer != nil {
		spanCtx, span := d.tracer.StartScanSpan(ctx, string(s.ScanType), s.Target.String())
		err = d.retrier.Do(spanCtx, d.cfg.RetryPolicy, string(s.ScanType)+" scan", op)
		span.End()
	} else {
		err = d.retrier.Do(ctx, d.cfg.RetryPolicy, string(s.ScanType)+" scan", op)
	}

	kind := ""
	if err != nil {
		kind = string(errclass.Classify(err).Kind)
	}
	d.metrics.ObserveScan(string(s.ScanType), kind, d.now().Sub(scanStart))

	if err != nil {
		d.recordFailure(ctx, s, err)
		return err
	}
	d.recordSuccess(ctx, s)
	return nil
}

// recordSuccess advances a recurring schedule to its next firing and pauses
// one-shot schedules so they do not stay due forever.
func (d *Driver) recordSuccess(ctx context.Context, s *types.Schedule) {
	now := d.now().UTC()

	if !s.IsRecurring {
		if err := d.repo.MarkExecuted(ctx, s.ID, s.NextRunAt, now); err != nil {
			d.logger.Error("Failed to mark schedule executed", zap.String("schedule_id", s.ID), zap.Error(err))
			return
		}
		if err := d.repo.SetStatus(ctx, s.ID, types.SchedulePaused); err != nil {
			d.logger.Error("Failed to pause one-shot schedule", zap.String("schedule_id", s.ID), zap.Error(err))
		}
		return
	}

	next, err := d.resolver.NextRunForSchedule(s)
	if err != nil {
		d.logger.Error("Failed to compute next run time",
			zap.String("schedule_id", s.ID),
			zap.Error(err),
		)
		// Leave nextRunAt alone; the schedule stays due and the operator
		// sees the resolver error in the failure count.
		if _, ferr := d.repo.IncrementFailure(ctx, s.ID, err.Error()); ferr != nil {
			d.logger.Error("Failed to record resolver failure", zap.String("schedule_id", s.ID), zap.Error(ferr))
		}
		return
	}

	if err := d.repo.MarkExecuted(ctx, s.ID, next, now); err != nil {
		d.logger.Error("Failed to mark schedule executed", zap.String("schedule_id", s.ID), zap.Error(err))
		return
	}

	d.logger.Info("Schedule executed",
		zap.String("schedule_id", s.ID),
		zap.String("scan_type", string(s.ScanType)),
		zap.Time("next_run_at", next),
	)
}

// recordFailure counts the failure, leaves nextRunAt unchanged so the
// schedule stays due, and enforces the on-failure policy.
func (d *Driver) recordFailure(ctx context.Context, s *types.Schedule, cause error) {
	count, err := d.repo.IncrementFailure(ctx, s.ID, cause.Error())
	if err != nil {
		d.logger.Error("Failed to record schedule failure", zap.String("schedule_id", s.ID), zap.Error(err))
		return
	}

	d.logger.Warn("Schedule execution failed",
		zap.String("schedule_id", s.ID),
		zap.String("scan_type", string(s.ScanType)),
		zap.Int("failure_count", count),
		zap.Int("max_failures", s.MaxFailures),
		zap.Error(cause),
	)

	if s.OnFailureAction == types.FailureActionPause && s.MaxFailures > 0 && count >= s.MaxFailures {
		if err := d.repo.SetStatus(ctx, s.ID, types.SchedulePaused); err != nil {
			d.logger.Error("Failed to auto-pause schedule", zap.String("schedule_id", s.ID), zap.Error(err))
			return
		}
		d.metrics.IncSchedulesPaused()
		d.logger.Warn("Schedule auto-paused after repeated failures",
			zap.String("schedule_id", s.ID),
			zap.Int("failure_count", count),
		)
	}
}

// RunNow force-sets a schedule's nextRunAt to now so the next tick picks it
// up.
func (d *Driver) RunNow(ctx context.Context, scheduleID string) error {
	if _, err := d.repo.Get(ctx, scheduleID); err != nil {
		return err
	}
	if err := d.repo.SetNextRun(ctx, scheduleID, d.now().UTC()); err != nil {
		return fmt.Errorf("failed to force next run: %w", err)
	}
	d.logger.Info("Schedule forced to run now", zap.String("schedule_id", scheduleID))
	return nil
}
