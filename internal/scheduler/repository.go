package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tableguard/tableguard/pkg/types"
)

// Repository is the durable store of schedules. It remains the source of
// truth for next-run times and failure counts across process restarts; the
// scheduler core treats it as an opaque CRUD interface.
type Repository interface {
	// Create persists a new schedule
	Create(ctx context.Context, s *types.Schedule) error

	// Get returns the schedule by ID
	Get(ctx context.Context, id string) (*types.Schedule, error)

	// Update overwrites the stored schedule
	Update(ctx context.Context, s *types.Schedule) error

	// SoftDelete marks the schedule deleted without removing it
	SoftDelete(ctx context.Context, id string) error

	// List returns all non-deleted schedules
	List(ctx context.Context) ([]*types.Schedule, error)

	// ListDue returns active schedules with nextRunAt <= now, ordered by
	// nextRunAt ascending, at most limit of them
	ListDue(ctx context.Context, now time.Time, limit int) ([]*types.Schedule, error)

	// MarkExecuted records a successful run: nextRunAt and lastRunAt are
	// set and the failure count is reset
	MarkExecuted(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error

	// IncrementFailure records a failed run and returns the new count.
	// nextRunAt is left unchanged so the schedule stays due.
	IncrementFailure(ctx context.Context, id string, lastError string) (int, error)

	// SetNextRun force-sets nextRunAt (the "run now" override)
	SetNextRun(ctx context.Context, id string, at time.Time) error

	// SetStatus changes the schedule status
	SetStatus(ctx context.Context, id string, status types.ScheduleStatus) error
}

// ErrScheduleNotFound is returned by repositories for unknown IDs.
var ErrScheduleNotFound = fmt.Errorf("schedule not found")

// MemoryRepository is a mutex-guarded in-process Repository, used in tests
// and in single-node deployments without Redis.
type MemoryRepository struct {
	mu        sync.RWMutex
	schedules map[string]*types.Schedule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{schedules: make(map[string]*types.Schedule)}
}

func (r *MemoryRepository) Create(_ context.Context, s *types.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule validation failed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[s.ID]; exists {
		return fmt.Errorf("schedule %s already exists", s.ID)
	}
	c := *s
	r.schedules[s.ID] = &c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*types.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	c := *s
	return &c, nil
}

func (r *MemoryRepository) Update(_ context.Context, s *types.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule validation failed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[s.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, s.ID)
	}
	c := *s
	c.UpdatedAt = time.Now().UTC()
	r.schedules[s.ID] = &c
	return nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id string) error {
	return r.SetStatus(ctx, id, types.ScheduleDeleted)
}

func (r *MemoryRepository) List(_ context.Context) ([]*types.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		if s.Status == types.ScheduleDeleted {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*types.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]*types.Schedule, 0)
	for _, s := range r.schedules {
		if s.Status != types.ScheduleActive || s.NextRunAt.After(now) {
			continue
		}
		c := *s
		due = append(due, &c)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryRepository) MarkExecuted(_ context.Context, id string, nextRunAt, lastRunAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.NextRunAt = nextRunAt
	last := lastRunAt
	s.LastRunAt = &last
	s.FailureCount = 0
	s.LastError = ""
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) IncrementFailure(_ context.Context, id string, lastError string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.FailureCount++
	s.LastError = lastError
	s.UpdatedAt = time.Now().UTC()
	return s.FailureCount, nil
}

func (r *MemoryRepository) SetNextRun(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.NextRunAt = at
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id string, status types.ScheduleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}
