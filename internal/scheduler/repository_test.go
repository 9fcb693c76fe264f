package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tableguard/tableguard/pkg/types"
)

func newSchedule(table string, nextRunAt time.Time) *types.Schedule {
	s := types.NewSchedule(types.Target{
		Database: "analytics",
		Schema:   "public",
		Table:    table,
	}, types.ScanChecks, types.RecurrenceHourly)
	s.NextRunAt = nextRunAt
	return s
}

func TestMemoryRepositoryCRUD(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := newSchedule("orders", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, s))

	err := repo.Create(ctx, s)
	assert.Error(t, err, "duplicate IDs are rejected")

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Target, got.Target)

	got.TimeOfDay = "04:30"
	got.RecurrenceType = types.RecurrenceDaily
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "04:30", updated.TimeOfDay)

	_, err = repo.Get(ctx, "sched_missing")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := newSchedule("orders", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Status = types.ScheduleDeleted

	again, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ScheduleActive, again.Status, "mutating a returned schedule must not affect the store")
}

func TestMemoryRepositoryListExcludesDeleted(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	a := newSchedule("a", time.Now().UTC())
	b := newSchedule("b", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.SoftDelete(ctx, a.ID))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)

	// Soft-deleted schedules are still readable directly.
	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ScheduleDeleted, got.Status)
}

func TestMemoryRepositoryListDue(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	overdue := newSchedule("overdue", now.Add(-time.Hour))
	justDue := newSchedule("just_due", now)
	future := newSchedule("future", now.Add(time.Hour))
	paused := newSchedule("paused", now.Add(-time.Hour))

	for _, s := range []*types.Schedule{overdue, justDue, future, paused} {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, repo.SetStatus(ctx, paused.ID, types.SchedulePaused))

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "overdue", due[0].Target.Table, "ordered by nextRunAt ascending")
	assert.Equal(t, "just_due", due[1].Target.Table, "nextRunAt equal to now counts as due")

	limited, err := repo.ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "overdue", limited[0].Target.Table)
}

func TestMemoryRepositoryMarkExecutedResetsFailures(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	s := newSchedule("orders", now)
	require.NoError(t, repo.Create(ctx, s))

	count, err := repo.IncrementFailure(ctx, s.ID, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.IncrementFailure(ctx, s.ID, "connection refused")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "connection refused", got.LastError)
	assert.Equal(t, now, got.NextRunAt, "failures leave nextRunAt unchanged")

	next := now.Add(time.Hour)
	require.NoError(t, repo.MarkExecuted(ctx, s.ID, next, now))

	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailureCount)
	assert.Empty(t, got.LastError)
	assert.Equal(t, next, got.NextRunAt)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, now, *got.LastRunAt)
}

func TestMemoryRepositorySetNextRun(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	s := newSchedule("orders", now.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.SetNextRun(ctx, s.ID, now))

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	err = repo.SetNextRun(ctx, "sched_missing", now)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}
