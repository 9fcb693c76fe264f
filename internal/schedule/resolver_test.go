package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tableguard/tableguard/pkg/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestToIntervalExpression(t *testing.T) {
	tests := []struct {
		name       string
		recurrence types.RecurrenceType
		timeOfDay  string
		days       []string
		want       string
	}{
		{"hourly ignores time of day", types.RecurrenceHourly, "09:30", nil, "0 * * * *"},
		{"daily", types.RecurrenceDaily, "09:00", nil, "0 9 * * *"},
		{"daily defaults to midnight", types.RecurrenceDaily, "", nil, "0 0 * * *"},
		{"weekly sorts days", types.RecurrenceWeekly, "14:30", []string{"friday", "monday"}, "30 14 * * 1,5"},
		{"weekly sunday is zero", types.RecurrenceWeekly, "06:00", []string{"Sunday"}, "0 6 * * 0"},
		{"monthly fixed to the first", types.RecurrenceMonthly, "02:00", nil, "0 2 1 * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToIntervalExpression(tt.recurrence, tt.timeOfDay, tt.days)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToIntervalExpressionErrors(t *testing.T) {
	_, err := ToIntervalExpression(types.RecurrenceDaily, "25:00", nil)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, err = ToIntervalExpression(types.RecurrenceDaily, "09:61", nil)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, err = ToIntervalExpression(types.RecurrenceDaily, "nine am", nil)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, err = ToIntervalExpression(types.RecurrenceWeekly, "09:00", nil)
	assert.ErrorIs(t, err, ErrUnsupportedScheduleType, "weekly requires days")

	_, err = ToIntervalExpression(types.RecurrenceWeekly, "09:00", []string{"funday"})
	assert.ErrorIs(t, err, ErrUnsupportedScheduleType)

	_, err = ToIntervalExpression(types.RecurrenceType("fortnightly"), "09:00", nil)
	assert.ErrorIs(t, err, ErrUnsupportedScheduleType)
}

func TestNextRunTimeDailyRollsToTomorrow(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	next, err := r.NextRunTime("0 9 * * *", "")
	require.NoError(t, err)

	// 09:00 already passed today, so the next firing is tomorrow.
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunTimeIsStrictlyInTheFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	next, err := r.NextRunTime("0 9 * * *", "")
	require.NoError(t, err)

	// An expression matching the current instant resolves to the next
	// occurrence, never to now itself.
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNextRunTimeHourly(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	next, err := r.NextRunTime("0 * * * *", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestNextRunTimeWeekly(t *testing.T) {
	// 2024-01-01 is a Monday.
	now := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	// Monday 14:30 already passed, so the next firing is Friday.
	next, err := r.NextRunTime("30 14 * * 1,5", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC), next)
	assert.Equal(t, time.Friday, next.Weekday())
}

func TestNextRunTimeHonorsTimezone(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	next, err := r.NextRunTime("0 9 * * *", "America/New_York")
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 12:00 UTC is 08:00 in New York during DST, so 09:00 local is still ahead.
	assert.Equal(t, time.Date(2024, 6, 1, 9, 0, 0, 0, loc), next)
}

func TestNextRunTimeInvalidInput(t *testing.T) {
	r := NewResolver()

	_, err := r.NextRunTime("not an expression", "")
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = r.NextRunTime("0 9 * * *", "Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	assert.True(t, r.IsDue(now.Add(-time.Second)))
	assert.True(t, r.IsDue(now), "due at the exact instant")
	assert.False(t, r.IsDue(now.Add(time.Second)))
}

func TestNextRunForSchedule(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := NewResolverWithClock(fixedClock(now))

	s := types.NewSchedule(types.Target{
		Database: "analytics",
		Schema:   "public",
		Table:    "orders",
	}, types.ScanChecks, types.RecurrenceDaily)
	s.TimeOfDay = "09:00"

	next, err := r.NextRunForSchedule(s)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"0 * * * *", "Hourly at minute 0"},
		{"30 * * * *", "Hourly at minute 30"},
		{"0 9 * * *", "Daily at 09:00"},
		{"30 14 * * 1,5", "Weekly on Monday, Friday at 14:30"},
		{"*/15 * * * *", "Every 15 minutes"},
		{"0 */6 * * *", "Every 6 hours"},
		{"0 2 1 * *", "0 2 1 * *"}, // no monthly pattern; echoed back
		{"garbage", "garbage"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.expr), "expr %q", tt.expr)
	}
}
