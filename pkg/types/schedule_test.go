package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduleDefaults(t *testing.T) {
	target := Target{Database: "analytics", Schema: "public", Table: "orders"}
	s := NewSchedule(target, ScanChecks, RecurrenceDaily)

	assert.True(t, strings.HasPrefix(s.ID, "sched_"))
	assert.True(t, s.IsRecurring)
	assert.Equal(t, ScheduleActive, s.Status)
	assert.Equal(t, 3, s.MaxFailures)
	assert.Equal(t, FailureActionPause, s.OnFailureAction)
	require.NoError(t, s.Validate())
}

func TestNewScheduleOneShot(t *testing.T) {
	target := Target{Database: "analytics", Schema: "public", Table: "orders"}
	s := NewSchedule(target, ScanProfiling, RecurrenceNone)

	assert.False(t, s.IsRecurring)
	require.NoError(t, s.Validate())
}

func TestScheduleValidate(t *testing.T) {
	target := Target{Database: "d", Schema: "s", Table: "t"}

	s := NewSchedule(target, ScanChecks, RecurrenceType("fortnightly"))
	assert.Error(t, s.Validate())

	s = NewSchedule(target, ScanType("bogus"), RecurrenceDaily)
	assert.Error(t, s.Validate())

	s = NewSchedule(Target{}, ScanChecks, RecurrenceDaily)
	assert.Error(t, s.Validate())

	s = NewSchedule(target, ScanChecks, RecurrenceNone)
	s.IsRecurring = true
	assert.Error(t, s.Validate(), "recurring schedules need a real recurrence type")
}
