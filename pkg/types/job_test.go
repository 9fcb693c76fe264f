package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobDefaults(t *testing.T) {
	target := Target{Database: "analytics", Schema: "public", Table: "orders"}
	job := NewJob("sched_1", ScanChecks, target, PriorityHigh, 2)

	assert.True(t, strings.HasPrefix(job.ID, "job_"))
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.False(t, job.CreatedAt.IsZero())
	require.NoError(t, job.Validate())
}

func TestJobShouldRetry(t *testing.T) {
	job := NewJob("", ScanChecks, Target{Database: "d", Schema: "s", Table: "t"}, PriorityNormal, 2)

	// maxRetries=2 allows exactly two re-attempts after the first run.
	assert.True(t, job.ShouldRetry())
	job.IncrementRetry()
	assert.True(t, job.ShouldRetry())
	job.IncrementRetry()
	assert.False(t, job.ShouldRetry())
	assert.Equal(t, 2, job.RetryCount)
}

func TestJobValidate(t *testing.T) {
	valid := Target{Database: "d", Schema: "s", Table: "t"}

	assert.Error(t, NewJob("", ScanType("bogus"), valid, PriorityNormal, 0).Validate())
	assert.Error(t, NewJob("", ScanChecks, Target{Database: "d"}, PriorityNormal, 0).Validate())
	assert.Error(t, NewJob("", ScanChecks, valid, PriorityNormal, -1).Validate())

	job := NewJob("", ScanChecks, valid, PriorityNormal, 0)
	job.ID = ""
	assert.Error(t, job.Validate())
}

func TestPriorityWeightOrdering(t *testing.T) {
	assert.Less(t, PriorityHigh.Weight(), PriorityNormal.Weight())
	assert.Less(t, PriorityNormal.Weight(), PriorityLow.Weight())
	assert.Equal(t, PriorityNormal.Weight(), Priority("").Weight(), "unknown priorities rank as normal")
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusRetrying.Terminal())
}

func TestTargetString(t *testing.T) {
	target := Target{Database: "analytics", Schema: "public", Table: "orders"}
	assert.Equal(t, "analytics.public.orders", target.String())
}
