package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanType identifies which external scan operation a job invokes.
type ScanType string

const (
	ScanProfiling ScanType = "profiling"
	ScanChecks    ScanType = "checks"
	ScanFull      ScanType = "full"
	ScanAnomalies ScanType = "anomalies"
)

// Valid reports whether the scan type is one of the supported kinds.
func (s ScanType) Valid() bool {
	switch s {
	case ScanProfiling, ScanChecks, ScanFull, ScanAnomalies:
		return true
	}
	return false
}

// Priority determines a job's position in the waiting queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Weight maps a priority to an ordering rank; lower runs first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Enum to represent the stage of the job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusRetrying  JobStatus = "retrying"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether a job in this status will never run again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Target names the warehouse coordinates a scan runs against. The queue
// treats it as opaque.
type Target struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s.%s.%s", t.Database, t.Schema, t.Table)
}

func (t Target) Validate() error {
	if t.Database == "" {
		return fmt.Errorf("target database cannot be empty")
	}
	if t.Schema == "" {
		return fmt.Errorf("target schema cannot be empty")
	}
	if t.Table == "" {
		return fmt.Errorf("target table cannot be empty")
	}
	return nil
}

// ScanResult is the outcome reported by an external scan operation.
type ScanResult struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Job is one in-memory unit of scan work. Mutated only by the queue's
// dispatch loop after enqueue.
type Job struct {
	ID          string      `json:"id"`
	ScheduleID  string      `json:"schedule_id,omitempty"`
	ScanType    ScanType    `json:"scan_type"`
	Target      Target      `json:"target"`
	Priority    Priority    `json:"priority"`
	Status      JobStatus   `json:"status"`
	RetryCount  int         `json:"retry_count"`
	MaxRetries  int         `json:"max_retries"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	Result      *ScanResult `json:"result,omitempty"`
}

func NewJob(scheduleID string, scanType ScanType, target Target, priority Priority, maxRetries int) *Job {
	return &Job{
		ID:         generateJobID(),
		ScheduleID: scheduleID,
		ScanType:   scanType,
		Target:     target,
		Priority:   priority,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
}

func (j *Job) ShouldRetry() bool {
	return j.RetryCount < j.MaxRetries
}

func (j *Job) IncrementRetry() {
	j.RetryCount++
}

func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if !j.ScanType.Valid() {
		return fmt.Errorf("unknown scan type %q", j.ScanType)
	}
	if err := j.Target.Validate(); err != nil {
		return err
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

func generateJobID() string {
	return "job_" + uuid.NewString()
}
