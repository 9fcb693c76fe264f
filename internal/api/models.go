package api

import (
	"time"

	"github.com/tableguard/tableguard/pkg/types"
)

// API Request/Response Types

// CreateScheduleRequest represents a request to create a scan schedule
type CreateScheduleRequest struct {
	Database        string               `json:"database" binding:"required"`
	Schema          string               `json:"schema" binding:"required"`
	Table           string               `json:"table" binding:"required"`
	ScanType        types.ScanType       `json:"scan_type" binding:"required"`
	RecurrenceType  types.RecurrenceType `json:"recurrence_type" binding:"required"`
	TimeOfDay       string               `json:"time_of_day,omitempty"`
	DaysOfWeek      []string             `json:"days_of_week,omitempty"`
	Timezone        string               `json:"timezone,omitempty"`
	MaxFailures     *int                 `json:"max_failures,omitempty"`
	OnFailureAction *types.FailureAction `json:"on_failure_action,omitempty"`
}

// UpdateScheduleRequest carries the mutable schedule fields
type UpdateScheduleRequest struct {
	RecurrenceType  *types.RecurrenceType `json:"recurrence_type,omitempty"`
	TimeOfDay       *string               `json:"time_of_day,omitempty"`
	DaysOfWeek      []string              `json:"days_of_week,omitempty"`
	Timezone        *string               `json:"timezone,omitempty"`
	Status          *types.ScheduleStatus `json:"status,omitempty"`
	MaxFailures     *int                  `json:"max_failures,omitempty"`
	OnFailureAction *types.FailureAction  `json:"on_failure_action,omitempty"`
}

// ScheduleResponse represents a schedule with its display description
type ScheduleResponse struct {
	Schedule    *types.Schedule `json:"schedule"`
	Description string          `json:"description,omitempty"`
}

// EnqueueScanRequest represents an ad-hoc scan submission
type EnqueueScanRequest struct {
	Database   string         `json:"database" binding:"required"`
	Schema     string         `json:"schema" binding:"required"`
	Table      string         `json:"table" binding:"required"`
	ScanType   types.ScanType `json:"scan_type" binding:"required"`
	Priority   types.Priority `json:"priority,omitempty"`
	MaxRetries *int           `json:"max_retries,omitempty"`
}

// EnqueueScanResponse represents the response after enqueuing a scan job
type EnqueueScanResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatusResponse represents the response with job status information
type JobStatusResponse struct {
	JobID       string          `json:"job_id"`
	ScanType    types.ScanType  `json:"scan_type"`
	Target      types.Target    `json:"target"`
	Status      types.JobStatus `json:"status"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
}

// TickResponse reports what one driver pass did
type TickResponse struct {
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// HealthResponse represents the response for health check
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}
