package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecurrenceType is the simplified recurrence vocabulary exposed to users.
// It converts to a 5-field interval expression via the schedule resolver.
type RecurrenceType string

const (
	RecurrenceHourly  RecurrenceType = "hourly"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceNone    RecurrenceType = "none"
)

type ScheduleStatus string

const (
	ScheduleActive  ScheduleStatus = "active"
	SchedulePaused  ScheduleStatus = "paused"
	ScheduleDeleted ScheduleStatus = "deleted"
)

// FailureAction is what the driver does once FailureCount reaches MaxFailures.
type FailureAction string

const (
	FailureActionPause FailureAction = "pause"
	FailureActionNone  FailureAction = "none"
)

// Schedule is a persisted recurrence configuration. The repository owns it;
// the driver reads due schedules and writes back run outcomes.
type Schedule struct {
	ID       string   `json:"id"`
	Target   Target   `json:"target"`
	ScanType ScanType `json:"scan_type"`

	IsRecurring    bool           `json:"is_recurring"`
	RecurrenceType RecurrenceType `json:"recurrence_type"`
	TimeOfDay      string         `json:"time_of_day,omitempty"` // "HH:MM"
	DaysOfWeek     []string       `json:"days_of_week,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`

	Status    ScheduleStatus `json:"status"`
	NextRunAt time.Time      `json:"next_run_at"`
	LastRunAt *time.Time     `json:"last_run_at,omitempty"`

	FailureCount    int           `json:"failure_count"`
	MaxFailures     int           `json:"max_failures"`
	OnFailureAction FailureAction `json:"on_failure_action"`
	LastError       string        `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSchedule(target Target, scanType ScanType, recurrence RecurrenceType) *Schedule {
	now := time.Now().UTC()
	return &Schedule{
		ID:              generateScheduleID(),
		Target:          target,
		ScanType:        scanType,
		IsRecurring:     recurrence != RecurrenceNone,
		RecurrenceType:  recurrence,
		Status:          ScheduleActive,
		MaxFailures:     3,
		OnFailureAction: FailureActionPause,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Schedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	if !s.ScanType.Valid() {
		return fmt.Errorf("unknown scan type %q", s.ScanType)
	}
	if err := s.Target.Validate(); err != nil {
		return err
	}
	switch s.RecurrenceType {
	case RecurrenceHourly, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceNone:
	default:
		return fmt.Errorf("unknown recurrence type %q", s.RecurrenceType)
	}
	if s.IsRecurring && s.RecurrenceType == RecurrenceNone {
		return fmt.Errorf("recurring schedule requires a recurrence type")
	}
	return nil
}

func generateScheduleID() string {
	return "sched_" + uuid.NewString()
}
