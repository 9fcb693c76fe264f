// Package schedule converts human recurrence descriptions into 5-field
// interval expressions and resolves them to concrete next-run instants.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tableguard/tableguard/pkg/types"
)

var (
	ErrInvalidExpression       = errors.New("invalid interval expression")
	ErrUnsupportedScheduleType = errors.New("unsupported schedule type")
	ErrInvalidTimeOfDay        = errors.New("invalid time of day")
)

// dayNumbers maps day names to the 0-indexed-from-Sunday numbering the
// 5-field day-of-week column uses.
var dayNumbers = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// standard 5-field parser: minute, hour, day-of-month, month, day-of-week.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Resolver computes next-run instants. The clock is injectable for tests.
type Resolver struct {
	now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

func NewResolverWithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// NextRunTime returns the next instant strictly after now at which expr
// fires, evaluated in the given timezone (UTC when empty).
func (r *Resolver) NextRunTime(expr, timezone string) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	return sched.Next(r.now().In(loc)), nil
}

// IsDue reports whether nextRunAt has arrived.
func (r *Resolver) IsDue(nextRunAt time.Time) bool {
	return !r.now().Before(nextRunAt)
}

// NextRunForSchedule resolves a schedule's recurrence fields to its next
// firing instant.
func (r *Resolver) NextRunForSchedule(s *types.Schedule) (time.Time, error) {
	expr, err := ToIntervalExpression(s.RecurrenceType, s.TimeOfDay, s.DaysOfWeek)
	if err != nil {
		return time.Time{}, err
	}
	return r.NextRunTime(expr, s.Timezone)
}

// ToIntervalExpression converts a simplified recurrence description into the
// 5-field form. Monthly schedules are fixed to the first of the month.
func ToIntervalExpression(recurrence types.RecurrenceType, timeOfDay string, daysOfWeek []string) (string, error) {
	switch recurrence {
	case types.RecurrenceHourly:
		return "0 * * * *", nil

	case types.RecurrenceDaily:
		h, m, err := parseTimeOfDay(timeOfDay)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil

	case types.RecurrenceWeekly:
		h, m, err := parseTimeOfDay(timeOfDay)
		if err != nil {
			return "", err
		}
		days, err := dayOfWeekField(daysOfWeek)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %s", m, h, days), nil

	case types.RecurrenceMonthly:
		h, m, err := parseTimeOfDay(timeOfDay)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d 1 * *", m, h), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedScheduleType, recurrence)
}

// parseTimeOfDay accepts "HH:MM", defaulting to midnight when empty.
func parseTimeOfDay(timeOfDay string) (hour, minute int, err error) {
	if timeOfDay == "" {
		return 0, 0, nil
	}

	parts := strings.SplitN(timeOfDay, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, timeOfDay)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, timeOfDay)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, timeOfDay)
	}
	return hour, minute, nil
}

func dayOfWeekField(daysOfWeek []string) (string, error) {
	if len(daysOfWeek) == 0 {
		return "", fmt.Errorf("%w: weekly schedule requires at least one day", ErrUnsupportedScheduleType)
	}

	nums := make([]int, 0, len(daysOfWeek))
	for _, d := range daysOfWeek {
		n, ok := dayNumbers[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return "", fmt.Errorf("%w: unknown day %q", ErrUnsupportedScheduleType, d)
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)

	fields := make([]string, len(nums))
	for i, n := range nums {
		fields[i] = strconv.Itoa(n)
	}
	return strings.Join(fields, ","), nil
}

// Describe is a best-effort reverse translation of an interval expression
// for display. Expressions no pattern matches are echoed back unchanged.
func Describe(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if n, ok := everyN(minute); ok && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Every %d minutes", n)
	}
	if n, ok := everyN(hour); ok && minute == "0" && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Every %d hours", n)
	}

	m, mOK := atoiField(minute)
	h, hOK := atoiField(hour)

	if mOK && hour == "*" && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Hourly at minute %d", m)
	}
	if mOK && hOK && dom == "*" && month == "*" && dow == "*" {
		return fmt.Sprintf("Daily at %02d:%02d", h, m)
	}
	if mOK && hOK && dom == "*" && month == "*" && dow != "*" {
		if names, ok := describeDays(dow); ok {
			return fmt.Sprintf("Weekly on %s at %02d:%02d", names, h, m)
		}
	}

	return expr
}

func everyN(field string) (int, bool) {
	if !strings.HasPrefix(field, "*/") {
		return 0, false
	}
	n, err := strconv.Atoi(field[2:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func atoiField(field string) (int, bool) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return n, true
}

func describeDays(dow string) (string, bool) {
	parts := strings.Split(dow, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			return "", false
		}
		names = append(names, dayNames[n])
	}
	return strings.Join(names, ", "), true
}
