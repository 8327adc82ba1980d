package registry

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/affinitybots/triggerd/internal/types"
)

// specParser accepts standard 5-field cron, an optional leading seconds
// field, and @descriptors such as @hourly.
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ScheduleSpec is a validated recurrence rule bound to a timezone.
type ScheduleSpec struct {
	Cron     string
	Timezone string

	schedule cron.Schedule
}

// ParseScheduleSpec validates a cron expression and an IANA timezone name
// (default UTC). Every failure wraps types.ErrInvalidSchedule.
func ParseScheduleSpec(expr, timezone string) (*ScheduleSpec, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty cron expression", types.ErrInvalidSchedule)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", types.ErrInvalidSchedule, timezone)
	}
	schedule, err := specParser.Parse(fmt.Sprintf("CRON_TZ=%s %s", timezone, expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSchedule, err)
	}
	return &ScheduleSpec{
		Cron:     expr,
		Timezone: timezone,
		schedule: schedule,
	}, nil
}

// Next returns the first occurrence strictly after the given time. Occurrences
// that have already passed are never replayed, matching cron semantics.
func (s *ScheduleSpec) Next(after time.Time) time.Time {
	return s.schedule.Next(after)
}
