package tasks

const (
	TypeScheduleFire = "schedule:fire"

	QueueSchedules = "schedules"
)

// ScheduleFirePayload is the body of one due occurrence of a schedule
// trigger. OccurrenceAt is broker time of the occurrence, kept so duplicate
// deliveries of the same occurrence are recognizable in logs.
type ScheduleFirePayload struct {
	TriggerID    string `json:"trigger_id"`
	WorkflowID   string `json:"workflow_id"`
	OccurrenceAt int64  `json:"occurrence_at"`
}
