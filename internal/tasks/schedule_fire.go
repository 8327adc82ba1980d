package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

func NewScheduleFire(triggerID, workflowID string, occurrenceAt time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(ScheduleFirePayload{
		TriggerID:    triggerID,
		WorkflowID:   workflowID,
		OccurrenceAt: occurrenceAt.Unix(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeScheduleFire, payload), nil
}
