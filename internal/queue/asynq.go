package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/internal/tasks"
)

const (
	fireMaxRetry = 3
	fireTimeout  = 5 * time.Minute

	listPageSize = 100
)

// AsynqBroker arms schedule occurrences as asynq tasks on the schedules
// queue. Task IDs are deterministic per trigger and occurrence time, so
// re-arming the same occurrence is idempotent.
type AsynqBroker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *logrus.Logger
}

func NewAsynqBroker(redisOpts asynq.RedisClientOpt, logger *logrus.Logger) *AsynqBroker {
	return &AsynqBroker{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		logger:    logger,
	}
}

func occurrenceTaskID(triggerID string, at time.Time) string {
	return fmt.Sprintf("schedule:%s:%d", triggerID, at.Unix())
}

func (b *AsynqBroker) Arm(ctx context.Context, triggerID, workflowID string, at time.Time) error {
	task, err := tasks.NewScheduleFire(triggerID, workflowID, at)
	if err != nil {
		return fmt.Errorf("fail to build schedule fire task, err: %w", err)
	}
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(occurrenceTaskID(triggerID, at)),
		asynq.Queue(tasks.QueueSchedules),
		asynq.MaxRetry(fireMaxRetry),
		asynq.Timeout(fireTimeout),
	)
	if err != nil {
		// Same trigger, same occurrence: already armed.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("fail to enqueue schedule fire for trigger %s, err: %w", triggerID, err)
	}
	return nil
}

func (b *AsynqBroker) Disarm(ctx context.Context, triggerID string) error {
	infos, err := b.listScheduleTasks()
	if err != nil {
		return err
	}
	for _, info := range infos {
		var p tasks.ScheduleFirePayload
		if err := json.Unmarshal(info.Payload, &p); err != nil {
			b.logger.Warnf("fail to parse payload of task %s, err: %v", info.ID, err)
			continue
		}
		if p.TriggerID != triggerID {
			continue
		}
		if err := b.inspector.DeleteTask(tasks.QueueSchedules, info.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("fail to delete task %s, err: %w", info.ID, err)
		}
	}
	return nil
}

func (b *AsynqBroker) Armed(ctx context.Context, triggerID string) (bool, error) {
	infos, err := b.listScheduleTasks()
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		var p tasks.ScheduleFirePayload
		if err := json.Unmarshal(info.Payload, &p); err != nil {
			continue
		}
		if p.TriggerID == triggerID {
			return true, nil
		}
	}
	return false, nil
}

// listScheduleTasks collects both scheduled (future) and pending (due, not
// yet picked up) occurrences on the schedules queue.
func (b *AsynqBroker) listScheduleTasks() ([]*asynq.TaskInfo, error) {
	var all []*asynq.TaskInfo
	for _, list := range []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		b.inspector.ListScheduledTasks,
		b.inspector.ListPendingTasks,
	} {
		for page := 1; ; page++ {
			infos, err := list(tasks.QueueSchedules, asynq.PageSize(listPageSize), asynq.Page(page))
			if err != nil {
				if errors.Is(err, asynq.ErrQueueNotFound) {
					break
				}
				return nil, fmt.Errorf("fail to list schedule tasks, err: %w", err)
			}
			all = append(all, infos...)
			if len(infos) < listPageSize {
				break
			}
		}
	}
	return all, nil
}

func (b *AsynqBroker) Close() error {
	if err := b.inspector.Close(); err != nil {
		b.logger.Errorf("fail to close inspector, err: %v", err)
	}
	return b.client.Close()
}
