package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/contexthelper"
	"github.com/affinitybots/triggerd/internal/history"
	"github.com/affinitybots/triggerd/internal/registry"
	"github.com/affinitybots/triggerd/internal/tasks"
	"github.com/affinitybots/triggerd/internal/types"
	"github.com/affinitybots/triggerd/internal/workflow"
)

type WorkerStore interface {
	GetTrigger(ctx context.Context, triggerID string) (*types.Trigger, error)
	GetWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error)
}

// WorkerService turns due schedule occurrences into workflow kickoffs. Each
// firing runs Validating -> Invoking -> Recording in isolation; a failed
// firing is recorded and the next occurrence proceeds normally.
type WorkerService struct {
	store    WorkerStore
	registry *registry.Service
	invoker  workflow.Invoker
	history  *history.Service
	sdClient *statsd.Client
	logger   *logrus.Logger
}

// NewWorker creates a new worker service.
func NewWorker(store WorkerStore, registryService *registry.Service, invoker workflow.Invoker, historyService *history.Service, sdClient *statsd.Client, logger *logrus.Logger) *WorkerService {
	return &WorkerService{
		store:    store,
		registry: registryService,
		invoker:  invoker,
		history:  historyService,
		sdClient: sdClient,
		logger:   logger,
	}
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func (s *WorkerService) HandleScheduleFire(ctx context.Context, t *asynq.Task) error {
	if err := contexthelper.CheckCancellation(ctx); err != nil {
		return err
	}
	defer s.measureTime("worker.schedule.fire.latency", time.Now(), []string{})

	var p tasks.ScheduleFirePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	s.logger.WithFields(logrus.Fields{
		"trigger_id":  p.TriggerID,
		"workflow_id": p.WorkflowID,
	}).Info("Handling schedule firing")

	start := time.Now()

	trigger, err := s.store.GetTrigger(ctx, p.TriggerID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			// Trigger was deleted after this occurrence was armed. Nothing
			// to record and nothing to re-arm.
			s.logger.WithField("trigger_id", p.TriggerID).Info("Trigger no longer exists, dropping firing")
			return nil
		}
		return fmt.Errorf("fail to load trigger %s, err: %w", p.TriggerID, err)
	}

	if !trigger.IsActive || trigger.Type != types.TriggerTypeSchedule {
		s.history.Record(ctx, p.TriggerID, types.ExecutionStatusSkipped, time.Since(start).Milliseconds(), "trigger inactive")
		s.incCounter("worker.schedule.fire", []string{"status:skipped"})
		return nil
	}

	// Keep the recurrence alive regardless of how this firing ends. A
	// failed re-arm is healed by the next startup sync.
	if err := s.registry.ArmNext(ctx, trigger); err != nil {
		s.logger.WithField("trigger_id", trigger.ID).Errorf("fail to arm next occurrence, err: %v", err)
	}

	wf, err := s.store.GetWorkflow(ctx, trigger.WorkflowID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			s.history.Record(ctx, p.TriggerID, types.ExecutionStatusSkipped, time.Since(start).Milliseconds(), "workflow not found")
			s.incCounter("worker.schedule.fire", []string{"status:skipped"})
			return nil
		}
		return fmt.Errorf("fail to load workflow %s, err: %w", trigger.WorkflowID, err)
	}
	if !wf.IsActive {
		// The workflow's own active flag wins over the armed job, so a
		// deactivation racing an in-flight occurrence still skips.
		s.history.Record(ctx, p.TriggerID, types.ExecutionStatusSkipped, time.Since(start).Milliseconds(), "workflow inactive")
		s.incCounter("worker.schedule.fire", []string{"status:skipped"})
		return nil
	}

	result, err := s.invoker.Invoke(ctx, wf.ID, nil)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		s.history.Record(ctx, p.TriggerID, types.ExecutionStatusFailed, durationMs, err.Error())
		s.incCounter("worker.schedule.fire", []string{"status:failed"})
		return nil
	}
	if !result.Success {
		s.history.Record(ctx, p.TriggerID, types.ExecutionStatusFailed, durationMs, result.Error)
		s.incCounter("worker.schedule.fire", []string{"status:failed"})
		return nil
	}

	s.history.Record(ctx, p.TriggerID, types.ExecutionStatusSuccess, durationMs, "")
	s.incCounter("worker.schedule.fire", []string{"status:success"})
	s.logger.WithFields(logrus.Fields{
		"trigger_id": p.TriggerID,
		"run_id":     result.RunID,
	}).Info("Schedule firing completed")
	return nil
}
