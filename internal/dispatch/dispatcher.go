// Package dispatch fans inbound webhook calls and third-party integration
// events out to matching active triggers.
package dispatch

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/internal/history"
	"github.com/affinitybots/triggerd/internal/types"
	"github.com/affinitybots/triggerd/internal/workflow"
)

type Store interface {
	GetTrigger(ctx context.Context, triggerID string) (*types.Trigger, error)
	GetActiveIntegrationTriggers(ctx context.Context) ([]types.Trigger, error)
}

type Dispatcher struct {
	store   Store
	invoker workflow.Invoker
	history *history.Service
	logger  *logrus.Logger
	now     func() time.Time
}

func NewDispatcher(store Store, invoker workflow.Invoker, historyService *history.Service, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		invoker: invoker,
		history: historyService,
		logger:  logger,
		now:     time.Now,
	}
}

// DispatchWebhook fires one webhook trigger addressed by (workflowID,
// triggerID). The caller's secret may arrive via query parameter or header;
// either match is accepted, so both candidates are passed in.
func (d *Dispatcher) DispatchWebhook(ctx context.Context, workflowID, triggerID string, secrets []string, payload map[string]interface{}) (*workflow.RunResult, error) {
	trigger, err := d.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if trigger.WorkflowID != workflowID || !trigger.IsActive {
		return nil, fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	cfg, err := trigger.WebhookConfig()
	if err != nil {
		return nil, err
	}
	if !anySecretMatches(cfg.Secret, secrets) {
		return nil, types.ErrUnauthorized
	}

	start := d.now()
	result, err := d.invoker.Invoke(ctx, workflowID, payload)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		d.history.Record(ctx, triggerID, types.ExecutionStatusFailed, durationMs, err.Error())
		return nil, fmt.Errorf("fail to invoke workflow %s, err: %w", workflowID, err)
	}
	if !result.Success {
		d.history.Record(ctx, triggerID, types.ExecutionStatusFailed, durationMs, result.Error)
		return result, nil
	}
	d.history.Record(ctx, triggerID, types.ExecutionStatusSuccess, durationMs, "")
	return result, nil
}

// DispatchIntegrationEvent fans one inbound event out to every active
// integration trigger whose provider and event match case-insensitively and
// whose configured secret, if any, matches the event's. Each match is
// attempted independently; one failing invocation never blocks the rest. The
// returned count is attempts, not successes.
func (d *Dispatcher) DispatchIntegrationEvent(ctx context.Context, event types.IntegrationEvent) (int, error) {
	triggers, err := d.store.GetActiveIntegrationTriggers(ctx)
	if err != nil {
		return 0, fmt.Errorf("fail to load integration triggers, err: %w", err)
	}

	// Correlates the fan-out's log lines across matched triggers.
	eventID := uuid.NewString()
	dispatched := 0
	for i := range triggers {
		trigger := &triggers[i]
		cfg, err := trigger.IntegrationConfig()
		if err != nil {
			d.logger.WithField("trigger_id", trigger.ID).Warnf("skipping trigger with bad config, err: %v", err)
			continue
		}
		if !strings.EqualFold(cfg.Provider, event.Provider) || !strings.EqualFold(cfg.Event, event.Event) {
			continue
		}
		// Triggers without a configured secret accept any caller.
		if cfg.Secret != "" && !secretMatches(cfg.Secret, event.Secret) {
			continue
		}

		dispatched++
		start := d.now()
		result, err := d.invoker.Invoke(ctx, trigger.WorkflowID, event.Payload)
		durationMs := time.Since(start).Milliseconds()
		switch {
		case err != nil:
			d.logger.WithFields(logrus.Fields{
				"event_id":    eventID,
				"trigger_id":  trigger.ID,
				"workflow_id": trigger.WorkflowID,
			}).Errorf("fail to invoke workflow for integration event, err: %v", err)
			d.history.Record(ctx, trigger.ID, types.ExecutionStatusFailed, durationMs, err.Error())
		case !result.Success:
			d.history.Record(ctx, trigger.ID, types.ExecutionStatusFailed, durationMs, result.Error)
		default:
			d.history.Record(ctx, trigger.ID, types.ExecutionStatusSuccess, durationMs, "")
		}
	}

	d.logger.WithFields(logrus.Fields{
		"event_id":   eventID,
		"provider":   event.Provider,
		"event":      event.Event,
		"dispatched": dispatched,
	}).Info("Integration event dispatched")
	return dispatched, nil
}

// RunManual invokes a workflow once on demand, recording the run against the
// addressed trigger. Authorization has already happened at the API boundary.
func (d *Dispatcher) RunManual(ctx context.Context, workflowID, triggerID string, payload map[string]interface{}) (*workflow.RunResult, error) {
	trigger, err := d.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if trigger.WorkflowID != workflowID {
		return nil, fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}

	start := d.now()
	result, err := d.invoker.Invoke(ctx, workflowID, payload)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		d.history.Record(ctx, triggerID, types.ExecutionStatusFailed, durationMs, err.Error())
		return nil, fmt.Errorf("fail to invoke workflow %s, err: %w", workflowID, err)
	}
	if !result.Success {
		d.history.Record(ctx, triggerID, types.ExecutionStatusFailed, durationMs, result.Error)
		return result, nil
	}
	d.history.Record(ctx, triggerID, types.ExecutionStatusSuccess, durationMs, "")
	return result, nil
}

func secretMatches(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func anySecretMatches(want string, candidates []string) bool {
	for _, candidate := range candidates {
		if secretMatches(want, candidate) {
			return true
		}
	}
	return false
}
