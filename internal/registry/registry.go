// Package registry keeps the persisted trigger configuration and the queue
// broker's armed occurrences in agreement.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/internal/queue"
	"github.com/affinitybots/triggerd/internal/types"
)

type Store interface {
	GetTrigger(ctx context.Context, triggerID string) (*types.Trigger, error)
	UpdateTriggerSchedule(ctx context.Context, triggerID string, cfg types.ScheduleConfig, active bool) error
	SetTriggerActive(ctx context.Context, triggerID string, active bool) error
	GetActiveScheduleTriggers(ctx context.Context) ([]types.Trigger, error)
}

type Service struct {
	store  Store
	broker queue.Broker
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(store Store, broker queue.Broker, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

type RegisterParams struct {
	TriggerID      string
	WorkflowID     string
	CronExpression string
	Timezone       string
	Enabled        bool
}

// Register validates and persists a schedule for the trigger, then replaces
// whatever occurrence was armed for it. Calling it repeatedly with updated
// parameters is safe: the trigger ends up with exactly one armed occurrence,
// computed from the latest expression.
func (s *Service) Register(ctx context.Context, p RegisterParams) error {
	trigger, err := s.store.GetTrigger(ctx, p.TriggerID)
	if err != nil {
		return err
	}
	if trigger.WorkflowID != p.WorkflowID {
		return fmt.Errorf("%w: trigger %s does not belong to workflow %s", types.ErrNotFound, p.TriggerID, p.WorkflowID)
	}
	if trigger.Type != types.TriggerTypeSchedule {
		return fmt.Errorf("%w: trigger %s has type %s, want %s", types.ErrTriggerTypeMismatch, p.TriggerID, trigger.Type, types.TriggerTypeSchedule)
	}

	spec, err := ParseScheduleSpec(p.CronExpression, p.Timezone)
	if err != nil {
		return err
	}

	cfg := types.ScheduleConfig{Cron: spec.Cron, Timezone: spec.Timezone}
	if err := s.store.UpdateTriggerSchedule(ctx, p.TriggerID, cfg, p.Enabled); err != nil {
		return fmt.Errorf("fail to persist schedule for trigger %s, err: %w", p.TriggerID, err)
	}

	if err := s.broker.Disarm(ctx, p.TriggerID); err != nil {
		return fmt.Errorf("fail to disarm trigger %s, err: %w", p.TriggerID, err)
	}
	if !p.Enabled {
		return nil
	}
	if err := s.broker.Arm(ctx, p.TriggerID, trigger.WorkflowID, spec.Next(s.now())); err != nil {
		return fmt.Errorf("fail to arm trigger %s, err: %w", p.TriggerID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"trigger_id": p.TriggerID,
		"cron":       spec.Cron,
		"timezone":   spec.Timezone,
	}).Info("Schedule registered")
	return nil
}

// Pause removes the armed occurrence while leaving the persisted
// configuration intact. Pausing an already-paused or unknown trigger is not
// an error.
func (s *Service) Pause(ctx context.Context, triggerID string) error {
	if err := s.store.SetTriggerActive(ctx, triggerID, false); err != nil && !errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("fail to deactivate trigger %s, err: %w", triggerID, err)
	}
	if err := s.broker.Disarm(ctx, triggerID); err != nil {
		return fmt.Errorf("fail to disarm trigger %s, err: %w", triggerID, err)
	}
	s.logger.WithField("trigger_id", triggerID).Info("Schedule paused")
	return nil
}

// Resume re-arms the trigger from its last persisted configuration.
func (s *Service) Resume(ctx context.Context, triggerID string) error {
	trigger, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return err
	}
	spec, err := s.specFor(trigger)
	if err != nil {
		return err
	}
	if err := s.store.SetTriggerActive(ctx, triggerID, true); err != nil {
		return fmt.Errorf("fail to activate trigger %s, err: %w", triggerID, err)
	}
	if err := s.broker.Disarm(ctx, triggerID); err != nil {
		return fmt.Errorf("fail to disarm trigger %s, err: %w", triggerID, err)
	}
	if err := s.broker.Arm(ctx, triggerID, trigger.WorkflowID, spec.Next(s.now())); err != nil {
		return fmt.Errorf("fail to arm trigger %s, err: %w", triggerID, err)
	}
	s.logger.WithField("trigger_id", triggerID).Info("Schedule resumed")
	return nil
}

// ScheduleStatus is the registry's answer to "what is this schedule doing
// right now": the persisted configuration plus whether the broker actually
// holds an occurrence for it.
type ScheduleStatus struct {
	TriggerID string `json:"trigger_id"`
	Cron      string `json:"cron"`
	Timezone  string `json:"timezone"`
	Active    bool   `json:"active"`
	Armed     bool   `json:"armed"`
}

// Status reports the persisted schedule next to the broker's armed state.
// The two disagreeing (active but not armed) is how drift shows up before a
// sync heals it.
func (s *Service) Status(ctx context.Context, triggerID string) (*ScheduleStatus, error) {
	trigger, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	cfg, err := trigger.ScheduleConfig()
	if err != nil {
		return nil, err
	}
	armed, err := s.broker.Armed(ctx, triggerID)
	if err != nil {
		return nil, fmt.Errorf("fail to check armed state of trigger %s, err: %w", triggerID, err)
	}
	return &ScheduleStatus{
		TriggerID: triggerID,
		Cron:      cfg.Cron,
		Timezone:  cfg.Timezone,
		Active:    trigger.IsActive,
		Armed:     armed,
	}, nil
}

// ArmNext arms the trigger's next occurrence. The worker calls this at the
// start of handling a firing so the recurrence keeps running no matter how
// the current firing ends.
func (s *Service) ArmNext(ctx context.Context, trigger *types.Trigger) error {
	spec, err := s.specFor(trigger)
	if err != nil {
		return err
	}
	return s.broker.Arm(ctx, trigger.ID, trigger.WorkflowID, spec.Next(s.now()))
}

// SyncFromDatabase re-arms every active schedule trigger from the database,
// healing any drift left behind by a broker restart. Run once at worker
// startup; the database always wins.
func (s *Service) SyncFromDatabase(ctx context.Context) error {
	triggers, err := s.store.GetActiveScheduleTriggers(ctx)
	if err != nil {
		return fmt.Errorf("fail to load active schedule triggers, err: %w", err)
	}

	armed := 0
	for i := range triggers {
		trigger := &triggers[i]
		spec, err := s.specFor(trigger)
		if err != nil {
			s.logger.WithField("trigger_id", trigger.ID).Errorf("fail to parse persisted schedule, err: %v", err)
			continue
		}
		if err := s.broker.Disarm(ctx, trigger.ID); err != nil {
			s.logger.WithField("trigger_id", trigger.ID).Errorf("fail to disarm, err: %v", err)
			continue
		}
		if err := s.broker.Arm(ctx, trigger.ID, trigger.WorkflowID, spec.Next(s.now())); err != nil {
			s.logger.WithField("trigger_id", trigger.ID).Errorf("fail to arm, err: %v", err)
			continue
		}
		armed++
	}

	s.logger.WithFields(logrus.Fields{
		"total": len(triggers),
		"armed": armed,
	}).Info("Schedules synced from database")
	return nil
}

func (s *Service) specFor(trigger *types.Trigger) (*ScheduleSpec, error) {
	cfg, err := trigger.ScheduleConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSchedule, err)
	}
	return ParseScheduleSpec(cfg.Cron, cfg.Timezone)
}
