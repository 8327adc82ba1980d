package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type TriggerType string

const (
	TriggerTypeSchedule    TriggerType = "schedule"
	TriggerTypeWebhook     TriggerType = "webhook"
	TriggerTypeIntegration TriggerType = "integration"
	TriggerTypeManual      TriggerType = "manual"
)

// Trigger is one way a workflow gets invoked automatically. Config is a JSON
// bag whose shape depends on Type; use the typed accessors below instead of
// reading it directly.
type Trigger struct {
	ID         string          `json:"trigger_id"`
	WorkflowID string          `json:"workflow_id"`
	Type       TriggerType     `json:"trigger_type"`
	Config     json.RawMessage `json:"config"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ScheduleConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

type WebhookConfig struct {
	Secret string `json:"webhook_secret"`
}

type IntegrationConfig struct {
	Provider string `json:"provider"`
	Event    string `json:"event"`
	Secret   string `json:"secret,omitempty"`
}

func (t *Trigger) ScheduleConfig() (*ScheduleConfig, error) {
	if t.Type != TriggerTypeSchedule {
		return nil, fmt.Errorf("%w: trigger %s has type %s, want %s", ErrTriggerTypeMismatch, t.ID, t.Type, TriggerTypeSchedule)
	}
	var cfg ScheduleConfig
	if err := json.Unmarshal(t.Config, &cfg); err != nil {
		return nil, fmt.Errorf("fail to parse schedule config for trigger %s, err: %w", t.ID, err)
	}
	return &cfg, nil
}

func (t *Trigger) WebhookConfig() (*WebhookConfig, error) {
	if t.Type != TriggerTypeWebhook {
		return nil, fmt.Errorf("%w: trigger %s has type %s, want %s", ErrTriggerTypeMismatch, t.ID, t.Type, TriggerTypeWebhook)
	}
	var cfg WebhookConfig
	if err := json.Unmarshal(t.Config, &cfg); err != nil {
		return nil, fmt.Errorf("fail to parse webhook config for trigger %s, err: %w", t.ID, err)
	}
	return &cfg, nil
}

func (t *Trigger) IntegrationConfig() (*IntegrationConfig, error) {
	if t.Type != TriggerTypeIntegration {
		return nil, fmt.Errorf("%w: trigger %s has type %s, want %s", ErrTriggerTypeMismatch, t.ID, t.Type, TriggerTypeIntegration)
	}
	var cfg IntegrationConfig
	if err := json.Unmarshal(t.Config, &cfg); err != nil {
		return nil, fmt.Errorf("fail to parse integration config for trigger %s, err: %w", t.ID, err)
	}
	return &cfg, nil
}
