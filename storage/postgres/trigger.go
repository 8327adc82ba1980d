package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/affinitybots/triggerd/internal/types"
)

func (p *PostgresBackend) GetTrigger(ctx context.Context, triggerID string) (*types.Trigger, error) {
	query := `
        SELECT trigger_id, workflow_id, trigger_type, config, is_active, created_at, updated_at
        FROM workflow_triggers
        WHERE trigger_id = $1`

	var t types.Trigger
	err := p.pool.QueryRow(ctx, query, triggerID).Scan(
		&t.ID,
		&t.WorkflowID,
		&t.Type,
		&t.Config,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
		}
		return nil, fmt.Errorf("fail to get trigger %s, err: %w", triggerID, err)
	}
	return &t, nil
}

func (p *PostgresBackend) UpdateTriggerSchedule(ctx context.Context, triggerID string, cfg types.ScheduleConfig, active bool) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("fail to marshal schedule config, err: %w", err)
	}

	query := `
        UPDATE workflow_triggers
        SET config = $2, is_active = $3, updated_at = NOW()
        WHERE trigger_id = $1`

	tag, err := p.pool.Exec(ctx, query, triggerID, configJSON, active)
	if err != nil {
		return fmt.Errorf("fail to update trigger %s, err: %w", triggerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	return nil
}

func (p *PostgresBackend) SetTriggerActive(ctx context.Context, triggerID string, active bool) error {
	query := `
        UPDATE workflow_triggers
        SET is_active = $2, updated_at = NOW()
        WHERE trigger_id = $1`

	tag, err := p.pool.Exec(ctx, query, triggerID, active)
	if err != nil {
		return fmt.Errorf("fail to set trigger %s active=%t, err: %w", triggerID, active, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	return nil
}

func (p *PostgresBackend) GetActiveScheduleTriggers(ctx context.Context) ([]types.Trigger, error) {
	return p.getActiveTriggersByType(ctx, types.TriggerTypeSchedule)
}

func (p *PostgresBackend) GetActiveIntegrationTriggers(ctx context.Context) ([]types.Trigger, error) {
	return p.getActiveTriggersByType(ctx, types.TriggerTypeIntegration)
}

func (p *PostgresBackend) getActiveTriggersByType(ctx context.Context, triggerType types.TriggerType) ([]types.Trigger, error) {
	query := `
        SELECT trigger_id, workflow_id, trigger_type, config, is_active, created_at, updated_at
        FROM workflow_triggers
        WHERE trigger_type = $1 AND is_active = TRUE`

	rows, err := p.pool.Query(ctx, query, triggerType)
	if err != nil {
		return nil, fmt.Errorf("fail to query %s triggers, err: %w", triggerType, err)
	}
	defer rows.Close()

	var triggers []types.Trigger
	for rows.Next() {
		var t types.Trigger
		err := rows.Scan(
			&t.ID,
			&t.WorkflowID,
			&t.Type,
			&t.Config,
			&t.IsActive,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("fail to scan trigger row, err: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}
