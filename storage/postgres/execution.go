package postgres

import (
	"context"
	"fmt"

	"github.com/affinitybots/triggerd/internal/types"
)

func (p *PostgresBackend) CreateExecution(ctx context.Context, execution types.Execution) error {
	query := `
        INSERT INTO workflow_schedule_executions
        (trigger_id, executed_at, status, duration_ms, error)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := p.pool.Exec(ctx, query,
		execution.TriggerID,
		execution.ExecutedAt,
		execution.Status,
		execution.DurationMs,
		execution.Error,
	)
	if err != nil {
		return fmt.Errorf("fail to insert execution for trigger %s, err: %w", execution.TriggerID, err)
	}
	return nil
}

func (p *PostgresBackend) GetExecutions(ctx context.Context, triggerID string, limit int) ([]types.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT id, trigger_id, executed_at, status, duration_ms, error
        FROM workflow_schedule_executions
        WHERE trigger_id = $1
        ORDER BY executed_at DESC
        LIMIT $2`

	rows, err := p.pool.Query(ctx, query, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("fail to query executions for trigger %s, err: %w", triggerID, err)
	}
	defer rows.Close()

	var executions []types.Execution
	for rows.Next() {
		var e types.Execution
		err := rows.Scan(
			&e.ID,
			&e.TriggerID,
			&e.ExecutedAt,
			&e.Status,
			&e.DurationMs,
			&e.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("fail to scan execution row, err: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}
