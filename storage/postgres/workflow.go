package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/affinitybots/triggerd/internal/types"
)

func (p *PostgresBackend) GetWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error) {
	query := `
        SELECT workflow_id, owner_id, name, is_active, created_at
        FROM workflows
        WHERE workflow_id = $1`

	var wf types.Workflow
	err := p.pool.QueryRow(ctx, query, workflowID).Scan(
		&wf.ID,
		&wf.OwnerID,
		&wf.Name,
		&wf.IsActive,
		&wf.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: workflow %s", types.ErrNotFound, workflowID)
		}
		return nil, fmt.Errorf("fail to get workflow %s, err: %w", workflowID, err)
	}
	return &wf, nil
}
