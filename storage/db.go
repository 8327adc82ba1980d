package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/affinitybots/triggerd/internal/types"
)

type DatabaseStorage interface {
	Close() error

	GetWorkflow(ctx context.Context, workflowID string) (*types.Workflow, error)

	GetTrigger(ctx context.Context, triggerID string) (*types.Trigger, error)
	UpdateTriggerSchedule(ctx context.Context, triggerID string, cfg types.ScheduleConfig, active bool) error
	SetTriggerActive(ctx context.Context, triggerID string, active bool) error
	GetActiveScheduleTriggers(ctx context.Context) ([]types.Trigger, error)
	GetActiveIntegrationTriggers(ctx context.Context) ([]types.Trigger, error)

	CreateExecution(ctx context.Context, execution types.Execution) error
	GetExecutions(ctx context.Context, triggerID string, limit int) ([]types.Execution, error)

	Pool() *pgxpool.Pool
}
