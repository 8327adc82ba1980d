// Package history is the append-only record of trigger firings and the
// read-side stats derived from it.
package history

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/internal/types"
)

// maxErrorDetail bounds the error text stored with a failed execution.
const maxErrorDetail = 500

type Store interface {
	CreateExecution(ctx context.Context, execution types.Execution) error
	GetExecutions(ctx context.Context, triggerID string, limit int) ([]types.Execution, error)
}

// Cache holds the most recent execution per trigger for cheap "last run"
// lookups. Cache failures are never fatal.
type Cache interface {
	SetLastExecution(ctx context.Context, execution types.Execution) error
	GetLastExecution(ctx context.Context, triggerID string) (*types.Execution, error)
}

type Service struct {
	store  Store
	cache  Cache
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(store Store, cache Cache, logger *logrus.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one execution row. A failed insert is the last line of
// observability for the scheduler, so it is logged loudly, but it is swallowed
// rather than thrown back into the worker's critical path.
func (s *Service) Record(ctx context.Context, triggerID string, status types.ExecutionStatus, durationMs int64, errDetail string) {
	if len(errDetail) > maxErrorDetail {
		errDetail = errDetail[:maxErrorDetail]
	}
	execution := types.Execution{
		TriggerID:  triggerID,
		ExecutedAt: s.now().UTC(),
		Status:     status,
		DurationMs: durationMs,
		Error:      errDetail,
	}

	if err := s.store.CreateExecution(ctx, execution); err != nil {
		s.logger.WithFields(logrus.Fields{
			"trigger_id": triggerID,
			"status":     status,
		}).Errorf("fail to record execution, err: %v", err)
	}
	if s.cache != nil {
		if err := s.cache.SetLastExecution(ctx, execution); err != nil {
			s.logger.WithField("trigger_id", triggerID).Warnf("fail to cache last execution, err: %v", err)
		}
	}
}

// History returns executions newest-first plus stats derived from them.
func (s *Service) History(ctx context.Context, triggerID string, limit int) ([]types.Execution, types.ExecutionStats, error) {
	executions, err := s.store.GetExecutions(ctx, triggerID, limit)
	if err != nil {
		return nil, types.ExecutionStats{}, err
	}
	return executions, types.ComputeStats(executions), nil
}

// LastExecution serves the most recent firing, preferring the cache.
func (s *Service) LastExecution(ctx context.Context, triggerID string) (*types.Execution, error) {
	if s.cache != nil {
		if execution, err := s.cache.GetLastExecution(ctx, triggerID); err == nil && execution != nil {
			return execution, nil
		}
	}
	executions, err := s.store.GetExecutions(ctx, triggerID, 1)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, types.ErrNotFound
	}
	return &executions[0], nil
}
