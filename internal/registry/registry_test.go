package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affinitybots/triggerd/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	triggers map[string]*types.Trigger
}

func newMemStore(triggers ...*types.Trigger) *memStore {
	s := &memStore{triggers: make(map[string]*types.Trigger)}
	for _, t := range triggers {
		s.triggers[t.ID] = t
	}
	return s
}

func (s *memStore) GetTrigger(_ context.Context, triggerID string) (*types.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return nil, fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	copied := *t
	return &copied, nil
}

func (s *memStore) UpdateTriggerSchedule(_ context.Context, triggerID string, cfg types.ScheduleConfig, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	t.Config = raw
	t.IsActive = active
	return nil
}

func (s *memStore) SetTriggerActive(_ context.Context, triggerID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return fmt.Errorf("%w: trigger %s", types.ErrNotFound, triggerID)
	}
	t.IsActive = active
	return nil
}

func (s *memStore) GetActiveScheduleTriggers(_ context.Context) ([]types.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Trigger
	for _, t := range s.triggers {
		if t.Type == types.TriggerTypeSchedule && t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

type armedOccurrence struct {
	workflowID string
	at         time.Time
}

type memBroker struct {
	mu    sync.Mutex
	armed map[string][]armedOccurrence
}

func newMemBroker() *memBroker {
	return &memBroker{armed: make(map[string][]armedOccurrence)}
}

func (b *memBroker) Arm(_ context.Context, triggerID, workflowID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, occ := range b.armed[triggerID] {
		if occ.at.Equal(at) {
			return nil
		}
	}
	b.armed[triggerID] = append(b.armed[triggerID], armedOccurrence{workflowID: workflowID, at: at})
	return nil
}

func (b *memBroker) Disarm(_ context.Context, triggerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.armed, triggerID)
	return nil
}

func (b *memBroker) Armed(_ context.Context, triggerID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.armed[triggerID]) > 0, nil
}

func (b *memBroker) Close() error { return nil }

func (b *memBroker) occurrences(triggerID string) []armedOccurrence {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]armedOccurrence(nil), b.armed[triggerID]...)
}

func scheduleTrigger(id, workflowID, cronExpr, timezone string, active bool) *types.Trigger {
	cfg, _ := json.Marshal(types.ScheduleConfig{Cron: cronExpr, Timezone: timezone})
	return &types.Trigger{
		ID:         id,
		WorkflowID: workflowID,
		Type:       types.TriggerTypeSchedule,
		Config:     cfg,
		IsActive:   active,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestService(store Store, broker *memBroker) *Service {
	svc := NewService(store, broker, testLogger())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "", "", true))
	broker := newMemBroker()
	svc := newTestService(store, broker)

	err := svc.Register(context.Background(), RegisterParams{
		TriggerID:      "trig-1",
		WorkflowID:     "wf-1",
		CronExpression: "*/5 * * * *",
		Timezone:       "UTC",
		Enabled:        true,
	})
	require.NoError(t, err)

	// Re-register with an updated expression: exactly one armed occurrence,
	// computed from the latest expression.
	err = svc.Register(context.Background(), RegisterParams{
		TriggerID:      "trig-1",
		WorkflowID:     "wf-1",
		CronExpression: "0 12 * * *",
		Timezone:       "UTC",
		Enabled:        true,
	})
	require.NoError(t, err)

	occurrences := broker.occurrences("trig-1")
	require.Len(t, occurrences, 1)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), occurrences[0].at.UTC())

	trigger, err := store.GetTrigger(context.Background(), "trig-1")
	require.NoError(t, err)
	cfg, err := trigger.ScheduleConfig()
	require.NoError(t, err)
	assert.Equal(t, "0 12 * * *", cfg.Cron)
}

func TestRegisterDisabledPersistsWithoutArming(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "", "", true))
	broker := newMemBroker()
	svc := newTestService(store, broker)

	err := svc.Register(context.Background(), RegisterParams{
		TriggerID:      "trig-1",
		WorkflowID:     "wf-1",
		CronExpression: "*/5 * * * *",
		Enabled:        false,
	})
	require.NoError(t, err)

	armed, err := broker.Armed(context.Background(), "trig-1")
	require.NoError(t, err)
	assert.False(t, armed)

	trigger, err := store.GetTrigger(context.Background(), "trig-1")
	require.NoError(t, err)
	assert.False(t, trigger.IsActive)
	cfg, err := trigger.ScheduleConfig()
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.Cron)
}

func TestRegisterValidation(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "", "", true))
	svc := newTestService(store, newMemBroker())

	testCases := []struct {
		name    string
		params  RegisterParams
		wantErr error
	}{
		{
			name:    "unknown trigger",
			params:  RegisterParams{TriggerID: "ghost", WorkflowID: "wf-1", CronExpression: "* * * * *", Enabled: true},
			wantErr: types.ErrNotFound,
		},
		{
			name:    "trigger belongs to another workflow",
			params:  RegisterParams{TriggerID: "trig-1", WorkflowID: "wf-other", CronExpression: "* * * * *", Enabled: true},
			wantErr: types.ErrNotFound,
		},
		{
			name:    "malformed cron",
			params:  RegisterParams{TriggerID: "trig-1", WorkflowID: "wf-1", CronExpression: "banana", Enabled: true},
			wantErr: types.ErrInvalidSchedule,
		},
		{
			name:    "bad timezone",
			params:  RegisterParams{TriggerID: "trig-1", WorkflowID: "wf-1", CronExpression: "* * * * *", Timezone: "Nowhere/Town", Enabled: true},
			wantErr: types.ErrInvalidSchedule,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Register(context.Background(), tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr))
		})
	}
}

func TestRegisterRejectsNonScheduleTrigger(t *testing.T) {
	webhookCfg, _ := json.Marshal(types.WebhookConfig{Secret: "s"})
	store := newMemStore(&types.Trigger{
		ID:         "hook-1",
		WorkflowID: "wf-1",
		Type:       types.TriggerTypeWebhook,
		Config:     webhookCfg,
		IsActive:   true,
	})
	svc := newTestService(store, newMemBroker())

	err := svc.Register(context.Background(), RegisterParams{
		TriggerID:      "hook-1",
		WorkflowID:     "wf-1",
		CronExpression: "* * * * *",
		Enabled:        true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTriggerTypeMismatch))
}

func TestPauseResumeRoundTrip(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "", "", true))
	broker := newMemBroker()
	svc := newTestService(store, broker)

	require.NoError(t, svc.Register(context.Background(), RegisterParams{
		TriggerID:      "trig-1",
		WorkflowID:     "wf-1",
		CronExpression: "0 12 * * *",
		Timezone:       "America/New_York",
		Enabled:        true,
	}))
	before := broker.occurrences("trig-1")
	require.Len(t, before, 1)

	require.NoError(t, svc.Pause(context.Background(), "trig-1"))
	armed, _ := broker.Armed(context.Background(), "trig-1")
	assert.False(t, armed)
	trigger, _ := store.GetTrigger(context.Background(), "trig-1")
	assert.False(t, trigger.IsActive)

	require.NoError(t, svc.Resume(context.Background(), "trig-1"))
	after := broker.occurrences("trig-1")
	require.Len(t, after, 1)
	// Resume re-arms from the last registered configuration.
	assert.Equal(t, before[0].at, after[0].at)
	trigger, _ = store.GetTrigger(context.Background(), "trig-1")
	assert.True(t, trigger.IsActive)
}

func TestPauseIsIdempotent(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "*/5 * * * *", "UTC", true))
	broker := newMemBroker()
	svc := newTestService(store, broker)

	require.NoError(t, svc.Pause(context.Background(), "trig-1"))
	require.NoError(t, svc.Pause(context.Background(), "trig-1"))
	// Pausing a trigger that never existed is not an error either.
	require.NoError(t, svc.Pause(context.Background(), "ghost"))
}

func TestResumeWithCorruptConfigFails(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "", "", false))
	svc := newTestService(store, newMemBroker())

	err := svc.Resume(context.Background(), "trig-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidSchedule))
}

func TestStatusReportsArmedState(t *testing.T) {
	store := newMemStore(scheduleTrigger("trig-1", "wf-1", "*/5 * * * *", "UTC", true))
	broker := newMemBroker()
	svc := newTestService(store, broker)

	// Persisted as active but nothing armed yet: visible drift.
	status, err := svc.Status(context.Background(), "trig-1")
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.False(t, status.Armed)
	assert.Equal(t, "*/5 * * * *", status.Cron)
	assert.Equal(t, "UTC", status.Timezone)

	require.NoError(t, svc.SyncFromDatabase(context.Background()))

	status, err = svc.Status(context.Background(), "trig-1")
	require.NoError(t, err)
	assert.True(t, status.Armed)

	_, err = svc.Status(context.Background(), "ghost")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSyncFromDatabaseHealsDrift(t *testing.T) {
	// Active schedule triggers in the database, nothing armed in the broker:
	// the state after a broker restart.
	store := newMemStore(
		scheduleTrigger("trig-1", "wf-1", "*/5 * * * *", "UTC", true),
		scheduleTrigger("trig-2", "wf-2", "0 9 * * *", "UTC", true),
		scheduleTrigger("trig-paused", "wf-3", "0 9 * * *", "UTC", false),
	)
	broker := newMemBroker()
	svc := newTestService(store, broker)

	require.NoError(t, svc.SyncFromDatabase(context.Background()))

	for _, id := range []string{"trig-1", "trig-2"} {
		armed, err := broker.Armed(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, armed, "trigger %s should be armed after sync", id)
	}
	armed, err := broker.Armed(context.Background(), "trig-paused")
	require.NoError(t, err)
	assert.False(t, armed, "paused trigger must stay disarmed")
}

func TestSyncSkipsCorruptTriggers(t *testing.T) {
	store := newMemStore(
		scheduleTrigger("trig-ok", "wf-1", "*/5 * * * *", "UTC", true),
		scheduleTrigger("trig-bad", "wf-2", "not-cron", "UTC", true),
	)
	broker := newMemBroker()
	svc := newTestService(store, broker)

	require.NoError(t, svc.SyncFromDatabase(context.Background()))

	armed, _ := broker.Armed(context.Background(), "trig-ok")
	assert.True(t, armed)
	armed, _ = broker.Armed(context.Background(), "trig-bad")
	assert.False(t, armed)
}
