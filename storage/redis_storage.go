package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/affinitybots/triggerd/config"
	"github.com/affinitybots/triggerd/contexthelper"
	"github.com/affinitybots/triggerd/internal/types"
)

const lastExecutionTTL = 7 * 24 * time.Hour

type RedisStorage struct {
	cfg    config.Config
	client *redis.Client
}

func NewRedisStorage(cfg config.Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}, nil
}

func lastExecutionKey(triggerID string) string {
	return "trigger:last_execution:" + triggerID
}

func (r *RedisStorage) SetLastExecution(ctx context.Context, execution types.Execution) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	executionJSON, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("fail to serialize execution to json, err: %w", err)
	}
	return r.client.Set(ctx, lastExecutionKey(execution.TriggerID), string(executionJSON), lastExecutionTTL).Err()
}

// GetLastExecution returns the cached most recent execution for a trigger, or
// nil when nothing is cached.
func (r *RedisStorage) GetLastExecution(ctx context.Context, triggerID string) (*types.Execution, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return nil, ctx.Err()
	}
	executionJSON, err := r.client.Get(ctx, lastExecutionKey(triggerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to get last execution, err: %w", err)
	}
	var execution types.Execution
	if err := json.Unmarshal([]byte(executionJSON), &execution); err != nil {
		return nil, fmt.Errorf("fail to deserialize execution, err: %w", err)
	}
	return &execution, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
