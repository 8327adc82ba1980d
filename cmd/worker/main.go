package main

import (
	"context"
	"log"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/config"
	"github.com/affinitybots/triggerd/internal/history"
	"github.com/affinitybots/triggerd/internal/queue"
	"github.com/affinitybots/triggerd/internal/registry"
	"github.com/affinitybots/triggerd/internal/tasks"
	"github.com/affinitybots/triggerd/internal/workflow"
	"github.com/affinitybots/triggerd/service"
	"github.com/affinitybots/triggerd/storage"
	"github.com/affinitybots/triggerd/storage/postgres"
)

func main() {
	cfg, err := config.ReadConfig("config")
	if err != nil {
		log.Fatalf("fail to read config: %v", err)
	}

	logger := logrus.WithField("service", "worker").Logger

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	db, err := postgres.NewPostgresBackend(cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("fail to connect to database, err: %v", err)
	}
	defer db.Close()

	redisStorage, err := storage.NewRedisStorage(cfg)
	if err != nil {
		logger.Fatalf("fail to connect to redis, err: %v", err)
	}
	defer redisStorage.Close()

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		logger.Fatalf("fail to create statsd client, err: %v", err)
	}

	broker := queue.NewAsynqBroker(redisOpts, logger)
	defer broker.Close()

	registryService := registry.NewService(db, broker, logger)
	historyService := history.NewService(db, redisStorage, logger)
	invoker := workflow.NewHTTPInvoker(
		cfg.Workflow.Endpoint,
		time.Duration(cfg.Workflow.TimeoutSeconds)*time.Second,
		logger,
	)
	worker := service.NewWorker(db, registryService, invoker, historyService, sdClient, logger)

	// The database is the source of truth; rebuild whatever the broker lost.
	if err := registryService.SyncFromDatabase(context.Background()); err != nil {
		logger.Fatalf("fail to sync schedules from database, err: %v", err)
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				tasks.QueueSchedules: 10,
			},
		},
	)

	logger.WithFields(logrus.Fields{
		"redis": redisOpts.Addr,
	}).Info("Starting worker")

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeScheduleFire, worker.HandleScheduleFire)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
