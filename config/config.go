package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port      int64
		JwtSecret string
	}

	Database struct {
		DSN string
	}

	Redis struct {
		Host     string
		Port     string
		User     string
		Password string
		DB       int
	}

	Workflow struct {
		// Endpoint is the base URL of the workflow execution service.
		Endpoint string
		// TimeoutSeconds bounds a single kickoff call.
		TimeoutSeconds int
	}

	Datadog struct {
		Host string
		Port string
	}

	Worker struct {
		Concurrency int
	}
}

func ReadConfig(configName string) (Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("fail to read config file, err: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("fail to unmarshal config, err: %w", err)
	}
	if cfg.Workflow.TimeoutSeconds <= 0 {
		cfg.Workflow.TimeoutSeconds = 30
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 10
	}
	return cfg, nil
}
