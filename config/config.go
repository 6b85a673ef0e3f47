package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type (
	Config struct {
		HTTP      HTTP
		Log       Log
		PG        PG
		S3        S3
		Kafka     Kafka
		Bridge    Bridge
		Delivery  Delivery
		Scheduler Scheduler
		Detector  Detector
	}

	HTTP struct {
		Port           string `env:"HTTP_PORT,required"`
		UsePreforkMode bool   `env:"HTTP_USE_PREFORK_MODE" envDefault:"false"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL,required"`
	}

	PG struct {
		PoolMax    int    `env:"PG_POOL_MAX,required"`
		URL        string `env:"PG_URL,required"`
		Migrations string `env:"PG_MIGRATIONS" envDefault:"file://migrations"` // пусто - миграции на старте выключены
	}

	S3 struct {
		Endpoint       string        `env:"S3_ENDPOINT,required"`
		AccessKey      string        `env:"S3_ACCESS_KEY,required"`
		SecretKey      string        `env:"S3_SECRET_KEY,required"`
		Bucket         string        `env:"S3_BUCKET,required"`
		CfgLoadTimeout time.Duration `env:"S3_LOAD_CFG_TIMEOUT" envDefault:"10s"`
	}

	Kafka struct {
		Brokers       []string `env:"KAFKA_BROKERS,required"`
		GroupID       string   `env:"KAFKA_GROUP_ID,required"`
		Topics        []string `env:"KAFKA_TOPICS,required"`
		InternalTopic string   `env:"KAFKA_INTERNAL_TOPIC"` // пусто - ре-публикация выключена
	}

	Bridge struct {
		CommitTimeout   time.Duration `env:"BRIDGE_COMMIT_TIMEOUT" envDefault:"2s"`
		ProcessTimeout  time.Duration `env:"BRIDGE_PROCESS_TIMEOUT" envDefault:"15s"` // вся операция - обогащение, снапшот в S3, запись в БД
		EnrichTimeout   time.Duration `env:"BRIDGE_ENRICH_TIMEOUT" envDefault:"3s"`
		EnrichAttempts  int           `env:"BRIDGE_ENRICH_ATTEMPTS" envDefault:"1"` // попыток обогащения на сообщение
		ShutdownTimeout time.Duration `env:"BRIDGE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		Workers         int           `env:"BRIDGE_WORKERS" envDefault:"4"`
	}

	Delivery struct {
		PollInterval    time.Duration `env:"DELIVERY_POLL_INTERVAL" envDefault:"1s"`
		PushTimeout     time.Duration `env:"DELIVERY_PUSH_TIMEOUT" envDefault:"10s"`
		ShutdownTimeout time.Duration `env:"DELIVERY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
		BatchSize       int           `env:"DELIVERY_BATCH_SIZE" envDefault:"100"`
		Workers         int           `env:"DELIVERY_WORKERS" envDefault:"8"`
		MaxAttempts     int           `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"10"`
		BackoffBase     time.Duration `env:"DELIVERY_BACKOFF_BASE" envDefault:"5s"`
		BackoffMax      time.Duration `env:"DELIVERY_BACKOFF_MAX" envDefault:"10m"`
	}

	Scheduler struct {
		Interval       time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
		CycleTimeout   time.Duration `env:"SCHEDULER_CYCLE_TIMEOUT" envDefault:"45s"`
		StaleAfter     time.Duration `env:"SCHEDULER_STALE_AFTER" envDefault:"5m"`
		EventRetention time.Duration `env:"SCHEDULER_EVENT_RETENTION" envDefault:"720h"` // 30 суток
		TaskRetention  time.Duration `env:"SCHEDULER_TASK_RETENTION" envDefault:"168h"`  // 7 суток
	}

	Detector struct {
		BaseURL string        `env:"DETECTOR_BASE_URL,required"`
		Timeout time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"3s"`
	}
)

func New() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
