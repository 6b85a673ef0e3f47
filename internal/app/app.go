package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andreyxaxa/Event-Gateway/config"
	kafkactrl "github.com/andreyxaxa/Event-Gateway/internal/controller/kafka"
	"github.com/andreyxaxa/Event-Gateway/internal/controller/restapi"
	deliveryworker "github.com/andreyxaxa/Event-Gateway/internal/controller/worker/delivery"
	"github.com/andreyxaxa/Event-Gateway/internal/controller/worker/scheduler"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure/detector"
	infrakafka "github.com/andreyxaxa/Event-Gateway/internal/infrastructure/kafka"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure/webhook"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/andreyxaxa/Event-Gateway/internal/repo/persistent"
	deliveryuc "github.com/andreyxaxa/Event-Gateway/internal/usecase/delivery"
	eventuc "github.com/andreyxaxa/Event-Gateway/internal/usecase/event"
	"github.com/andreyxaxa/Event-Gateway/pkg/httpserver"
	"github.com/andreyxaxa/Event-Gateway/pkg/kafka/consumer"
	"github.com/andreyxaxa/Event-Gateway/pkg/kafka/producer"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/andreyxaxa/Event-Gateway/pkg/postgres"
	"github.com/andreyxaxa/Event-Gateway/pkg/s3client"
	"github.com/prometheus/client_golang/prometheus"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Repository

	// s3
	s3Ctx, s3Cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
	defer s3Cancel()
	s3c, err := s3client.New(s3Ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - s3client.New: %w", err))
	}

	// postgres
	if cfg.PG.Migrations != "" {
		err := runMigrations(cfg.PG.Migrations, cfg.PG.URL)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - runMigrations: %w", err))
		}
	}

	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// Use-Case

	// event use-case
	eventUseCase := eventuc.New(
		persistent.NewEventRepo(pg),
		persistent.NewDeliveryTaskRepo(pg),
		persistent.NewEndpointRepo(pg),
		persistent.NewSnapshotRepo(s3c, cfg.S3.Bucket),
		pg,
		l,
		m,
	)

	// первичная загрузка кеша эндпоинтов, без нее fan-out пустой
	err = eventUseCase.RefreshEndpoints(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - eventUseCase.RefreshEndpoints: %w", err))
	}

	// delivery use-case
	deliveryUseCase := deliveryuc.New(
		persistent.NewDeliveryTaskRepo(pg),
		l,
		m,
		cfg.Delivery.MaxAttempts,
		deliveryuc.NewBackoff(cfg.Delivery.BackoffBase, cfg.Delivery.BackoffMax),
	)

	// Kafka Producer (внутренний топик, опционально)
	var publisher infrastructure.EventsPublisher
	if cfg.Kafka.InternalTopic != "" {
		kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
		}

		publisher = infrakafka.NewEventPublisher(kafkaProducer, cfg.Kafka.InternalTopic)
	}

	// Kafka Consumer
	kafkaConsumer, err := consumer.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - consumer.New: %w", err))
	}

	// Kafka as Controller
	bridgeController := kafkactrl.New(
		eventUseCase,
		detector.New(cfg.Detector.BaseURL, detector.Timeout(cfg.Detector.Timeout)),
		publisher,
		infrakafka.NewEventConsumer(kafkaConsumer),
		l,
		m,
		cfg.Bridge.CommitTimeout,
		cfg.Bridge.ProcessTimeout,
		cfg.Bridge.EnrichTimeout,
		cfg.Bridge.EnrichAttempts,
		cfg.Bridge.Workers,
	)

	// Delivery Worker
	deliveryWorker := deliveryworker.New(
		deliveryUseCase,
		eventUseCase,
		webhook.New(webhook.Timeout(cfg.Delivery.PushTimeout)),
		l,
		cfg.Delivery.PollInterval,
		cfg.Delivery.PushTimeout,
		cfg.Delivery.BatchSize,
		cfg.Delivery.Workers,
	)

	// Maintenance Scheduler
	maintenanceScheduler := scheduler.New(
		eventUseCase,
		deliveryUseCase,
		l,
		cfg.Scheduler.Interval,
		cfg.Scheduler.CycleTimeout,
		cfg.Scheduler.StaleAfter,
		cfg.Scheduler.EventRetention,
		cfg.Scheduler.TaskRetention,
	)

	// HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	restapi.NewRouter(httpServer.App, eventUseCase, l, registry)

	// Start Components
	err = bridgeController.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - bridgeController.Start: %w", err))
	}
	err = deliveryWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - deliveryWorker.Start: %w", err))
	}
	err = maintenanceScheduler.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - maintenanceScheduler.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown

	// сначала мост: перестаем принимать новое
	bcShutdownCtx, bcShutdownCancel := context.WithTimeout(ctx, cfg.Bridge.ShutdownTimeout)
	defer bcShutdownCancel()
	err = bridgeController.Shutdown(bcShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - bridgeController.Shutdown: %w", err))
	}

	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	dwShutdownCtx, dwShutdownCancel := context.WithTimeout(ctx, cfg.Delivery.ShutdownTimeout)
	defer dwShutdownCancel()
	err = deliveryWorker.Shutdown(dwShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - deliveryWorker.Shutdown: %w", err))
	}

	msShutdownCtx, msShutdownCancel := context.WithTimeout(ctx, cfg.Scheduler.CycleTimeout)
	defer msShutdownCancel()
	err = maintenanceScheduler.Shutdown(msShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - maintenanceScheduler.Shutdown: %w", err))
	}

	if publisher != nil {
		err = publisher.Close()
		if err != nil {
			l.Error(fmt.Errorf("app - Run - publisher.Close: %w", err))
		}
	}
}
