package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
)

// DeliveryUseCase управляет машиной состояний задач доставки. Все переходы
// идут через атомарные операции репозитория, состояние переживает рестарт
// процесса.
type DeliveryUseCase struct {
	taskRepo repo.DeliveryTaskRepo

	logger  logger.Interface
	metrics *metrics.Metrics

	maxAttempts int
	backoff     Backoff
	nowFn       func() time.Time
}

func New(
	taskRepo repo.DeliveryTaskRepo,
	l logger.Interface,
	m *metrics.Metrics,
	maxAttempts int,
	backoff Backoff,
) *DeliveryUseCase {
	return &DeliveryUseCase{
		taskRepo:    taskRepo,
		logger:      l,
		metrics:     m,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		nowFn:       time.Now,
	}
}

func (uc *DeliveryUseCase) ClaimBatch(ctx context.Context, limit int) ([]*entity.DeliveryTask, error) {
	tasks, err := uc.taskRepo.ClaimBatch(ctx, limit, uc.nowFn())
	if err != nil {
		return nil, fmt.Errorf("DeliveryUseCase - ClaimBatch - uc.taskRepo.ClaimBatch: %w", err)
	}

	return tasks, nil
}

func (uc *DeliveryUseCase) CompleteTask(ctx context.Context, task *entity.DeliveryTask) error {
	err := uc.taskRepo.MarkSucceeded(ctx, task.ID, uc.nowFn())
	if err != nil {
		return fmt.Errorf("DeliveryUseCase - CompleteTask - uc.taskRepo.MarkSucceeded: %w", err)
	}

	task.Status = entity.TaskSucceeded
	uc.metrics.DeliveriesSucceeded.Inc()

	return nil
}

func (uc *DeliveryUseCase) FailTask(ctx context.Context, task *entity.DeliveryTask, cause error) error {
	task.AttemptCount++

	// бюджет попыток исчерпан - терминальный failed
	if task.AttemptCount >= uc.maxAttempts {
		err := uc.taskRepo.MarkFailed(ctx, task.ID, task.AttemptCount, cause.Error(), uc.nowFn())
		if err != nil {
			return fmt.Errorf("DeliveryUseCase - FailTask - uc.taskRepo.MarkFailed: %w", err)
		}

		task.Status = entity.TaskFailed
		uc.metrics.DeliveriesFailed.Inc()
		uc.logger.Error(cause, "DeliveryUseCase - FailTask - task %d exhausted %d attempts for endpoint %s",
			task.ID, task.AttemptCount, task.EndpointID)

		return nil
	}

	nextAttemptAt := uc.nowFn().Add(uc.backoff.Next(task.AttemptCount))

	err := uc.taskRepo.MarkRetrying(ctx, task.ID, task.AttemptCount, nextAttemptAt, cause.Error(), uc.nowFn())
	if err != nil {
		return fmt.Errorf("DeliveryUseCase - FailTask - uc.taskRepo.MarkRetrying: %w", err)
	}

	task.Status = entity.TaskRetrying
	task.NextAttemptAt = nextAttemptAt
	uc.metrics.DeliveriesRetried.Inc()

	return nil
}

func (uc *DeliveryUseCase) AbortTask(ctx context.Context, task *entity.DeliveryTask, reason string) error {
	err := uc.taskRepo.MarkFailed(ctx, task.ID, task.AttemptCount, reason, uc.nowFn())
	if err != nil {
		return fmt.Errorf("DeliveryUseCase - AbortTask - uc.taskRepo.MarkFailed: %w", err)
	}

	task.Status = entity.TaskFailed
	uc.metrics.DeliveriesFailed.Inc()

	return nil
}

func (uc *DeliveryUseCase) ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := uc.nowFn()

	count, err := uc.taskRepo.ReclaimStale(ctx, now.Add(-staleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("DeliveryUseCase - ReclaimStale - uc.taskRepo.ReclaimStale: %w", err)
	}

	if count > 0 {
		uc.metrics.TasksReclaimed.Add(float64(count))
		uc.logger.Warn("reclaimed stuck in-flight tasks, count = %d", count)
	}

	return count, nil
}

func (uc *DeliveryUseCase) DrainDisabled(ctx context.Context) (int64, error) {
	count, err := uc.taskRepo.FailForDisabledEndpoints(ctx, "endpoint disabled or removed", uc.nowFn())
	if err != nil {
		return 0, fmt.Errorf("DeliveryUseCase - DrainDisabled - uc.taskRepo.FailForDisabledEndpoints: %w", err)
	}

	if count > 0 {
		uc.metrics.TasksDrained.Add(float64(count))
		uc.logger.Info("drained tasks of disabled endpoints, count = %d", count)
	}

	return count, nil
}

func (uc *DeliveryUseCase) CleanupTasks(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := uc.nowFn().Add(-retention)

	count, err := uc.taskRepo.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeliveryUseCase - CleanupTasks - uc.taskRepo.DeleteTerminalOlderThan: %w", err)
	}

	if count > 0 {
		uc.logger.Info("deleted old terminal tasks, count = %d", count)
	}

	return count, nil
}
