package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/google/uuid"
)

// EventUseCase владеет записью в events и вычислением fan-out: ни одно
// событие не сохраняется без задач доставки, ни одна задача не ссылается
// на несохраненное событие (общая транзакция).
type EventUseCase struct {
	eventRepo    repo.EventRepo
	taskRepo     repo.DeliveryTaskRepo
	endpointRepo repo.EndpointRepo
	snapshotRepo repo.SnapshotRepo
	transactor   repo.Transactor

	logger  logger.Interface
	metrics *metrics.Metrics
	nowFn   func() time.Time

	mu        sync.RWMutex
	endpoints []*entity.Endpoint // снапшот включенных эндпоинтов для fan-out
}

func New(
	eventRepo repo.EventRepo,
	taskRepo repo.DeliveryTaskRepo,
	endpointRepo repo.EndpointRepo,
	snapshotRepo repo.SnapshotRepo,
	transactor repo.Transactor,
	l logger.Interface,
	m *metrics.Metrics,
) *EventUseCase {
	return &EventUseCase{
		eventRepo:    eventRepo,
		taskRepo:     taskRepo,
		endpointRepo: endpointRepo,
		snapshotRepo: snapshotRepo,
		transactor:   transactor,
		logger:       l,
		metrics:      m,
		nowFn:        time.Now,
	}
}

func (uc *EventUseCase) Ingest(ctx context.Context, event *entity.Event, snapshot []byte) (bool, error) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = uc.nowFn()
	}

	// 1. снапшот уходит в S3 до транзакции; неудача не блокирует ингест
	if len(snapshot) > 0 {
		key := fmt.Sprintf("snapshots/%s", uuid.New())

		err := uc.snapshotRepo.Upload(ctx, key, snapshot)
		if err != nil {
			uc.logger.Warn("EventUseCase - Ingest - snapshot upload failed: %v", err)
		} else {
			event.SnapshotKey = &key
		}
	}

	// 2. событие и его fan-out - в единой транзакции
	var inserted bool
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		id, ok, err := uc.eventRepo.Create(ctx, event)
		if err != nil {
			return fmt.Errorf("EventUseCase - Ingest - uc.eventRepo.Create: %w", err)
		}
		if !ok {
			return nil
		}

		inserted = true
		event.ID = id

		tasks := uc.fanOut(event)
		if len(tasks) == 0 {
			return nil
		}

		if err := uc.taskRepo.CreateBatch(ctx, tasks); err != nil {
			return fmt.Errorf("EventUseCase - Ingest - uc.taskRepo.CreateBatch: %w", err)
		}

		return nil
	})

	// если транзакция не прошла - подчищаем снапшот
	if err != nil {
		uc.deleteSnapshot(ctx, event)

		return false, fmt.Errorf("EventUseCase - Ingest - uc.transactor.WithinTransaction: %w", err)
	}

	if !inserted {
		// дубликат от шины: строка уже есть, снапшот этой попытки не нужен
		uc.deleteSnapshot(ctx, event)
		uc.metrics.EventsDuplicated.Inc()

		return false, nil
	}

	uc.metrics.EventsIngested.Inc()

	return true, nil
}

func (uc *EventUseCase) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	event, err := uc.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("EventUseCase - GetByID - uc.eventRepo.GetByID: %w", err)
	}

	return event, nil
}

func (uc *EventUseCase) List(ctx context.Context, filter repo.EventFilter) ([]*entity.Event, error) {
	events, err := uc.eventRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("EventUseCase - List - uc.eventRepo.List: %w", err)
	}

	return events, nil
}

func (uc *EventUseCase) ListDeliveries(ctx context.Context, eventID int64) ([]*entity.DeliveryTask, error) {
	tasks, err := uc.taskRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("EventUseCase - ListDeliveries - uc.taskRepo.ListByEvent: %w", err)
	}

	return tasks, nil
}

// RefreshEndpoints перечитывает снапшот эндпоинтов, по которому считается
// fan-out. Вызывается на старте и по тику планировщика.
func (uc *EventUseCase) RefreshEndpoints(ctx context.Context) error {
	endpoints, err := uc.endpointRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("EventUseCase - RefreshEndpoints - uc.endpointRepo.ListEnabled: %w", err)
	}

	uc.mu.Lock()
	uc.endpoints = endpoints
	uc.mu.Unlock()

	return nil
}

func (uc *EventUseCase) PruneExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := uc.nowFn().Add(-retention)

	keys, count, err := uc.eventRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("EventUseCase - PruneExpired - uc.eventRepo.DeleteOlderThan: %w", err)
	}

	// снапшоты удаляем по ключам вычищенных событий; ошибки не фатальны
	for _, key := range keys {
		if err := uc.snapshotRepo.Delete(ctx, key); err != nil {
			uc.logger.Warn("failed to delete snapshot key=%s, error=%v", key, err)
		}
	}

	if count > 0 {
		uc.logger.Info("pruned expired events, count = %d", count)
	}

	return count, nil
}

func (uc *EventUseCase) deleteSnapshot(ctx context.Context, event *entity.Event) {
	if event.SnapshotKey == nil {
		return
	}

	if err := uc.snapshotRepo.Delete(ctx, *event.SnapshotKey); err != nil {
		uc.logger.Warn("failed to delete snapshot key=%s, error=%v", *event.SnapshotKey, err)
	}

	event.SnapshotKey = nil
}
