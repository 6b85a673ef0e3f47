package usecase

import (
	"context"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
)

type (
	EventUseCase interface {
		// Ingest сохраняет событие и атомарно вычисляет fan-out.
		// Возвращает inserted=false для дубликата (по producer_id).
		Ingest(ctx context.Context, event *entity.Event, snapshot []byte) (bool, error)
		GetByID(ctx context.Context, id int64) (*entity.Event, error)
		List(ctx context.Context, filter repo.EventFilter) ([]*entity.Event, error)
		ListDeliveries(ctx context.Context, eventID int64) ([]*entity.DeliveryTask, error)
		RefreshEndpoints(ctx context.Context) error
		PruneExpired(ctx context.Context, retention time.Duration) (int64, error)
	}

	DeliveryUseCase interface {
		ClaimBatch(ctx context.Context, limit int) ([]*entity.DeliveryTask, error)
		CompleteTask(ctx context.Context, task *entity.DeliveryTask) error
		// FailTask инкрементирует attempt_count и переводит задачу в
		// retrying с отложенной попыткой либо, при исчерпании бюджета,
		// в терминальный failed.
		FailTask(ctx context.Context, task *entity.DeliveryTask, cause error) error
		// AbortTask терминально закрывает задачу без дальнейших попыток
		// (эндпоинт удален, событие вычищено).
		AbortTask(ctx context.Context, task *entity.DeliveryTask, reason string) error
		ReclaimStale(ctx context.Context, staleAfter time.Duration) (int64, error)
		DrainDisabled(ctx context.Context) (int64, error)
		CleanupTasks(ctx context.Context, retention time.Duration) (int64, error)
	}
)
