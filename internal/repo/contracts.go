package repo

import (
	"context"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

// EventFilter - параметры range-запроса по событиям.
type EventFilter struct {
	StreamID string
	Kind     string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

type (
	EventRepo interface {
		// Create возвращает id и inserted=false, если событие с таким
		// producer_id уже сохранено (дедупликация на уровне БД).
		Create(ctx context.Context, event *entity.Event) (int64, bool, error)
		GetByID(ctx context.Context, id int64) (*entity.Event, error)
		List(ctx context.Context, filter EventFilter) ([]*entity.Event, error)
		// DeleteOlderThan удаляет события старше cutoff, у которых все
		// задачи доставки терминальны; возвращает ключи снапшотов
		// удаленных событий и количество удаленных строк.
		DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, int64, error)
	}

	DeliveryTaskRepo interface {
		CreateBatch(ctx context.Context, tasks []*entity.DeliveryTask) error
		// ClaimBatch атомарно переводит в inflight не более одной
		// задачи на эндпоинт - самую старую нетерминальную, и только
		// если она готова к попытке (pending/retrying, next_attempt_at <= now).
		ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*entity.DeliveryTask, error)
		MarkSucceeded(ctx context.Context, id int64, now time.Time) error
		MarkRetrying(ctx context.Context, id int64, attemptCount int, nextAttemptAt time.Time, lastError string, now time.Time) error
		MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string, now time.Time) error
		ListByEvent(ctx context.Context, eventID int64) ([]*entity.DeliveryTask, error)
		// ReclaimStale возвращает в retrying задачи, зависшие в inflight
		// дольше порога (воркер считается умершим).
		ReclaimStale(ctx context.Context, claimedBefore time.Time, now time.Time) (int64, error)
		// FailForDisabledEndpoints терминально закрывает нетерминальные
		// задачи выключенных или удаленных эндпоинтов.
		FailForDisabledEndpoints(ctx context.Context, reason string, now time.Time) (int64, error)
		DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	}

	EndpointRepo interface {
		ListEnabled(ctx context.Context) ([]*entity.Endpoint, error)
	}

	SnapshotRepo interface {
		Upload(ctx context.Context, key string, data []byte) error
		Delete(ctx context.Context, key string) error
	}

	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}
)
