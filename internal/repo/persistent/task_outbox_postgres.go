package persistent

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/pkg/postgres"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
)

const (
	// Tables
	tasksTable     = "delivery_tasks"
	endpointsTable = "endpoints"

	// Columns
	taskIDColumn            = "id"
	taskEventIDColumn       = "event_id"
	taskEndpointIDColumn    = "endpoint_id"
	taskStatusColumn        = "status"
	taskAttemptCountColumn  = "attempt_count"
	taskNextAttemptAtColumn = "next_attempt_at"
	taskLastErrorColumn     = "last_error"
	taskClaimedAtColumn     = "claimed_at"
	taskCreatedAtColumn     = "created_at"
	taskUpdatedAtColumn     = "updated_at"
)

type DeliveryTaskRepo struct {
	*postgres.Postgres
}

func NewDeliveryTaskRepo(pg *postgres.Postgres) *DeliveryTaskRepo {
	return &DeliveryTaskRepo{pg}
}

func (r *DeliveryTaskRepo) CreateBatch(ctx context.Context, tasks []*entity.DeliveryTask) error {
	if len(tasks) == 0 {
		return nil
	}

	builder := r.Builder.
		Insert(tasksTable).
		Columns(
			taskEventIDColumn,
			taskEndpointIDColumn,
			taskStatusColumn,
			taskAttemptCountColumn,
			taskNextAttemptAtColumn,
			taskCreatedAtColumn,
			taskUpdatedAtColumn,
		)

	for _, task := range tasks {
		builder = builder.Values(
			task.EventID,
			task.EndpointID,
			task.Status,
			task.AttemptCount,
			task.NextAttemptAt,
			task.CreatedAt,
			task.UpdatedAt,
		)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - CreateBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - CreateBatch - executor.Exec: %w", err)
	}

	return nil
}

// ClaimBatch - эксклюзивный захват: на каждый эндпоинт берется только
// самая старая нетерминальная задача (строгий порядок доставки), и только
// если она готова к попытке. FOR UPDATE SKIP LOCKED исключает двойной
// захват конкурирующими воркерами. URL эндпоинта подтягивается подзапросом;
// NULL означает, что эндпоинт удален из конфигурации.
func (r *DeliveryTaskRepo) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]*entity.DeliveryTask, error) {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskInFlight).
		Set(taskClaimedAtColumn, now).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.Expr(
			taskIDColumn+` IN (
				SELECT t.`+taskIDColumn+`
				FROM `+tasksTable+` t
				WHERE t.`+taskStatusColumn+` IN (?, ?)
				  AND t.`+taskNextAttemptAtColumn+` <= ?
				  AND t.`+taskIDColumn+` = (
					SELECT min(b.`+taskIDColumn+`)
					FROM `+tasksTable+` b
					WHERE b.`+taskEndpointIDColumn+` = t.`+taskEndpointIDColumn+`
					  AND b.`+taskStatusColumn+` NOT IN (?, ?)
				  )
				  AND EXISTS (
					SELECT 1 FROM `+endpointsTable+` p
					WHERE p.id = t.`+taskEndpointIDColumn+` AND p.enabled
				  )
				ORDER BY t.`+taskIDColumn+`
				LIMIT ?
				FOR UPDATE SKIP LOCKED
			)`,
			string(entity.TaskPending), string(entity.TaskRetrying),
			now,
			string(entity.TaskSucceeded), string(entity.TaskFailed),
			limit,
		)).
		Suffix(`RETURNING ` +
			taskIDColumn + `, ` +
			taskEventIDColumn + `, ` +
			taskEndpointIDColumn + `, ` +
			taskStatusColumn + `, ` +
			taskAttemptCountColumn + `, ` +
			taskNextAttemptAtColumn + `, ` +
			taskLastErrorColumn + `, ` +
			taskClaimedAtColumn + `, ` +
			taskCreatedAtColumn + `, ` +
			taskUpdatedAtColumn + `, ` +
			`(SELECT p.url FROM ` + endpointsTable + ` p WHERE p.id = ` + tasksTable + `.` + taskEndpointIDColumn + `)`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ClaimBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ClaimBatch - executor.Query: %w", err)
	}
	defer rows.Close()

	tasks := make([]*entity.DeliveryTask, 0, limit)
	for rows.Next() {
		var (
			task entity.DeliveryTask
			url  *string
		)
		err = rows.Scan(
			&task.ID,
			&task.EventID,
			&task.EndpointID,
			&task.Status,
			&task.AttemptCount,
			&task.NextAttemptAt,
			&task.LastError,
			&task.ClaimedAt,
			&task.CreatedAt,
			&task.UpdatedAt,
			&url,
		)
		if err != nil {
			return nil, fmt.Errorf("DeliveryTaskRepo - ClaimBatch - rows.Scan: %w", err)
		}
		if url != nil {
			task.EndpointURL = *url
		}
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ClaimBatch - rows.Err: %w", err)
	}

	return tasks, nil
}

func (r *DeliveryTaskRepo) MarkSucceeded(ctx context.Context, id int64, now time.Time) error {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskSucceeded).
		Set(taskClaimedAtColumn, nil).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.Eq{taskIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkSucceeded - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkSucceeded - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeliveryTaskRepo - MarkSucceeded: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *DeliveryTaskRepo) MarkRetrying(ctx context.Context, id int64, attemptCount int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskRetrying).
		Set(taskAttemptCountColumn, attemptCount).
		Set(taskNextAttemptAtColumn, nextAttemptAt).
		Set(taskLastErrorColumn, lastError).
		Set(taskClaimedAtColumn, nil).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.Eq{taskIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkRetrying - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkRetrying - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeliveryTaskRepo - MarkRetrying: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *DeliveryTaskRepo) MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string, now time.Time) error {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskFailed).
		Set(taskAttemptCountColumn, attemptCount).
		Set(taskLastErrorColumn, lastError).
		Set(taskClaimedAtColumn, nil).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.Eq{taskIDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkFailed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryTaskRepo - MarkFailed - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeliveryTaskRepo - MarkFailed: %w", errs.ErrRecordNotFound)
	}

	return nil
}

func (r *DeliveryTaskRepo) ListByEvent(ctx context.Context, eventID int64) ([]*entity.DeliveryTask, error) {
	sql, args, err := r.Builder.
		Select(
			taskIDColumn,
			taskEventIDColumn,
			taskEndpointIDColumn,
			taskStatusColumn,
			taskAttemptCountColumn,
			taskNextAttemptAtColumn,
			taskLastErrorColumn,
			taskClaimedAtColumn,
			taskCreatedAtColumn,
			taskUpdatedAtColumn,
		).
		From(tasksTable).
		Where(squirrel.Eq{taskEventIDColumn: eventID}).
		OrderBy(taskIDColumn + " ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ListByEvent - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ListByEvent - executor.Query: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.DeliveryTask
	for rows.Next() {
		var task entity.DeliveryTask
		err = rows.Scan(
			&task.ID,
			&task.EventID,
			&task.EndpointID,
			&task.Status,
			&task.AttemptCount,
			&task.NextAttemptAt,
			&task.LastError,
			&task.ClaimedAt,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("DeliveryTaskRepo - ListByEvent - rows.Scan: %w", err)
		}
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeliveryTaskRepo - ListByEvent - rows.Err: %w", err)
	}

	return tasks, nil
}

func (r *DeliveryTaskRepo) ReclaimStale(ctx context.Context, claimedBefore time.Time, now time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskRetrying).
		Set(taskNextAttemptAtColumn, now).
		Set(taskClaimedAtColumn, nil).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.And{
			squirrel.Eq{taskStatusColumn: entity.TaskInFlight},
			squirrel.Lt{taskClaimedAtColumn: claimedBefore},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - ReclaimStale - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - ReclaimStale - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *DeliveryTaskRepo) FailForDisabledEndpoints(ctx context.Context, reason string, now time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Update(tasksTable).
		Set(taskStatusColumn, entity.TaskFailed).
		Set(taskLastErrorColumn, reason).
		Set(taskClaimedAtColumn, nil).
		Set(taskUpdatedAtColumn, now).
		Where(squirrel.Eq{taskStatusColumn: []entity.TaskStatus{
			entity.TaskPending,
			entity.TaskInFlight,
			entity.TaskRetrying,
		}}).
		Where(squirrel.Expr(
			"NOT EXISTS (SELECT 1 FROM " + endpointsTable + " p WHERE p.id = " +
				tasksTable + "." + taskEndpointIDColumn + " AND p.enabled)",
		)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - FailForDisabledEndpoints - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - FailForDisabledEndpoints - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *DeliveryTaskRepo) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Delete(tasksTable).
		Where(squirrel.Eq{taskStatusColumn: []entity.TaskStatus{
			entity.TaskSucceeded,
			entity.TaskFailed,
		}}).
		Where(squirrel.Lt{taskUpdatedAtColumn: cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - DeleteTerminalOlderThan - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("DeliveryTaskRepo - DeleteTerminalOlderThan - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}
