package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/andreyxaxa/Event-Gateway/pkg/postgres"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	eventsTable = "events"

	// Columns
	eventIDColumn          = "id"
	eventProducerIDColumn  = "producer_id"
	eventStreamIDColumn    = "stream_id"
	eventAppIDColumn       = "app_id"
	eventKindColumn        = "kind"
	eventCaptionColumn     = "caption"
	eventDescColumn        = "description"
	eventObjectsColumn     = "objects"
	eventSnapshotKeyColumn = "snapshot_key"
	eventOccurredAtColumn  = "occurred_at"
	eventReceivedAtColumn  = "received_at"
)

type EventRepo struct {
	*postgres.Postgres
}

func NewEventRepo(pg *postgres.Postgres) *EventRepo {
	return &EventRepo{pg}
}

func (r *EventRepo) Create(ctx context.Context, event *entity.Event) (int64, bool, error) {
	sql, args, err := r.Builder.
		Insert(eventsTable).
		Columns(
			eventProducerIDColumn,
			eventStreamIDColumn,
			eventAppIDColumn,
			eventKindColumn,
			eventCaptionColumn,
			eventDescColumn,
			eventObjectsColumn,
			eventSnapshotKeyColumn,
			eventOccurredAtColumn,
			eventReceivedAtColumn,
		).
		Values(
			event.ProducerID,
			event.StreamID,
			event.AppID,
			event.Kind,
			event.Caption,
			event.Desc,
			event.Objects,
			event.SnapshotKey,
			event.OccurredAt,
			event.ReceivedAt,
		).
		Suffix("ON CONFLICT (producer_id) WHERE producer_id IS NOT NULL DO NOTHING RETURNING " + eventIDColumn).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("EventRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var id int64
	err = executor.QueryRow(ctx, sql, args...).Scan(&id)
	if err != nil {
		// ON CONFLICT DO NOTHING не возвращает строку для дубликата
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("EventRepo - Create - executor.QueryRow.Scan: %w", err)
	}

	return id, true, nil
}

func (r *EventRepo) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	sql, args, err := r.selectBuilder().
		Where(squirrel.Eq{eventIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var event entity.Event
	err = executor.QueryRow(ctx, sql, args...).Scan(scanTargets(&event)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("EventRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("EventRepo - GetByID - executor.QueryRow.Scan: %w", err)
	}

	return &event, nil
}

func (r *EventRepo) List(ctx context.Context, filter repo.EventFilter) ([]*entity.Event, error) {
	builder := r.selectBuilder()

	if filter.StreamID != "" {
		builder = builder.Where(squirrel.Eq{eventStreamIDColumn: filter.StreamID})
	}
	if filter.Kind != "" {
		builder = builder.Where(squirrel.Eq{eventKindColumn: filter.Kind})
	}
	if !filter.From.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{eventOccurredAtColumn: filter.From})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(squirrel.LtOrEq{eventOccurredAtColumn: filter.To})
	}

	builder = builder.OrderBy(eventIDColumn + " DESC")

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventRepo - List - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EventRepo - List - executor.Query: %w", err)
	}
	defer rows.Close()

	var events []*entity.Event
	for rows.Next() {
		var event entity.Event
		if err := rows.Scan(scanTargets(&event)...); err != nil {
			return nil, fmt.Errorf("EventRepo - List - rows.Scan: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventRepo - List - rows.Err: %w", err)
	}

	return events, nil
}

// DeleteOlderThan удаляет только события, все задачи которых терминальны:
// не успевшая доставиться запись переживает окно ретенции.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, int64, error) {
	sql, args, err := r.Builder.
		Delete(eventsTable).
		Where(squirrel.Lt{eventReceivedAtColumn: cutoff}).
		Where(squirrel.Expr(
			"NOT EXISTS (SELECT 1 FROM "+tasksTable+" t WHERE t."+taskEventIDColumn+" = "+eventsTable+"."+eventIDColumn+
				" AND t."+taskStatusColumn+" NOT IN (?, ?))",
			string(entity.TaskSucceeded), string(entity.TaskFailed),
		)).
		Suffix("RETURNING " + eventSnapshotKeyColumn).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("EventRepo - DeleteOlderThan - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("EventRepo - DeleteOlderThan - executor.Query: %w", err)
	}
	defer rows.Close()

	var (
		keys  []string
		count int64
	)
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return nil, 0, fmt.Errorf("EventRepo - DeleteOlderThan - rows.Scan: %w", err)
		}
		if key != nil {
			keys = append(keys, *key)
		}
		count++
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("EventRepo - DeleteOlderThan - rows.Err: %w", err)
	}

	return keys, count, nil
}

func (r *EventRepo) selectBuilder() squirrel.SelectBuilder {
	return r.Builder.
		Select(
			eventIDColumn,
			eventProducerIDColumn,
			eventStreamIDColumn,
			eventAppIDColumn,
			eventKindColumn,
			eventCaptionColumn,
			eventDescColumn,
			eventObjectsColumn,
			eventSnapshotKeyColumn,
			eventOccurredAtColumn,
			eventReceivedAtColumn,
		).
		From(eventsTable)
}

func scanTargets(event *entity.Event) []any {
	return []any{
		&event.ID,
		&event.ProducerID,
		&event.StreamID,
		&event.AppID,
		&event.Kind,
		&event.Caption,
		&event.Desc,
		&event.Objects,
		&event.SnapshotKey,
		&event.OccurredAt,
		&event.ReceivedAt,
	}
}
