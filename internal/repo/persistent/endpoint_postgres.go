package persistent

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/pkg/postgres"
)

const (
	// Columns (таблица endpoints объявлена в task_outbox_postgres.go)
	endpointIDColumn      = "id"
	endpointNameColumn    = "name"
	endpointURLColumn     = "url"
	endpointKindsColumn   = "kinds"
	endpointStreamsColumn = "streams"
	endpointEnabledColumn = "enabled"
)

// EndpointRepo - read-only доступ к таблице webhook-эндпоинтов.
// Запись принадлежит конфигурационному сервису.
type EndpointRepo struct {
	*postgres.Postgres
}

func NewEndpointRepo(pg *postgres.Postgres) *EndpointRepo {
	return &EndpointRepo{pg}
}

func (r *EndpointRepo) ListEnabled(ctx context.Context) ([]*entity.Endpoint, error) {
	sql, args, err := r.Builder.
		Select(
			endpointIDColumn,
			endpointNameColumn,
			endpointURLColumn,
			endpointKindsColumn,
			endpointStreamsColumn,
			endpointEnabledColumn,
		).
		From(endpointsTable).
		Where(squirrel.Eq{endpointEnabledColumn: true}).
		OrderBy(endpointIDColumn + " ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EndpointRepo - ListEnabled - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EndpointRepo - ListEnabled - executor.Query: %w", err)
	}
	defer rows.Close()

	var endpoints []*entity.Endpoint
	for rows.Next() {
		var endpoint entity.Endpoint
		err = rows.Scan(
			&endpoint.ID,
			&endpoint.Name,
			&endpoint.URL,
			&endpoint.Kinds,
			&endpoint.Streams,
			&endpoint.Enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("EndpointRepo - ListEnabled - rows.Scan: %w", err)
		}
		endpoints = append(endpoints, &endpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EndpointRepo - ListEnabled - rows.Err: %w", err)
	}

	return endpoints, nil
}
