package entity

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryTask - единица работы "доставить событие EventID на эндпоинт
// EndpointID". Создается при fan-out, живет по машине состояний
// pending -> inflight -> succeeded | retrying -> ... -> failed.
type DeliveryTask struct {
	ID         int64     `json:"id"`
	EventID    int64     `json:"event_id"`
	EndpointID uuid.UUID `json:"endpoint_id"`

	Status        TaskStatus `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// EndpointURL заполняется только при ClaimBatch (join на endpoints),
	// в таблице задач не хранится.
	EndpointURL string `json:"-"`
}
