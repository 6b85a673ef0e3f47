package response

import (
	"encoding/json"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

type Event struct {
	ID         int64           `json:"id"`
	ProducerID *string         `json:"producer_id,omitempty"`
	StreamID   string          `json:"stream_id"`
	AppID      string          `json:"app_id"`
	Kind       string          `json:"kind"`
	Caption    *string         `json:"caption,omitempty"`
	Desc       *string         `json:"desc,omitempty"`
	Objects    json.RawMessage `json:"objects,omitempty"`
	OccurredAt string          `json:"occurred_at"`
	ReceivedAt string          `json:"received_at"`
}

type DeliveryTask struct {
	ID            int64   `json:"id"`
	EventID       int64   `json:"event_id"`
	EndpointID    string  `json:"endpoint_id"`
	Status        string  `json:"status"`
	AttemptCount  int     `json:"attempt_count"`
	NextAttemptAt string  `json:"next_attempt_at"`
	LastError     *string `json:"last_error,omitempty"`
}

func NewEvent(e *entity.Event) Event {
	return Event{
		ID:         e.ID,
		ProducerID: e.ProducerID,
		StreamID:   e.StreamID,
		AppID:      e.AppID,
		Kind:       e.Kind,
		Caption:    e.Caption,
		Desc:       e.Desc,
		Objects:    e.Objects,
		OccurredAt: e.OccurredAt.Format(time.RFC3339),
		ReceivedAt: e.ReceivedAt.Format(time.RFC3339),
	}
}

func NewDeliveryTask(t *entity.DeliveryTask) DeliveryTask {
	return DeliveryTask{
		ID:            t.ID,
		EventID:       t.EventID,
		EndpointID:    t.EndpointID.String(),
		Status:        string(t.Status),
		AttemptCount:  t.AttemptCount,
		NextAttemptAt: t.NextAttemptAt.Format(time.RFC3339),
		LastError:     t.LastError,
	}
}
