package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

// EventMessage - тело push-запроса на приемник.
type EventMessage struct {
	ID        int64           `json:"id"`
	Stream    StreamRef       `json:"stream"`
	Timestamp int64           `json:"timestamp"` // unix ms
	EventType string          `json:"event_type"`
	Desc      string          `json:"desc,omitempty"`
	Objects   json.RawMessage `json:"objects,omitempty"`
}

type StreamRef struct {
	AppID    string `json:"app_id"`
	StreamID string `json:"stream_id"`
}

func buildPayload(event *entity.Event) ([]byte, error) {
	msg := EventMessage{
		ID: event.ID,
		Stream: StreamRef{
			AppID:    event.AppID,
			StreamID: event.StreamID,
		},
		Timestamp: event.OccurredAt.UnixMilli(),
		EventType: event.Kind,
		Objects:   event.Objects,
	}

	if event.Desc != nil {
		msg.Desc = *event.Desc
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("buildPayload - json.Marshal: %w", err)
	}

	return payload, nil
}
