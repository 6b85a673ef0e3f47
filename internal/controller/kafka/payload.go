package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
)

// EventEnvelope - сообщение шины от инференс-ядра: метаданные потока плюс
// пачка детекций одного кадра.
type EventEnvelope struct {
	Metadata EnvelopeMetadata `json:"metadata"`
	Events   []EnvelopeEvent  `json:"events"`
}

type EnvelopeMetadata struct {
	StreamID  string `json:"streamId"`
	AppID     string `json:"appId"`
	VMSID     string `json:"vmsId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// EnvelopeEvent несет либо объекты целиком, либо detectionToken,
// по которому мост запрашивает обогащение.
type EnvelopeEvent struct {
	EventID     string                  `json:"eventId,omitempty"` // ключ дедупликации от продюсера
	SettingID   string                  `json:"eventSettingId"`
	SettingName string                  `json:"eventSettingName,omitempty"`
	Caption     *string                 `json:"caption,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Objects     []entity.DetectedObject `json:"objects,omitempty"`

	DetectionToken string `json:"detectionToken,omitempty"`
}

func (e *EventEnvelope) Validate() error {
	if e.Metadata.StreamID == "" {
		return fmt.Errorf("%w: empty streamId", errs.ErrMalformedMessage)
	}

	if e.Metadata.AppID == "" {
		return fmt.Errorf("%w: empty appId", errs.ErrMalformedMessage)
	}

	if e.Metadata.Timestamp <= 0 {
		return fmt.Errorf("%w: non-positive timestamp", errs.ErrMalformedMessage)
	}

	if len(e.Events) == 0 {
		return fmt.Errorf("%w: empty events", errs.ErrMalformedMessage)
	}

	for i := range e.Events {
		if e.Events[i].SettingID == "" {
			return fmt.Errorf("%w: events[%d]: empty eventSettingId", errs.ErrMalformedMessage, i)
		}

		if len(e.Events[i].Objects) == 0 && e.Events[i].DetectionToken == "" {
			return fmt.Errorf("%w: events[%d]: neither objects nor detectionToken", errs.ErrMalformedMessage, i)
		}
	}

	return nil
}

func (e *EnvelopeEvent) NeedsEnrichment() bool {
	return len(e.Objects) == 0 && e.DetectionToken != ""
}

// OccurredAt нормализует таймстемп продюсера. Разные версии ядра шлют
// секунды, миллисекунды, микросекунды или наносекунды; различаем по
// количеству десятичных разрядов.
func (e *EventEnvelope) OccurredAt() time.Time {
	ts := e.Metadata.Timestamp

	switch digits(ts) {
	case 10:
		return time.Unix(ts, 0).UTC()
	case 13:
		return time.UnixMilli(ts).UTC()
	case 16:
		return time.UnixMicro(ts).UTC()
	default:
		return time.Unix(0, ts).UTC()
	}
}

func digits(n int64) int {
	count := 0
	for n > 0 {
		n /= 10
		count++
	}

	return count
}

// ToEvent собирает доменное событие из одной детекции конверта.
func (e *EventEnvelope) ToEvent(ev *EnvelopeEvent, receivedAt time.Time) (*entity.Event, error) {
	event := &entity.Event{
		StreamID:   e.Metadata.StreamID,
		AppID:      e.Metadata.AppID,
		Kind:       ev.SettingID,
		Caption:    ev.Caption,
		Desc:       ev.Description,
		OccurredAt: e.OccurredAt(),
		ReceivedAt: receivedAt,
	}

	if ev.EventID != "" {
		producerID := ev.EventID
		event.ProducerID = &producerID
	}

	if len(ev.Objects) > 0 {
		objects, err := json.Marshal(ev.Objects)
		if err != nil {
			return nil, fmt.Errorf("EventEnvelope - ToEvent - json.Marshal: %w", err)
		}

		event.Objects = objects
	}

	return event, nil
}
