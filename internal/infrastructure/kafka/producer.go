package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/pkg/kafka/producer"
	"github.com/segmentio/kafka-go"
)

// EventPublisher ре-публикует сохраненные события во внутренний топик
// (для alarm-сервиса и других потребителей внутри appliance).
type EventPublisher struct {
	*producer.Producer
	topic string
}

func NewEventPublisher(producer *producer.Producer, topic string) *EventPublisher {
	return &EventPublisher{
		producer,
		topic,
	}
}

func (ep *EventPublisher) PublishEvents(ctx context.Context, events []*entity.Event) error {
	var msgsToSend []kafka.Message

	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("EventPublisher - PublishEvents - json.Marshal: %w", err)
		}

		msg := kafka.Message{
			Topic: ep.topic,
			Key:   []byte(event.StreamID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(fmt.Sprintf("%d", event.ID))},
				{Key: "kind", Value: []byte(event.Kind)},
			},
		}
		msgsToSend = append(msgsToSend, msg)
	}

	if len(msgsToSend) == 0 {
		return nil
	}

	err := ep.Writer.WriteMessages(ctx, msgsToSend...)
	if err != nil {
		return fmt.Errorf("EventPublisher - PublishEvents - ep.Writer.WriteMessages: %w", err)
	}

	return nil
}

func (ep *EventPublisher) Close() error {
	err := ep.Producer.Close()
	if err != nil {
		return fmt.Errorf("EventPublisher - Close: %w", err)
	}

	return nil
}
