package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure"
	kafkapc "github.com/andreyxaxa/Event-Gateway/internal/infrastructure/kafka"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
	"github.com/segmentio/kafka-go"
)

const (
	_readBackoffMin = time.Second
	_readBackoffMax = 60 * time.Second
)

// BridgeController читает конверты детекций из шины и прокачивает их
// через ингест. Коммит оффсета только после сохранения: при падении
// процесса сообщение будет перечитано, дедупликация по producer_id
// погасит повтор.
type BridgeController struct {
	events    usecase.EventUseCase
	enricher  infrastructure.EnrichmentProvider
	publisher infrastructure.EventsPublisher
	ec        *kafkapc.EventConsumer
	logger    logger.Interface
	metrics   *metrics.Metrics

	commitTimeout  time.Duration
	processTimeout time.Duration
	enrichTimeout  time.Duration
	enrichAttempts int

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	events usecase.EventUseCase,
	enricher infrastructure.EnrichmentProvider,
	publisher infrastructure.EventsPublisher,
	ec *kafkapc.EventConsumer,
	l logger.Interface,
	m *metrics.Metrics,
	commitTimeout time.Duration,
	processTimeout time.Duration,
	enrichTimeout time.Duration,
	enrichAttempts int,
	workers int,
) *BridgeController {
	if enrichAttempts < 1 {
		enrichAttempts = 1
	}

	return &BridgeController{
		events:         events,
		enricher:       enricher,
		publisher:      publisher,
		ec:             ec,
		logger:         l,
		metrics:        m,
		commitTimeout:  commitTimeout,
		processTimeout: processTimeout,
		enrichTimeout:  enrichTimeout,
		enrichAttempts: enrichAttempts,
		workers:        workers,
	}
}

func (c *BridgeController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("BridgeController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	// канал для задач
	tasks := make(chan kafka.Message, c.workers*2)

	// запускаем воркеры
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(tasks)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)

		backoff := _readBackoffMin

		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				// 1. читаем из шины
				msg, err := c.ec.ReadEvent(c.ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}

					c.logger.Error(err, "BridgeController - Start - c.ec.ReadEvent")

					// шина недоступна, ждем с растущей паузой
					select {
					case <-time.After(backoff):
					case <-c.ctx.Done():
						return
					}

					backoff *= 2
					if backoff > _readBackoffMax {
						backoff = _readBackoffMax
					}

					continue
				}

				backoff = _readBackoffMin

				// 2. отправляем в канал для воркеров
				select {
				case tasks <- msg:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

func (c *BridgeController) worker(tasks <-chan kafka.Message) {
	defer c.wg.Done()

	// читаем канал, пока не закроется
	for msg := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "BridgeController - worker - panic")
				}
			}()

			// выполняем обработку
			processCtx, processCancel := context.WithTimeout(c.ctx, c.processTimeout)
			stored, err := c.processEnvelope(processCtx, msg)
			processCancel()

			if err != nil {
				// битое сообщение ретраить бессмысленно, коммитим и идем дальше
				if errors.Is(err, errs.ErrMalformedMessage) {
					c.metrics.EventsMalformed.Inc()
					c.logger.Warn("BridgeController - worker - discarding malformed message: %v", err)
					c.commit(msg)
				} else {
					// транзиентная ошибка, оффсет не двигаем - сообщение перечитается
					c.logger.Error(err, "BridgeController - worker - c.processEnvelope")
				}

				return
			}

			// коммитим после успешного сохранения
			c.commit(msg)

			// ре-публикация после коммита, best-effort
			if c.publisher != nil && len(stored) > 0 {
				pubCtx, pubCancel := context.WithTimeout(c.ctx, c.commitTimeout)
				err = c.publisher.PublishEvents(pubCtx, stored)
				pubCancel()
				if err != nil {
					c.logger.Warn("BridgeController - worker - c.publisher.PublishEvents: %v", err)
				}
			}
		}()
	}
}

// processEnvelope разбирает конверт и сохраняет каждую детекцию.
// Возвращает вставленные события для ре-публикации.
func (c *BridgeController) processEnvelope(ctx context.Context, msg kafka.Message) ([]*entity.Event, error) {
	var envelope EventEnvelope

	err := json.Unmarshal(msg.Value, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedMessage, err)
	}

	err = envelope.Validate()
	if err != nil {
		return nil, fmt.Errorf("BridgeController - processEnvelope - envelope.Validate: %w", err)
	}

	receivedAt := time.Now().UTC()
	stored := make([]*entity.Event, 0, len(envelope.Events))

	for i := range envelope.Events {
		ev := &envelope.Events[i]

		event, err := envelope.ToEvent(ev, receivedAt)
		if err != nil {
			return stored, fmt.Errorf("BridgeController - processEnvelope - envelope.ToEvent: %w", err)
		}

		var snapshot []byte

		// обогащение one-shot: провал не блокирует ингест
		if ev.NeedsEnrichment() {
			snapshot = c.enrich(ctx, &envelope, ev, event)
		}

		inserted, err := c.events.Ingest(ctx, event, snapshot)
		if err != nil {
			return stored, fmt.Errorf("BridgeController - processEnvelope - c.events.Ingest: %w", err)
		}

		if !inserted {
			continue
		}

		stored = append(stored, event)
	}

	return stored, nil
}

func (c *BridgeController) enrich(ctx context.Context, envelope *EventEnvelope, ev *EnvelopeEvent, event *entity.Event) []byte {
	ref := entity.EnrichmentRef{
		StreamID:   envelope.Metadata.StreamID,
		AppID:      envelope.Metadata.AppID,
		Token:      ev.DetectionToken,
		OccurredAt: event.OccurredAt,
	}

	var (
		enrichment *entity.Enrichment
		err        error
	)

	// бюджет попыток на сообщение; каждая со своим таймаутом
	for attempt := 0; attempt < c.enrichAttempts; attempt++ {
		enrichCtx, enrichCancel := context.WithTimeout(ctx, c.enrichTimeout)
		enrichment, err = c.enricher.Enrich(enrichCtx, ref)
		enrichCancel()

		if err == nil {
			break
		}
	}

	if err != nil {
		c.metrics.EnrichmentFailures.Inc()
		c.logger.Warn("BridgeController - enrich - c.enricher.Enrich: %v", err)

		return nil
	}

	event.Objects = enrichment.Objects

	if event.Caption == nil {
		event.Caption = enrichment.Caption
	}

	if event.Desc == nil {
		event.Desc = enrichment.Desc
	}

	return enrichment.Snapshot
}

func (c *BridgeController) commit(msg kafka.Message) {
	commitCtx, commitCancel := context.WithTimeout(c.ctx, c.commitTimeout)
	defer commitCancel()

	err := c.ec.CommitEvent(commitCtx, msg)
	if err != nil {
		c.logger.Error(err, "BridgeController - commit - c.ec.CommitEvent")
	}
}

func (c *BridgeController) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		c.ec.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
