package infrastructure

import (
	"context"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

type (
	// WebhookSender выполняет один HTTP push; ретраи - забота машины
	// состояний задач, не транспорта.
	WebhookSender interface {
		Send(ctx context.Context, url string, payload []byte) error
	}

	// EnrichmentProvider - синхронный запрос к инференс-ядру. Без
	// внутренних ретраев: мост решает один раз на сообщение.
	EnrichmentProvider interface {
		Enrich(ctx context.Context, ref entity.EnrichmentRef) (*entity.Enrichment, error)
	}

	// EventsPublisher ре-публикует нормализованные события во внутренний
	// топик для соседних компонентов appliance.
	EventsPublisher interface {
		PublishEvents(ctx context.Context, events []*entity.Event) error
		Close() error
	}
)
