package event

import (
	"github.com/andreyxaxa/Event-Gateway/internal/entity"
)

// fanOut строит задачи доставки по снапшоту эндпоинтов, актуальному на
// момент коммита. Эндпоинты, зарегистрированные позже, прошлые события
// не получают.
func (uc *EventUseCase) fanOut(event *entity.Event) []*entity.DeliveryTask {
	uc.mu.RLock()
	endpoints := uc.endpoints
	uc.mu.RUnlock()

	now := uc.nowFn()

	var tasks []*entity.DeliveryTask
	for _, endpoint := range endpoints {
		if !endpoint.Enabled || !endpoint.Matches(event.Kind, event.StreamID) {
			continue
		}

		tasks = append(tasks, &entity.DeliveryTask{
			EventID:       event.ID,
			EndpointID:    endpoint.ID,
			Status:        entity.TaskPending,
			AttemptCount:  0,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	return tasks
}
