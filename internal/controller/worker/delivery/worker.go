package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure"
	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
)

// Worker выгребает готовые к отправке задачи и пушит события на
// приемники. Клейм батча атомарный, так что инстансов воркера может
// быть несколько.
type Worker struct {
	deliveries usecase.DeliveryUseCase
	events     usecase.EventUseCase
	sender     infrastructure.WebhookSender
	logger     logger.Interface

	pollInterval time.Duration
	pushTimeout  time.Duration
	batchSize    int
	workers      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(
	deliveries usecase.DeliveryUseCase,
	events usecase.EventUseCase,
	sender infrastructure.WebhookSender,
	l logger.Interface,
	pollInterval time.Duration,
	pushTimeout time.Duration,
	batchSize int,
	workers int,
) *Worker {
	return &Worker{
		deliveries:   deliveries,
		events:       events,
		sender:       sender,
		logger:       l,
		pollInterval: pollInterval,
		pushTimeout:  pushTimeout,
		batchSize:    batchSize,
		workers:      workers,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Worker - Start - worker already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	tasks := make(chan *entity.DeliveryTask, w.batchSize)

	// пул отправителей
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.sendLoop(tasks)
	}

	// опрос хранилища
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(tasks)

		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.pollOnce(tasks)
			}
		}
	}()

	return nil
}

func (w *Worker) pollOnce(tasks chan<- *entity.DeliveryTask) {
	claimed, err := w.deliveries.ClaimBatch(w.ctx, w.batchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error(err, "Worker - pollOnce - w.deliveries.ClaimBatch")
		}

		return
	}

	for _, task := range claimed {
		select {
		case tasks <- task:
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) sendLoop(tasks <-chan *entity.DeliveryTask) {
	defer w.wg.Done()

	for task := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(fmt.Errorf("panic %v", r), "Worker - sendLoop - panic")
				}
			}()

			w.deliver(task)
		}()
	}
}

func (w *Worker) deliver(task *entity.DeliveryTask) {
	// эндпоинт удален между клеймом и отправкой
	if task.EndpointURL == "" {
		w.abort(task, errs.ErrEndpointRemoved.Error())

		return
	}

	event, err := w.events.GetByID(w.ctx, task.EventID)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			// событие вычищено ретенцией, доставлять нечего
			w.abort(task, "event pruned")

			return
		}

		// транзиентная ошибка: задачу оставляем inflight, планировщик
		// вернет ее в оборот через reclaim
		w.logger.Error(err, "Worker - deliver - w.events.GetByID")

		return
	}

	payload, err := buildPayload(event)
	if err != nil {
		w.abort(task, fmt.Sprintf("payload: %v", err))

		return
	}

	pushCtx, pushCancel := context.WithTimeout(w.ctx, w.pushTimeout)
	err = w.sender.Send(pushCtx, task.EndpointURL, payload)
	pushCancel()

	if err != nil {
		failErr := w.deliveries.FailTask(w.ctx, task, err)
		if failErr != nil {
			w.logger.Error(failErr, "Worker - deliver - w.deliveries.FailTask")
		}

		return
	}

	err = w.deliveries.CompleteTask(w.ctx, task)
	if err != nil {
		w.logger.Error(err, "Worker - deliver - w.deliveries.CompleteTask")
	}
}

func (w *Worker) abort(task *entity.DeliveryTask, reason string) {
	err := w.deliveries.AbortTask(w.ctx, task, reason)
	if err != nil {
		w.logger.Error(err, "Worker - abort - w.deliveries.AbortTask")
	}
}

func (w *Worker) Shutdown(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})

	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
