package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/usecase"
	"github.com/andreyxaxa/Event-Gateway/pkg/logger"
)

// Scheduler - единый тикер обслуживания: возврат зависших задач,
// закрытие задач отключенных приемников, ретенция событий и задач,
// обновление кеша приемников. Циклы не накладываются: если прошлый
// еще идет, тик пропускается.
type Scheduler struct {
	events     usecase.EventUseCase
	deliveries usecase.DeliveryUseCase
	logger     logger.Interface

	interval       time.Duration
	cycleTimeout   time.Duration
	staleAfter     time.Duration
	eventRetention time.Duration
	taskRetention  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
	running atomic.Bool
}

func New(
	events usecase.EventUseCase,
	deliveries usecase.DeliveryUseCase,
	l logger.Interface,
	interval time.Duration,
	cycleTimeout time.Duration,
	staleAfter time.Duration,
	eventRetention time.Duration,
	taskRetention time.Duration,
) *Scheduler {
	return &Scheduler{
		events:         events,
		deliveries:     deliveries,
		logger:         l,
		interval:       interval,
		cycleTimeout:   cycleTimeout,
		staleAfter:     staleAfter,
		eventRetention: eventRetention,
		taskRetention:  taskRetention,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Scheduler - Start - scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if !s.running.CompareAndSwap(false, true) {
					s.logger.Warn("Scheduler - Start - previous cycle still running, skipping tick")

					continue
				}

				func() {
					defer s.running.Store(false)
					defer func() {
						if r := recover(); r != nil {
							s.logger.Error(fmt.Errorf("panic %v", r), "Scheduler - Start - panic")
						}
					}()

					s.runCycle()
				}()
			}
		}
	}()

	return nil
}

// runCycle выполняет шаги по очереди; ошибка одного шага не
// останавливает остальные.
func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cycleTimeout)
	defer cancel()

	_, err := s.deliveries.ReclaimStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error(err, "Scheduler - runCycle - s.deliveries.ReclaimStale")
	}

	_, err = s.deliveries.DrainDisabled(ctx)
	if err != nil {
		s.logger.Error(err, "Scheduler - runCycle - s.deliveries.DrainDisabled")
	}

	_, err = s.deliveries.CleanupTasks(ctx, s.taskRetention)
	if err != nil {
		s.logger.Error(err, "Scheduler - runCycle - s.deliveries.CleanupTasks")
	}

	_, err = s.events.PruneExpired(ctx, s.eventRetention)
	if err != nil {
		s.logger.Error(err, "Scheduler - runCycle - s.events.PruneExpired")
	}

	err = s.events.RefreshEndpoints(ctx)
	if err != nil {
		s.logger.Error(err, "Scheduler - runCycle - s.events.RefreshEndpoints")
	}
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
