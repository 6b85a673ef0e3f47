package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/stretchr/testify/require"
)

type deliveriesStub struct {
	mu sync.Mutex

	reclaimErr   error
	reclaimPanic bool

	reclaimCalls []time.Duration
	drainCalls   int
	cleanupCalls []time.Duration
}

func (s *deliveriesStub) ClaimBatch(context.Context, int) ([]*entity.DeliveryTask, error) {
	return nil, nil
}
func (s *deliveriesStub) CompleteTask(context.Context, *entity.DeliveryTask) error { return nil }
func (s *deliveriesStub) FailTask(context.Context, *entity.DeliveryTask, error) error {
	return nil
}
func (s *deliveriesStub) AbortTask(context.Context, *entity.DeliveryTask, string) error {
	return nil
}

func (s *deliveriesStub) ReclaimStale(_ context.Context, staleAfter time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reclaimCalls = append(s.reclaimCalls, staleAfter)

	if s.reclaimPanic {
		s.reclaimPanic = false

		panic("task storage gone")
	}

	return 0, s.reclaimErr
}

func (s *deliveriesStub) DrainDisabled(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainCalls++

	return 0, nil
}

func (s *deliveriesStub) CleanupTasks(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupCalls = append(s.cleanupCalls, retention)

	return 0, nil
}

type eventsStub struct {
	mu sync.Mutex

	pruneCalls   []time.Duration
	refreshCalls int
}

func (s *eventsStub) Ingest(context.Context, *entity.Event, []byte) (bool, error) {
	return false, nil
}
func (s *eventsStub) GetByID(context.Context, int64) (*entity.Event, error) { return nil, nil }
func (s *eventsStub) List(context.Context, repo.EventFilter) ([]*entity.Event, error) {
	return nil, nil
}
func (s *eventsStub) ListDeliveries(context.Context, int64) ([]*entity.DeliveryTask, error) {
	return nil, nil
}

func (s *eventsStub) RefreshEndpoints(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCalls++

	return nil
}

func (s *eventsStub) PruneExpired(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneCalls = append(s.pruneCalls, retention)

	return 0, nil
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})       {}
func (nopLogger) Error(interface{}, ...interface{}) {}
func (nopLogger) Fatal(interface{}, ...interface{}) {}

func TestRunCycleExecutesAllSteps(t *testing.T) {
	t.Parallel()

	events := &eventsStub{}
	deliveries := &deliveriesStub{}

	s := New(events, deliveries, nopLogger{}, time.Minute, time.Second, 5*time.Minute, 720*time.Hour, 168*time.Hour)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	s.runCycle()

	require.Equal(t, []time.Duration{5 * time.Minute}, deliveries.reclaimCalls)
	require.Equal(t, 1, deliveries.drainCalls)
	require.Equal(t, []time.Duration{168 * time.Hour}, deliveries.cleanupCalls)
	require.Equal(t, []time.Duration{720 * time.Hour}, events.pruneCalls)
	require.Equal(t, 1, events.refreshCalls)
}

func TestRunCycleContinuesAfterStepError(t *testing.T) {
	t.Parallel()

	events := &eventsStub{}
	deliveries := &deliveriesStub{reclaimErr: errors.New("connection refused")}

	s := New(events, deliveries, nopLogger{}, time.Minute, time.Second, 5*time.Minute, 720*time.Hour, 168*time.Hour)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	s.runCycle()

	// провал первого шага не останавливает остальные
	require.Equal(t, 1, deliveries.drainCalls)
	require.Equal(t, 1, events.refreshCalls)
}

func TestSchedulerSurvivesPanickingStep(t *testing.T) {
	t.Parallel()

	events := &eventsStub{}
	deliveries := &deliveriesStub{reclaimPanic: true}

	s := New(events, deliveries, nopLogger{}, 20*time.Millisecond, time.Second, 5*time.Minute, time.Hour, time.Hour)

	require.NoError(t, s.Start(context.Background()))

	// первый цикл умирает на reclaim; тикер жив, и следующий цикл
	// доходит до конца
	require.Eventually(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()

		return events.refreshCalls >= 1
	}, 2*time.Second, 10*time.Millisecond)

	deliveries.mu.Lock()
	require.GreaterOrEqual(t, len(deliveries.reclaimCalls), 2)
	deliveries.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
}

func TestSchedulerTicks(t *testing.T) {
	t.Parallel()

	events := &eventsStub{}
	deliveries := &deliveriesStub{}

	s := New(events, deliveries, nopLogger{}, 20*time.Millisecond, time.Second, 5*time.Minute, time.Hour, time.Hour)

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()

		return events.refreshCalls >= 2
	}, 2*time.Second, 10*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
}
