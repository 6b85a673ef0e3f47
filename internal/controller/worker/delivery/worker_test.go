package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/infrastructure/webhook"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/andreyxaxa/Event-Gateway/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type deliveriesStub struct {
	mu sync.Mutex

	toClaim []*entity.DeliveryTask

	completed []*entity.DeliveryTask
	failed    []*entity.DeliveryTask
	aborted   []string
}

func (s *deliveriesStub) ClaimBatch(context.Context, int) ([]*entity.DeliveryTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := s.toClaim
	s.toClaim = nil

	return claimed, nil
}

func (s *deliveriesStub) CompleteTask(_ context.Context, task *entity.DeliveryTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.Status = entity.TaskSucceeded
	s.completed = append(s.completed, task)

	return nil
}

func (s *deliveriesStub) FailTask(_ context.Context, task *entity.DeliveryTask, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.AttemptCount++
	task.Status = entity.TaskRetrying
	s.failed = append(s.failed, task)

	return nil
}

func (s *deliveriesStub) AbortTask(_ context.Context, task *entity.DeliveryTask, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.Status = entity.TaskFailed
	s.aborted = append(s.aborted, reason)

	return nil
}

func (s *deliveriesStub) ReclaimStale(context.Context, time.Duration) (int64, error) { return 0, nil }
func (s *deliveriesStub) DrainDisabled(context.Context) (int64, error)               { return 0, nil }
func (s *deliveriesStub) CleanupTasks(context.Context, time.Duration) (int64, error) { return 0, nil }

type eventsStub struct {
	events map[int64]*entity.Event
}

func (s *eventsStub) Ingest(context.Context, *entity.Event, []byte) (bool, error) {
	return false, nil
}

func (s *eventsStub) GetByID(_ context.Context, id int64) (*entity.Event, error) {
	event, ok := s.events[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}

	return event, nil
}

func (s *eventsStub) List(context.Context, repo.EventFilter) ([]*entity.Event, error) {
	return nil, nil
}

func (s *eventsStub) ListDeliveries(context.Context, int64) ([]*entity.DeliveryTask, error) {
	return nil, nil
}

func (s *eventsStub) RefreshEndpoints(context.Context) error { return nil }

func (s *eventsStub) PruneExpired(context.Context, time.Duration) (int64, error) { return 0, nil }

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})       {}
func (nopLogger) Error(interface{}, ...interface{}) {}
func (nopLogger) Fatal(interface{}, ...interface{}) {}

func testEvent(id int64) *entity.Event {
	desc := "line crossed"

	return &entity.Event{
		ID:         id,
		StreamID:   "cam-1",
		AppID:      "app-1",
		Kind:       "motion",
		Desc:       &desc,
		OccurredAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func newWorker(deliveries *deliveriesStub, events *eventsStub) *Worker {
	w := New(
		deliveries,
		events,
		webhook.New(),
		nopLogger{},
		10*time.Millisecond,
		time.Second,
		10,
		2,
	)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	return w
}

func TestDeliverSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	deliveries := &deliveriesStub{}
	events := &eventsStub{events: map[int64]*entity.Event{1: testEvent(1)}}
	w := newWorker(deliveries, events)

	task := &entity.DeliveryTask{ID: 1, EventID: 1, EndpointID: uuid.New(), EndpointURL: srv.URL}
	w.deliver(task)

	require.Len(t, deliveries.completed, 1)
	require.Equal(t, entity.TaskSucceeded, task.Status)
}

func TestDeliverServerErrorThenSuccess(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	deliveries := &deliveriesStub{}
	events := &eventsStub{events: map[int64]*entity.Event{1: testEvent(1)}}
	w := newWorker(deliveries, events)

	task := &entity.DeliveryTask{ID: 1, EventID: 1, EndpointID: uuid.New(), EndpointURL: srv.URL}

	// первая попытка: 500 - задача уходит в retrying
	w.deliver(task)
	require.Len(t, deliveries.failed, 1)
	require.Equal(t, entity.TaskRetrying, task.Status)
	require.Equal(t, 1, task.AttemptCount)

	// повторная попытка: 200 - задача закрывается
	w.deliver(task)
	require.Len(t, deliveries.completed, 1)
	require.Equal(t, entity.TaskSucceeded, task.Status)
}

func TestDeliverAbortsWhenEndpointRemoved(t *testing.T) {
	t.Parallel()

	deliveries := &deliveriesStub{}
	events := &eventsStub{events: map[int64]*entity.Event{1: testEvent(1)}}
	w := newWorker(deliveries, events)

	task := &entity.DeliveryTask{ID: 1, EventID: 1, EndpointID: uuid.New()}
	w.deliver(task)

	require.Equal(t, []string{"endpoint removed"}, deliveries.aborted)
	require.Equal(t, entity.TaskFailed, task.Status)
}

func TestDeliverAbortsWhenEventPruned(t *testing.T) {
	t.Parallel()

	deliveries := &deliveriesStub{}
	events := &eventsStub{events: map[int64]*entity.Event{}}
	w := newWorker(deliveries, events)

	task := &entity.DeliveryTask{ID: 1, EventID: 99, EndpointID: uuid.New(), EndpointURL: "http://127.0.0.1:1"}
	w.deliver(task)

	require.Equal(t, []string{"event pruned"}, deliveries.aborted)
}

func TestWorkerStartClaimsAndDelivers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	deliveries := &deliveriesStub{
		toClaim: []*entity.DeliveryTask{
			{ID: 1, EventID: 1, EndpointID: uuid.New(), EndpointURL: srv.URL},
			{ID: 2, EventID: 1, EndpointID: uuid.New(), EndpointURL: srv.URL},
		},
	}
	events := &eventsStub{events: map[int64]*entity.Event{1: testEvent(1)}}

	w := New(deliveries, events, webhook.New(), nopLogger{}, 10*time.Millisecond, time.Second, 10, 2)

	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		deliveries.mu.Lock()
		defer deliveries.mu.Unlock()

		return len(deliveries.completed) == 2
	}, 2*time.Second, 10*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(shutdownCtx))
}
