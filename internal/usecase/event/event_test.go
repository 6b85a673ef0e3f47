package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/andreyxaxa/Event-Gateway/internal/repo"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type eventRepoStub struct {
	nextID    int64
	duplicate bool
	createErr error

	created []*entity.Event

	pruneKeys  []string
	pruneCount int64
}

func (s *eventRepoStub) Create(_ context.Context, event *entity.Event) (int64, bool, error) {
	if s.createErr != nil {
		return 0, false, s.createErr
	}
	if s.duplicate {
		return 0, false, nil
	}

	s.nextID++
	s.created = append(s.created, event)

	return s.nextID, true, nil
}

func (s *eventRepoStub) GetByID(context.Context, int64) (*entity.Event, error) { return nil, nil }

func (s *eventRepoStub) List(context.Context, repo.EventFilter) ([]*entity.Event, error) {
	return nil, nil
}

func (s *eventRepoStub) DeleteOlderThan(context.Context, time.Time) ([]string, int64, error) {
	return s.pruneKeys, s.pruneCount, nil
}

type taskRepoStub struct {
	batches [][]*entity.DeliveryTask
}

func (s *taskRepoStub) CreateBatch(_ context.Context, tasks []*entity.DeliveryTask) error {
	s.batches = append(s.batches, tasks)

	return nil
}

func (s *taskRepoStub) ClaimBatch(context.Context, int, time.Time) ([]*entity.DeliveryTask, error) {
	return nil, nil
}
func (s *taskRepoStub) MarkSucceeded(context.Context, int64, time.Time) error { return nil }
func (s *taskRepoStub) MarkRetrying(context.Context, int64, int, time.Time, string, time.Time) error {
	return nil
}
func (s *taskRepoStub) MarkFailed(context.Context, int64, int, string, time.Time) error { return nil }
func (s *taskRepoStub) ListByEvent(context.Context, int64) ([]*entity.DeliveryTask, error) {
	return nil, nil
}
func (s *taskRepoStub) ReclaimStale(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (s *taskRepoStub) FailForDisabledEndpoints(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (s *taskRepoStub) DeleteTerminalOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type endpointRepoStub struct {
	endpoints []*entity.Endpoint
}

func (s *endpointRepoStub) ListEnabled(context.Context) ([]*entity.Endpoint, error) {
	return s.endpoints, nil
}

type snapshotRepoStub struct {
	uploaded  map[string][]byte
	deleted   []string
	uploadErr error
}

func (s *snapshotRepoStub) Upload(_ context.Context, key string, data []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	if s.uploaded == nil {
		s.uploaded = make(map[string][]byte)
	}
	s.uploaded[key] = data

	return nil
}

func (s *snapshotRepoStub) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)

	return nil
}

type transactorStub struct{}

func (transactorStub) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})       {}
func (nopLogger) Error(interface{}, ...interface{}) {}
func (nopLogger) Fatal(interface{}, ...interface{}) {}

type fixture struct {
	uc        *EventUseCase
	events    *eventRepoStub
	tasks     *taskRepoStub
	snapshots *snapshotRepoStub
}

func newFixture(t *testing.T, endpoints ...*entity.Endpoint) *fixture {
	t.Helper()

	f := &fixture{
		events:    &eventRepoStub{},
		tasks:     &taskRepoStub{},
		snapshots: &snapshotRepoStub{},
	}

	f.uc = New(
		f.events,
		f.tasks,
		&endpointRepoStub{endpoints: endpoints},
		f.snapshots,
		transactorStub{},
		nopLogger{},
		metrics.New(prometheus.NewRegistry()),
	)

	require.NoError(t, f.uc.RefreshEndpoints(context.Background()))

	return f
}

func newEvent(kind, streamID string) *entity.Event {
	return &entity.Event{
		StreamID:   streamID,
		AppID:      "app-1",
		Kind:       kind,
		OccurredAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		ReceivedAt: time.Date(2026, 8, 20, 12, 0, 1, 0, time.UTC),
	}
}

func TestIngestFanOutMatching(t *testing.T) {
	t.Parallel()

	motionOnly := &entity.Endpoint{ID: uuid.New(), Kinds: []string{"motion"}, Enabled: true}
	cam2Only := &entity.Endpoint{ID: uuid.New(), Streams: []string{"cam-2"}, Enabled: true}
	catchAll := &entity.Endpoint{ID: uuid.New(), Enabled: true}
	disabled := &entity.Endpoint{ID: uuid.New(), Enabled: false}

	f := newFixture(t, motionOnly, cam2Only, catchAll, disabled)

	inserted, err := f.uc.Ingest(context.Background(), newEvent("motion", "cam-1"), nil)
	require.NoError(t, err)
	require.True(t, inserted)

	require.Len(t, f.tasks.batches, 1)
	tasks := f.tasks.batches[0]
	require.Len(t, tasks, 2)

	gotEndpoints := []uuid.UUID{tasks[0].EndpointID, tasks[1].EndpointID}
	require.ElementsMatch(t, []uuid.UUID{motionOnly.ID, catchAll.ID}, gotEndpoints)

	for _, task := range tasks {
		require.Equal(t, entity.TaskPending, task.Status)
		require.Equal(t, int64(1), task.EventID)
		require.Zero(t, task.AttemptCount)
	}
}

func TestIngestNoMatchingEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &entity.Endpoint{ID: uuid.New(), Kinds: []string{"intrusion"}, Enabled: true})

	inserted, err := f.uc.Ingest(context.Background(), newEvent("motion", "cam-1"), nil)
	require.NoError(t, err)
	require.True(t, inserted)

	// событие сохранено, задач нет
	require.Len(t, f.events.created, 1)
	require.Empty(t, f.tasks.batches)
}

func TestIngestDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &entity.Endpoint{ID: uuid.New(), Enabled: true})
	f.events.duplicate = true

	inserted, err := f.uc.Ingest(context.Background(), newEvent("motion", "cam-1"), nil)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Empty(t, f.tasks.batches)
}

func TestIngestDuplicateDropsSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.events.duplicate = true

	event := newEvent("motion", "cam-1")

	inserted, err := f.uc.Ingest(context.Background(), event, []byte("jpeg"))
	require.NoError(t, err)
	require.False(t, inserted)

	// снапшот этой попытки загружен и тут же подчищен
	require.Len(t, f.snapshots.uploaded, 1)
	require.Len(t, f.snapshots.deleted, 1)
	require.Nil(t, event.SnapshotKey)
}

func TestIngestSnapshotUploadFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.snapshots.uploadErr = errors.New("s3 unavailable")

	event := newEvent("motion", "cam-1")

	inserted, err := f.uc.Ingest(context.Background(), event, []byte("jpeg"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Nil(t, event.SnapshotKey)
}

func TestIngestStoreErrorCleansSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.events.createErr = errors.New("connection refused")

	event := newEvent("motion", "cam-1")

	_, err := f.uc.Ingest(context.Background(), event, []byte("jpeg"))
	require.Error(t, err)
	require.Len(t, f.snapshots.deleted, 1)
	require.Nil(t, event.SnapshotKey)
}

func TestPruneExpiredDeletesSnapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.events.pruneKeys = []string{"snapshots/a", "snapshots/b"}
	f.events.pruneCount = 5

	count, err := f.uc.PruneExpired(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
	require.Equal(t, []string{"snapshots/a", "snapshots/b"}, f.snapshots.deleted)
}
