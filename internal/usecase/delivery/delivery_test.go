package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreyxaxa/Event-Gateway/internal/entity"
	"github.com/andreyxaxa/Event-Gateway/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type taskRepoStub struct {
	claimed []*entity.DeliveryTask

	succeededIDs []int64
	failed       []failedCall
	retrying     []retryingCall

	reclaimed int64
	drained   int64
	deleted   int64
}

type failedCall struct {
	id           int64
	attemptCount int
	lastError    string
}

type retryingCall struct {
	id            int64
	attemptCount  int
	nextAttemptAt time.Time
	lastError     string
}

func (s *taskRepoStub) CreateBatch(context.Context, []*entity.DeliveryTask) error { return nil }

func (s *taskRepoStub) ClaimBatch(context.Context, int, time.Time) ([]*entity.DeliveryTask, error) {
	return s.claimed, nil
}

func (s *taskRepoStub) MarkSucceeded(_ context.Context, id int64, _ time.Time) error {
	s.succeededIDs = append(s.succeededIDs, id)

	return nil
}

func (s *taskRepoStub) MarkRetrying(_ context.Context, id int64, attemptCount int, nextAttemptAt time.Time, lastError string, _ time.Time) error {
	s.retrying = append(s.retrying, retryingCall{id, attemptCount, nextAttemptAt, lastError})

	return nil
}

func (s *taskRepoStub) MarkFailed(_ context.Context, id int64, attemptCount int, lastError string, _ time.Time) error {
	s.failed = append(s.failed, failedCall{id, attemptCount, lastError})

	return nil
}

func (s *taskRepoStub) ListByEvent(context.Context, int64) ([]*entity.DeliveryTask, error) {
	return nil, nil
}

func (s *taskRepoStub) ReclaimStale(context.Context, time.Time, time.Time) (int64, error) {
	return s.reclaimed, nil
}

func (s *taskRepoStub) FailForDisabledEndpoints(context.Context, string, time.Time) (int64, error) {
	return s.drained, nil
}

func (s *taskRepoStub) DeleteTerminalOlderThan(context.Context, time.Time) (int64, error) {
	return s.deleted, nil
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})       {}
func (nopLogger) Error(interface{}, ...interface{}) {}
func (nopLogger) Fatal(interface{}, ...interface{}) {}

func newUseCase(repo *taskRepoStub, maxAttempts int) *DeliveryUseCase {
	uc := New(repo, nopLogger{}, metrics.New(prometheus.NewRegistry()), maxAttempts, noJitter(NewBackoff(time.Second, time.Minute)))
	uc.nowFn = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }

	return uc
}

func TestFailTaskSchedulesRetry(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{}
	uc := newUseCase(repo, 5)

	task := &entity.DeliveryTask{ID: 1, Status: entity.TaskInFlight, AttemptCount: 0}

	err := uc.FailTask(context.Background(), task, errors.New("status 500"))
	require.NoError(t, err)

	require.Equal(t, entity.TaskRetrying, task.Status)
	require.Equal(t, 1, task.AttemptCount)

	require.Len(t, repo.retrying, 1)
	require.Equal(t, 1, repo.retrying[0].attemptCount)
	require.Equal(t, "status 500", repo.retrying[0].lastError)
	// первая попытка: base задержка от текущего момента
	require.Equal(t, uc.nowFn().Add(time.Second), repo.retrying[0].nextAttemptAt)
	require.Empty(t, repo.failed)
}

func TestFailTaskBackoffGrows(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{}
	uc := newUseCase(repo, 10)

	task := &entity.DeliveryTask{ID: 1, Status: entity.TaskInFlight, AttemptCount: 2}

	err := uc.FailTask(context.Background(), task, errors.New("timeout"))
	require.NoError(t, err)

	require.Equal(t, 3, task.AttemptCount)
	require.Equal(t, uc.nowFn().Add(4*time.Second), repo.retrying[0].nextAttemptAt)
}

func TestFailTaskExhaustsBudget(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{}
	uc := newUseCase(repo, 3)

	task := &entity.DeliveryTask{ID: 7, Status: entity.TaskInFlight, AttemptCount: 2}

	err := uc.FailTask(context.Background(), task, errors.New("connection refused"))
	require.NoError(t, err)

	require.Equal(t, entity.TaskFailed, task.Status)
	require.Empty(t, repo.retrying)
	require.Len(t, repo.failed, 1)
	require.Equal(t, int64(7), repo.failed[0].id)
	require.Equal(t, 3, repo.failed[0].attemptCount)
	require.Equal(t, "connection refused", repo.failed[0].lastError)
}

func TestCompleteTask(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{}
	uc := newUseCase(repo, 3)

	task := &entity.DeliveryTask{ID: 2, Status: entity.TaskInFlight}

	err := uc.CompleteTask(context.Background(), task)
	require.NoError(t, err)

	require.Equal(t, entity.TaskSucceeded, task.Status)
	require.Equal(t, []int64{2}, repo.succeededIDs)
}

func TestAbortTask(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{}
	uc := newUseCase(repo, 3)

	task := &entity.DeliveryTask{ID: 4, Status: entity.TaskInFlight, AttemptCount: 1}

	err := uc.AbortTask(context.Background(), task, "endpoint removed")
	require.NoError(t, err)

	require.Equal(t, entity.TaskFailed, task.Status)
	require.Len(t, repo.failed, 1)
	require.Equal(t, "endpoint removed", repo.failed[0].lastError)
	// счетчик попыток не инкрементируется, доставка не предпринималась
	require.Equal(t, 1, repo.failed[0].attemptCount)
}

func TestReclaimStale(t *testing.T) {
	t.Parallel()

	repo := &taskRepoStub{reclaimed: 3}
	uc := newUseCase(repo, 3)

	count, err := uc.ReclaimStale(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}
