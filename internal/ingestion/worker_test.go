package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joblens/job-import-service/internal/models"
	"github.com/joblens/job-import-service/internal/queue"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertJob(ctx context.Context, job models.Job) (bool, error) {
	args := m.Called(ctx, job)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error {
	args := m.Called(ctx, source, now, delta)
	return args.Error(0)
}

func (m *MockStorage) CountImportLogs(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.ImportLog), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// fakeStore is an in-memory store honoring the upsert and window-merge
// contracts, for tests that care about end-to-end item semantics.
type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]models.Job
	logs   []models.ImportLog
	window time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]models.Job), window: time.Hour}
}

func (f *fakeStore) UpsertJob(ctx context.Context, job models.Job) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := job.IdentityKey()
	_, exists := f.jobs[key]
	f.jobs[key] = job
	return !exists, nil
}

func (f *fakeStore) MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.logs {
		entry := &f.logs[i]
		if entry.FileName == source && !entry.Timestamp.Before(now.Add(-f.window)) {
			entry.Timestamp = now
			entry.TotalFetched += delta.TotalFetched
			entry.NewJobs += delta.NewJobs
			entry.UpdatedJobs += delta.UpdatedJobs
			entry.FailedJobs += delta.FailedJobs
			entry.FailureReasons = append(entry.FailureReasons, delta.FailureReasons...)
			return nil
		}
	}
	f.logs = append(f.logs, models.ImportLog{
		FileName:       source,
		Timestamp:      now,
		TotalFetched:   delta.TotalFetched,
		NewJobs:        delta.NewJobs,
		UpdatedJobs:    delta.UpdatedJobs,
		FailedJobs:     delta.FailedJobs,
		FailureReasons: delta.FailureReasons,
	})
	return nil
}

func (f *fakeStore) CountImportLogs(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.logs)), nil
}

func (f *fakeStore) ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := append([]models.ImportLog(nil), f.logs...)
	sort.Slice(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	if offset >= len(logs) {
		return nil, nil
	}
	logs = logs[offset:]
	if limit < len(logs) {
		logs = logs[:limit]
	}
	return logs, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

var testItem = models.WorkItem{
	JobID:  "job-1",
	Title:  "Go Engineer",
	URL:    "https://example.com/jobs/1",
	Source: testSource,
}

func TestWorker_Process_NewJob(t *testing.T) {
	store := new(MockStorage)
	store.On("UpsertJob", mock.Anything, mock.AnythingOfType("models.Job")).Return(true, nil)
	store.On("MergeImportLog", mock.Anything, testSource, mock.Anything, mock.MatchedBy(func(d models.ImportDelta) bool {
		return d.TotalFetched == 1 && d.NewJobs == 1 && d.UpdatedJobs == 0 && d.FailedJobs == 0
	})).Return(nil)

	worker := NewWorker(0, nil, store, time.Second)
	worker.Process(context.Background(), testItem)

	store.AssertExpectations(t)
	assert.True(t, worker.Summary().Counts(testSource).IsZero(), "flushed delta must be drained")
}

func TestWorker_Process_UpdatedJob(t *testing.T) {
	store := new(MockStorage)
	store.On("UpsertJob", mock.Anything, mock.AnythingOfType("models.Job")).Return(false, nil)
	store.On("MergeImportLog", mock.Anything, testSource, mock.Anything, mock.MatchedBy(func(d models.ImportDelta) bool {
		return d.TotalFetched == 1 && d.UpdatedJobs == 1
	})).Return(nil)

	worker := NewWorker(0, nil, store, time.Second)
	worker.Process(context.Background(), testItem)

	store.AssertExpectations(t)
}

func TestWorker_Process_StoreFailure(t *testing.T) {
	store := new(MockStorage)
	store.On("UpsertJob", mock.Anything, mock.AnythingOfType("models.Job")).Return(false, errors.New("store unavailable"))
	store.On("MergeImportLog", mock.Anything, testSource, mock.Anything, mock.MatchedBy(func(d models.ImportDelta) bool {
		return d.TotalFetched == 1 && d.FailedJobs == 1 &&
			len(d.FailureReasons) == 1 && d.FailureReasons[0] == "store unavailable"
	})).Return(nil)

	worker := NewWorker(0, nil, store, time.Second)
	worker.Process(context.Background(), testItem)

	store.AssertExpectations(t)
}

func TestWorker_Process_FlushFailureRestoresDelta(t *testing.T) {
	store := new(MockStorage)
	store.On("UpsertJob", mock.Anything, mock.AnythingOfType("models.Job")).Return(true, nil)
	store.On("MergeImportLog", mock.Anything, testSource, mock.Anything, mock.Anything).Return(errors.New("log write failed"))

	worker := NewWorker(0, nil, store, time.Second)
	worker.Process(context.Background(), testItem)

	counts := worker.Summary().Counts(testSource)
	assert.Equal(t, 1, counts.TotalFetched, "delta must survive a failed flush")
	assert.Equal(t, 1, counts.NewJobs)
}

func TestWorker_Process_Idempotence(t *testing.T) {
	store := newFakeStore()
	worker := NewWorker(0, nil, store, time.Second)

	worker.Process(context.Background(), testItem)
	worker.Process(context.Background(), testItem)

	assert.Equal(t, 1, store.jobCount(), "replaying one item must not create a second posting")

	logs, err := store.ListImportLogs(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].TotalFetched)
	assert.Equal(t, 1, logs[0].NewJobs)
	assert.Equal(t, 1, logs[0].UpdatedJobs)
}

func TestWorker_Process_IdentityWithoutExternalID(t *testing.T) {
	store := newFakeStore()
	worker := NewWorker(0, nil, store, time.Second)

	noID := models.WorkItem{Title: "Untracked Role", URL: "https://x", Source: testSource}
	worker.Process(context.Background(), noID)
	worker.Process(context.Background(), noID)

	assert.Equal(t, 1, store.jobCount(), "title+source identity must deduplicate")
}

func TestImportLogWindowing(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	one := models.ImportDelta{TotalFetched: 1, NewJobs: 1}
	require.NoError(t, store.MergeImportLog(ctx, testSource, t0, one))
	require.NoError(t, store.MergeImportLog(ctx, testSource, t0.Add(5*time.Minute), one))

	logs, err := store.ListImportLogs(ctx, 20, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1, "items five minutes apart share one window entry")
	assert.Equal(t, 2, logs[0].TotalFetched)

	require.NoError(t, store.MergeImportLog(ctx, testSource, t0.Add(66*time.Minute), one))

	logs, err = store.ListImportLogs(ctx, 20, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "a 61-minute gap starts a new window entry")
}

func TestWorker_Run_DrainsQueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := queue.NewWorkQueue(client, "worker-test")
	require.NoError(t, q.Enqueue(models.WorkItem{JobID: "a", Title: "A", URL: "https://a", Source: testSource}))
	require.NoError(t, q.Enqueue(models.WorkItem{JobID: "b", Title: "B", URL: "https://b", Source: testSource}))

	store := newFakeStore()
	worker := NewWorker(0, q, store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return store.jobCount() == 2
	}, 2*time.Second, 10*time.Millisecond, "worker should process both items")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	size, err := q.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	logs, err := store.ListImportLogs(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].TotalFetched)
	assert.Equal(t, 2, logs[0].NewJobs)
}
