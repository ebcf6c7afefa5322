package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
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

type importLogsResponse struct {
	Logs       []models.ImportLog `json:"logs"`
	Pagination models.Pagination  `json:"pagination"`
	Error      string             `json:"error"`
}

func getImportLogs(t *testing.T, store *MockStorage, path string) (int, importLogsResponse) {
	t.Helper()
	s := NewServer(config.ServerConfig{Port: 0}, store)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body importLogsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func makeLogs(n int) []models.ImportLog {
	logs := make([]models.ImportLog, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range logs {
		logs[i] = models.ImportLog{
			FileName:       "https://example.com/feed",
			Timestamp:      base.Add(-time.Duration(i) * time.Hour),
			TotalFetched:   10,
			FailureReasons: []string{},
		}
	}
	return logs
}

func TestHandleImportLogs_Pagination(t *testing.T) {
	store := new(MockStorage)
	store.On("CountImportLogs", mock.Anything).Return(int64(45), nil)
	store.On("ListImportLogs", mock.Anything, 20, 40).Return(makeLogs(5), nil)

	code, body := getImportLogs(t, store, "/api/import-logs?page=3")

	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Logs, 5)
	assert.Equal(t, 3, body.Pagination.Page)
	assert.Equal(t, 20, body.Pagination.PerPage)
	assert.Equal(t, int64(45), body.Pagination.Total)
	assert.Equal(t, int64(3), body.Pagination.TotalPages)
	store.AssertExpectations(t)
}

func TestHandleImportLogs_PageCoercion(t *testing.T) {
	for _, path := range []string{
		"/api/import-logs",
		"/api/import-logs?page=0",
		"/api/import-logs?page=-5",
		"/api/import-logs?page=abc",
	} {
		store := new(MockStorage)
		store.On("CountImportLogs", mock.Anything).Return(int64(1), nil)
		store.On("ListImportLogs", mock.Anything, 20, 0).Return(makeLogs(1), nil)

		code, body := getImportLogs(t, store, path)

		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, 1, body.Pagination.Page, path)
		store.AssertExpectations(t)
	}
}

func TestHandleImportLogs_DedupesFailureReasons(t *testing.T) {
	logs := makeLogs(1)
	logs[0].FailureReasons = []string{"x ", "x", "y", ""}

	store := new(MockStorage)
	store.On("CountImportLogs", mock.Anything).Return(int64(1), nil)
	store.On("ListImportLogs", mock.Anything, 20, 0).Return(logs, nil)

	code, body := getImportLogs(t, store, "/api/import-logs")

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Logs, 1)
	assert.Equal(t, []string{"x", "y"}, body.Logs[0].FailureReasons)
}

func TestHandleImportLogs_EmptyStore(t *testing.T) {
	store := new(MockStorage)
	store.On("CountImportLogs", mock.Anything).Return(int64(0), nil)
	store.On("ListImportLogs", mock.Anything, 20, 0).Return([]models.ImportLog(nil), nil)

	code, body := getImportLogs(t, store, "/api/import-logs")

	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body.Logs)
	assert.Len(t, body.Logs, 0)
	assert.Equal(t, int64(0), body.Pagination.TotalPages)
}

func TestHandleImportLogs_StoreError(t *testing.T) {
	store := new(MockStorage)
	store.On("CountImportLogs", mock.Anything).Return(int64(0), assert.AnError)

	code, body := getImportLogs(t, store, "/api/import-logs")

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to fetch import logs.", body.Error)
}

func TestHandleImportLogs_MethodNotAllowed(t *testing.T) {
	store := new(MockStorage)
	s := NewServer(config.ServerConfig{Port: 0}, store)

	req := httptest.NewRequest(http.MethodPost, "/api/import-logs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDedupeReasons(t *testing.T) {
	assert.Equal(t, []string{"x", "y"}, dedupeReasons([]string{"x ", "x", "y", ""}))
	assert.Equal(t, []string{}, dedupeReasons(nil))
	assert.Equal(t, []string{"a"}, dedupeReasons([]string{" a ", "a", "  "}))
}
