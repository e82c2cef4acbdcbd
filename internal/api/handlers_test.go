package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maltedev/product-sourcing/internal/jobs"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/queue"
	"github.com/maltedev/product-sourcing/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBatchManager struct {
	mock.Mock
}

func (m *MockBatchManager) Submit(urls []string, priority int) (*jobs.Batch, error) {
	args := m.Called(urls, priority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Batch), args.Error(1)
}

func (m *MockBatchManager) Get(id string) (*jobs.Batch, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Batch), args.Error(1)
}

func (m *MockBatchManager) List() []*jobs.Batch {
	return m.Called().Get(0).([]*jobs.Batch)
}

func (m *MockBatchManager) Cancel(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockBatchManager) Stats() *jobs.Stats {
	return m.Called().Get(0).(*jobs.Stats)
}

type fakeCollector struct {
	entries []models.ListEntry
	err     error
}

func (f *fakeCollector) CollectListing(ctx context.Context, url string) ([]models.ListEntry, error) {
	return f.entries, f.err
}

type fakeOutbox struct {
	pending, deadLetter int64
}

func (f *fakeOutbox) Counts(ctx context.Context) (int64, int64, error) {
	return f.pending, f.deadLetter, nil
}

type server struct {
	handler   http.Handler
	batches   *MockBatchManager
	collector *fakeCollector
	listings  *storage.ListingStorage
}

func newServer(t *testing.T, outbox OutboxCounter) *server {
	t.Helper()
	listings, err := storage.NewListingStorage(filepath.Join(t.TempDir(), "listings.json"))
	require.NoError(t, err)

	s := &server{
		batches:   new(MockBatchManager),
		collector: &fakeCollector{},
		listings:  listings,
	}
	h := NewHandlers(s.batches, s.collector, listings, outbox, slog.Default())
	s.handler = NewRouter(h, []string{"http://localhost:*"})
	return s
}

func (s *server) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateBatch(t *testing.T) {
	s := newServer(t, nil)
	urls := []string{"https://domeggook.com/1"}
	s.batches.On("Submit", urls, 2).Return(&jobs.Batch{ID: "b-1", URLs: urls, Status: jobs.StatusPending}, nil)

	rec := s.do(http.MethodPost, "/api/v1/batches/", CreateBatchRequest{URLs: urls, Priority: 2})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b-1", resp.BatchID)
	assert.Equal(t, 1, resp.URLs)
	s.batches.AssertExpectations(t)
}

func TestCreateBatch_Errors(t *testing.T) {
	s := newServer(t, nil)
	s.batches.On("Submit", []string(nil), 0).Return(nil, jobs.ErrEmptyBatch)
	s.batches.On("Submit", []string{"u"}, 0).Return(nil, fmt.Errorf("failed to queue batch: %w", queue.ErrQueueFull))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/batches/", CreateBatchRequest{}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/batches/", CreateBatchRequest{URLs: []string{"u"}}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndCancelBatch(t *testing.T) {
	s := newServer(t, nil)
	s.batches.On("Get", "b-1").Return(&jobs.Batch{ID: "b-1", Status: jobs.StatusRunning}, nil)
	s.batches.On("Get", "nope").Return(nil, jobs.ErrBatchNotFound)
	s.batches.On("Cancel", "b-1").Return(nil)
	s.batches.On("Cancel", "done").Return(jobs.ErrBatchFinished)
	s.batches.On("List").Return([]*jobs.Batch{{ID: "b-1"}})

	rec := s.do(http.MethodGet, "/api/v1/batches/b-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var batch jobs.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, jobs.StatusRunning, batch.Status)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/batches/nope", nil).Code)
	assert.Equal(t, http.StatusAccepted, s.do(http.MethodDelete, "/api/v1/batches/b-1", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodDelete, "/api/v1/batches/done", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/batches/", nil).Code)
}

func TestListingsFlow(t *testing.T) {
	s := newServer(t, nil)
	s.collector.entries = []models.ListEntry{
		{Name: "One", URL: "https://domeggook.com/1"},
		{Name: "Two", URL: "https://domeggook.com/2"},
	}

	rec := s.do(http.MethodPost, "/api/v1/listings/", CollectListingRequest{URL: "https://domeggook.com/list"})
	require.Equal(t, http.StatusOK, rec.Code)
	var collected CollectListingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &collected))
	assert.Equal(t, 2, collected.Found)
	assert.Equal(t, 2, collected.Added)

	rec = s.do(http.MethodGet, "/api/v1/listings/?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []storage.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	s.batches.On("Submit", []string{"https://domeggook.com/1"}, 0).
		Return(&jobs.Batch{ID: "b-9", URLs: []string{"https://domeggook.com/1"}, Status: jobs.StatusPending}, nil)
	rec = s.do(http.MethodPost, "/api/v1/listings/submit", SubmitListingsRequest{Limit: 1})
	require.Equal(t, http.StatusAccepted, rec.Code)

	l, ok := s.listings.Get("https://domeggook.com/1")
	require.True(t, ok)
	assert.Equal(t, storage.StatusProcessing, l.Status)
	s.batches.AssertExpectations(t)
}

func TestCollectListing_Errors(t *testing.T) {
	s := newServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/listings/", CollectListingRequest{}).Code)

	s.collector.err = models.ErrUnsupportedSource
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/listings/", CollectListingRequest{URL: "https://x.example"}).Code)

	s.collector.err = fmt.Errorf("%w: sign in", models.ErrLoginRequired)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/listings/", CollectListingRequest{URL: "https://domeggook.com/l"}).Code)

	s.collector.err = nil
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/listings/submit", nil).Code)
}

func TestHealthAndStats(t *testing.T) {
	s := newServer(t, &fakeOutbox{pending: 3, deadLetter: 101})
	rec := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "dead_letter")

	plain := newServer(t, nil)
	assert.Equal(t, http.StatusOK, plain.do(http.MethodGet, "/health", nil).Code)

	plain.batches.On("Stats").Return(&jobs.Stats{TotalBatches: 4})
	rec = plain.do(http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.Batches.TotalBatches)
}
