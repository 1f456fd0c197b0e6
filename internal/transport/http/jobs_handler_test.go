package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"context"

	"subsvc/internal/dispatcher"
	apierrors "subsvc/internal/errors"
	"subsvc/internal/jobs"
)

// MockJobDispatcher is a mock implementation of JobDispatcher.
type MockJobDispatcher struct {
	mock.Mock
}

func (m *MockJobDispatcher) CreateJob(ctx context.Context, identity DispatcherIdentity, folder, language, logLevel string) (*jobs.Job, error) {
	args := m.Called(ctx, identity, folder, language, logLevel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobDispatcher) CreateJobFromWebhook(ctx context.Context, serviceAccountID, folder, language, logLevel string) (*jobs.Job, error) {
	args := m.Called(ctx, serviceAccountID, folder, language, logLevel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobDispatcher) CancelJob(ctx context.Context, identity DispatcherIdentity, id string) error {
	args := m.Called(ctx, identity, id)
	return args.Error(0)
}

func (m *MockJobDispatcher) RetryJob(ctx context.Context, identity DispatcherIdentity, id string) (*jobs.Job, error) {
	args := m.Called(ctx, identity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobDispatcher) GetJob(ctx context.Context, identity DispatcherIdentity, id string) (*jobs.Job, error) {
	args := m.Called(ctx, identity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobDispatcher) ListJobs(ctx context.Context, identity DispatcherIdentity, offset, limit int) ([]*jobs.Job, error) {
	args := m.Called(ctx, identity, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobs.Job), args.Error(1)
}

func newTestJob(id string, status jobs.Status) *jobs.Job {
	job := jobs.New(id, "owner-1", "/media/inbox", "ro", "info", "", time.Now())
	if status != jobs.StatusPending {
		_ = job.Start("handle-1", time.Now())
	}
	if status.IsTerminal() {
		_ = job.Finish(status, 0, "done", "", time.Now())
	}
	return job
}

func TestCreateJobReturns202OnSuccess(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	job := newTestJob("job-1", jobs.StatusPending)
	mockSvc.On("CreateJob", mock.Anything, mock.Anything, "/media/inbox", "ro", "info").Return(job, nil)

	h := NewJobsHandler(mockSvc, "shh", nil)
	body := bytes.NewBufferString(`{"folder":"/media/inbox","language":"ro","log_level":"info"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["job_id"])
	mockSvc.AssertExpectations(t)
}

func TestCreateJobRejectsMissingFolder(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	h := NewJobsHandler(mockSvc, "shh", nil)

	body := bytes.NewBufferString(`{"language":"ro"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockSvc.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateJobMapsUnauthorizedPathError(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("CreateJob", mock.Anything, mock.Anything, "/etc", "ro", "info").
		Return(nil, apierrors.ErrUnauthorizedPath)

	h := NewJobsHandler(mockSvc, "shh", nil)
	body := bytes.NewBufferString(`{"folder":"/etc","language":"ro","log_level":"info"}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rr := httptest.NewRecorder()

	h.CreateJob(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockSvc.AssertExpectations(t)
}

func TestWebhookAcceptsMatchingSecret(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	job := newTestJob("job-2", jobs.StatusPending)
	mockSvc.On("CreateJobFromWebhook", mock.Anything, "svc-acct", "/media/inbox", "ro", "").Return(job, nil)

	h := NewJobsHandler(mockSvc, "correct-secret", nil)
	body := bytes.NewBufferString(`{"service_account_id":"svc-acct","folder":"/media/inbox","language":"ro"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", body)
	req.Header.Set("X-Webhook-Secret", "correct-secret")
	rr := httptest.NewRecorder()

	h.CreateJobFromWebhook(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	mockSvc.AssertExpectations(t)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	h := NewJobsHandler(mockSvc, "correct-secret", nil)

	body := bytes.NewBufferString(`{"service_account_id":"svc-acct","folder":"/media/inbox","language":"ro"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", body)
	req.Header.Set("X-Webhook-Secret", "wrong-secret")
	rr := httptest.NewRecorder()

	h.CreateJobFromWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	mockSvc.AssertNotCalled(t, "CreateJobFromWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookRejectsWhenSecretUnconfigured(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	h := NewJobsHandler(mockSvc, "", nil)

	body := bytes.NewBufferString(`{"service_account_id":"svc-acct","folder":"/media/inbox","language":"ro"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", body)
	req.Header.Set("X-Webhook-Secret", "")
	rr := httptest.NewRecorder()

	h.CreateJobFromWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetJobRendersSnapshot(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	job := newTestJob("job-3", jobs.StatusRunning)
	mockSvc.On("GetJob", mock.Anything, mock.Anything, "job-3").Return(job, nil)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodGet, "/job-3", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "job-3")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.GetJob(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var got jobs.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, jobs.StatusRunning, got.Status)
	mockSvc.AssertExpectations(t)
}

func TestGetJobMapsNotFoundError(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("GetJob", mock.Anything, mock.Anything, "missing").Return(nil, apierrors.ErrJobNotFound)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.GetJob(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetJobMapsUnknownErrorToInternalServerError(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("GetJob", mock.Anything, mock.Anything, "job-4").Return(nil, errors.New("boom"))

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodGet, "/job-4", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "job-4")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.GetJob(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListJobsDefaultsOffsetAndLimit(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("ListJobs", mock.Anything, mock.Anything, 0, 50).Return([]*jobs.Job{newTestJob("job-5", jobs.StatusPending)}, nil)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	h.ListJobs(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockSvc.AssertExpectations(t)
}

func TestCancelJobReturns200OnSuccess(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("CancelJob", mock.Anything, mock.Anything, "job-6").Return(nil)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodPost, "/job-6/cancel", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "job-6")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.CancelJob(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockSvc.AssertExpectations(t)
}

func TestCancelJobMapsNotCancellableError(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	mockSvc.On("CancelJob", mock.Anything, mock.Anything, "job-7").Return(apierrors.ErrJobNotCancellable)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodPost, "/job-7/cancel", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "job-7")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.CancelJob(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRetryJobReturns202WithRetryOf(t *testing.T) {
	mockSvc := new(MockJobDispatcher)
	retry := newTestJob("job-8-retry", jobs.StatusPending)
	retry.RetryOf = "job-8"
	mockSvc.On("RetryJob", mock.Anything, mock.Anything, "job-8").Return(retry, nil)

	h := NewJobsHandler(mockSvc, "shh", nil)
	req := httptest.NewRequest(http.MethodPost, "/job-8/retry", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "job-8")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.RetryJob(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "job-8", resp["retry_of"])
	mockSvc.AssertExpectations(t)
}
