package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subsvc/internal/dispatcher"
	apierrors "subsvc/internal/errors"
	"subsvc/internal/jobs"
	"subsvc/internal/logbus"
	"subsvc/internal/middleware"
)

// mockAuthorizer is a mock implementation of JobAuthorizer.
type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) GetJob(ctx context.Context, identity dispatcher.Identity, id string) (*jobs.Job, error) {
	args := m.Called(ctx, identity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

// mockValidator is a mock implementation of TokenValidator.
type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) ValidateToken(ctx context.Context, token string) (*middleware.UserInfo, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*middleware.UserInfo), args.Error(1)
}

func newServer(t *testing.T, disp JobAuthorizer, validator TokenValidator, bus *logbus.Bus) *httptest.Server {
	t.Helper()
	h := NewHandler(disp, bus, validator, nil, nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, jobID, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + jobID + "/logs"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func TestServeHTTPClosesWithPolicyViolationOnInvalidAuth(t *testing.T) {
	validator := new(mockValidator)
	validator.On("ValidateToken", mock.Anything, "bad-token").Return(nil, apierrors.ErrUnauthorized)

	srv := newServer(t, new(mockAuthorizer), validator, logbus.NewBus(10, nil))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "job-1", "bad-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assertErrorEnvelope(t, conn)

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestServeHTTPClosesWithUnsupportedDataWhenJobNotFound(t *testing.T) {
	validator := new(mockValidator)
	validator.On("ValidateToken", mock.Anything, "good-token").Return(&middleware.UserInfo{ID: "u1"}, nil)

	authz := new(mockAuthorizer)
	authz.On("GetJob", mock.Anything, mock.Anything, "missing-job").Return(nil, apierrors.ErrJobNotFound)

	srv := newServer(t, authz, validator, logbus.NewBus(10, nil))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "missing-job", "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assertErrorEnvelope(t, conn)

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
}

func TestServeHTTPClosesWithPolicyViolationWhenForbidden(t *testing.T) {
	validator := new(mockValidator)
	validator.On("ValidateToken", mock.Anything, "good-token").Return(&middleware.UserInfo{ID: "intruder"}, nil)

	authz := new(mockAuthorizer)
	authz.On("GetJob", mock.Anything, mock.Anything, "job-owned-by-other").Return(nil, apierrors.ErrForbidden)

	srv := newServer(t, authz, validator, logbus.NewBus(10, nil))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "job-owned-by-other", "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assertErrorEnvelope(t, conn)

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestServeHTTPStreamsEnvelopesAndClosesOnTerminalStatus(t *testing.T) {
	validator := new(mockValidator)
	validator.On("ValidateToken", mock.Anything, "good-token").Return(&middleware.UserInfo{ID: "owner"}, nil)

	job := jobs.New("job-live", "owner", "/media/x", "ro", "info", "", time.Now())
	authz := new(mockAuthorizer)
	authz.On("GetJob", mock.Anything, mock.Anything, "job-live").Return(job, nil)

	bus := logbus.NewBus(10, nil)
	srv := newServer(t, authz, validator, bus)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "job-live", "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return bus.ActiveTopics() > 0
	}, time.Second, 10*time.Millisecond)

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env logbus.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, logbus.TypeSystem, env.Type)

	require.NoError(t, bus.Publish("job-live", logbus.TypeLog, logbus.LogPayload{Stream: "stdout", Message: "hello"}))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, logbus.TypeLog, env.Type)

	require.NoError(t, bus.Publish("job-live", logbus.TypeStatus, logbus.StatusPayload{Status: "SUCCEEDED", ExitCode: 0, JobID: "job-live"}))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, logbus.TypeStatus, env.Type)

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestServeHTTPClosesWithInternalErrorWhenBusUnavailable(t *testing.T) {
	validator := new(mockValidator)
	validator.On("ValidateToken", mock.Anything, "good-token").Return(&middleware.UserInfo{ID: "owner"}, nil)

	job := jobs.New("job-nobus", "owner", "/media/x", "ro", "info", "", time.Now())
	authz := new(mockAuthorizer)
	authz.On("GetJob", mock.Anything, mock.Anything, "job-nobus").Return(job, nil)

	srv := newServer(t, authz, validator, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "job-nobus", "good-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assertErrorEnvelope(t, conn)

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
}

// assertErrorEnvelope reads the "error" envelope spec §8 pairs with every
// rejection close code and asserts it carries a non-empty message.
func assertErrorEnvelope(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env logbus.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, logbus.TypeError, env.Type)
	var payload logbus.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.NotEmpty(t, payload.Message)
}
