package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customMiddleware "subsvc/internal/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestEnv(t *testing.T) func() {
	os.Setenv("JOBSVC_SERVER_PORT", "0")
	os.Setenv("JOBSVC_LOGGING_LEVEL", "error")
	return func() {
		os.Unsetenv("JOBSVC_SERVER_PORT")
		os.Unsetenv("JOBSVC_LOGGING_LEVEL")
	}
}

func TestParseTenantTokens(t *testing.T) {
	tokens := parseTenantTokens("abc123=user-1:owner,def456=user-2:admin, ,malformed")

	require.Len(t, tokens, 2)
	assert.Equal(t, customMiddleware.TenantToken{Token: "abc123", UserID: "user-1", IsAdmin: false}, tokens[0])
	assert.Equal(t, customMiddleware.TenantToken{Token: "def456", UserID: "user-2", IsAdmin: true}, tokens[1])
}

func TestParseTenantTokens_Empty(t *testing.T) {
	assert.Empty(t, parseTenantTokens(""))
}

func TestNewApplication(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	application, err := NewApplication()
	require.NoError(t, err)
	require.NotNil(t, application)

	assert.NotNil(t, application.Config)
	assert.NotNil(t, application.Logger)
	assert.NotNil(t, application.Router)
	assert.NotNil(t, application.Server)
	assert.NotNil(t, application.Store)
	assert.NotNil(t, application.Broker)
	assert.NotNil(t, application.AllowList)
	assert.NotNil(t, application.LogBus)
	assert.NotNil(t, application.Dispatcher)
}

func TestApplication_SetupRouter_JobsRoutesMounted(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	application, err := NewApplication()
	require.NoError(t, err)

	testServer := httptest.NewServer(application.Router)
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(testServer.URL+"/jobs/webhook", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplication_CreateServer(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	application, err := NewApplication()
	require.NoError(t, err)

	application.createServer()
	require.NotNil(t, application.Server)
	assert.Equal(t, application.Router, application.Server.Handler)
	assert.Equal(t, application.Config.Server.ReadTimeout, application.Server.ReadTimeout)
	assert.Equal(t, application.Config.Server.WriteTimeout, application.Server.WriteTimeout)
}

func TestApplication_StartStop(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	application, err := NewApplication()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, application.Start(ctx, cancel))
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.NoError(t, application.Stop(stopCtx))
}
