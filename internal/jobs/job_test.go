package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsvc/internal/jobs"
)

func TestNewJobIsPending(t *testing.T) {
	now := time.Now()
	j := jobs.New("job-1", "user-1", "/media/movies/x", "ro", "info", "", now)

	assert.Equal(t, jobs.StatusPending, j.GetStatus())
	assert.False(t, j.GetStatus().IsTerminal())

	snap := j.Snapshot()
	assert.Equal(t, "job-1", snap.ID)
	assert.Nil(t, snap.StartedAt)
	assert.Nil(t, snap.CompletedAt)
}

func TestJobStartOnlyFromPending(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())

	require.NoError(t, j.Start("task-1", time.Now()))
	assert.Equal(t, jobs.StatusRunning, j.GetStatus())
	assert.Equal(t, "task-1", j.Snapshot().TaskHandle)

	// Duplicate delivery must short-circuit, not restart.
	err := j.Start("task-2", time.Now())
	assert.Error(t, err)
	assert.Equal(t, "task-1", j.Snapshot().TaskHandle)
}

func TestJobRequestCancelFromPendingOrRunning(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, j.RequestCancel())
	assert.Equal(t, jobs.StatusCancelling, j.GetStatus())

	j2 := jobs.New("job-2", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, j2.Start("task-1", time.Now()))
	require.NoError(t, j2.RequestCancel())
	assert.Equal(t, jobs.StatusCancelling, j2.GetStatus())
}

func TestJobRequestCancelRejectedWhenTerminal(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, j.Start("task-1", time.Now()))
	require.NoError(t, j.Finish(jobs.StatusSucceeded, 0, "done", "done", time.Now()))

	assert.Error(t, j.RequestCancel())
}

func TestJobFinishIsOnceOnly(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, j.Start("task-1", time.Now()))

	require.NoError(t, j.Finish(jobs.StatusSucceeded, 0, "done", "done\nwarn", time.Now()))
	snap := j.Snapshot()
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 0, *snap.ExitCode)
	assert.True(t, snap.Status.IsTerminal())

	// A second finalize attempt (e.g. a redelivered Broker ack) must fail.
	err := j.Finish(jobs.StatusFailed, 1, "retry", "retry", time.Now())
	assert.Error(t, err)
	assert.Equal(t, jobs.StatusSucceeded, j.GetStatus())
}

func TestJobFinishRejectsNonTerminalStatus(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	err := j.Finish(jobs.StatusRunning, 0, "", "", time.Now())
	assert.Error(t, err)
}

func TestJobCanRetry(t *testing.T) {
	j := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	assert.False(t, j.CanRetry())

	require.NoError(t, j.Start("task-1", time.Now()))
	require.NoError(t, j.Finish(jobs.StatusFailed, 1, "boom", "boom", time.Now()))
	assert.True(t, j.CanRetry())
}

func TestJobClonePreservesInputFields(t *testing.T) {
	original := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	clone := original.Clone("job-2", time.Now())

	assert.Equal(t, "job-1", clone.RetryOf)
	assert.Equal(t, original.Folder, clone.Folder)
	assert.Equal(t, original.Language, clone.Language)
	assert.Equal(t, jobs.StatusPending, clone.GetStatus())
}
