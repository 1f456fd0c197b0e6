package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsvc/internal/broker"
	"subsvc/internal/jobs"
	"subsvc/internal/jobstore"
	"subsvc/internal/logbus"
	"subsvc/internal/supervisor"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newHarness(t *testing.T, scriptPath string) (*jobstore.MemoryStore, *logbus.Bus, *broker.InProcessBroker, *supervisor.Supervisor) {
	store := jobstore.NewMemoryStore()
	bus := logbus.NewBus(100, nil)
	brk := broker.NewInProcessBroker(10, nil)
	sup := supervisor.New(store, bus, brk, supervisor.Config{
		ScriptPath:          scriptPath,
		JobTimeout:          2 * time.Second,
		TerminateGrace:      200 * time.Millisecond,
		ResultMessageMaxLen: 200,
		LogSnippetMaxLen:    4096,
	}, nil)
	return store, bus, brk, sup
}

func submit(t *testing.T, ctx context.Context, store *jobstore.MemoryStore, brk *broker.InProcessBroker, folder string) broker.Task {
	t.Helper()
	job := jobs.New("job-1", "owner-1", folder, "en", "info", "", time.Now())
	require.NoError(t, store.InsertJob(ctx, job))
	task := broker.Task{JobID: job.ID, Folder: job.Folder, Language: job.Language, LogLevel: job.LogLevel}
	_, err := brk.Enqueue(ctx, task)
	require.NoError(t, err)
	dequeued, err := brk.Dequeue(ctx)
	require.NoError(t, err)
	return dequeued
}

func TestRunSucceedsOnZeroExit(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, "echo hello-stdout\necho hello-stderr 1>&2\nexit 0\n")
	ctx := context.Background()
	store, _, brk, sup := newHarness(t, script)
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, job.Status)
	require.NotNil(t, job.ExitCode)
	assert.Equal(t, 0, *job.ExitCode)
	assert.Contains(t, job.ResultMessage, "hello-stdout")
}

func TestRunFailsOnNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, "echo boom 1>&2\nexit 7\n")
	ctx := context.Background()
	store, _, brk, sup := newHarness(t, script)
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	require.NotNil(t, job.ExitCode)
	assert.Equal(t, 7, *job.ExitCode)
	assert.Contains(t, job.ResultMessage, "boom")
}

func TestRunIsNoopForNonPendingJob(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, "exit 0\n")
	ctx := context.Background()
	store, _, brk, sup := newHarness(t, script)
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, store.UpdateStartDetails(ctx, task.JobID, task.Handle(), time.Now()))
	require.NoError(t, store.UpdateCompletionDetails(ctx, task.JobID, jobs.StatusSucceeded, 0, time.Now(), "already done", ""))

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, "already done", job.ResultMessage)
}

func TestRunFailsWhenScriptMissing(t *testing.T) {
	ctx := context.Background()
	store, _, brk, sup := newHarness(t, filepath.Join(t.TempDir(), "does-not-exist.sh"))
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
}

func TestRunTerminatesOnTimeout(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, "trap '' TERM\nsleep 5\n")
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	bus := logbus.NewBus(100, nil)
	brk := broker.NewInProcessBroker(10, nil)
	sup := supervisor.New(store, bus, brk, supervisor.Config{
		ScriptPath:          script,
		JobTimeout:          300 * time.Millisecond,
		TerminateGrace:      200 * time.Millisecond,
		ResultMessageMaxLen: 200,
		LogSnippetMaxLen:    4096,
	}, nil)
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	require.NotNil(t, job.ExitCode)
	assert.Less(t, *job.ExitCode, 0)
}

// TestRunTimeoutSetsTimeoutResultMessage covers the soft-termination path:
// the script honors SIGTERM within the grace period, so the synthetic exit
// code is the timeout one (not the hard-kill one), and spec §4.2 requires
// result_message to read "timeout" regardless of anything the script wrote.
func TestRunTimeoutSetsTimeoutResultMessage(t *testing.T) {
	skipOnWindows(t)
	script := writeScript(t, "echo still-going\nsleep 5\n")
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	bus := logbus.NewBus(100, nil)
	brk := broker.NewInProcessBroker(10, nil)
	sup := supervisor.New(store, bus, brk, supervisor.Config{
		ScriptPath:          script,
		JobTimeout:          300 * time.Millisecond,
		TerminateGrace:      2 * time.Second,
		ResultMessageMaxLen: 200,
		LogSnippetMaxLen:    4096,
	}, nil)
	task := submit(t, ctx, store, brk, t.TempDir())

	require.NoError(t, sup.Run(ctx, task))

	job, err := store.Get(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "timeout", job.ResultMessage)
}
