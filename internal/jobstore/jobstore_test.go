package jobstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsvc/internal/jobs"
	"subsvc/internal/jobstore"
)

func TestInsertAndGet(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	job := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, store.InsertJob(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, got.Status)
}

func TestInsertJobDuplicate(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()
	job := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, store.InsertJob(ctx, job))
	assert.Error(t, store.InsertJob(ctx, job))
}

func TestUpdateStartDetailsOnlyFromPending(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()
	job := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, store.InsertJob(ctx, job))

	require.NoError(t, store.UpdateStartDetails(ctx, "job-1", "task-1", time.Now()))
	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, got.Status)

	// Duplicate delivery: row is no longer PENDING, must fail.
	assert.Error(t, store.UpdateStartDetails(ctx, "job-1", "task-2", time.Now()))
}

func TestUpdateCompletionDetailsOnlyIfNotTerminal(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()
	job := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now())
	require.NoError(t, store.InsertJob(ctx, job))
	require.NoError(t, store.UpdateStartDetails(ctx, "job-1", "task-1", time.Now()))

	require.NoError(t, store.UpdateCompletionDetails(ctx, "job-1", jobs.StatusSucceeded, 0, time.Now(), "done", "done"))

	// A redelivered ack must be safely ignored, not re-apply a different status.
	err := store.UpdateCompletionDetails(ctx, "job-1", jobs.StatusFailed, 1, time.Now(), "retry", "retry")
	assert.Error(t, err)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, got.Status)
}

func TestListForOwnerFiltersAndOrdersByRecency(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()

	older := jobs.New("job-1", "user-1", "/media/x", "ro", "info", "", time.Now().Add(-time.Hour))
	newer := jobs.New("job-2", "user-1", "/media/y", "ro", "info", "", time.Now())
	other := jobs.New("job-3", "user-2", "/media/z", "ro", "info", "", time.Now())

	require.NoError(t, store.InsertJob(ctx, older))
	require.NoError(t, store.InsertJob(ctx, newer))
	require.NoError(t, store.InsertJob(ctx, other))

	got, err := store.ListForOwner(ctx, "user-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "job-2", got[0].ID)
	assert.Equal(t, "job-1", got[1].ID)
}

func TestListAllRespectsOffsetAndLimit(t *testing.T) {
	store := jobstore.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		j := jobs.New(string(rune('a'+i)), "user-1", "/media/x", "ro", "info", "", time.Now())
		require.NoError(t, store.InsertJob(ctx, j))
	}

	got, err := store.ListAll(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
