package jobs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"subsvc/internal/jobs"
)

func TestJobErrorRetryable(t *testing.T) {
	infraErr := jobs.NewTransientInfraError("job-1", "spawn failed", errors.New("exec: not found"))
	assert.True(t, jobs.IsRetryable(infraErr))
	assert.Equal(t, jobs.KindTransientInfra, jobs.KindOf(infraErr))

	valErr := jobs.NewValidationError("job-1", "folder outside allow-list")
	assert.False(t, jobs.IsRetryable(valErr))
	assert.Equal(t, jobs.KindValidation, jobs.KindOf(valErr))
}

func TestJobErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := jobs.NewChildProcessError("job-1", "non-zero exit", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfNonJobError(t *testing.T) {
	assert.Equal(t, jobs.Kind(""), jobs.KindOf(errors.New("plain")))
	assert.False(t, jobs.IsRetryable(errors.New("plain")))
}
