package pipeline_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsvc/internal/pipeline"
)

type fakeStage struct {
	name     string
	critical bool
	run      func(ctx context.Context, pctx *pipeline.Context) error
	ran      bool
}

func (f *fakeStage) Name() string     { return f.name }
func (f *fakeStage) Critical() bool   { return f.critical }
func (f *fakeStage) Execute(ctx context.Context, pctx *pipeline.Context) error {
	f.ran = true
	if f.run != nil {
		return f.run(ctx, pctx)
	}
	return nil
}

func TestPipelineRunsStagesInOrderAndStopsOnCriticalFailure(t *testing.T) {
	var order []string
	first := &fakeStage{name: "a", run: func(ctx context.Context, pctx *pipeline.Context) error {
		order = append(order, "a")
		return nil
	}}
	second := &fakeStage{name: "b", critical: true, run: func(ctx context.Context, pctx *pipeline.Context) error {
		order = append(order, "b")
		return assertError{}
	}}
	third := &fakeStage{name: "c", run: func(ctx context.Context, pctx *pipeline.Context) error {
		order = append(order, "c")
		return nil
	}}

	p := pipeline.New([]pipeline.Strategy{first, second, third}, nil)
	pctx := &pipeline.Context{VideoPath: "/media/movie.mkv", PrimaryLanguage: "ro", FallbackLanguage: "en"}

	err := p.Run(context.Background(), pctx)
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.False(t, third.ran)
}

func TestPipelineContinuesPastNonCriticalFailure(t *testing.T) {
	var order []string
	first := &fakeStage{name: "a", run: func(ctx context.Context, pctx *pipeline.Context) error {
		order = append(order, "a")
		return assertError{}
	}}
	second := &fakeStage{name: "b", run: func(ctx context.Context, pctx *pipeline.Context) error {
		order = append(order, "b")
		return nil
	}}

	p := pipeline.New([]pipeline.Strategy{first, second}, nil)
	pctx := &pipeline.Context{VideoPath: "/media/movie.mkv", PrimaryLanguage: "ro", FallbackLanguage: "en"}

	err := p.Run(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestPipelineCleansUpTempDirsAfterRun(t *testing.T) {
	var registeredDir string
	stage := &fakeStage{name: "a", run: func(ctx context.Context, pctx *pipeline.Context) error {
		registeredDir = t.TempDir()
		pctx.RegisterTempDir(registeredDir)
		return nil
	}}
	p := pipeline.New([]pipeline.Strategy{stage}, nil)
	pctx := &pipeline.Context{VideoPath: "/media/movie.mkv"}

	require.NoError(t, p.Run(context.Background(), pctx))
	_, err := os.Stat(registeredDir)
	assert.True(t, os.IsNotExist(err))
}

type assertError struct{}

func (assertError) Error() string { return "stage failed" }
