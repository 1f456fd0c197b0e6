// Package pipeline implements the Selection Pipeline (spec §4.5): a fixed
// order strategy chain run inside the worker process for a single video
// file, gathering subtitle candidates, ranking them, and materializing a
// finalized artifact.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// MediaIdentity is the parsed identity of the target video, used by
// OnlineFetcher to search providers by precise identifiers.
type MediaIdentity struct {
	Title   string
	Year    int
	Show    string
	Season  int
	Episode int
	ImdbID  string
}

// IsEpisode reports whether this identity names a TV episode rather than a
// movie — OnlineFetcher and scoring treat the two differently.
func (m MediaIdentity) IsEpisode() bool {
	return m.Show != "" && m.Season > 0 && m.Episode > 0
}

// Candidate is a single subtitle file discovered by some strategy, before
// or after it has been selected as final.
type Candidate struct {
	Path        string
	Language    string
	Source      string // "standard", "embedded", "local", "online"
	Score       float64
	Translated  bool
	ReleaseName string
}

// Context is the mutable state threaded through every strategy in the
// chain, mirroring spec §4.5's "Context fields" list.
type Context struct {
	VideoPath string
	Identity  MediaIdentity

	PrimaryLanguage  string
	FallbackLanguage string

	CandidateENStandard *Candidate
	CandidateENEmbedded *Candidate
	CandidateENOnline   *Candidate
	CandidateENLocal    *Candidate

	FinalROPath   string
	FinalROStatus string
	FinalENPath   string

	FoundFinalRO bool

	TempDirs []string

	Logger *slog.Logger
}

// StandardSubtitlePath returns the conventional "<base>.<lang>.srt" sibling
// path for the video, the path every strategy checks or writes to.
func (c *Context) StandardSubtitlePath(lang string) string {
	return standardPathFor(c.VideoPath, lang)
}

// RegisterTempDir records a directory for pipeline-owned cleanup in the
// Run finally block.
func (c *Context) RegisterTempDir(dir string) {
	c.TempDirs = append(c.TempDirs, dir)
}

// Cleanup removes every registered temp dir, logging failures rather than
// returning them — cleanup never aborts the pipeline's own result.
func (c *Context) Cleanup() {
	for _, dir := range c.TempDirs {
		if err := os.RemoveAll(dir); err != nil && c.Logger != nil {
			c.Logger.Warn("temp dir cleanup failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
}

// Strategy is a single stage of the Selection Pipeline.
type Strategy interface {
	// Name is the stage's identifier, used for logging and error wrapping.
	Name() string

	// Critical reports whether this stage's failure aborts the pipeline
	// (spec §4.5 Pipeline failure policy).
	Critical() bool

	// Execute runs the stage against ctx, mutating it in place.
	Execute(ctx context.Context, pctx *Context) error
}

// Pipeline runs a fixed ordered chain of Strategy stages over one Context.
type Pipeline struct {
	stages []Strategy
	logger *slog.Logger
}

// New wraps the given stages, which Run executes in the order passed. The
// worker passes the seven-stage chain in spec §4.5's fixed order:
// standard_file_check → embed_scan → local_scan → online_fetch →
// final_select → translate → synchronize.
func New(stages []Strategy, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stages: stages, logger: logger.With(slog.String("component", "pipeline"))}
}

// Run executes every stage in order against pctx. Non-critical stage
// failures are logged and the chain continues; a critical stage failure
// aborts the run with "failed". The temp-dir cleanup finally block always
// runs, success or failure.
func (p *Pipeline) Run(ctx context.Context, pctx *Context) error {
	defer pctx.Cleanup()

	for _, stage := range p.stages {
		logger := p.logger.With(slog.String("stage", stage.Name()))

		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline context cancelled before stage ran", slog.String("error", err.Error()))
			return fmt.Errorf("pipeline: cancelled before stage %s: %w", stage.Name(), err)
		}

		logger.Info("stage starting")
		err := stage.Execute(ctx, pctx)
		if err != nil {
			if stage.Critical() {
				logger.Error("critical stage failed, aborting pipeline", slog.String("error", err.Error()))
				return fmt.Errorf("pipeline: critical stage %s failed: %w", stage.Name(), err)
			}
			logger.Warn("non-critical stage failed, continuing", slog.String("error", err.Error()))
			continue
		}
		logger.Info("stage completed")

		if pctx.FoundFinalRO {
			logger.Info("final RO goal met, later scanners will short-circuit")
		}
	}
	return nil
}
