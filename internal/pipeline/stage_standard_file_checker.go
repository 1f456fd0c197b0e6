package pipeline

import (
	"context"
	"log/slog"
)

// StandardFileChecker is the first strategy: look for "<base>.<lang>.srt"
// beside the video for both the primary and fallback language, never
// downloading anything (spec §4.5).
type StandardFileChecker struct {
	logger *slog.Logger
}

func NewStandardFileChecker(logger *slog.Logger) *StandardFileChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StandardFileChecker{logger: logger}
}

func (s *StandardFileChecker) Name() string  { return "standard_file_check" }
func (s *StandardFileChecker) Critical() bool { return false }

func (s *StandardFileChecker) Execute(ctx context.Context, pctx *Context) error {
	roPath := pctx.StandardSubtitlePath(pctx.PrimaryLanguage)
	if fileExistsNonEmpty(roPath) {
		pctx.FinalROPath = roPath
		pctx.FoundFinalRO = true
		s.logger.Info("standard-path primary-language subtitle found", slog.String("path", roPath))
	}

	enPath := pctx.StandardSubtitlePath(pctx.FallbackLanguage)
	if fileExistsNonEmpty(enPath) {
		pctx.CandidateENStandard = &Candidate{Path: enPath, Language: pctx.FallbackLanguage, Source: "standard"}
		s.logger.Info("standard-path fallback-language subtitle found", slog.String("path", enPath))
	}
	return nil
}
