package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// FinalSelector runs when no primary-language subtitle was found: it picks
// the best fallback-language candidate by priority online > standard-file
// > local > embedded (spec §4.5). It extracts nothing itself: the embedded
// candidate is the file EmbedScanner already extracted to its temp dir.
type FinalSelector struct {
	logger *slog.Logger
}

func NewFinalSelector(logger *slog.Logger) *FinalSelector {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalSelector{logger: logger}
}

func (s *FinalSelector) Name() string   { return "final_select" }
func (s *FinalSelector) Critical() bool { return false }

func (s *FinalSelector) Execute(ctx context.Context, pctx *Context) error {
	if pctx.FoundFinalRO {
		s.logger.Info("final RO already satisfied, no fallback selection needed")
		return nil
	}

	// Priority order: online > standard-file > local > embedded.
	switch {
	case pctx.CandidateENOnline != nil:
		pctx.FinalENPath = pctx.CandidateENOnline.Path
	case pctx.CandidateENStandard != nil:
		pctx.FinalENPath = pctx.CandidateENStandard.Path
	case pctx.CandidateENLocal != nil:
		pctx.FinalENPath = pctx.CandidateENLocal.Path
	case pctx.CandidateENEmbedded != nil:
		pctx.FinalENPath = pctx.CandidateENEmbedded.Path
	default:
		s.logger.Warn("no fallback-language candidate available from any source")
		return fmt.Errorf("pipeline: no %s subtitle candidate available", pctx.FallbackLanguage)
	}

	s.logger.Info("selected final fallback-language subtitle", slog.String("path", pctx.FinalENPath))
	pctx.FinalROStatus = "fallback_only"
	return nil
}
