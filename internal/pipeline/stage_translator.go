package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TranslatorStage translates the selected fallback-language subtitle into
// the primary language when the RO goal still hasn't been met, preserving
// SRT indices and timestamps exactly (spec §4.5). It is the one strategy
// the pipeline configuration declares critical by default — a translation
// failure means no artifact can be produced at all.
type TranslatorStage struct {
	Translator  Translator
	critical    bool
	batchSize   int
	logger      *slog.Logger
}

func NewTranslatorStage(translator Translator, critical bool, logger *slog.Logger) *TranslatorStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranslatorStage{Translator: translator, critical: critical, batchSize: 50, logger: logger}
}

func (s *TranslatorStage) Name() string   { return "translate" }
func (s *TranslatorStage) Critical() bool { return s.critical }

func (s *TranslatorStage) Execute(ctx context.Context, pctx *Context) error {
	if pctx.FoundFinalRO {
		s.logger.Info("final RO already satisfied, skipping translation")
		return nil
	}
	if pctx.FinalENPath == "" || !isSRT(pctx.FinalENPath) {
		s.logger.Info("no valid .srt fallback candidate to translate")
		return nil
	}
	if s.Translator == nil {
		return fmt.Errorf("pipeline: translator stage has no Translator configured")
	}

	cues, err := parseSRT(pctx.FinalENPath)
	if err != nil {
		return fmt.Errorf("pipeline: parse %s for translation: %w", pctx.FinalENPath, err)
	}

	for start := 0; start < len(cues); start += s.batchSize {
		end := start + s.batchSize
		if end > len(cues) {
			end = len(cues)
		}
		joined := joinCueText(cues[start:end])

		translated, err := s.Translator.Translate(ctx, joined, pctx.FallbackLanguage, pctx.PrimaryLanguage)
		if err != nil {
			return fmt.Errorf("pipeline: translate batch [%d:%d]: %w", start, end, err)
		}

		splitCueText(cues[start:end], translated)
	}

	dest := pctx.StandardSubtitlePath(pctx.PrimaryLanguage)
	if err := writeSRT(dest, cues); err != nil {
		return fmt.Errorf("pipeline: write translated subtitle %s: %w", dest, err)
	}

	pctx.FinalROPath = dest
	pctx.FoundFinalRO = true
	s.logger.Info("translated fallback subtitle to primary language", slog.String("path", dest))
	return nil
}

const cueSeparator = "\n⁣\n" // invisible separator unlikely in subtitle text

func joinCueText(cues []srtCue) string {
	parts := make([]string, len(cues))
	for i, c := range cues {
		parts[i] = strings.Join(c.TextLines, "\n")
	}
	return strings.Join(parts, cueSeparator)
}

func splitCueText(cues []srtCue, translated string) {
	parts := strings.Split(translated, cueSeparator)
	for i := range cues {
		if i >= len(parts) {
			break
		}
		cues[i].TextLines = strings.Split(parts[i], "\n")
	}
}
