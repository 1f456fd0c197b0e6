package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"
)

// GoogleTranslator implements Translator via the Google Cloud Translation
// API v2 REST client, following the teacher's own option.WithAPIKey /
// NewService wiring for Google API clients (internal/license/manager.go's
// sheets.NewService call is the grounding for this construction idiom —
// same google.golang.org/api + option stack, different API surface).
type GoogleTranslator struct {
	svc    *translate.Service
	logger *slog.Logger
}

// NewGoogleTranslator constructs a translator bound to apiKey.
func NewGoogleTranslator(ctx context.Context, apiKey string, logger *slog.Logger) (*GoogleTranslator, error) {
	svc, err := translate.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("pipeline: create translate client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleTranslator{svc: svc, logger: logger.With(slog.String("component", "translator"))}, nil
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	call := g.svc.Translations.List([]string{text}, targetLang)
	call.Source(sourceLang)
	call.Format("text")
	call.Context(ctx)

	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("pipeline: translate %s->%s: %w", sourceLang, targetLang, err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("pipeline: translate returned no results")
	}
	return resp.Translations[0].TranslatedText, nil
}
