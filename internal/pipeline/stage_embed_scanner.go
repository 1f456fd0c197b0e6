package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// EmbedScanner enumerates subtitle streams embedded in the video's own
// container via a media-probe capability. A text stream in the target
// language satisfies the RO goal without extraction; otherwise the best
// candidate is extracted, preferring text over image — image extraction
// is OCR'd and only for allow-listed codecs (spec §4.5).
type EmbedScanner struct {
	Prober MediaProber
	OCR    OCREngine
	logger *slog.Logger
}

func NewEmbedScanner(prober MediaProber, ocr OCREngine, logger *slog.Logger) *EmbedScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedScanner{Prober: prober, OCR: ocr, logger: logger}
}

func (s *EmbedScanner) Name() string   { return "embed_scan" }
func (s *EmbedScanner) Critical() bool { return false }

func (s *EmbedScanner) Execute(ctx context.Context, pctx *Context) error {
	if pctx.FoundFinalRO {
		s.logger.Info("final RO already satisfied, skipping embed scan")
		return nil
	}
	if s.Prober == nil {
		return fmt.Errorf("pipeline: embed scanner has no media prober configured")
	}

	streams, err := s.Prober.ProbeSubtitleStreams(ctx, pctx.VideoPath)
	if err != nil {
		return fmt.Errorf("pipeline: probe %s: %w", pctx.VideoPath, err)
	}
	if len(streams) == 0 {
		s.logger.Info("no embedded subtitle streams found")
		return nil
	}

	for _, stream := range streams {
		if stream.Language != pctx.PrimaryLanguage || !stream.IsText {
			continue
		}
		pctx.FoundFinalRO = true
		s.logger.Info("embedded text stream satisfies RO goal without extraction", slog.Int("stream_index", stream.Index))
		return nil
	}

	best := bestExtractableStream(streams, pctx.FallbackLanguage)
	if best == nil {
		s.logger.Info("no usable embedded stream for fallback language")
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "pipeline-embed-*")
	if err != nil {
		return fmt.Errorf("pipeline: create embed extraction temp dir: %w", err)
	}
	pctx.RegisterTempDir(tmpDir)

	if best.IsText {
		outPath := filepath.Join(tmpDir, "embedded.srt")
		if err := s.Prober.ExtractStream(ctx, pctx.VideoPath, *best, outPath); err != nil {
			return fmt.Errorf("pipeline: extract embedded text stream: %w", err)
		}
		pctx.CandidateENEmbedded = &Candidate{Path: outPath, Language: best.Language, Source: "embedded"}
		return nil
	}

	if !ocrAllowedCodecs[best.Codec] {
		s.logger.Info("best embedded stream is image-based and not OCR-allow-listed", slog.String("codec", best.Codec))
		return nil
	}
	if s.OCR == nil {
		return fmt.Errorf("pipeline: embed scanner needs OCR for codec %s but none is configured", best.Codec)
	}

	imagePath := filepath.Join(tmpDir, "embedded.sup")
	if err := s.Prober.ExtractStream(ctx, pctx.VideoPath, *best, imagePath); err != nil {
		return fmt.Errorf("pipeline: extract embedded image stream: %w", err)
	}
	outPath := filepath.Join(tmpDir, "embedded_ocr.srt")
	if err := s.OCR.RecognizeToSRT(ctx, imagePath, best.Language, outPath); err != nil {
		return fmt.Errorf("pipeline: OCR embedded stream: %w", err)
	}
	pctx.CandidateENEmbedded = &Candidate{Path: outPath, Language: best.Language, Source: "embedded"}
	return nil
}

// bestExtractableStream prefers a text stream in lang, falling back to an
// OCR-allow-listed image stream, per spec §4.5's "text preferred over
// image" rule.
func bestExtractableStream(streams []SubtitleStream, lang string) *SubtitleStream {
	var bestImage *SubtitleStream
	for i := range streams {
		s := streams[i]
		if lang != "" && s.Language != "" && s.Language != lang {
			continue
		}
		if s.IsText {
			return &streams[i]
		}
		if ocrAllowedCodecs[s.Codec] && bestImage == nil {
			bestImage = &streams[i]
		}
	}
	return bestImage
}
