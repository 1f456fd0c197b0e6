package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// TesseractOCREngine implements OCREngine via the tesseract CLI, used by
// EmbedScanner when the only available subtitle track is image-based and
// its codec is on the allow-list.
type TesseractOCREngine struct {
	BinPath string
	Logger  *slog.Logger
}

func NewTesseractOCREngine(binPath string, logger *slog.Logger) *TesseractOCREngine {
	if binPath == "" {
		binPath = "tesseract"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractOCREngine{BinPath: binPath, Logger: logger.With(slog.String("component", "ocr"))}
}

func (t *TesseractOCREngine) RecognizeToSRT(ctx context.Context, imagePath, language, outSRTPath string) error {
	langArg := tesseractLangCode(language)
	outBase := outSRTPath
	if len(outBase) > 4 && outBase[len(outBase)-4:] == ".srt" {
		outBase = outBase[:len(outBase)-4]
	}
	cmd := exec.CommandContext(ctx, t.BinPath, imagePath, outBase, "-l", langArg, "srt")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pipeline: tesseract OCR %s: %w", imagePath, err)
	}
	return nil
}

func tesseractLangCode(lang string) string {
	switch lang {
	case "ro":
		return "ron"
	case "en":
		return "eng"
	default:
		return "eng"
	}
}
