package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalScanner scans the video's own directory for subtitle files that
// don't follow the standard naming convention, detects their language by
// content, and if the primary language is found normalizes and promotes it
// to the standard path, removing the source file (spec §4.5).
type LocalScanner struct {
	logger *slog.Logger
}

func NewLocalScanner(logger *slog.Logger) *LocalScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalScanner{logger: logger}
}

func (s *LocalScanner) Name() string   { return "local_scan" }
func (s *LocalScanner) Critical() bool { return false }

func (s *LocalScanner) Execute(ctx context.Context, pctx *Context) error {
	if pctx.FoundFinalRO {
		s.logger.Info("final RO already satisfied, skipping local scan")
		return nil
	}

	dir := filepath.Dir(pctx.VideoPath)
	videoBase := strings.TrimSuffix(filepath.Base(pctx.VideoPath), filepath.Ext(pctx.VideoPath))

	candidates, err := nonStandardSubtitleCandidates(dir, videoBase)
	if err != nil {
		return fmt.Errorf("pipeline: local scan: %w", err)
	}

	for _, path := range candidates {
		sample, err := readSample(path, 4096)
		if err != nil {
			s.logger.Warn("failed reading local subtitle candidate", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		lang := detectLanguageByContent(sample)

		if lang == pctx.PrimaryLanguage {
			dest := pctx.StandardSubtitlePath(pctx.PrimaryLanguage)
			if err := normalizeAndSave(path, dest); err != nil {
				return fmt.Errorf("pipeline: normalize local candidate %s: %w", path, err)
			}
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove normalized source subtitle", slog.String("path", path), slog.String("error", err.Error()))
			}
			pctx.FinalROPath = dest
			pctx.FoundFinalRO = true
			s.logger.Info("local subtitle promoted to standard path", slog.String("from", path), slog.String("to", dest))
			return nil
		}

		if lang == pctx.FallbackLanguage && pctx.CandidateENLocal == nil {
			pctx.CandidateENLocal = &Candidate{Path: path, Language: lang, Source: "local"}
		}
	}
	return nil
}

// readSample reads up to maxBytes of path for language detection.
func readSample(path string, maxBytes int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := bufio.NewReader(io.LimitReader(f, int64(maxBytes)))
	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return string(buf[:n]), nil
}

// normalizeAndSave fixes diacritics and timestamp formatting (spec §4.5's
// "fix diacritics, fix timestamp format") while copying src to dest.
func normalizeAndSave(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	normalized := normalizeSubtitleText(string(data))
	return os.WriteFile(dest, []byte(normalized), 0o644)
}

// normalizeSubtitleText repairs common diacritic mis-encodings (cedilla
// forms of ș/ț that should be commas-below) and rewrites comma-decimal SRT
// timestamps ("00:00:01,000") into the standard form if a dot slipped in.
func normalizeSubtitleText(text string) string {
	replacer := strings.NewReplacer(
		"ş", "ș",
		"Ş", "Ș",
		"ţ", "ț",
		"Ţ", "Ț",
	)
	text = replacer.Replace(text)
	return fixTimestampSeparators(text)
}

func fixTimestampSeparators(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(line, "-->") {
			lines[i] = strings.ReplaceAll(line, ".", ",")
		}
	}
	return strings.Join(lines, "\n")
}
