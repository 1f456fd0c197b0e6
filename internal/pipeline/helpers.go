package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// standardPathFor returns "<base>.<lang>.srt" beside the video file,
// spec §4.5's conventional subtitle location.
func standardPathFor(videoPath, lang string) string {
	ext := filepath.Ext(videoPath)
	base := strings.TrimSuffix(videoPath, ext)
	return fmt.Sprintf("%s.%s.srt", base, lang)
}

// fileExistsNonEmpty reports whether path exists and has non-zero size.
func fileExistsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// romanianDiacritics are the letters that make detecting Romanian text by
// content cheap and reliable without a full language-ID model.
const romanianDiacritics = "ăâîșțĂÂÎȘȚ"

// detectLanguageByContent implements LocalScanner's "detect their language
// by content" requirement with a lightweight heuristic: Romanian-specific
// diacritics indicate "ro", otherwise the candidate is assumed "en" — good
// enough for the primary/fallback pair this pipeline targets.
func detectLanguageByContent(sampleText string) string {
	if strings.ContainsAny(sampleText, romanianDiacritics) {
		return "ro"
	}
	return "en"
}

// nonStandardSubtitleCandidates lists files in dir that look like subtitle
// files but do not match the standard "<base>.<lang>.srt" naming — the
// set LocalScanner inspects.
func nonStandardSubtitleCandidates(dir, videoBase string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read dir %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".srt" && ext != ".sub" && ext != ".ass" {
			continue
		}
		if strings.HasPrefix(name, videoBase+".") && strings.HasSuffix(name, ".srt") {
			// looks like the standard-path naming convention; skip it.
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}
