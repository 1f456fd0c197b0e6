package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// srtCue is one numbered subtitle block: index, timecode line, and text.
type srtCue struct {
	Index     int
	Timecode  string
	TextLines []string
}

// parseSRT reads an .srt file into its cues, preserving index and timecode
// exactly — Translator must never perturb either when it replaces TextLines.
func parseSRT(path string) ([]srtCue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %s: %w", path, err)
	}
	defer f.Close()

	var cues []srtCue
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur *srtCue
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if cur != nil {
				cues = append(cues, *cur)
				cur = nil
			}
			continue
		}

		if cur == nil {
			idx, err := strconv.Atoi(trimmed)
			if err != nil {
				return nil, fmt.Errorf("pipeline: malformed srt %s: expected index, got %q", path, trimmed)
			}
			cur = &srtCue{Index: idx}
			continue
		}

		if cur.Timecode == "" {
			cur.Timecode = trimmed
			continue
		}

		cur.TextLines = append(cur.TextLines, line)
	}
	if cur != nil {
		cues = append(cues, *cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: scan %s: %w", path, err)
	}
	return cues, nil
}

// writeSRT serializes cues back to path in standard SRT form.
func writeSRT(path string, cues []srtCue) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, cue := range cues {
		fmt.Fprintf(w, "%d\n%s\n", cue.Index, cue.Timecode)
		for _, line := range cue.TextLines {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// isSRT reports whether path has the ".srt" extension.
func isSRT(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".srt")
}
