package pipeline

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// episodePattern matches the common "S01E02" / "s01.e02" release tag.
var episodePattern = regexp.MustCompile(`(?i)s(\d{1,2})[ ._-]?e(\d{1,3})`)

// yearPattern matches a four-digit year in parentheses or brackets, the
// release-name convention for a movie's year, e.g. "Movie.Name.(2019)".
var yearPattern = regexp.MustCompile(`[(\[]((?:19|20)\d{2})[)\]]|\b((?:19|20)\d{2})\b`)

// releaseNoisePattern strips scene-release tags (resolution, source,
// codec, group) once the show/title and episode/year markers are found.
var releaseNoisePattern = regexp.MustCompile(`(?i)\b(1080p|720p|2160p|4k|web-?dl|webrip|bluray|brrip|hdtv|x264|x265|h264|h265|hevc|aac|dts|yify|rarbg)\b.*$`)

// ParseMediaIdentity derives a MediaIdentity from a video file's name,
// OnlineFetcher's only source of search terms since the job carries no
// separate metadata (spec §4.5). Best-effort: an unparseable name still
// yields a usable Title built from the bare filename.
func ParseMediaIdentity(videoPath string) MediaIdentity {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	cleaned := strings.ReplaceAll(base, ".", " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")

	if m := episodePattern.FindStringSubmatchIndex(cleaned); m != nil {
		season, _ := strconv.Atoi(cleaned[m[2]:m[3]])
		episode, _ := strconv.Atoi(cleaned[m[4]:m[5]])
		show := strings.TrimSpace(cleaned[:m[0]])
		show = releaseNoisePattern.ReplaceAllString(show, "")
		return MediaIdentity{
			Show:    strings.TrimSpace(show),
			Season:  season,
			Episode: episode,
		}
	}

	year := 0
	title := cleaned
	if loc := yearPattern.FindStringSubmatchIndex(cleaned); loc != nil {
		yearStr := cleaned[loc[2]:loc[3]]
		if yearStr == "" {
			yearStr = cleaned[loc[4]:loc[5]]
		}
		year, _ = strconv.Atoi(yearStr)
		title = strings.TrimSpace(cleaned[:loc[0]])
	}
	title = releaseNoisePattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(cleaned)
	}

	return MediaIdentity{Title: title, Year: year}
}
