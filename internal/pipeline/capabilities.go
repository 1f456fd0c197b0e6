package pipeline

import "context"

// SubtitleStream describes one subtitle track reported by a media-probe
// capability (spec §4.5 EmbedScanner).
type SubtitleStream struct {
	Index    int
	Language string
	Codec    string // e.g. "subrip", "ass", "hdmv_pgs_subtitle", "dvd_subtitle"
	IsText   bool
}

// ocrAllowedCodecs are the image-based subtitle codecs spec §4.5 permits
// OCR extraction for — "permitted only for specific allow-listed codecs".
var ocrAllowedCodecs = map[string]bool{
	"hdmv_pgs_subtitle": true,
	"dvd_subtitle":      true,
}

// MediaProber enumerates subtitle streams embedded in a video container.
type MediaProber interface {
	ProbeSubtitleStreams(ctx context.Context, videoPath string) ([]SubtitleStream, error)
	// ExtractStream pulls stream index out of videoPath into outPath, either
	// as a text subtitle (IsText) or as an image-based track for OCR.
	ExtractStream(ctx context.Context, videoPath string, stream SubtitleStream, outPath string) error
}

// OCREngine converts an image-based subtitle track into SRT text.
type OCREngine interface {
	RecognizeToSRT(ctx context.Context, imagePath, language, outSRTPath string) error
}

// ProviderCandidate is one search result from an online subtitle provider,
// before download.
type ProviderCandidate struct {
	ID          string
	ReleaseName string
	Language    string
	DownloadURL string
	TrustedUser bool
	HearingImp  bool
	Score       float64
}

// Provider searches and downloads subtitles from a single online source
// (spec §4.5 OnlineFetcher: "for each configured provider").
type Provider interface {
	Name() string
	Search(ctx context.Context, identity MediaIdentity, language string) ([]ProviderCandidate, error)
	Download(ctx context.Context, candidate ProviderCandidate, destPath string) error
}

// Translator converts subtitle text from one language to another, used by
// the Translator strategy.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// SyncTool measures or corrects the audio/subtitle offset of a finalized
// subtitle file against its video, spec §4.5 Synchronizer's "tool A"/"tool B".
type SyncTool interface {
	Name() string
	MeasureOffsetSeconds(ctx context.Context, videoPath, subtitlePath string) (float64, error)
	Resync(ctx context.Context, videoPath, subtitlePath string, offsetSeconds float64) error
}
