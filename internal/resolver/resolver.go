// Package resolver classifies a source request, fetches platform metadata,
// detects the content language, and decides between downloading existing
// subtitles and transcribing downloaded audio.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/subtitle"
)

// metadataTimeout bounds each metadata fetch. Artifact downloads run under
// the caller's longer deadline.
const metadataTimeout = 30 * time.Second

// Error families surfaced to the API layer as 4xx.
var (
	ErrInvalidURL          = errors.New("invalid source url")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrSourceUnavailable   = errors.New("source metadata unavailable")
	ErrAuthRequired        = errors.New("authentication required for source")
	ErrNoUsableSource      = errors.New("no usable subtitle or audio source")
)

// Platform identifies where a video lives.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformBilibili Platform = "bilibili"
	PlatformAcFun    Platform = "acfun"
	PlatformUpload   Platform = "upload"
)

// Source is a canonicalised video reference.
type Source struct {
	Platform Platform
	VideoID  string
}

// SubtitleTrack is one downloadable subtitle variant advertised by the
// platform.
type SubtitleTrack struct {
	Lang   string
	Format string
	URL    string
}

// VideoInfo is the platform metadata the resolver works from.
type VideoInfo struct {
	ID         string
	Title      string
	Uploader   string
	Duration   time.Duration
	UploadDate string

	// Language is the platform-declared language hint, lowercased, or "".
	Language string

	// ManualSubs and AutoSubs are the declared subtitle tracks, keyed by
	// language code.
	ManualSubs map[string][]SubtitleTrack
	AutoSubs   map[string][]SubtitleTrack
}

// Mode is the chosen acquisition strategy.
type Mode string

const (
	ModeSubtitle   Mode = "subtitle"
	ModeTranscribe Mode = "transcribe"
)

// Plan is the resolver's output: what to do and the artifact already
// obtained.
type Plan struct {
	Source Source
	Info   *VideoInfo
	Mode   Mode

	// LangPriority is the ordered subtitle language preference used for
	// track selection.
	LangPriority []string

	// Subtitles is set when Mode is subtitle: the downloaded track converted
	// to a document.
	Subtitles *subtitle.Document

	// AudioPath is set when Mode is transcribe: the downloaded media file.
	AudioPath string
}

// MetadataClient abstracts the platform access layer so the resolver logic
// can be exercised without network access.
type MetadataClient interface {
	// Metadata fetches video metadata. metadataOnly requests the cheaper
	// metadata-only mode used for the single retry.
	Metadata(ctx context.Context, src Source, metadataOnly bool) (*VideoInfo, error)

	// DownloadSubtitle fetches the raw bytes of one subtitle track.
	DownloadSubtitle(ctx context.Context, track SubtitleTrack) ([]byte, error)

	// DownloadAudio fetches the media for transcription and returns the
	// local file path.
	DownloadAudio(ctx context.Context, src Source, destDir string) (string, error)
}

// Resolver executes the resolution algorithm against a [MetadataClient].
type Resolver struct {
	meta     MetadataClient
	audioDir string
	metrics  *observe.Metrics
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithResolverMetrics overrides the metrics sink.
func WithResolverMetrics(m *observe.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a [Resolver]; audioDir receives downloaded media.
func New(meta MetadataClient, audioDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{meta: meta, audioDir: audioDir}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve runs the full algorithm: metadata (with one metadata-only retry),
// language detection, strategy selection, and artifact download.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*Plan, error) {
	info, err := r.fetchMetadata(ctx, src, false)
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			return nil, err
		}
		slog.Warn("metadata fetch failed, retrying metadata-only", "platform", src.Platform, "id", src.VideoID, "err", err)
		info, err = r.fetchMetadata(ctx, src, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
	}

	lang := DetectLanguage(info)
	mode, priority, err := ChooseStrategy(lang, info)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Source: src, Info: info, Mode: mode, LangPriority: priority}
	slog.Info("source resolved",
		"platform", src.Platform, "id", src.VideoID,
		"language", lang, "mode", mode,
	)

	switch mode {
	case ModeSubtitle:
		doc, err := r.downloadSubtitles(ctx, info, priority)
		if err != nil {
			return nil, err
		}
		plan.Subtitles = doc
	case ModeTranscribe:
		start := time.Now()
		path, err := r.meta.DownloadAudio(ctx, src, r.audioDir)
		r.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("%w: audio download: %v", ErrNoUsableSource, err)
		}
		plan.AudioPath = path
	}
	return plan, nil
}

// fetchMetadata applies the metadata deadline to one Metadata call.
func (r *Resolver) fetchMetadata(ctx context.Context, src Source, metadataOnly bool) (*VideoInfo, error) {
	mctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	return r.meta.Metadata(mctx, src, metadataOnly)
}

// downloadSubtitles picks the best track by language priority and format
// preference, downloads it, decodes its encoding, and converts it to a
// document.
func (r *Resolver) downloadSubtitles(ctx context.Context, info *VideoInfo, priority []string) (*subtitle.Document, error) {
	track, ok := PickTrack(info, priority)
	if !ok {
		return nil, fmt.Errorf("%w: no subtitle track matches priority %v", ErrNoUsableSource, priority)
	}
	start := time.Now()
	raw, err := r.meta.DownloadSubtitle(ctx, track)
	r.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: subtitle download: %v", ErrSourceUnavailable, err)
	}
	text, err := DecodeSubtitleBytes(raw)
	if err != nil {
		return nil, err
	}
	doc, err := ConvertTrack(track.Format, text, info.Duration)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
