package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/resolver"
)

// fakeMeta scripts the platform access layer.
type fakeMeta struct {
	info          *resolver.VideoInfo
	firstErr      error // returned by the first full-metadata call
	metaCalls     int
	subtitle      []byte
	subErr        error
	subCalls      int
	audioPath     string
	audioErr      error
	audioCalls    int
	gotMetaOnly   []bool
	metaDeadlines []time.Duration // remaining ctx deadline per call, 0 when absent
}

func (f *fakeMeta) Metadata(ctx context.Context, _ resolver.Source, metadataOnly bool) (*resolver.VideoInfo, error) {
	f.metaCalls++
	f.gotMetaOnly = append(f.gotMetaOnly, metadataOnly)
	var remaining time.Duration
	if dl, ok := ctx.Deadline(); ok {
		remaining = time.Until(dl)
	}
	f.metaDeadlines = append(f.metaDeadlines, remaining)
	if f.metaCalls == 1 && f.firstErr != nil {
		return nil, f.firstErr
	}
	if f.info == nil {
		return nil, errors.New("metadata unavailable")
	}
	return f.info, nil
}

func (f *fakeMeta) DownloadSubtitle(context.Context, resolver.SubtitleTrack) ([]byte, error) {
	f.subCalls++
	return f.subtitle, f.subErr
}

func (f *fakeMeta) DownloadAudio(context.Context, resolver.Source, string) (string, error) {
	f.audioCalls++
	return f.audioPath, f.audioErr
}

func TestResolve_EnglishAutoCaptionsOnly(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		info: &resolver.VideoInfo{
			ID:    "dQw4w9WgXcQ",
			Title: "Conference talk recording",
			AutoSubs: map[string][]resolver.SubtitleTrack{
				"en-orig": {{Lang: "en-orig", Format: "vtt", URL: "https://example.com/cap"}},
			},
		},
		subtitle: []byte("WEBVTT\n\n00:00:00.000 --> 00:00:02.000\nAuto caption\n"),
	}
	r := resolver.New(meta, t.TempDir())

	plan, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Mode != resolver.ModeSubtitle {
		t.Errorf("mode = %q, want subtitle", plan.Mode)
	}
	if len(plan.LangPriority) != 2 || plan.LangPriority[0] != "en-orig" || plan.LangPriority[1] != "en" {
		t.Errorf("priority = %v, want [en-orig en]", plan.LangPriority)
	}
	if plan.Subtitles == nil || len(plan.Subtitles.Cues) != 1 {
		t.Fatalf("subtitles = %+v, want one converted cue", plan.Subtitles)
	}
	if meta.audioCalls != 0 {
		t.Errorf("audio downloaded %d times in subtitle mode, want 0", meta.audioCalls)
	}
}

func TestResolve_ChineseWithoutManualSubsTranscribes(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		info: &resolver.VideoInfo{
			ID:    "BV1xx411c7mD",
			Title: "编程教程",
			AutoSubs: map[string][]resolver.SubtitleTrack{
				"zh-Hans": {{Lang: "zh-Hans", Format: "json3"}},
			},
		},
		audioPath: "/tmp/BV1xx411c7mD.m4a",
	}
	r := resolver.New(meta, t.TempDir())

	plan, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformBilibili, VideoID: "BV1xx411c7mD"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Mode != resolver.ModeTranscribe {
		t.Errorf("mode = %q, want transcribe", plan.Mode)
	}
	if plan.AudioPath != meta.audioPath {
		t.Errorf("audio path = %q, want %q", plan.AudioPath, meta.audioPath)
	}
	if meta.subCalls != 0 {
		t.Errorf("subtitle downloaded %d times in transcribe mode, want 0", meta.subCalls)
	}
}

func TestResolve_MetadataRetryIsMetadataOnly(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		firstErr: errors.New("format resolution failed"),
		info: &resolver.VideoInfo{
			ID:    "dQw4w9WgXcQ",
			Title: "A talk about databases",
			ManualSubs: map[string][]resolver.SubtitleTrack{
				"en": {{Lang: "en", Format: "srt"}},
			},
		},
		subtitle: []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n"),
	}
	r := resolver.New(meta, t.TempDir())

	plan, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Resolve after retry: %v", err)
	}
	if meta.metaCalls != 2 {
		t.Fatalf("metadata fetched %d times, want 2", meta.metaCalls)
	}
	if meta.gotMetaOnly[0] || !meta.gotMetaOnly[1] {
		t.Errorf("metadataOnly flags = %v, want [false true]", meta.gotMetaOnly)
	}
	if plan.Mode != resolver.ModeSubtitle {
		t.Errorf("mode = %q, want subtitle", plan.Mode)
	}
}

func TestResolve_MetadataCallsCarryTighterDeadline(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		firstErr: errors.New("format resolution failed"),
		info: &resolver.VideoInfo{
			ID:    "dQw4w9WgXcQ",
			Title: "A talk about databases",
			ManualSubs: map[string][]resolver.SubtitleTrack{
				"en": {{Lang: "en", Format: "srt"}},
			},
		},
		subtitle: []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n"),
	}
	r := resolver.New(meta, t.TempDir())

	// Callers hand Resolve a download-scale deadline; each metadata fetch
	// must still run under its own much tighter one.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if _, err := r.Resolve(ctx, resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "dQw4w9WgXcQ"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(meta.metaDeadlines) != 2 {
		t.Fatalf("metadata fetched %d times, want 2", len(meta.metaDeadlines))
	}
	for i, remaining := range meta.metaDeadlines {
		if remaining <= 0 || remaining > 30*time.Second {
			t.Errorf("metadata call %d has %v left on its deadline, want at most 30s", i+1, remaining)
		}
	}
}

func TestResolve_RecordsDownloadDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	meta := &fakeMeta{
		info:      &resolver.VideoInfo{ID: "BV1xx411c7mD", Title: "编程教程"},
		audioPath: "/tmp/BV1xx411c7mD.m4a",
	}
	r := resolver.New(meta, t.TempDir(), resolver.WithResolverMetrics(m))
	if _, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformBilibili, VideoID: "BV1xx411c7mD"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == "subpipe.download.duration" {
				found = true
			}
		}
	}
	if !found {
		t.Error("audio download recorded no duration sample")
	}
}

func TestResolve_AuthRequiredNotRetried(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{firstErr: resolver.ErrAuthRequired}
	r := resolver.New(meta, t.TempDir())

	_, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "x"})
	if !errors.Is(err, resolver.ErrAuthRequired) {
		t.Fatalf("Resolve err = %v, want ErrAuthRequired", err)
	}
	if meta.metaCalls != 1 {
		t.Errorf("metadata fetched %d times, want 1 (no retry on auth errors)", meta.metaCalls)
	}
}

func TestResolve_BothMetadataCallsFail(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{firstErr: errors.New("boom")}
	r := resolver.New(meta, t.TempDir())

	_, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "x"})
	if !errors.Is(err, resolver.ErrSourceUnavailable) {
		t.Errorf("Resolve err = %v, want ErrSourceUnavailable", err)
	}
	if meta.metaCalls != 2 {
		t.Errorf("metadata fetched %d times, want 2", meta.metaCalls)
	}
}

func TestResolve_UnsupportedLanguage(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{info: &resolver.VideoInfo{ID: "x", Title: "#7", Language: "ja"}}
	r := resolver.New(meta, t.TempDir())

	_, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "x"})
	if !errors.Is(err, resolver.ErrNoUsableSource) {
		t.Errorf("Resolve err = %v, want ErrNoUsableSource", err)
	}
}

func TestResolve_SubtitleDownloadFailure(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{
		info: &resolver.VideoInfo{
			ID:       "x",
			Title:    "Storage systems deep dive",
			Duration: 10 * time.Minute,
			ManualSubs: map[string][]resolver.SubtitleTrack{
				"en": {{Lang: "en", Format: "vtt"}},
			},
		},
		subErr: errors.New("HTTP 403"),
	}
	r := resolver.New(meta, t.TempDir())

	_, err := r.Resolve(context.Background(), resolver.Source{Platform: resolver.PlatformYouTube, VideoID: "x"})
	if !errors.Is(err, resolver.ErrSourceUnavailable) {
		t.Errorf("Resolve err = %v, want ErrSourceUnavailable", err)
	}
}
