// Package pipeline orchestrates the full subtitle acquisition flow: resolve,
// prepare audio, transcribe, post-correct, build SRT, translate, persist.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saccohuo/subpipe/internal/asr"
	"github.com/saccohuo/subpipe/internal/audio"
	"github.com/saccohuo/subpipe/internal/fileinfo"
	"github.com/saccohuo/subpipe/internal/hotword"
	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/readwise"
	"github.com/saccohuo/subpipe/internal/resolver"
	"github.com/saccohuo/subpipe/internal/subtitle"
	"github.com/saccohuo/subpipe/internal/translate"
)

// Per-stage deadlines. The chunk recognition deadline lives in the ASR
// client; translation calls carry their own per-request timeouts.
const (
	resolveTimeout  = 30 * time.Second
	downloadTimeout = 30 * time.Minute
)

// Request is one processing job.
type Request struct {
	// URL is the source page URL. Empty for uploads, which set FilePath.
	URL string

	// FilePath is a locally uploaded media file.
	FilePath string

	// Hotwords are request-supplied recognition hints.
	Hotwords []string

	// Translate enables the translation stage.
	Translate bool

	// TargetLang is the translation target, default "zh".
	TargetLang string
}

// Result is the outcome of a processing job.
type Result struct {
	JobID string

	// Document is the generated subtitle document (bilingual when
	// translation ran).
	Document *subtitle.Document

	// SRTPath is the persisted artifact, empty when persistence is disabled.
	SRTPath string

	Diagnostics Diagnostics
}

// Diagnostics carries the per-job observability payload returned to callers.
type Diagnostics struct {
	Mode     resolver.Mode `json:"mode"`
	Backend  string        `json:"backend,omitempty"`
	Partial  bool          `json:"partial,omitempty"`
	Language string        `json:"language,omitempty"`

	// Hotwords is the final list sent to recognition.
	Hotwords []string `json:"hotwords,omitempty"`

	// HotwordMatches and HotwordCorrections summarise post-correction.
	HotwordMatches     int `json:"hotword_matches,omitempty"`
	HotwordCorrections int `json:"hotword_corrections,omitempty"`

	// TranslationFallbacks counts chunks returned untranslated.
	TranslationFallbacks int `json:"translation_fallbacks,omitempty"`
}

// Processor wires the pipeline stages together.
type Processor struct {
	canon     *resolver.URLCanonicalizer
	resolver  *resolver.Resolver
	converter *audio.Converter
	pool      *asr.Pool
	router    *translate.Router

	generator *hotword.Generator
	settings  *hotword.SettingsStore
	ppOpts    []hotword.PostProcessorOption

	store    *fileinfo.Store
	readwise *readwise.Client
	metrics  *observe.Metrics

	outputDir string
}

// Option configures a [Processor].
type Option func(*Processor)

// WithTranslator sets the translation router. Without one, Translate
// requests fail.
func WithTranslator(r *translate.Router) Option {
	return func(p *Processor) { p.router = r }
}

// WithHotwords sets the generator, runtime settings store, and
// post-processor options.
func WithHotwords(g *hotword.Generator, s *hotword.SettingsStore, ppOpts ...hotword.PostProcessorOption) Option {
	return func(p *Processor) { p.generator = g; p.settings = s; p.ppOpts = ppOpts }
}

// WithFileStore enables per-file record persistence.
func WithFileStore(st *fileinfo.Store) Option {
	return func(p *Processor) { p.store = st }
}

// WithReadwise enables the Readwise egress.
func WithReadwise(c *readwise.Client) Option {
	return func(p *Processor) { p.readwise = c }
}

// WithPipelineMetrics overrides the metrics sink.
func WithPipelineMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a [Processor]. outputDir receives generated SRT files.
func New(res *resolver.Resolver, conv *audio.Converter, pool *asr.Pool, outputDir string, opts ...Option) *Processor {
	p := &Processor{
		canon:     resolver.NewURLCanonicalizer(),
		resolver:  res,
		converter: conv,
		pool:      pool,
		outputDir: outputDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs the full flow for req and returns the subtitle document.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	jobID := uuid.NewString()
	log := slog.With("job", jobID)
	start := time.Now()
	p.metrics.ActiveJobs.Add(ctx, 1)
	defer p.metrics.ActiveJobs.Add(ctx, -1)
	defer func() {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if req.FilePath != "" {
		return p.processUpload(ctx, log, jobID, req)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	src, err := p.canon.Canonicalize(resolveCtx, req.URL)
	cancel()
	if err != nil {
		p.metrics.RecordStageError(ctx, "resolve", "canonicalize")
		return nil, err
	}

	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	resolveStart := time.Now()
	plan, err := p.resolver.Resolve(downloadCtx, src)
	cancel()
	p.metrics.ResolveDuration.Record(ctx, time.Since(resolveStart).Seconds())
	if err != nil {
		p.metrics.RecordStageError(ctx, "resolve", "plan")
		return nil, err
	}
	log.Info("source resolved", "mode", plan.Mode, "platform", src.Platform, "id", src.VideoID)

	res := &Result{JobID: jobID, Diagnostics: Diagnostics{Mode: plan.Mode}}
	switch plan.Mode {
	case resolver.ModeSubtitle:
		res.Document = plan.Subtitles
	case resolver.ModeTranscribe:
		doc, diag, err := p.transcribeFile(ctx, log, plan.AudioPath, req.Hotwords, plan.Info)
		if err != nil {
			return nil, err
		}
		res.Document = doc
		diag.Mode = resolver.ModeTranscribe
		res.Diagnostics = diag
	}

	if req.Translate {
		if err := p.translateDocument(ctx, res, req.TargetLang); err != nil {
			return nil, err
		}
	}

	if err := p.persist(ctx, log, src, plan.Info, res); err != nil {
		return nil, err
	}
	return res, nil
}

// processUpload handles a locally uploaded media file: no resolver, always
// transcribe.
func (p *Processor) processUpload(ctx context.Context, log *slog.Logger, jobID string, req Request) (*Result, error) {
	doc, diag, err := p.transcribeFile(ctx, log, req.FilePath, req.Hotwords, nil)
	if err != nil {
		return nil, err
	}
	diag.Mode = resolver.ModeTranscribe
	res := &Result{JobID: jobID, Document: doc, Diagnostics: diag}

	if req.Translate {
		if err := p.translateDocument(ctx, res, req.TargetLang); err != nil {
			return nil, err
		}
	}

	src := resolver.Source{Platform: resolver.PlatformUpload, VideoID: uploadID(req.FilePath)}
	if err := p.persist(ctx, log, src, nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

// transcribeFile converts, chunks, recognises, post-corrects, and builds a
// document from a media file.
func (p *Processor) transcribeFile(ctx context.Context, log *slog.Logger, path string, userHotwords []string, info *resolver.VideoInfo) (*subtitle.Document, Diagnostics, error) {
	var diag Diagnostics

	prepStart := time.Now()
	buf, plans, err := p.converter.Prepare(ctx, path)
	p.metrics.AudioPrepDuration.Record(ctx, time.Since(prepStart).Seconds())
	if err != nil {
		p.metrics.RecordStageError(ctx, "audio", "prepare")
		return nil, diag, err
	}

	hotwords := p.assembleHotwords(userHotwords, info)
	diag.Hotwords = hotwords

	asrStart := time.Now()
	tr, err := p.pool.Transcribe(ctx, buf, plans, hotwords)
	p.metrics.TranscribeDuration.Record(ctx, time.Since(asrStart).Seconds())
	if err != nil {
		p.metrics.RecordStageError(ctx, "transcribe", "pool")
		return nil, diag, err
	}
	diag.Backend = tr.Backend
	diag.Partial = tr.Partial
	log.Info("transcription complete",
		"backend", tr.Backend, "chars", len(tr.Text), "partial", tr.Partial)

	text := tr.Text
	if p.postProcessEnabled() && len(hotwords) > 0 {
		pp := hotword.NewPostProcessor(hotwords, p.ppOpts...)
		corrected, audit := pp.Process(text)
		text = corrected
		diag.HotwordMatches = audit.Matches
		diag.HotwordCorrections = len(audit.Corrections)
		for _, c := range audit.Corrections {
			p.metrics.RecordHotwordCorrections(ctx, c.Method, 1)
		}
	}

	doc := subtitle.Build(text, spansFromTimestamps(tr.Timestamps), tr.Duration)
	return doc, diag, nil
}

// assembleHotwords merges user-supplied terms with generated ones according
// to the runtime settings. User terms always lead.
func (p *Processor) assembleHotwords(user []string, info *resolver.VideoInfo) []string {
	settings := hotword.DefaultSettings()
	if p.settings != nil {
		settings = p.settings.Get()
	}

	userSet := hotword.UserSet(user, settings.MaxCount)
	if settings.Mode == hotword.ModeUserOnly || !settings.AutoHotwords || p.generator == nil || info == nil {
		return userSet.Terms
	}

	generated := p.generator.Generate(hotword.Input{
		Title:       info.Title,
		ChannelName: info.Uploader,
		MaxHotwords: settings.MaxCount,
	})

	seen := make(map[string]bool, settings.MaxCount)
	var out []string
	for _, t := range append(userSet.Terms, generated.Terms...) {
		if seen[t] || len(out) >= settings.MaxCount {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (p *Processor) postProcessEnabled() bool {
	if p.settings == nil {
		return true
	}
	return p.settings.Get().PostProcess
}

// translateDocument rewrites res.Document into bilingual cues.
func (p *Processor) translateDocument(ctx context.Context, res *Result, targetLang string) error {
	if p.router == nil {
		return translate.ErrNoProviders
	}
	if targetLang == "" {
		targetLang = "zh"
	}

	start := time.Now()
	fallbacks, err := TranslateDocument(ctx, p.router, res.Document, targetLang)
	p.metrics.TranslateDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordStageError(ctx, "translate", "document")
		return err
	}
	res.Diagnostics.TranslationFallbacks = fallbacks
	return nil
}

// persist writes the SRT artifact, records the file, and ships the Readwise
// egress. Readwise failures are logged, never fatal.
func (p *Processor) persist(ctx context.Context, log *slog.Logger, src resolver.Source, info *resolver.VideoInfo, res *Result) error {
	if p.outputDir == "" || res.Document == nil {
		return nil
	}

	path := filepath.Join(p.outputDir, src.VideoID+".srt")
	if err := os.WriteFile(path, []byte(subtitle.Format(res.Document)), 0o644); err != nil {
		p.metrics.RecordStageError(ctx, "persist", "srt")
		return fmt.Errorf("write subtitle artifact: %w", err)
	}
	res.SRTPath = path

	if p.store != nil {
		rec := fileinfo.Record{
			FileID:       src.VideoID,
			Platform:     string(src.Platform),
			SubtitlePath: path,
			Backend:      res.Diagnostics.Backend,
			Partial:      res.Diagnostics.Partial,
		}
		if info != nil {
			rec.Title = info.Title
			rec.Uploader = info.Uploader
			rec.UploadDate = info.UploadDate
			rec.Duration = info.Duration
		}
		if err := p.store.Put(rec); err != nil {
			return err
		}
	}

	if p.readwise != nil && info != nil {
		doc := readwise.Document{
			URL:             sourceURL(src),
			Title:           info.Title,
			Author:          info.Uploader,
			HTML:            transcriptHTML(res.Document),
			Tags:            []string{"subpipe"},
			ShouldCleanHTML: true,
		}
		if err := p.readwise.Save(ctx, doc); err != nil {
			log.Warn("readwise save failed", "err", err)
			p.metrics.RecordStageError(ctx, "readwise", "save")
		}
	}
	return nil
}

// TranslateDocument appends a translated line to every cue. Cues are batched
// so each provider request stays near the configured chunk size; a batch
// whose translation does not split back cleanly is retried cue by cue.
func TranslateDocument(ctx context.Context, router *translate.Router, doc *subtitle.Document, targetLang string) (int, error) {
	if doc == nil || len(doc.Cues) == 0 {
		return 0, nil
	}

	fallbacks := 0
	const batchSize = 40
	for lo := 0; lo < len(doc.Cues); lo += batchSize {
		hi := min(lo+batchSize, len(doc.Cues))
		lines := make([]string, 0, hi-lo)
		for _, c := range doc.Cues[lo:hi] {
			lines = append(lines, strings.ReplaceAll(c.Text, "\n", " "))
		}

		out, fb, err := router.Translate(ctx, strings.Join(lines, "\n"), targetLang)
		if err != nil {
			return fallbacks, err
		}
		fallbacks += fb

		translated := strings.Split(out, "\n")
		if len(translated) != len(lines) {
			// The provider merged or split lines; fall back to per-cue calls
			// for this batch.
			slog.Debug("batch translation changed line count, translating per cue",
				"want", len(lines), "got", len(translated))
			for i := lo; i < hi; i++ {
				one, fb, err := router.Translate(ctx, doc.Cues[i].Text, targetLang)
				if err != nil {
					return fallbacks, err
				}
				fallbacks += fb
				applyTranslation(&doc.Cues[i], one)
			}
			continue
		}
		for i := range translated {
			applyTranslation(&doc.Cues[lo+i], translated[i])
		}
	}
	return fallbacks, nil
}

// applyTranslation appends the translated line unless it matches the
// original (identity fallback or same-language source).
func applyTranslation(c *subtitle.Cue, translated string) {
	translated = strings.TrimSpace(translated)
	if translated == "" || translated == c.Text {
		return
	}
	c.Text = c.Text + "\n" + translated
}

// spansFromTimestamps converts millisecond pairs into display spans.
func spansFromTimestamps(ts [][2]int64) []subtitle.Span {
	if len(ts) == 0 {
		return nil
	}
	spans := make([]subtitle.Span, len(ts))
	for i, p := range ts {
		spans[i] = subtitle.Span{
			Start: time.Duration(p[0]) * time.Millisecond,
			End:   time.Duration(p[1]) * time.Millisecond,
		}
	}
	return spans
}

// uploadID derives a stable id from an uploaded file name.
func uploadID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sourceURL(src resolver.Source) string {
	switch src.Platform {
	case resolver.PlatformYouTube:
		return "https://www.youtube.com/watch?v=" + src.VideoID
	case resolver.PlatformBilibili:
		return "https://www.bilibili.com/video/" + src.VideoID
	case resolver.PlatformAcFun:
		return "https://www.acfun.cn/v/" + src.VideoID
	}
	return ""
}

// transcriptHTML renders the document as a minimal article for Readwise.
func transcriptHTML(doc *subtitle.Document) string {
	var sb strings.Builder
	for _, c := range doc.Cues {
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(c.Text, "\n", "<br>"))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}
