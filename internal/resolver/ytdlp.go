package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Format selector ladder for audio download. Audio-only first, then
// progressively larger progressive formats when the platform refuses
// audio-only streams.
var audioFormatLadder = []string{
	"bestaudio[ext=m4a]/bestaudio",
	"worst[height<=480]",
	"best[height<=720]/best",
}

var authRequiredRe = regexp.MustCompile(`(?i)sign in to confirm|login required|private video|members-only|registered users`)

// YtDlp is the production [MetadataClient], shelling out to yt-dlp for
// metadata and media, and fetching subtitle tracks over plain HTTP.
type YtDlp struct {
	path    string
	http    *http.Client
	cookies CookieArgs
}

// CookieArgs carries the session material forwarded to yt-dlp. At most one
// field is set.
type CookieArgs struct {
	// File is a Netscape-format cookie jar path.
	File string
	// BrowserProfile is a browser spec for --cookies-from-browser, e.g.
	// "firefox:/path/to/profile".
	BrowserProfile string
}

// YtDlpOption configures a [YtDlp].
type YtDlpOption func(*YtDlp)

// WithYtDlpPath overrides the yt-dlp binary path.
func WithYtDlpPath(path string) YtDlpOption {
	return func(y *YtDlp) { y.path = path }
}

// WithSubtitleHTTPClient overrides the client used for subtitle downloads.
func WithSubtitleHTTPClient(c *http.Client) YtDlpOption {
	return func(y *YtDlp) { y.http = c }
}

// WithCookies forwards session cookies to yt-dlp.
func WithCookies(args CookieArgs) YtDlpOption {
	return func(y *YtDlp) { y.cookies = args }
}

// NewYtDlp creates the yt-dlp metadata client.
func NewYtDlp(opts ...YtDlpOption) *YtDlp {
	y := &YtDlp{
		path: "yt-dlp",
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

var _ MetadataClient = (*YtDlp)(nil)

// watchURL rebuilds the canonical page URL yt-dlp expects for a source.
func watchURL(src Source) string {
	switch src.Platform {
	case PlatformYouTube:
		return "https://www.youtube.com/watch?v=" + src.VideoID
	case PlatformBilibili:
		return "https://www.bilibili.com/video/" + src.VideoID
	case PlatformAcFun:
		return "https://www.acfun.cn/v/" + src.VideoID
	}
	return src.VideoID
}

func (y *YtDlp) cookieFlags() []string {
	switch {
	case y.cookies.File != "":
		return []string{"--cookies", y.cookies.File}
	case y.cookies.BrowserProfile != "":
		return []string{"--cookies-from-browser", y.cookies.BrowserProfile}
	}
	return nil
}

// ytdlpInfo mirrors the subset of `yt-dlp -J` output the resolver uses.
type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	UploadDate string  `json:"upload_date"`
	Language   string  `json:"language"`

	Subtitles         map[string][]ytdlpTrack `json:"subtitles"`
	AutomaticCaptions map[string][]ytdlpTrack `json:"automatic_captions"`
}

type ytdlpTrack struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

// Metadata runs `yt-dlp -J`. metadataOnly additionally skips format
// resolution, which rescues videos whose stream manifests are broken but
// whose metadata and subtitle listings are fine.
func (y *YtDlp) Metadata(ctx context.Context, src Source, metadataOnly bool) (*VideoInfo, error) {
	args := []string{"-J", "--no-warnings"}
	if metadataOnly {
		args = append(args, "--ignore-no-formats-error", "--extractor-args", "youtube:skip=dash,hls")
	}
	args = append(args, y.cookieFlags()...)
	args = append(args, watchURL(src))

	cmd := exec.CommandContext(ctx, y.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if authRequiredRe.MatchString(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", ErrAuthRequired, firstLine(stderr.String()))
		}
		return nil, fmt.Errorf("yt-dlp metadata for %s: %w: %s", src.VideoID, err, firstLine(stderr.String()))
	}

	var raw ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata for %s: %w", src.VideoID, err)
	}
	return raw.toVideoInfo(), nil
}

func (i *ytdlpInfo) toVideoInfo() *VideoInfo {
	info := &VideoInfo{
		ID:         i.ID,
		Title:      i.Title,
		Uploader:   i.Uploader,
		Duration:   time.Duration(i.Duration * float64(time.Second)),
		UploadDate: i.UploadDate,
		Language:   strings.ToLower(i.Language),
		ManualSubs: map[string][]SubtitleTrack{},
		AutoSubs:   map[string][]SubtitleTrack{},
	}
	for lang, tracks := range i.Subtitles {
		info.ManualSubs[lang] = toTracks(lang, tracks)
	}
	for lang, tracks := range i.AutomaticCaptions {
		info.AutoSubs[lang] = toTracks(lang, tracks)
	}
	return info
}

func toTracks(lang string, tracks []ytdlpTrack) []SubtitleTrack {
	out := make([]SubtitleTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, SubtitleTrack{Lang: lang, Format: t.Ext, URL: t.URL})
	}
	return out
}

// DownloadSubtitle fetches one track over HTTP. Bilibili CDNs require a
// matching Referer.
func (y *YtDlp) DownloadSubtitle(ctx context.Context, track SubtitleTrack) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.URL, nil)
	if err != nil {
		return nil, err
	}
	if strings.Contains(req.URL.Host, "bilibili") || strings.Contains(req.URL.Host, "hdslb") {
		req.Header.Set("Referer", "https://www.bilibili.com/")
		req.Header.Set("Origin", "https://www.bilibili.com")
	}
	resp, err := y.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download subtitle %s: %w", track.Lang, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download subtitle %s: HTTP %d", track.Lang, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// DownloadAudio walks the format ladder until one selector succeeds and
// returns the downloaded file path.
func (y *YtDlp) DownloadAudio(ctx context.Context, src Source, destDir string) (string, error) {
	var lastErr error
	for _, format := range audioFormatLadder {
		path, err := y.downloadWithFormat(ctx, src, destDir, format)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("audio format selector failed, trying next",
			"id", src.VideoID, "format", format, "err", err)
	}
	return "", fmt.Errorf("all format selectors failed for %s: %w", src.VideoID, lastErr)
}

func (y *YtDlp) downloadWithFormat(ctx context.Context, src Source, destDir, format string) (string, error) {
	args := []string{
		"-f", format,
		"--no-warnings",
		"--no-playlist",
		"--no-simulate",
		"--print", "after_move:filepath",
		"-o", destDir + "/%(id)s.%(ext)s",
	}
	args = append(args, y.cookieFlags()...)
	args = append(args, watchURL(src))

	cmd := exec.CommandContext(ctx, y.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if authRequiredRe.MatchString(stderr.String()) {
			return "", fmt.Errorf("%w: %s", ErrAuthRequired, firstLine(stderr.String()))
		}
		return "", fmt.Errorf("yt-dlp download: %w: %s", err, firstLine(stderr.String()))
	}
	path := strings.TrimSpace(stdout.String())
	if path == "" {
		return "", fmt.Errorf("yt-dlp reported no output file for %s", src.VideoID)
	}
	return path, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
