package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Canonical URL patterns per platform. Short links are resolved by following
// a single HEAD redirect first.
var (
	youtubeWatchRe = regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{6,})`)
	youtubeShortRe = regexp.MustCompile(`^/([A-Za-z0-9_-]{6,})`)
	bilibiliRe     = regexp.MustCompile(`/video/((?:BV|bv)[0-9A-Za-z]+|av\d+)`)
	acfunRe        = regexp.MustCompile(`/v/(ac\d+)`)
)

// URLCanonicalizer maps arbitrary video URLs onto {platform, video_id}.
type URLCanonicalizer struct {
	// HTTP resolves short-link redirects (b23.tv). Defaults to a client
	// that does not follow redirects, so the Location header is observable.
	HTTP *http.Client
}

// NewURLCanonicalizer returns a canonicalizer with a redirect-observing
// HTTP client.
func NewURLCanonicalizer() *URLCanonicalizer {
	return &URLCanonicalizer{
		HTTP: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Canonicalize normalises rawURL to a [Source]. Unknown hosts fail with
// [ErrUnsupportedPlatform]; recognised hosts with no extractable id fail
// with [ErrInvalidURL].
func (c *URLCanonicalizer) Canonicalize(ctx context.Context, rawURL string) (Source, error) {
	return c.canonicalize(ctx, rawURL, true)
}

// canonicalize does the host dispatch. followShortLink permits exactly one
// redirect hop, so a short link pointing at another short link fails instead
// of recursing.
func (c *URLCanonicalizer) canonicalize(ctx context.Context, rawURL string, followShortLink bool) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Source{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if m := youtubeWatchRe.FindStringSubmatch(u.RequestURI()); m != nil {
			return Source{Platform: PlatformYouTube, VideoID: m[1]}, nil
		}
		// Long-form /shorts/<id> and /embed/<id> paths.
		for _, prefix := range []string{"/shorts/", "/embed/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				if m := youtubeShortRe.FindStringSubmatch("/" + rest); m != nil {
					return Source{Platform: PlatformYouTube, VideoID: m[1]}, nil
				}
			}
		}
		return Source{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)

	case "youtu.be":
		if m := youtubeShortRe.FindStringSubmatch(u.Path); m != nil {
			return Source{Platform: PlatformYouTube, VideoID: m[1]}, nil
		}
		return Source{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)

	case "bilibili.com":
		if m := bilibiliRe.FindStringSubmatch(u.Path); m != nil {
			return Source{Platform: PlatformBilibili, VideoID: m[1]}, nil
		}
		return Source{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)

	case "b23.tv":
		if !followShortLink {
			return Source{}, fmt.Errorf("%w: short link %q resolved to another short link", ErrSourceUnavailable, rawURL)
		}
		resolved, err := c.resolveRedirect(ctx, u.String())
		if err != nil {
			return Source{}, fmt.Errorf("%w: resolve short link: %v", ErrSourceUnavailable, err)
		}
		return c.canonicalize(ctx, resolved, false)

	case "acfun.cn":
		if m := acfunRe.FindStringSubmatch(u.Path); m != nil {
			return Source{Platform: PlatformAcFun, VideoID: m[1]}, nil
		}
		return Source{}, fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)
	}

	return Source{}, fmt.Errorf("%w: host %q", ErrUnsupportedPlatform, host)
}

// resolveRedirect follows exactly one HEAD redirect and returns the target.
func (c *URLCanonicalizer) resolveRedirect(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shortURL, nil)
	if err != nil {
		return "", err
	}
	client := c.HTTP
	if client == nil {
		client = NewURLCanonicalizer().HTTP
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	loc := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || loc == "" {
		return "", fmt.Errorf("short link did not redirect (HTTP %d)", resp.StatusCode)
	}
	return loc, nil
}
