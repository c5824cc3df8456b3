// Package translate routes subtitle text through an ordered chain of
// translation providers with retries, circuit breaking, and a per-chunk
// identity fallback.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// ErrNoProviders is returned when the configured chain has no enabled
// providers.
var ErrNoProviders = errors.New("no translation providers configured")

// Service is one translation provider.
type Service interface {
	// Translate returns text rendered in targetLang ("zh" or "en").
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// StatusError is an HTTP failure from a provider endpoint.
type StatusError struct {
	Service string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Status)
}

// langName maps a target language code to the English name used in
// translation prompts.
func langName(code string) string {
	switch strings.ToLower(code) {
	case "zh", "zh-hans", "zh-cn":
		return "Simplified Chinese"
	case "zh-hant", "zh-tw":
		return "Traditional Chinese"
	case "en":
		return "English"
	}
	return code
}

// deeplTarget maps a language code onto the uppercase codes the DeepL
// protocol expects.
func deeplTarget(code string) string {
	switch strings.ToLower(code) {
	case "zh", "zh-hans", "zh-cn":
		return "ZH"
	case "en":
		return "EN"
	}
	return strings.ToUpper(code)
}

// rateLimited reports whether err is an HTTP 429.
func rateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == 429
}

// transient reports whether err is worth retrying on the same provider:
// 5xx, 429, timeouts, and connection failures. Other HTTP errors are fatal
// for this provider.
func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == 429
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Connection-level failures (refused, reset) surface as *net.OpError.
	var oe *net.OpError
	return errors.As(err, &oe)
}
