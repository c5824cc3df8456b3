// Package cookies locates browser session cookies for platform downloads.
package cookies

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source resolves the configured cookies setting into yt-dlp arguments. The
// setting is either a Netscape cookie-jar file path or a Firefox profile
// directory.
type Source struct {
	path string
}

// New creates a [Source]. An empty path means cookies are unconfigured.
func New(path string) *Source {
	return &Source{path: strings.TrimSpace(path)}
}

// Resolved is the interpreted cookie configuration.
type Resolved struct {
	// File is a cookie-jar file path, exclusive with BrowserProfile.
	File string

	// BrowserProfile is a "firefox:<dir>" browser spec.
	BrowserProfile string
}

// Resolve interprets the configured path. A directory containing cookies.sqlite
// is treated as a Firefox profile; anything else must be a readable file.
// An unconfigured source resolves to the zero value with no error.
func (s *Source) Resolve() (Resolved, error) {
	if s == nil || s.path == "" {
		return Resolved{}, nil
	}

	fi, err := os.Stat(s.path)
	if err != nil {
		return Resolved{}, fmt.Errorf("cookies: %w", err)
	}
	if fi.IsDir() {
		if _, err := os.Stat(filepath.Join(s.path, "cookies.sqlite")); err != nil {
			return Resolved{}, fmt.Errorf("cookies: %q is a directory but not a firefox profile: %w", s.path, err)
		}
		return Resolved{BrowserProfile: "firefox:" + s.path}, nil
	}
	return Resolved{File: s.path}, nil
}
