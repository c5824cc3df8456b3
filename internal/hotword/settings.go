package hotword

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// Mode selects which hotword sources the pipeline consults.
type Mode string

const (
	// ModeUserOnly uses only request-supplied hotwords.
	ModeUserOnly Mode = "user_only"

	// ModeCurated adds the curated category lists.
	ModeCurated Mode = "curated"

	// ModeExperiment additionally enables the learned source.
	ModeExperiment Mode = "experiment"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeUserOnly, ModeCurated, ModeExperiment:
		return true
	}
	return false
}

// Settings are the process-wide runtime hotword switches. They are mutated
// through a [SettingsStore] and persisted across restarts.
type Settings struct {
	// AutoHotwords enables generation from video metadata.
	AutoHotwords bool `json:"auto_hotwords"`

	// PostProcess enables the transcript post-correction stage.
	PostProcess bool `json:"post_process"`

	// Mode selects the hotword sources.
	Mode Mode `json:"mode"`

	// MaxCount caps the generated list, in [0, 100].
	MaxCount int `json:"max_count"`
}

// Validate checks the settings ranges.
func (s Settings) Validate() error {
	var errs []error
	if !s.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: user_only, curated, experiment", s.Mode))
	}
	if s.MaxCount < 0 || s.MaxCount > 100 {
		errs = append(errs, fmt.Errorf("max_count %d is out of range [0, 100]", s.MaxCount))
	}
	return errors.Join(errs...)
}

// DefaultSettings are used when no settings file exists yet.
func DefaultSettings() Settings {
	return Settings{
		AutoHotwords: true,
		PostProcess:  true,
		Mode:         ModeCurated,
		MaxCount:     defaultMaxHotwords,
	}
}

// SettingsStore is the single coordinator for the runtime hotword settings.
// Reads take a shared lock; writes are serialised and persisted to the JSON
// file with a temp-file-plus-rename atomic write. Last writer wins.
//
// SettingsStore is safe for concurrent use.
type SettingsStore struct {
	path string

	mu sync.RWMutex
	s  Settings
}

// OpenSettings loads the settings file at path, creating it with
// [DefaultSettings] when absent. A corrupt file is an error; the caller
// decides whether to start with defaults instead.
func OpenSettings(path string) (*SettingsStore, error) {
	st := &SettingsStore{path: path, s: DefaultSettings()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := st.persistLocked(); err != nil {
			return nil, fmt.Errorf("hotword settings: initialise %q: %w", path, err)
		}
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("hotword settings: read %q: %w", path, err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("hotword settings: parse %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("hotword settings: %q: %w", path, err)
	}
	st.s = s
	return st, nil
}

// Get returns a copy of the current settings. No write lock is taken.
func (st *SettingsStore) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update applies fn to a copy of the current settings, validates the result,
// and atomically persists it. The store is unchanged when validation or
// persistence fails.
func (st *SettingsStore) Update(fn func(*Settings)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.s
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}

	prev := st.s
	st.s = next
	if err := st.persistLocked(); err != nil {
		st.s = prev
		return err
	}
	slog.Info("hotword settings updated",
		"auto_hotwords", next.AutoHotwords,
		"post_process", next.PostProcess,
		"mode", next.Mode,
		"max_count", next.MaxCount,
	)
	return nil
}

// persistLocked writes the current settings to disk via renameio.
// Must be called with st.mu held for writing.
func (st *SettingsStore) persistLocked() error {
	data, err := json.MarshalIndent(st.s, "", "  ")
	if err != nil {
		return fmt.Errorf("hotword settings: marshal: %w", err)
	}
	if err := renameio.WriteFile(st.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("hotword settings: write %q: %w", st.path, err)
	}
	return nil
}
