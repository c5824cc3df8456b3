// Package fileinfo persists per-file processing records so repeated requests
// for the same source can reuse earlier results.
package fileinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// ErrNotFound is returned when no record exists for a file id.
var ErrNotFound = errors.New("file record not found")

// Record describes one processed source and its artifacts.
type Record struct {
	// FileID is the stable identifier: the platform video id, or a content
	// hash for uploads.
	FileID string `json:"file_id"`

	Title    string `json:"title,omitempty"`
	Uploader string `json:"uploader,omitempty"`
	Platform string `json:"platform,omitempty"`

	// SourceURL is the canonical page URL, empty for uploads.
	SourceURL  string        `json:"source_url,omitempty"`
	UploadDate string        `json:"upload_date,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`

	// SubtitlePath is the generated SRT artifact.
	SubtitlePath string `json:"subtitle_path,omitempty"`

	// Backend names the ASR backend that produced the transcript, empty when
	// subtitles were downloaded instead.
	Backend string `json:"backend,omitempty"`

	// Partial marks transcripts where some chunks failed after the first
	// success.
	Partial bool `json:"partial,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the single coordinator for the record file. The on-disk format is
// a JSON object keyed by file id; the legacy flat-list format is migrated on
// load.
//
// Store is safe for concurrent use.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the record file at path, creating an empty store when absent.
func Open(path string) (*Store, error) {
	st := &Store{path: path, records: map[string]Record{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("fileinfo: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return st, nil
	}

	if err := json.Unmarshal(data, &st.records); err == nil {
		return st, nil
	}

	// Legacy format: a flat list of records.
	var legacy []Record
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("fileinfo: parse %q: %w", path, err)
	}
	for _, r := range legacy {
		if r.FileID == "" {
			continue
		}
		st.records[r.FileID] = r
	}
	slog.Info("migrated legacy fileinfo list", "path", path, "records", len(st.records))
	if err := st.persistLocked(); err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns the record for id.
func (st *Store) Get(id string) (Record, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return r, nil
}

// Put inserts or replaces the record for rec.FileID, stamping timestamps.
func (st *Store) Put(rec Record) error {
	if rec.FileID == "" {
		return errors.New("fileinfo: record has no file id")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now().UTC()
	if prev, ok := st.records[rec.FileID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	prev := st.records[rec.FileID]
	st.records[rec.FileID] = rec
	if err := st.persistLocked(); err != nil {
		if prev.FileID != "" {
			st.records[rec.FileID] = prev
		} else {
			delete(st.records, rec.FileID)
		}
		return err
	}
	return nil
}

// Delete removes the record for id. Deleting a missing id is not an error.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	prev, ok := st.records[id]
	if !ok {
		return nil
	}
	delete(st.records, id)
	if err := st.persistLocked(); err != nil {
		st.records[id] = prev
		return err
	}
	return nil
}

// Len returns the number of stored records.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.records)
}

// persistLocked writes the record map to disk via renameio. Must be called
// with st.mu held for writing.
func (st *Store) persistLocked() error {
	data, err := json.MarshalIndent(st.records, "", "  ")
	if err != nil {
		return fmt.Errorf("fileinfo: marshal: %w", err)
	}
	if err := renameio.WriteFile(st.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("fileinfo: write %q: %w", st.path, err)
	}
	return nil
}
