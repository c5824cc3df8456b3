// Package asr submits audio chunks to a pool of transcription backends and
// merges per-chunk results into one globally timestamped transcript.
package asr

import (
	"errors"
	"fmt"
	"time"
)

// ErrTranscriptionEmpty is returned when no chunk yielded any text.
var ErrTranscriptionEmpty = errors.New("transcription produced no text")

// ErrNoHealthyBackend is returned when the health probe admits no backend.
var ErrNoHealthyBackend = errors.New("no healthy transcription backend")

// Segment is one chunk's recognition result, with timestamps in chunk-local
// milliseconds.
type Segment struct {
	Text string

	// Timestamps holds per-character [start_ms, end_ms] pairs. May be nil
	// when the backend does not produce them.
	Timestamps [][2]int64

	// ChunkIndex is the 1-based ordinal of the source chunk.
	ChunkIndex int
}

// Transcript is the merged result of all chunks, with timestamps translated
// to global audio time.
type Transcript struct {
	// Text is all chunk texts joined with a single space.
	Text string

	// Timestamps are global [start_ms, end_ms] pairs. Nil unless every chunk
	// that produced text also produced timestamps.
	Timestamps [][2]int64

	// Duration is the sum of planned chunk durations.
	Duration time.Duration

	// Backend names the server that produced the transcript.
	Backend string

	// Partial is set when at least one chunk failed or was skipped while
	// others succeeded.
	Partial bool
}

// ServerError is a non-2xx response from a transcription backend.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("transcription server returned HTTP %d", e.Status)
}

// failoverWorthy reports whether err justifies moving to the next backend:
// transport failures and 5xx responses. 4xx responses are per-request
// problems the next backend would reproduce.
func failoverWorthy(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	// Anything that is not an HTTP status is a transport-level failure.
	return err != nil
}
