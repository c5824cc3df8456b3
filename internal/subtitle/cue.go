// Package subtitle turns timestamped transcripts into SubRip documents and
// parses SubRip text back into cues.
package subtitle

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedCue is returned for cues with inverted or negative timing.
var ErrMalformedCue = errors.New("malformed cue")

// ErrInvalidSRT is returned when input claims to be SRT but yields no cues.
var ErrInvalidSRT = errors.New("invalid srt")

// Cue is one subtitle entry.
type Cue struct {
	// Index is the 1-based position within the document.
	Index int

	// Start is the display start time from the beginning of the media.
	Start time.Duration

	// End is the display end time. Always after Start.
	End time.Duration

	// Text is the cue payload. Never empty in a valid document.
	Text string
}

// Validate reports whether the cue has positive duration and non-negative
// start. The text is checked by the document, not here, so that parsers can
// distinguish timing damage from missing payload.
func (c Cue) Validate() error {
	if c.Start < 0 {
		return fmt.Errorf("%w: negative start %v", ErrMalformedCue, c.Start)
	}
	if c.End <= c.Start {
		return fmt.Errorf("%w: end %v not after start %v", ErrMalformedCue, c.End, c.Start)
	}
	return nil
}

// Document is an ordered list of cues with contiguous 1-based indices.
type Document struct {
	Cues []Cue
}

// Renumber rewrites cue indices to the contiguous sequence 1..N.
func (d *Document) Renumber() {
	for i := range d.Cues {
		d.Cues[i].Index = i + 1
	}
}

// Validate checks the document invariants: contiguous indices, positive cue
// durations, non-empty text, and no overlap between adjacent cues.
func (d *Document) Validate() error {
	var errs []error
	for i, c := range d.Cues {
		if c.Index != i+1 {
			errs = append(errs, fmt.Errorf("cue %d: index %d is not contiguous", i, c.Index))
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cue %d: %w", i, err))
		}
		if c.Text == "" {
			errs = append(errs, fmt.Errorf("cue %d: empty text", i))
		}
		if i > 0 && d.Cues[i-1].End > c.Start {
			errs = append(errs, fmt.Errorf("cue %d: starts at %v before previous cue ends at %v", i, c.Start, d.Cues[i-1].End))
		}
	}
	return errors.Join(errs...)
}
