package subtitle

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timingRe matches an SRT timing line: "HH:MM:SS,mmm --> HH:MM:SS,mmm".
// A period is tolerated as the millisecond separator on input; output always
// uses a comma.
var timingRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*$`)

// timestampRe is the loose probe used to decide whether input is SRT at all.
var timestampRe = regexp.MustCompile(`\d{2}:\d{2}:\d{2}[,.]\d{3}`)

// Format renders the document as canonical SubRip text: 1-based contiguous
// indices, comma millisecond separator, LF line endings, one blank line after
// each cue block.
func Format(doc *Document) string {
	var b strings.Builder
	for i, c := range doc.Cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return b.String()
}

// formatTimestamp renders d as "HH:MM:SS,mmm". Negative durations clamp to zero.
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms % 3_600_000 / 60_000
	s := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// Parse reads SubRip text into a [Document]. Malformed cues (bad timing lines,
// inverted or negative durations, missing text) are logged and skipped while
// parsing continues, so later cues are still recovered. Indices are
// renumbered to the contiguous 1..N sequence regardless of the input values.
//
// When the input contains no SRT timestamp pattern at all it is treated as a
// plain transcription and segmented via [BuildFromText] with per-character
// timing. Empty input yields an empty document and no error.
func Parse(text string) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return &Document{}, nil
	}
	if !timestampRe.MatchString(text) {
		return BuildFromText(text, 0), nil
	}

	doc := &Document{}
	blocks := splitBlocks(text)
	for _, block := range blocks {
		cue, err := parseBlock(block)
		if err != nil {
			slog.Warn("skipping malformed srt cue", "err", err, "block", truncate(block, 80))
			continue
		}
		doc.Cues = append(doc.Cues, cue)
	}
	if len(doc.Cues) == 0 {
		return nil, fmt.Errorf("%w: no parseable cues", ErrInvalidSRT)
	}
	doc.Renumber()
	return doc, nil
}

// splitBlocks splits SRT text into cue blocks on blank lines, tolerating CRLF
// and extra blank lines.
func splitBlocks(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(normalized, "\n\n")
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, strings.TrimSpace(b))
		}
	}
	return blocks
}

// parseBlock parses one "index / timing / text…" cue block.
func parseBlock(block string) (Cue, error) {
	lines := strings.Split(block, "\n")
	if len(lines) < 2 {
		return Cue{}, fmt.Errorf("%w: block has %d lines", ErrMalformedCue, len(lines))
	}

	// The first line is usually the numeric index; some emitters omit it.
	timingIdx := 0
	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		timingIdx = 1
	}
	if timingIdx >= len(lines) {
		return Cue{}, fmt.Errorf("%w: index without timing line", ErrMalformedCue)
	}

	m := timingRe.FindStringSubmatch(strings.TrimSpace(lines[timingIdx]))
	if m == nil {
		return Cue{}, fmt.Errorf("%w: bad timing line %q", ErrMalformedCue, lines[timingIdx])
	}
	start := timestampFromParts(m[1], m[2], m[3], m[4])
	end := timestampFromParts(m[5], m[6], m[7], m[8])

	text := strings.TrimSpace(strings.Join(lines[timingIdx+1:], "\n"))
	if text == "" {
		return Cue{}, fmt.Errorf("%w: cue has no text", ErrMalformedCue)
	}

	cue := Cue{Start: start, End: end, Text: text}
	if err := cue.Validate(); err != nil {
		return Cue{}, err
	}
	return cue, nil
}

// timestampFromParts assembles a duration from pre-validated numeric strings.
func timestampFromParts(h, m, s, ms string) time.Duration {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mss, _ := strconv.Atoi(ms)
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(mss)*time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
