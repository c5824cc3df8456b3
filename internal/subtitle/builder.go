package subtitle

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Span is one character's display interval in global media time.
type Span struct {
	Start time.Duration
	End   time.Duration
}

// Segmentation heuristics for the timestamped path.
const (
	// maxCueChars closes a cue once this many characters have accumulated.
	maxCueChars = 25

	// naturalBreakMin is the minimum accumulated length at which a comma-class
	// character may close a cue.
	naturalBreakMin = 15

	// longPause closes a cue when the gap to the next character exceeds it.
	longPause = 800 * time.Millisecond

	// fallbackPerChar is the assumed display time per character when no total
	// duration is known on the plain-text path.
	fallbackPerChar = 300 * time.Millisecond
)

// sentenceEndRe splits plain text into sentences on terminator runs.
var sentenceEndRe = regexp.MustCompile(`[.!?。！？]+`)

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '。', '!', '！', '?', '？', ';', '；':
		return true
	}
	return false
}

func isNaturalBreak(r rune) bool {
	switch r {
	case ',', '，', '、':
		return true
	}
	return false
}

// Build assembles a document from transcript text and optional per-character
// spans. The timestamped path is taken only when every non-whitespace
// character has a span; otherwise the text is segmented by sentence with
// synthetic timing over totalDuration (pass 0 when unknown).
func Build(text string, spans []Span, totalDuration time.Duration) *Document {
	if len(spans) > 0 && len(spans) == countNonSpace(text) {
		return BuildFromTimestamps(text, spans)
	}
	return BuildFromText(text, totalDuration)
}

// BuildFromTimestamps walks the text character by character, pairing each
// non-whitespace character with the next span, and closes the pending cue
// when a sentence terminator appears, the cue reaches maxCueChars, the gap to
// the following character exceeds longPause, a comma-class character appears
// after naturalBreakMin characters, or the text ends.
//
// Whitespace characters carry no span of their own; they are appended to the
// pending cue text and never trigger a close.
func BuildFromTimestamps(text string, spans []Span) *Document {
	doc := &Document{}
	runes := []rune(text)

	var (
		pending  strings.Builder
		count    int // non-whitespace characters in the pending cue
		si       = -1
		cueStart time.Duration
		haveCue  bool
	)

	flush := func(end time.Duration) {
		t := strings.TrimSpace(pending.String())
		pending.Reset()
		count = 0
		haveCue = false
		if t == "" {
			return
		}
		doc.Cues = append(doc.Cues, Cue{Start: cueStart, End: end, Text: t})
	}

	for _, r := range runes {
		if unicode.IsSpace(r) {
			if haveCue {
				pending.WriteRune(r)
			}
			continue
		}
		si++
		if si >= len(spans) {
			break
		}
		if !haveCue {
			cueStart = spans[si].Start
			haveCue = true
		}
		pending.WriteRune(r)
		count++

		last := si == len(spans)-1
		closeCue := last ||
			isSentenceTerminator(r) ||
			count >= maxCueChars ||
			(isNaturalBreak(r) && count >= naturalBreakMin)
		if !closeCue && !last && spans[si+1].Start-spans[si].End > longPause {
			closeCue = true
		}
		if closeCue {
			flush(spans[si].End)
		}
	}
	if haveCue && si >= 0 {
		flush(spans[min(si, len(spans)-1)].End)
	}

	doc.Renumber()
	return doc
}

// BuildFromText splits text into sentences, drops single-character fragments,
// and emits back-to-back cues. When totalDuration is positive each sentence's
// share is proportional to its character count; otherwise display time is
// fallbackPerChar per character.
func BuildFromText(text string, totalDuration time.Duration) *Document {
	doc := &Document{}

	var sentences []string
	totalChars := 0
	for _, s := range sentenceEndRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len([]rune(s)) <= 1 {
			continue
		}
		sentences = append(sentences, s)
		totalChars += len([]rune(s))
	}
	if len(sentences) == 0 {
		return doc
	}

	var cursor time.Duration
	accumulated := 0
	for _, s := range sentences {
		chars := len([]rune(s))
		accumulated += chars

		var end time.Duration
		if totalDuration > 0 {
			// Cumulative allocation avoids rounding drift on the final cue.
			end = time.Duration(float64(totalDuration) * float64(accumulated) / float64(totalChars)).Round(time.Millisecond)
			if end > totalDuration {
				end = totalDuration
			}
		} else {
			end = cursor + time.Duration(chars)*fallbackPerChar
		}
		if end <= cursor {
			end = cursor + time.Millisecond
		}
		doc.Cues = append(doc.Cues, Cue{Start: cursor, End: end, Text: s})
		cursor = end
	}

	doc.Renumber()
	return doc
}

func countNonSpace(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
