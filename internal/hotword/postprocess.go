// Package hotword generates per-request hotword lists for ASR and corrects
// recognition drift on domain terms after transcription.
package hotword

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const defaultSimilarityThreshold = 0.82

// DefaultReplacements is the built-in literal-replacement table for known
// phonetic confusions. Deployments extend or override it via configuration,
// typically with entries tied to the active hotword set.
var DefaultReplacements = map[string]string{
	"派森": "Python",
	"杰森": "JSON",
	"吉特": "Git",
}

// Correction records one token replacement made by the post-processor.
type Correction struct {
	// Original is the token as it appeared in the transcript.
	Original string

	// Corrected is the replacement that was written.
	Corrected string

	// Score is the similarity score that justified the replacement. Curated
	// table hits carry a score of 1.
	Score float64

	// Method is "exact", "similarity", "substring", or "curated".
	Method string
}

// Audit is the record returned alongside the corrected text.
type Audit struct {
	// Matches counts tokens that matched a hotword, including exact matches
	// that required no rewrite.
	Matches int

	// Corrections lists every rewrite that was applied.
	Corrections []Correction

	// HotwordsApplied lists the distinct hotwords that caused a rewrite.
	HotwordsApplied []string
}

// PostProcessorOption is a functional option for configuring a [PostProcessor].
type PostProcessorOption func(*PostProcessor)

// WithSimilarityThreshold sets the minimum score for a similarity replacement.
// Default: 0.82.
func WithSimilarityThreshold(t float64) PostProcessorOption {
	return func(p *PostProcessor) {
		p.threshold = t
	}
}

// WithSubstringMatch enables substring scoring: a token containing (or
// contained by) a hotword scores min/max · 0.9. Disabled by default.
func WithSubstringMatch(enabled bool) PostProcessorOption {
	return func(p *PostProcessor) {
		p.substring = enabled
	}
}

// WithReplacements sets the curated literal-replacement table, replacing
// [DefaultReplacements].
func WithReplacements(table map[string]string) PostProcessorOption {
	return func(p *PostProcessor) {
		p.replacements = table
	}
}

// PostProcessor rewrites transcript tokens that are close to a configured
// hotword. It is read-only after construction and safe for concurrent use.
type PostProcessor struct {
	hotwords     []string
	threshold    float64
	substring    bool
	replacements map[string]string
}

// NewPostProcessor builds a post-processor for one request's hotword set.
// Hotwords are trimmed; empty entries are dropped.
func NewPostProcessor(hotwords []string, opts ...PostProcessorOption) *PostProcessor {
	p := &PostProcessor{
		threshold:    defaultSimilarityThreshold,
		replacements: DefaultReplacements,
	}
	for _, h := range hotwords {
		if h = strings.TrimSpace(h); h != "" {
			p.hotwords = append(p.hotwords, h)
		}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process corrects text against the hotword set and returns the corrected
// text plus an audit record. Tokens are whitespace-separated; each token is
// scored against every hotword and replaced by the best match when the score
// reaches the threshold, then the curated replacement table is applied.
//
// Process never fails: when nothing matches, the text is returned unchanged.
func (p *PostProcessor) Process(text string) (string, Audit) {
	audit := Audit{}
	if strings.TrimSpace(text) == "" {
		return text, audit
	}

	tokens := strings.Fields(text)
	applied := make(map[string]struct{})
	changed := false

	for i, tok := range tokens {
		best, score, method := p.bestMatch(tok)
		if best == "" {
			continue
		}
		audit.Matches++
		if best == tok {
			continue
		}
		audit.Corrections = append(audit.Corrections, Correction{
			Original: tok, Corrected: best, Score: score, Method: method,
		})
		applied[best] = struct{}{}
		tokens[i] = best
		changed = true
	}

	// The curated table runs after similarity matching; it covers confusions
	// similarity cannot reach, such as cross-script transliterations.
	for i, tok := range tokens {
		repl, ok := p.replacements[tok]
		if !ok || repl == tok {
			continue
		}
		audit.Matches++
		audit.Corrections = append(audit.Corrections, Correction{
			Original: tok, Corrected: repl, Score: 1, Method: "curated",
		})
		applied[repl] = struct{}{}
		tokens[i] = repl
		changed = true
	}

	for h := range applied {
		audit.HotwordsApplied = append(audit.HotwordsApplied, h)
	}

	if !changed {
		return text, audit
	}
	out := strings.Join(tokens, " ")
	if len(audit.Corrections) > 0 {
		slog.Debug("hotword post-processing applied",
			"corrections", len(audit.Corrections),
			"matches", audit.Matches,
		)
	}
	return out, audit
}

// bestMatch returns the highest-scoring hotword for tok at or above the
// threshold, or "" when none qualifies.
func (p *PostProcessor) bestMatch(tok string) (best string, bestScore float64, method string) {
	for _, h := range p.hotwords {
		score, m := p.score(tok, h)
		if score >= p.threshold && score > bestScore {
			best, bestScore, method = h, score, m
		}
	}
	return best, bestScore, method
}

// score computes the similarity between a token and a hotword: an exact match
// scores 1.0; otherwise the Levenshtein ratio is damped by the length-balance
// factor (0.7 + 0.3·min/max). With substring matching enabled, containment
// scores min/max · 0.9 when that beats the ratio score.
func (p *PostProcessor) score(tok, hot string) (float64, string) {
	if tok == hot {
		return 1, "exact"
	}
	tl := utf8.RuneCountInString(tok)
	hl := utf8.RuneCountInString(hot)
	if tl == 0 || hl == 0 {
		return 0, ""
	}
	minLen, maxLen := tl, hl
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	lengthBalance := 0.7 + 0.3*float64(minLen)/float64(maxLen)

	dist := matchr.Levenshtein(strings.ToLower(tok), strings.ToLower(hot))
	ratio := 1 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	score := ratio * lengthBalance
	method := "similarity"

	if p.substring {
		lt, lh := strings.ToLower(tok), strings.ToLower(hot)
		if strings.Contains(lt, lh) || strings.Contains(lh, lt) {
			if sub := float64(minLen) / float64(maxLen) * 0.9; sub > score {
				score, method = sub, "substring"
			}
		}
	}
	return score, method
}
