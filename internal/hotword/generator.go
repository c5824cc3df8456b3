package hotword

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Source weights; each candidate accumulates the weight of every source that
// proposes it.
const (
	weightCategory = 0.4
	weightTitle    = 0.3
	weightTags     = 0.2
	weightLearned  = 0.1
)

// defaultMaxHotwords caps the generated list when the request does not set one.
const defaultMaxHotwords = 20

// SourceCategory labels where a hotword set came from.
type SourceCategory string

const (
	SourceUser      SourceCategory = "user"
	SourceGenerated SourceCategory = "auto-generated"
	SourceCurated   SourceCategory = "curated"
)

// Set is a weight-ordered, deduplicated hotword list.
type Set struct {
	// Terms are ordered by descending accumulated weight.
	Terms []string

	// Weights holds each term's accumulated weight.
	Weights map[string]float64

	// Source records how the set was produced.
	Source SourceCategory
}

// Category is one topic domain contributing subcategory word lists.
type Category struct {
	// Keywords trigger this category when found in the title, tags, or
	// channel name.
	Keywords []string `yaml:"keywords"`

	// Subcategories are the word lists drawn from when the category fires.
	Subcategories []Subcategory `yaml:"subcategories"`
}

// Subcategory is a weighted word list; the weight scales how many of its
// words are drawn.
type Subcategory struct {
	Name   string   `yaml:"name"`
	Weight float64  `yaml:"weight"`
	Words  []string `yaml:"words"`
}

// LearnedSource is the reserved extension point for learned hotwords.
type LearnedSource interface {
	// Suggest returns candidate terms for the given title.
	Suggest(title string) []string
}

// staticLearned is the default [LearnedSource]: two generic words.
type staticLearned struct{}

func (staticLearned) Suggest(string) []string { return []string{"教程", "评测"} }

// GeneratorOption is a functional option for configuring a [Generator].
type GeneratorOption func(*Generator)

// WithLearnedSource replaces the default static learned-word source.
func WithLearnedSource(s LearnedSource) GeneratorOption {
	return func(g *Generator) {
		g.learned = s
	}
}

// WithStopwords extends the built-in stopword list.
func WithStopwords(words ...string) GeneratorOption {
	return func(g *Generator) {
		for _, w := range words {
			g.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// Generator produces a request-scoped hotword set from video metadata.
// It is read-only after construction and safe for concurrent use.
type Generator struct {
	categories map[string]Category
	stopwords  map[string]struct{}
	learned    LearnedSource
}

// builtinStopwords are dropped during title extraction.
var builtinStopwords = []string{
	"the", "a", "an", "of", "to", "and", "in", "on", "for", "with", "how",
	"what", "this", "that", "is", "are", "you", "your", "my",
	"的", "了", "是", "我", "你", "他", "她", "它", "这", "那", "一个", "什么", "怎么",
}

// NewGenerator builds a [Generator] over the given category map
// (category name → definition). A nil map disables the category source.
func NewGenerator(categories map[string]Category, opts ...GeneratorOption) *Generator {
	g := &Generator{
		categories: categories,
		stopwords:  make(map[string]struct{}, len(builtinStopwords)),
		learned:    staticLearned{},
	}
	for _, w := range builtinStopwords {
		g.stopwords[w] = struct{}{}
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// LoadCategories reads category definitions from YAML files
// (category name → file path). Unreadable files are logged and skipped so a
// single bad file does not disable hotword generation.
func LoadCategories(files map[string]string) map[string]Category {
	out := make(map[string]Category, len(files))
	for name, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable category file", "category", name, "path", path, "err", err)
			continue
		}
		var cat Category
		if err := yaml.Unmarshal(data, &cat); err != nil {
			slog.Warn("skipping invalid category file", "category", name, "path", path, "err", err)
			continue
		}
		out[name] = cat
	}
	return out
}

// Input is the metadata a hotword set is generated from.
type Input struct {
	Title       string
	UserTags    []string
	ChannelName string
	Platform    string
	MaxHotwords int
}

// Generate produces a deduplicated, weight-ordered hotword set of at most
// in.MaxHotwords terms (default 20 when unset).
func (g *Generator) Generate(in Input) Set {
	maxN := in.MaxHotwords
	if maxN <= 0 {
		maxN = defaultMaxHotwords
	}

	weights := make(map[string]float64)
	add := func(term string, w float64) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		weights[term] += w
	}

	// Category mapping: any keyword found in the title, tags, or channel name
	// activates the category; each subcategory contributes a weight-scaled
	// prefix of its word list.
	haystack := strings.ToLower(in.Title + " " + strings.Join(in.UserTags, " ") + " " + in.ChannelName)
	for name, cat := range g.categories {
		if !categoryFires(haystack, cat) {
			continue
		}
		slog.Debug("hotword category fired", "category", name)
		for _, sub := range cat.Subcategories {
			for _, w := range drawWords(sub) {
				add(w, weightCategory)
			}
		}
	}

	// Title extraction.
	for _, tok := range tokenizeTitle(in.Title) {
		if _, stop := g.stopwords[strings.ToLower(tok)]; stop {
			continue
		}
		if isDigits(tok) || len([]rune(tok)) < 2 {
			continue
		}
		add(tok, weightTitle)
	}

	// User tags, plus words from subcategories the tag names directly.
	for _, tag := range in.UserTags {
		add(tag, weightTags)
		for _, cat := range g.categories {
			for _, sub := range cat.Subcategories {
				if strings.EqualFold(sub.Name, strings.TrimSpace(tag)) {
					for _, w := range drawWords(sub) {
						add(w, weightTags)
					}
				}
			}
		}
	}

	// Learned source.
	for _, w := range g.learned.Suggest(in.Title) {
		add(w, weightLearned)
	}

	terms := make([]string, 0, len(weights))
	for t := range weights {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if weights[terms[i]] != weights[terms[j]] {
			return weights[terms[i]] > weights[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxN {
		terms = terms[:maxN]
	}

	return Set{Terms: terms, Weights: weights, Source: SourceGenerated}
}

// UserSet builds a [Set] directly from user-provided terms, preserving their
// order, trimming and deduplicating case-sensitively.
func UserSet(terms []string, maxN int) Set {
	if maxN <= 0 {
		maxN = defaultMaxHotwords
	}
	seen := make(map[string]struct{}, len(terms))
	s := Set{Weights: make(map[string]float64), Source: SourceUser}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		s.Terms = append(s.Terms, t)
		s.Weights[t] = 1
		if len(s.Terms) >= maxN {
			break
		}
	}
	return s
}

// categoryFires reports whether any category keyword occurs in the haystack.
func categoryFires(haystack string, cat Category) bool {
	for _, kw := range cat.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw == "" {
			continue
		}
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// drawWords returns the weight-scaled prefix of a subcategory's word list:
// round(weight · len) words, at least one when the list is non-empty and the
// weight is positive.
func drawWords(sub Subcategory) []string {
	if len(sub.Words) == 0 || sub.Weight <= 0 {
		return nil
	}
	n := int(sub.Weight*float64(len(sub.Words)) + 0.5)
	if n < 1 {
		n = 1
	}
	if n > len(sub.Words) {
		n = len(sub.Words)
	}
	return sub.Words[:n]
}

// tokenizeTitle splits a title on spaces and punctuation, keeping CJK runs
// and alphanumeric words intact.
func tokenizeTitle(title string) []string {
	return strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for logging.
func (s Set) String() string {
	return fmt.Sprintf("%d terms (%s)", len(s.Terms), s.Source)
}
