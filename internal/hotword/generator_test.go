package hotword_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/saccohuo/subpipe/internal/hotword"
)

type fixedLearned struct{ words []string }

func (f fixedLearned) Suggest(string) []string { return f.words }

func techCategories() map[string]hotword.Category {
	return map[string]hotword.Category{
		"tech": {
			Keywords: []string{"python", "编程"},
			Subcategories: []hotword.Subcategory{
				{Name: "languages", Weight: 0.5, Words: []string{"Python", "Go", "Rust", "Java"}},
			},
		},
	}
}

func TestGenerate_WeightAccumulationAndOrdering(t *testing.T) {
	t.Parallel()

	g := hotword.NewGenerator(techCategories(),
		hotword.WithLearnedSource(fixedLearned{words: []string{"教程"}}),
	)
	set := g.Generate(hotword.Input{Title: "Python tutorial"})

	// "Python" gets category (0.4) + title (0.3); "Go" category only; the
	// learned word trails everything.
	if set.Source != hotword.SourceGenerated {
		t.Errorf("source = %q, want %q", set.Source, hotword.SourceGenerated)
	}
	want := []string{"Python", "Go", "tutorial", "教程"}
	if len(set.Terms) != len(want) {
		t.Fatalf("terms = %v, want %v", set.Terms, want)
	}
	for i, term := range want {
		if set.Terms[i] != term {
			t.Fatalf("terms = %v, want %v", set.Terms, want)
		}
	}
	if set.Weights["Python"] <= set.Weights["Go"] {
		t.Errorf("weight(Python)=%v should exceed weight(Go)=%v",
			set.Weights["Python"], set.Weights["Go"])
	}
}

func TestGenerate_CategoryFiresOnChannelAndTags(t *testing.T) {
	t.Parallel()

	g := hotword.NewGenerator(techCategories(),
		hotword.WithLearnedSource(fixedLearned{}),
	)

	// Keyword appears only in the channel name.
	set := g.Generate(hotword.Input{Title: "daily vlog", ChannelName: "编程频道"})
	if set.Weights["Python"] == 0 {
		t.Errorf("category should fire from channel name; weights = %v", set.Weights)
	}

	// No keyword anywhere: the category stays silent.
	set = g.Generate(hotword.Input{Title: "cooking pasta at home"})
	if set.Weights["Python"] != 0 {
		t.Errorf("category fired without a keyword; weights = %v", set.Weights)
	}
}

func TestGenerate_TitleTokenFiltering(t *testing.T) {
	t.Parallel()

	g := hotword.NewGenerator(nil, hotword.WithLearnedSource(fixedLearned{}))
	set := g.Generate(hotword.Input{Title: "The 2024 kubernetes guide to x"})

	for _, bad := range []string{"The", "the", "2024", "x", "to"} {
		if set.Weights[bad] != 0 {
			t.Errorf("token %q should have been filtered; terms = %v", bad, set.Terms)
		}
	}
	if set.Weights["kubernetes"] == 0 || set.Weights["guide"] == 0 {
		t.Errorf("content words missing; terms = %v", set.Terms)
	}
}

func TestGenerate_TagNamedSubcategory(t *testing.T) {
	t.Parallel()

	g := hotword.NewGenerator(techCategories(), hotword.WithLearnedSource(fixedLearned{}))
	set := g.Generate(hotword.Input{Title: "untitled", UserTags: []string{"languages"}})

	// The tag itself is a candidate, and it pulls in the subcategory it names.
	if set.Weights["languages"] == 0 {
		t.Errorf("tag itself missing; weights = %v", set.Weights)
	}
	if set.Weights["Python"] == 0 {
		t.Errorf("subcategory words not drawn for the matching tag; weights = %v", set.Weights)
	}
}

func TestGenerate_MaxHotwordsCap(t *testing.T) {
	t.Parallel()

	g := hotword.NewGenerator(techCategories(),
		hotword.WithLearnedSource(fixedLearned{words: []string{"甲", "乙", "丙"}}),
	)
	set := g.Generate(hotword.Input{
		Title:       "Python programming deep dive with generics and channels",
		MaxHotwords: 3,
	})
	if len(set.Terms) != 3 {
		t.Fatalf("terms = %v, want exactly 3", set.Terms)
	}
	// The cap keeps the heaviest terms.
	if set.Terms[0] != "Python" {
		t.Errorf("heaviest term = %q, want Python", set.Terms[0])
	}
}

func TestUserSet_PreservesOrderAndDeduplicates(t *testing.T) {
	t.Parallel()

	set := hotword.UserSet([]string{" Go ", "Rust", "go", "Rust", "", "Zig"}, 0)
	want := []string{"Go", "Rust", "go", "Zig"}
	if len(set.Terms) != len(want) {
		t.Fatalf("terms = %v, want %v", set.Terms, want)
	}
	for i := range want {
		if set.Terms[i] != want[i] {
			t.Fatalf("terms = %v, want %v", set.Terms, want)
		}
	}
	if set.Source != hotword.SourceUser {
		t.Errorf("source = %q, want %q", set.Source, hotword.SourceUser)
	}
}

func TestUserSet_RespectsCap(t *testing.T) {
	t.Parallel()

	set := hotword.UserSet([]string{"a1", "b2", "c3", "d4"}, 2)
	if len(set.Terms) != 2 || set.Terms[0] != "a1" || set.Terms[1] != "b2" {
		t.Errorf("terms = %v, want [a1 b2]", set.Terms)
	}
}

func TestLoadCategories_SkipsBadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "tech.yaml")
	if err := os.WriteFile(good, []byte(`
keywords: [python]
subcategories:
  - name: languages
    weight: 0.5
    words: [Python, Go]
`), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(bad, []byte("keywords: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	cats := hotword.LoadCategories(map[string]string{
		"tech":    good,
		"broken":  bad,
		"missing": filepath.Join(dir, "nope.yaml"),
	})
	if len(cats) != 1 {
		t.Fatalf("categories = %v, want only tech", cats)
	}
	if got := cats["tech"]; len(got.Keywords) != 1 || len(got.Subcategories) != 1 {
		t.Errorf("tech category = %+v", got)
	}
}
