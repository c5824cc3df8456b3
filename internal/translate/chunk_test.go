package translate_test

import (
	"strings"
	"testing"

	"github.com/saccohuo/subpipe/internal/translate"
)

func TestSplitChunks_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	chunks := translate.SplitChunks("Hello world.", 2000)
	if len(chunks) != 1 || chunks[0] != "Hello world." {
		t.Errorf("SplitChunks = %q, want the input unchanged", chunks)
	}
}

func TestSplitChunks_CutsOnSentenceBoundary(t *testing.T) {
	t.Parallel()

	// Sentences of 100 runes each; the cut should land on a period near the
	// 2000-rune target rather than mid-sentence.
	sentence := strings.Repeat("a", 99) + "."
	text := strings.Repeat(sentence, 50)

	chunks := translate.SplitChunks(text, 2000)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a split of %d runes", len(chunks), len(text))
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: ...%q", i, c[len(c)-10:])
		}
		if n := len([]rune(c)); n > 2400 {
			t.Errorf("chunk %d has %d runes, beyond the overscan limit", i, n)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSplitChunks_HardCutWithoutBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("ab", 3000)
	chunks := translate.SplitChunks(text, 2000)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want hard cuts", len(chunks))
	}
	if n := len([]rune(chunks[0])); n != 2400 {
		t.Errorf("first chunk has %d runes, want hard cut at 2400", n)
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSplitChunks_CJKBoundaries(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("字", 199) + "。"
	text := strings.Repeat(sentence, 20)
	chunks := translate.SplitChunks(text, 2000)
	for i, c := range chunks {
		if !strings.HasSuffix(c, "。") {
			t.Errorf("chunk %d does not end on a CJK full stop", i)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble into the original text")
	}
}

func TestSplitChunks_EmptyInput(t *testing.T) {
	t.Parallel()

	if chunks := translate.SplitChunks("", 2000); len(chunks) != 0 {
		t.Errorf("SplitChunks(\"\") = %q, want none", chunks)
	}
	if chunks := translate.SplitChunks("   ", 2000); len(chunks) != 0 {
		t.Errorf("SplitChunks(whitespace) = %q, want none", chunks)
	}
}
