package subtitle_test

import (
	"testing"
	"time"

	"github.com/saccohuo/subpipe/internal/subtitle"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func spansFromMs(pairs [][2]int) []subtitle.Span {
	out := make([]subtitle.Span, len(pairs))
	for i, p := range pairs {
		out[i] = subtitle.Span{Start: ms(p[0]), End: ms(p[1])}
	}
	return out
}

func TestBuildFromTimestamps_SentenceAndPauseSegmentation(t *testing.T) {
	t.Parallel()

	text := "你好世界。再见！"
	spans := spansFromMs([][2]int{
		{0, 100}, {100, 200}, {200, 300}, {300, 400}, {400, 500},
		{500, 1500}, {1500, 1600}, {1600, 1700},
	})

	doc := subtitle.BuildFromTimestamps(text, spans)
	if len(doc.Cues) != 2 {
		t.Fatalf("BuildFromTimestamps: %d cues, want 2", len(doc.Cues))
	}

	c1 := doc.Cues[0]
	if c1.Start != 0 || c1.End != ms(500) || c1.Text != "你好世界。" {
		t.Errorf("cue 1 = {%v %v %q}, want {0s 500ms 你好世界。}", c1.Start, c1.End, c1.Text)
	}
	c2 := doc.Cues[1]
	if c2.Start != ms(500) || c2.End != ms(1700) || c2.Text != "再见！" {
		t.Errorf("cue 2 = {%v %v %q}, want {500ms 1.7s 再见！}", c2.Start, c2.End, c2.Text)
	}
}

func TestBuildFromTimestamps_LongPauseClosesCue(t *testing.T) {
	t.Parallel()

	// No punctuation at all; the 900ms gap after the second character must
	// split the text into two cues.
	text := "абвг"
	spans := spansFromMs([][2]int{
		{0, 100}, {100, 200}, {1100, 1200}, {1200, 1300},
	})

	doc := subtitle.BuildFromTimestamps(text, spans)
	if len(doc.Cues) != 2 {
		t.Fatalf("long pause: %d cues, want 2", len(doc.Cues))
	}
	if doc.Cues[0].End != ms(200) {
		t.Errorf("cue 1 end = %v, want 200ms", doc.Cues[0].End)
	}
	if doc.Cues[1].Start != ms(1100) {
		t.Errorf("cue 2 start = %v, want 1.1s", doc.Cues[1].Start)
	}
}

func TestBuildFromTimestamps_MaxLengthClosesCue(t *testing.T) {
	t.Parallel()

	// 30 characters with back-to-back spans and no punctuation: the cue must
	// close at 25 characters and a second cue must hold the remaining 5.
	runes := make([]rune, 30)
	pairs := make([][2]int, 30)
	for i := range runes {
		runes[i] = rune('一' + i)
		pairs[i] = [2]int{i * 100, (i + 1) * 100}
	}

	doc := subtitle.BuildFromTimestamps(string(runes), spansFromMs(pairs))
	if len(doc.Cues) != 2 {
		t.Fatalf("max length: %d cues, want 2", len(doc.Cues))
	}
	if got := len([]rune(doc.Cues[0].Text)); got != 25 {
		t.Errorf("cue 1 length = %d runes, want 25", got)
	}
	if got := len([]rune(doc.Cues[1].Text)); got != 5 {
		t.Errorf("cue 2 length = %d runes, want 5", got)
	}
}

func TestBuildFromTimestamps_CommaBreaksLongCue(t *testing.T) {
	t.Parallel()

	// A comma at position 16 (count >= 15) must close the cue; a comma at
	// position 3 must not.
	var runes []rune
	runes = append(runes, []rune("一二，")...)
	for i := 0; i < 12; i++ {
		runes = append(runes, rune('三'+i))
	}
	runes = append(runes, '，')
	runes = append(runes, []rune("四五")...)

	pairs := make([][2]int, len(runes))
	for i := range runes {
		pairs[i] = [2]int{i * 100, (i + 1) * 100}
	}

	doc := subtitle.BuildFromTimestamps(string(runes), spansFromMs(pairs))
	if len(doc.Cues) != 2 {
		t.Fatalf("comma break: %d cues, want 2; cues=%+v", len(doc.Cues), doc.Cues)
	}
	if got := len([]rune(doc.Cues[0].Text)); got != 16 {
		t.Errorf("cue 1 length = %d runes, want 16 (closed at second comma)", got)
	}
}

func TestBuildFromTimestamps_MonotoneNonOverlapping(t *testing.T) {
	t.Parallel()

	text := "短句。另一个短句！然后，这里是一条特别长的没有标点的句子一直说下去说下去"
	pairs := make([][2]int, len([]rune(text)))
	for i := range pairs {
		pairs[i] = [2]int{i * 120, (i + 1) * 120}
	}
	doc := subtitle.BuildFromTimestamps(text, spansFromMs(pairs))
	if len(doc.Cues) == 0 {
		t.Fatal("no cues built")
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("built document violates invariants: %v", err)
	}
}

func TestBuildFromText_ProportionalTiming(t *testing.T) {
	t.Parallel()

	// Two sentences of 4 and 8 characters over 60s: ends at 20s and 60s.
	doc := subtitle.BuildFromText("一二三四。五六七八九十壱弐！", time.Minute)
	if len(doc.Cues) != 2 {
		t.Fatalf("BuildFromText: %d cues, want 2", len(doc.Cues))
	}
	if doc.Cues[0].Start != 0 || doc.Cues[0].End != 20*time.Second {
		t.Errorf("cue 1 = [%v, %v], want [0s, 20s]", doc.Cues[0].Start, doc.Cues[0].End)
	}
	if doc.Cues[1].Start != 20*time.Second || doc.Cues[1].End != time.Minute {
		t.Errorf("cue 2 = [%v, %v], want [20s, 1m]", doc.Cues[1].Start, doc.Cues[1].End)
	}
}

func TestBuildFromText_FallbackPerCharacter(t *testing.T) {
	t.Parallel()

	doc := subtitle.BuildFromText("你好世界。", 0)
	if len(doc.Cues) != 1 {
		t.Fatalf("BuildFromText: %d cues, want 1", len(doc.Cues))
	}
	// 4 characters at 0.3s each.
	if doc.Cues[0].End != ms(1200) {
		t.Errorf("cue end = %v, want 1.2s", doc.Cues[0].End)
	}
}

func TestBuildFromText_DropsSingleCharacterSentences(t *testing.T) {
	t.Parallel()

	doc := subtitle.BuildFromText("啊。这是一个完整的句子。哦!", 0)
	if len(doc.Cues) != 1 {
		t.Fatalf("BuildFromText: %d cues, want 1 (single-char sentences dropped)", len(doc.Cues))
	}
	if doc.Cues[0].Text != "这是一个完整的句子" {
		t.Errorf("cue text = %q", doc.Cues[0].Text)
	}
}

func TestBuildFromText_EmptyInput(t *testing.T) {
	t.Parallel()

	doc := subtitle.BuildFromText("", time.Minute)
	if len(doc.Cues) != 0 {
		t.Fatalf("empty input: %d cues, want 0", len(doc.Cues))
	}
	if out := subtitle.Format(doc); out != "" {
		t.Errorf("Format(empty) = %q, want empty", out)
	}
}

func TestBuild_ChoosesTextPathOnPartialTimestamps(t *testing.T) {
	t.Parallel()

	// Five non-space characters but only two spans: Path B must be used.
	doc := subtitle.Build("这是句子。", spansFromMs([][2]int{{0, 100}, {100, 200}}), 10*time.Second)
	if len(doc.Cues) != 1 {
		t.Fatalf("Build: %d cues, want 1", len(doc.Cues))
	}
	if doc.Cues[0].End != 10*time.Second {
		t.Errorf("Path B timing expected; end = %v, want 10s", doc.Cues[0].End)
	}
}
