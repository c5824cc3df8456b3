package asr

import (
	"testing"
)

func TestNormalizeResult_TextVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"text field", `{"text":"你好世界"}`, "你好世界"},
		{"result string", `{"result":"hello there"}`, "hello there"},
		{"sentence string", `{"sentence":"greetings"}`, "greetings"},
		{"result object list", `{"result":[{"text":"part one"},{"text":"part two"}]}`, "part one part two"},
		{"sentence in objects", `{"result":[{"sentence":"第一句"},{"sentence":"第二句"}]}`, "第一句 第二句"},
		{"text wins over result", `{"text":"primary","result":"secondary"}`, "primary"},
		{"whitespace trimmed", `{"text":"  padded  "}`, "padded"},
		{"empty body", `{}`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			seg, err := normalizeResult([]byte(tc.body))
			if err != nil {
				t.Fatalf("normalizeResult: %v", err)
			}
			if seg.Text != tc.want {
				t.Errorf("text = %q, want %q", seg.Text, tc.want)
			}
		})
	}
}

func TestNormalizeResult_CharacterTimestamps(t *testing.T) {
	t.Parallel()

	seg, err := normalizeResult([]byte(`{"text":"ab","timestamp":[[0,100],[100,250]]}`))
	if err != nil {
		t.Fatalf("normalizeResult: %v", err)
	}
	want := [][2]int64{{0, 100}, {100, 250}}
	if len(seg.Timestamps) != len(want) {
		t.Fatalf("timestamps = %v, want %v", seg.Timestamps, want)
	}
	for i := range want {
		if seg.Timestamps[i] != want[i] {
			t.Fatalf("timestamps = %v, want %v", seg.Timestamps, want)
		}
	}
}

func TestNormalizeResult_SegmentTimestampsFlatten(t *testing.T) {
	t.Parallel()

	body := `{"text":"abc","timestamp":[[[0,100],[100,200]],[[200,300]]]}`
	seg, err := normalizeResult([]byte(body))
	if err != nil {
		t.Fatalf("normalizeResult: %v", err)
	}
	want := [][2]int64{{0, 100}, {100, 200}, {200, 300}}
	if len(seg.Timestamps) != len(want) {
		t.Fatalf("timestamps = %v, want %v", seg.Timestamps, want)
	}
	for i := range want {
		if seg.Timestamps[i] != want[i] {
			t.Fatalf("timestamps = %v, want %v", seg.Timestamps, want)
		}
	}
}

func TestNormalizeResult_NoTimestamps(t *testing.T) {
	t.Parallel()

	seg, err := normalizeResult([]byte(`{"text":"plain"}`))
	if err != nil {
		t.Fatalf("normalizeResult: %v", err)
	}
	if seg.Timestamps != nil {
		t.Errorf("timestamps = %v, want nil", seg.Timestamps)
	}
}

func TestNormalizeResult_MalformedJSON(t *testing.T) {
	t.Parallel()

	if _, err := normalizeResult([]byte(`{broken`)); err == nil {
		t.Fatal("normalizeResult accepted malformed JSON")
	}
}
