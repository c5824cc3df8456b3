package resolver_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/saccohuo/subpipe/internal/resolver"
)

func tracks(langs ...string) map[string][]resolver.SubtitleTrack {
	m := make(map[string][]resolver.SubtitleTrack, len(langs))
	for _, l := range langs {
		m[l] = []resolver.SubtitleTrack{{Lang: l, Format: "vtt", URL: "https://example.com/" + l}}
	}
	return m
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info resolver.VideoInfo
		want string
	}{
		{
			name: "cjk title wins",
			info: resolver.VideoInfo{Title: "编程入门 tutorial", Language: "en"},
			want: "zh",
		},
		{
			name: "latin title",
			info: resolver.VideoInfo{Title: "Intro to Go"},
			want: "en",
		},
		{
			name: "short latin title falls through to manual subs",
			info: resolver.VideoInfo{Title: "EP1", ManualSubs: tracks("zh-Hans")},
			want: "zh",
		},
		{
			name: "manual en subs",
			info: resolver.VideoInfo{Title: "#42", ManualSubs: tracks("en-US")},
			want: "en",
		},
		{
			name: "auto en-orig",
			info: resolver.VideoInfo{Title: "#42", AutoSubs: tracks("en-orig")},
			want: "en",
		},
		{
			name: "auto zh",
			info: resolver.VideoInfo{Title: "#42", AutoSubs: tracks("zh-Hans")},
			want: "zh",
		},
		{
			name: "declared language last resort",
			info: resolver.VideoInfo{Title: "#42", Language: "zh-cn"},
			want: "zh",
		},
		{
			name: "nothing usable",
			info: resolver.VideoInfo{Title: "#42", Language: "ja"},
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := resolver.DetectLanguage(&tc.info); got != tc.want {
				t.Errorf("DetectLanguage() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChooseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		lang         string
		info         resolver.VideoInfo
		wantMode     resolver.Mode
		wantPriority []string
	}{
		{
			name:         "chinese with manual subs",
			lang:         "zh",
			info:         resolver.VideoInfo{ManualSubs: tracks("zh-Hans")},
			wantMode:     resolver.ModeSubtitle,
			wantPriority: []string{"zh-Hans", "zh-Hant", "zh"},
		},
		{
			// Auto-generated Chinese captions are not trusted; transcribe
			// instead.
			name:     "chinese with only auto subs",
			lang:     "zh",
			info:     resolver.VideoInfo{AutoSubs: tracks("zh-Hans")},
			wantMode: resolver.ModeTranscribe,
		},
		{
			name:         "english with manual subs",
			lang:         "en",
			info:         resolver.VideoInfo{ManualSubs: tracks("en"), AutoSubs: tracks("en-orig")},
			wantMode:     resolver.ModeSubtitle,
			wantPriority: []string{"en"},
		},
		{
			name:         "english auto captions only",
			lang:         "en",
			info:         resolver.VideoInfo{AutoSubs: tracks("en-orig")},
			wantMode:     resolver.ModeSubtitle,
			wantPriority: []string{"en-orig", "en"},
		},
		{
			name:     "english with nothing",
			lang:     "en",
			info:     resolver.VideoInfo{},
			wantMode: resolver.ModeTranscribe,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mode, priority, err := resolver.ChooseStrategy(tc.lang, &tc.info)
			if err != nil {
				t.Fatalf("ChooseStrategy(%q): %v", tc.lang, err)
			}
			if mode != tc.wantMode {
				t.Errorf("mode = %q, want %q", mode, tc.wantMode)
			}
			if !reflect.DeepEqual(priority, tc.wantPriority) {
				t.Errorf("priority = %v, want %v", priority, tc.wantPriority)
			}
		})
	}
}

func TestChooseStrategy_UnsupportedLanguage(t *testing.T) {
	t.Parallel()

	_, _, err := resolver.ChooseStrategy("", &resolver.VideoInfo{})
	if !errors.Is(err, resolver.ErrNoUsableSource) {
		t.Errorf("ChooseStrategy(\"\") err = %v, want ErrNoUsableSource", err)
	}
}
