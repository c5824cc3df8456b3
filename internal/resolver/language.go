package resolver

import (
	"fmt"
	"strings"
	"unicode"
)

// DetectLanguage applies the detection ladder to platform metadata and
// returns "zh", "en", or "" when the language is unsupported.
//
// The ladder, first positive match wins:
//  1. CJK ideograph in the title → zh.
//  2. ≥5 Latin letters in the title and no CJK → en.
//  3. Manual subtitle languages: zh* → zh, else en* → en.
//  4. Auto subtitle languages: en-orig/en* → en, else zh* → zh.
//  5. Declared language field prefix → zh or en.
func DetectLanguage(info *VideoInfo) string {
	var latin int
	for _, r := range info.Title {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
		if r < 128 && unicode.IsLetter(r) {
			latin++
		}
	}
	if latin >= 5 {
		return "en"
	}

	if hasLangPrefix(info.ManualSubs, "zh") {
		return "zh"
	}
	if hasLangPrefix(info.ManualSubs, "en") {
		return "en"
	}

	if _, ok := info.AutoSubs["en-orig"]; ok {
		return "en"
	}
	if hasLangPrefix(info.AutoSubs, "en") {
		return "en"
	}
	if hasLangPrefix(info.AutoSubs, "zh") {
		return "zh"
	}

	decl := strings.ToLower(info.Language)
	switch {
	case strings.HasPrefix(decl, "zh"):
		return "zh"
	case strings.HasPrefix(decl, "en"):
		return "en"
	}
	return ""
}

func hasLangPrefix(tracks map[string][]SubtitleTrack, prefix string) bool {
	for lang := range tracks {
		if strings.HasPrefix(strings.ToLower(lang), prefix) {
			return true
		}
	}
	return false
}

// ChooseStrategy selects subtitle-vs-transcribe for the detected language
// and returns the subtitle language priority list.
//
//   - zh: subtitles only when a manual zh* track exists; otherwise transcribe.
//   - en: subtitles when any manual or auto en* track exists (auto captions
//     frequently arrive as en-orig); otherwise transcribe.
//   - unsupported language: [ErrNoUsableSource].
func ChooseStrategy(lang string, info *VideoInfo) (Mode, []string, error) {
	switch lang {
	case "zh":
		if hasLangPrefix(info.ManualSubs, "zh") {
			return ModeSubtitle, []string{"zh-Hans", "zh-Hant", "zh"}, nil
		}
		return ModeTranscribe, nil, nil
	case "en":
		if hasLangPrefix(info.ManualSubs, "en") {
			return ModeSubtitle, []string{"en"}, nil
		}
		if _, ok := info.AutoSubs["en-orig"]; ok || hasLangPrefix(info.AutoSubs, "en") {
			return ModeSubtitle, []string{"en-orig", "en"}, nil
		}
		return ModeTranscribe, nil, nil
	}
	return "", nil, fmt.Errorf("%w: unsupported language %q", ErrNoUsableSource, lang)
}
