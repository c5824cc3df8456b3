package resolver

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/saccohuo/subpipe/internal/subtitle"
)

// formatRank orders subtitle formats by preference. Unknown formats rank
// last; srv1/srv2/srv3 share a rank.
func formatRank(format string) int {
	switch f := strings.ToLower(format); {
	case f == "srt":
		return 0
	case f == "json3":
		return 1
	case f == "vtt":
		return 2
	case f == "ttml":
		return 3
	case strings.HasPrefix(f, "srv"):
		return 4
	default:
		return 5
	}
}

// PickTrack returns the first track matching the language priority list,
// preferring better formats within a language. Manual tracks win over auto
// tracks for the same language.
func PickTrack(info *VideoInfo, priority []string) (SubtitleTrack, bool) {
	for _, lang := range priority {
		for _, tracks := range []map[string][]SubtitleTrack{info.ManualSubs, info.AutoSubs} {
			candidates := lookupLang(tracks, lang)
			if len(candidates) == 0 {
				continue
			}
			best := candidates[0]
			for _, t := range candidates[1:] {
				if formatRank(t.Format) < formatRank(best.Format) {
					best = t
				}
			}
			return best, true
		}
	}
	return SubtitleTrack{}, false
}

func lookupLang(tracks map[string][]SubtitleTrack, lang string) []SubtitleTrack {
	if ts, ok := tracks[lang]; ok {
		return ts
	}
	for k, ts := range tracks {
		if strings.EqualFold(k, lang) {
			return ts
		}
	}
	return nil
}

// DecodeSubtitleBytes turns raw subtitle bytes into a UTF-8 string: BOM
// first, UTF-8 validity next, then the GB-family encodings used by Chinese
// subtitle files, in order gb18030, gbk, gb2312.
func DecodeSubtitleBytes(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	// BOM detection covers UTF-8 and both UTF-16 byte orders.
	switch {
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return string(raw[3:]), nil
	case len(raw) >= 2 && (raw[0] == 0xFF && raw[1] == 0xFE || raw[0] == 0xFE && raw[1] == 0xFF):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode utf-16 subtitle: %w", err)
		}
		return string(out), nil
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	for _, enc := range []struct {
		name string
		dec  interface{ Bytes([]byte) ([]byte, error) }
	}{
		{"gb18030", simplifiedchinese.GB18030.NewDecoder()},
		{"gbk", simplifiedchinese.GBK.NewDecoder()},
		{"gb2312", simplifiedchinese.HZGB2312.NewDecoder()},
	} {
		out, err := enc.dec.Bytes(raw)
		if err == nil && utf8.Valid(out) && !strings.ContainsRune(string(out), utf8.RuneError) {
			return string(out), nil
		}
	}
	return "", fmt.Errorf("%w: undecodable subtitle encoding", ErrInvalidURL)
}

// ConvertTrack converts downloaded subtitle text of the given format into a
// document. SRT goes through the parser (which itself falls back to plain
// text); json3, vtt, ttml, and srv* are converted to cues directly.
func ConvertTrack(format, text string, total time.Duration) (*subtitle.Document, error) {
	switch f := strings.ToLower(format); {
	case f == "json3":
		return convertJSON3(text)
	case f == "vtt":
		return convertVTT(text)
	case f == "ttml" || strings.HasPrefix(f, "srv"):
		return convertTimedXML(text)
	default:
		if !strings.Contains(text, "-->") {
			// No timing lines at all: treat as a plain transcription spread
			// over the known video duration.
			return subtitle.BuildFromText(text, total), nil
		}
		return subtitle.Parse(text)
	}
}

// json3 is YouTube's JSON caption format: events with start/duration in ms
// and text segments.
func convertJSON3(text string) (*subtitle.Document, error) {
	var payload struct {
		Events []struct {
			TStartMs    int64 `json:"tStartMs"`
			DDurationMs int64 `json:"dDurationMs"`
			Segs        []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: json3: %v", subtitle.ErrInvalidSRT, err)
	}

	doc := &subtitle.Document{}
	for _, ev := range payload.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		line := strings.TrimSpace(strings.ReplaceAll(sb.String(), "\n", " "))
		if line == "" {
			continue
		}
		doc.Cues = append(doc.Cues, subtitle.Cue{
			Start: time.Duration(ev.TStartMs) * time.Millisecond,
			End:   time.Duration(ev.TStartMs+ev.DDurationMs) * time.Millisecond,
			Text:  line,
		})
	}
	doc.Renumber()
	return doc, nil
}

var vttTimingRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})\.(\d{3})`)

// convertVTT handles WEBVTT: dot millisecond separator, optional cue ids,
// header block ignored.
func convertVTT(text string) (*subtitle.Document, error) {
	doc := &subtitle.Document{}
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		for i, line := range lines {
			m := vttTimingRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			cueText := strings.TrimSpace(strings.Join(lines[i+1:], " "))
			if cueText == "" {
				break
			}
			doc.Cues = append(doc.Cues, subtitle.Cue{
				Start: vttTime(m[1:5]),
				End:   vttTime(m[5:9]),
				Text:  cueText,
			})
			break
		}
	}
	if len(doc.Cues) == 0 {
		return nil, fmt.Errorf("%w: no cues in vtt", subtitle.ErrInvalidSRT)
	}
	doc.Renumber()
	return doc, nil
}

func vttTime(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

// convertTimedXML handles the ttml and srv* families: <p begin end> or
// <text start dur> elements with clock or seconds values.
func convertTimedXML(text string) (*subtitle.Document, error) {
	type xmlCue struct {
		Begin string `xml:"begin,attr"`
		End   string `xml:"end,attr"`
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	}
	var payload struct {
		Cues []xmlCue `xml:"body>div>p"`
		Text []xmlCue `xml:"text"`
	}
	if err := xml.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: timed xml: %v", subtitle.ErrInvalidSRT, err)
	}

	doc := &subtitle.Document{}
	add := func(c xmlCue) {
		body := strings.TrimSpace(c.Body)
		if body == "" {
			return
		}
		var start, end time.Duration
		switch {
		case c.Begin != "":
			start, end = xmlClock(c.Begin), xmlClock(c.End)
		case c.Start != "":
			start = xmlClock(c.Start)
			end = start + xmlClock(c.Dur)
		}
		if end <= start {
			return
		}
		doc.Cues = append(doc.Cues, subtitle.Cue{Start: start, End: end, Text: body})
	}
	for _, c := range payload.Cues {
		add(c)
	}
	for _, c := range payload.Text {
		add(c)
	}
	if len(doc.Cues) == 0 {
		return nil, fmt.Errorf("%w: no cues in timed xml", subtitle.ErrInvalidSRT)
	}
	doc.Renumber()
	return doc, nil
}

// xmlClock parses either "HH:MM:SS.mmm" or plain seconds ("12.3").
func xmlClock(v string) time.Duration {
	v = strings.TrimSpace(v)
	if m := vttTimingRe.FindStringSubmatch(v + " --> " + v); m != nil {
		return vttTime(m[1:5])
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
