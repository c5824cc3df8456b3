package asr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawResult is the loosely-typed recognition response. Backends disagree on
// which field carries the text and at which granularity timestamps arrive, so
// everything interesting is deferred to normalisation.
type rawResult struct {
	Text      json.RawMessage `json:"text"`
	Result    json.RawMessage `json:"result"`
	Sentence  json.RawMessage `json:"sentence"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// normalizeResult maps a backend response body onto a [Segment]. The text is
// taken from the first non-empty of text, result, or sentence; timestamps at
// character or segment granularity are flattened to one list of ms pairs.
func normalizeResult(data []byte) (Segment, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return Segment{}, fmt.Errorf("parse recognition response: %w", err)
	}

	var seg Segment
	for _, field := range []json.RawMessage{raw.Text, raw.Result, raw.Sentence} {
		if text := extractText(field); text != "" {
			seg.Text = text
			break
		}
	}

	if len(raw.Timestamp) > 0 {
		var node any
		if err := json.Unmarshal(raw.Timestamp, &node); err != nil {
			return Segment{}, fmt.Errorf("parse timestamps: %w", err)
		}
		seg.Timestamps = flattenPairs(node, nil)
	}
	return seg, nil
}

// extractText pulls a text string out of a field that may be a plain string,
// or a list of objects each carrying a text/sentence field.
func extractText(field json.RawMessage) string {
	if len(field) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(field, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Text     string `json:"text"`
		Sentence string `json:"sentence"`
	}
	if err := json.Unmarshal(field, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			t := it.Text
			if t == "" {
				t = it.Sentence
			}
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// flattenPairs walks an arbitrarily nested timestamp array and appends every
// [start, end] number pair it finds, in order. Both character-level
// [[s,e],...] and segment-level [[[s,e],...],...] layouts collapse to the
// same flat list.
func flattenPairs(node any, out [][2]int64) [][2]int64 {
	arr, ok := node.([]any)
	if !ok {
		return out
	}
	if pair, ok := asPair(arr); ok {
		return append(out, pair)
	}
	for _, child := range arr {
		out = flattenPairs(child, out)
	}
	return out
}

// asPair reports whether arr is exactly two JSON numbers.
func asPair(arr []any) ([2]int64, bool) {
	if len(arr) != 2 {
		return [2]int64{}, false
	}
	s, ok1 := arr[0].(float64)
	e, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return [2]int64{}, false
	}
	return [2]int64{int64(s), int64(e)}, true
}
