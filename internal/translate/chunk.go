package translate

import "strings"

// sentenceEnders are the boundary runes chunk splitting prefers to cut on.
const sentenceEnders = ".!?。！？"

// SplitChunks divides text into pieces of roughly target runes each. The
// split point is the last sentence-ending rune found while scanning up to
// 20% past the target; without one the chunk is cut hard at the overscan
// limit. Boundary runes stay with the preceding chunk.
func SplitChunks(text string, target int) []string {
	if target <= 0 {
		target = 2000
	}
	limit := target + target/5

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit - 1; i >= target-target/5 && i >= 0; i-- {
			if strings.ContainsRune(sentenceEnders, runes[i]) {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
