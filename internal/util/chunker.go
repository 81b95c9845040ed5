package util

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// ChunkSeq lazily splits text into windows of at most maxChars runes. Each window is
// trimmed and skipped when empty; consecutive windows share overlap runes.
// The cursor advances by at least maxChars-overlap per window, so the sequence is finite.
func ChunkSeq(text string, maxChars, overlap int) (iter.Seq[string], error) {
	if maxChars <= 0 || overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("%w: max_chars=%d overlap=%d", ErrInvalidChunkConfig, maxChars, overlap)
	}
	runes := []rune(text)
	n := len(runes)
	return func(yield func(string) bool) {
		i := 0
		for i < n {
			j := min(i+maxChars, n)
			if part := strings.TrimSpace(string(runes[i:j])); part != "" {
				if !yield(part) {
					return
				}
			}
			if j >= n {
				return
			}
			i = max(j-overlap, 0)
		}
	}, nil
}

// ChunkText collects ChunkSeq into a slice.
func ChunkText(text string, maxChars, overlap int) ([]string, error) {
	seq, err := ChunkSeq(text, maxChars, overlap)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}
