package util

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultSnippetRunes = 420

var snippetStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "how": {}, "what": {},
	"which": {}, "when": {}, "does": {}, "can": {}, "should": {}, "into": {}, "about": {},
	"my": {}, "our": {}, "your": {}, "his": {}, "her": {}, "their": {}, "child": {},
}

// Snippet returns a display-ready excerpt of chunk text: cleaned, with
// whitespace collapsed and cut at a word boundary near maxRunes.
func Snippet(text string, maxRunes int) string {
	return clip(cleanDisplay(text), maxRunes)
}

// EvidenceSnippet picks the sentences of text that share the most terms with
// query. Without a usable query it falls back to the head of the chunk.
func EvidenceSnippet(text, query string, maxRunes int) string {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return Snippet(text, maxRunes)
	}
	type scored struct {
		pos, hits int
		s         string
	}
	var cands []scored
	for i, s := range sentences(cleanDisplay(text)) {
		lower := strings.ToLower(s)
		n := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				n++
			}
		}
		cands = append(cands, scored{pos: i, hits: n, s: s})
	}
	if len(cands) == 0 {
		return ""
	}
	slices.SortStableFunc(cands, func(a, b scored) int {
		if a.hits != b.hits {
			return b.hits - a.hits
		}
		return utf8.RuneCountInString(a.s) - utf8.RuneCountInString(b.s)
	})
	if cands[0].hits == 0 {
		return Snippet(text, maxRunes)
	}
	picked := cands[:1]
	if len(cands) > 1 && cands[1].hits > 0 {
		picked = cands[:2]
		// Keep document order.
		if picked[0].pos > picked[1].pos {
			picked = []scored{picked[1], picked[0]}
		}
	}
	parts := make([]string, len(picked))
	for i, c := range picked {
		parts[i] = c.s
	}
	return clip(strings.Join(parts, " "), maxRunes)
}

func sentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if part := strings.TrimSpace(s[start : i+1]); part != "" {
			out = append(out, part)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func queryTerms(q string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(q)) {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if utf8.RuneCountInString(f) < 3 {
			continue
		}
		if _, stop := snippetStopwords[f]; stop || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// cleanDisplay strips extraction debris and splits words glued together by
// PDF layout ("childrenAged6", "aged6months").
func cleanDisplay(s string) string {
	s = SanitizeText(s)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			r = ' '
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r):
		default:
			continue
		}
		if prev != 0 && prev != ' ' && r != ' ' && glued(prev, r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func glued(prev, r rune) bool {
	switch {
	case unicode.IsLower(prev) && unicode.IsUpper(r):
		return true
	case unicode.IsLower(prev) && unicode.IsDigit(r):
		return true
	case unicode.IsDigit(prev) && unicode.IsLetter(r):
		return true
	}
	return false
}

func clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultSnippetRunes
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}
