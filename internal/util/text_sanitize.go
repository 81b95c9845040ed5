package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
)

// SanitizeText normalises line endings and drops runes Postgres text columns
// reject or that PDF extraction leaves behind: NUL, other C0 controls except
// tab and newline, DEL and the replacement character.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0x7f || r == utf8.RuneError:
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// CollapseBlankLines squeezes runs of 3+ newlines to 2 and drops spaces/tabs before a newline.
func CollapseBlankLines(s string) string {
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return trailingSpaceRe.ReplaceAllString(s, "\n")
}
