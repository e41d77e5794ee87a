package service

import (
	"strings"
	"unicode/utf8"
)

// sanitizeUTF8 strips invalid byte sequences from AI-extracted text so
// Postgres never rejects an insert over encoding.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
