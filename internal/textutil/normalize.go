package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in NFKC form, case folded, with runs of whitespace
// collapsed to a single space and the ends trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Key normalizes s and keeps only letters and digits, joining words with a
// single space. "Applying For:" and "applying-for" both become "applying for".
func Key(s string) string {
	normalized := Normalize(s)
	if normalized == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(normalized))
	space := false
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Title renders a key such as "game designer" as "Game Designer".
func Title(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

// Truncate shortens s to at most limit runes, ending with an ellipsis when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
