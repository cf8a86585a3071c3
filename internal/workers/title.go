package workers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTitleRunes = 80

// NormalizeTitle cleans a model-generated title: strips wrapping quotes and
// trailing punctuation, collapses whitespace, applies title casing, and
// bounds the length.
func NormalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'“”‘’")
	title = strings.TrimRight(title, ".!,;:")

	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range title {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && cleaned.Len() > 0 {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		default:
			cleaned.WriteRune(r)
			prevSpace = false
		}
	}
	title = strings.TrimSpace(cleaned.String())
	if title == "" {
		return ""
	}

	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return cases.Title(language.Und, cases.NoLower).String(title)
}
