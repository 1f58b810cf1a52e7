package channels

import (
	"strings"
	"unicode"
)

// commonWords are dropped from inside a name before rule generation
var commonWords = map[string]bool{
	"the": true, "of": true, "for": true, "at": true, "on": true, "in": true,
	"and": true, "to": true, "or": true, "a": true, "e": true,
}

// Normalise lower-cases a name, turns ASCII punctuation into spaces and
// collapses whitespace
func Normalise(name string) string {
	name = strings.ToLower(name)
	name = strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// ruleWords prepares a normalised name for rule generation: only ASCII
// letters survive and common words are dropped unless they open or close
// the name
func ruleWords(name string) []string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, name)

	fields := strings.Fields(name)
	words := make([]string, 0, len(fields))
	for i, f := range fields {
		if i > 0 && i < len(fields)-1 && commonWords[f] {
			continue
		}
		words = append(words, f)
	}
	return words
}

// compactAcronym strips spaces from a normalised acronym
func compactAcronym(acronym string) string {
	return strings.ReplaceAll(Normalise(acronym), " ", "")
}
