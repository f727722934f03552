// Package moderation censors forbidden words in message content before
// it is persisted or relayed.
package moderation

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator matches a normalized form of the content against an
// Aho-Corasick automaton and stars out the original characters. The
// zero value passes content through unchanged.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// NewModerator builds the automaton from the word list. An empty list
// yields a passthrough moderator.
func NewModerator(censoredWords []string, censoredChar rune) (Moderator, error) {
	if len(censoredWords) == 0 {
		return Moderator{}, nil
	}
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		// Punctuation-only entries normalize to nothing and match nothing.
		if p, _ := normalize([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return Moderator{}, nil
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// LoadWords reads one word per line, skipping blanks and comments.
func LoadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// Censor replaces every matched span in the original string, preserving
// the characters normalization skipped.
func (m *Moderator) Censor(original string) string {
	if m.matcher == nil {
		return original
	}

	origRunes := []rune(original)
	normalized, origIdx := normalize(origRunes)
	if len(normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	return string(origRunes)
}

// normalize lower-cases the input and strips separators, keeping a map
// from normalized positions back to original rune indexes.
func normalize(input []rune) ([]rune, []int) {
	norm := make([]rune, 0, len(input))
	origIdx := make([]int, 0, len(input))
	for i, r := range input {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return norm, origIdx
}
