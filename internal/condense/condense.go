// Package condense splits conversational text on sentence and clause
// boundaries and shortens it to a character budget without cutting
// mid-sentence where a boundary is available.
package condense

import (
	"strings"
	"unicode"
)

// Collapse trims text and replaces every whitespace run with one space.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Len returns the length of text in characters (runes).
func Len(text string) int {
	return len([]rune(text))
}

// Sentences splits text into trimmed sentences. A sentence ends at '.', '!'
// or '?' followed by whitespace or end of text, or at a line break.
func Sentences(text string) []string {
	r := []rune(strings.TrimSpace(text))
	var out []string
	start := 0

	flush := func(end int) {
		s := Collapse(string(r[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(r); i++ {
		switch {
		case r[i] == '\n':
			flush(i)
			start = i + 1
		case isSentenceEnd(r[i]) && (i+1 == len(r) || unicode.IsSpace(r[i+1])):
			flush(i + 1)
		}
	}
	if start < len(r) {
		flush(len(r))
	}
	return out
}

// Truncate shortens text to at most limit characters. It cuts after the last
// sentence end that fits; when that would keep less than half the budget and a
// later clause boundary (",", ";", ":" or " - ") fits, it cuts there instead.
// Only when neither exists does it cut hard at the limit.
func Truncate(text string, limit int) string {
	text = Collapse(text)
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	if limit <= 0 {
		return ""
	}

	sentence := lastSentenceEnd(r, limit)
	clause := lastClauseEnd(r, limit)

	switch {
	case sentence > 0 && (sentence*2 >= limit || clause <= sentence):
		return strings.TrimSpace(string(r[:sentence]))
	case clause > 0:
		return strings.TrimSpace(string(r[:clause]))
	}
	return strings.TrimSpace(string(r[:limit]))
}

// lastSentenceEnd returns the length of the longest prefix of r, at most
// limit, that ends a sentence, or 0.
func lastSentenceEnd(r []rune, limit int) int {
	for i := limit - 1; i >= 0; i-- {
		if isSentenceEnd(r[i]) && i+1 < len(r) && unicode.IsSpace(r[i+1]) {
			return i + 1
		}
	}
	return 0
}

// lastClauseEnd returns the length of the longest prefix of r, at most limit,
// that stops just before a clause separator, or 0.
func lastClauseEnd(r []rune, limit int) int {
	for i := limit; i > 0; i-- {
		if i+1 >= len(r) || r[i+1] != ' ' {
			continue
		}
		switch r[i] {
		case ',', ';', ':':
			return i
		case '-':
			if r[i-1] == ' ' {
				return i - 1
			}
		}
	}
	return 0
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}
