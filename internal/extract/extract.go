// Package extract pulls candidate facts about the user out of a
// conversational turn.
package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/rcliao/convo-memory/internal/condense"
	"github.com/rcliao/convo-memory/internal/model"
)

// Extractor turns a conversational turn into candidate facts.
type Extractor interface {
	Extract(ctx context.Context, turn model.Turn) ([]model.Candidate, error)
}

var firstPerson = map[string]bool{"i": true, "i'm": true, "i've": true, "my": true, "me": true}

// KeywordExtractor keeps first-person statements and tags them with every
// topic whose keywords occur in the statement.
type KeywordExtractor struct {
	topics map[string][]string
}

// NewKeywordExtractor creates a KeywordExtractor from a topic to keywords map.
func NewKeywordExtractor(topics map[string][]string) *KeywordExtractor {
	norm := make(map[string][]string, len(topics))
	for topic, kws := range topics {
		t := model.NormalizeTopic(topic)
		if t == "" {
			continue
		}
		for _, kw := range kws {
			if k := words(kw); k != "" {
				norm[t] = append(norm[t], k)
			}
		}
	}
	return &KeywordExtractor{topics: norm}
}

// Extract implements Extractor. It never fails.
func (x *KeywordExtractor) Extract(_ context.Context, turn model.Turn) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, s := range condense.Sentences(turn.Text) {
		if strings.HasSuffix(s, "?") {
			continue
		}
		w := words(s)
		if !isFirstPerson(w) {
			continue
		}
		out = append(out, model.Candidate{
			Text:      s,
			Topics:    x.tag(w),
			SessionID: turn.SessionID,
			AgentID:   turn.AgentID,
		})
	}
	return out, nil
}

func (x *KeywordExtractor) tag(w string) []string {
	padded := " " + w + " "
	var topics []string
	for topic, kws := range x.topics {
		for _, kw := range kws {
			if strings.Contains(padded, " "+kw+" ") {
				topics = append(topics, topic)
				break
			}
		}
	}
	return model.NormalizeTopics(topics)
}

func isFirstPerson(w string) bool {
	for _, tok := range strings.Fields(w) {
		if firstPerson[tok] {
			return true
		}
	}
	return false
}

// words lowercases s and reduces it to space separated words, keeping
// apostrophes inside words.
func words(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, strings.ReplaceAll(s, "’", "'"))
	return strings.Join(strings.Fields(s), " ")
}
