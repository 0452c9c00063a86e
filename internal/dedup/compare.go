package dedup

import (
	"context"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/embedding"
	"github.com/rcliao/convo-memory/internal/model"
)

// DefaultThreshold is the overlap at or above which two statements are
// treated as describing the same fact.
const DefaultThreshold = 0.5

// Comparator decides whether a candidate statement overlaps an existing one
// closely enough to be merged into it.
type Comparator interface {
	Related(ctx context.Context, existing, candidate string) (bool, error)
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"i": true, "im": true, "me": true, "my": true, "mine": true, "we": true,
	"is": true, "am": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "as": true, "it": true, "its": true, "that": true, "this": true,
	"also": true, "really": true, "very": true, "so": true, "do": true, "have": true,
}

// LexicalComparator matches statements that contain one another word for
// word, or whose content words overlap by at least Threshold (Jaccard).
type LexicalComparator struct {
	Threshold float64
}

// Related implements Comparator. It never fails.
func (c LexicalComparator) Related(_ context.Context, existing, candidate string) (bool, error) {
	a, b := model.NormalizeText(existing), model.NormalizeText(candidate)
	if a == "" || b == "" {
		return false, nil
	}
	if containsWords(a, b) || containsWords(b, a) {
		return true, nil
	}
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return jaccard(contentTokens(a), contentTokens(b)) >= threshold, nil
}

// EmbeddingComparator matches statements whose embeddings have cosine
// similarity of at least Threshold. When the embedder fails it defers to
// Fallback.
type EmbeddingComparator struct {
	Embedder  embedding.Embedder
	Threshold float64
	Fallback  Comparator
	Log       logrus.FieldLogger
}

// Related implements Comparator.
func (c EmbeddingComparator) Related(ctx context.Context, existing, candidate string) (bool, error) {
	a, err := c.Embedder.Embed(ctx, existing)
	var b embedding.Vector
	if err == nil {
		b, err = c.Embedder.Embed(ctx, candidate)
	}
	if err != nil {
		if c.Log != nil {
			c.Log.WithError(err).Warn("embedding comparison failed, using lexical overlap")
		}
		fb := c.Fallback
		if fb == nil {
			fb = LexicalComparator{}
		}
		return fb.Related(ctx, existing, candidate)
	}
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return embedding.CosineSimilarity(a, b) >= threshold, nil
}

// containsWords reports whether needle appears in hay on word boundaries.
// Both are expected to be normalized.
func containsWords(hay, needle string) bool {
	return strings.Contains(" "+hay+" ", " "+needle+" ")
}

func contentTokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// MergeText combines an existing statement with an overlapping candidate
// into one statement. When either contains the other the longer one wins.
func MergeText(existing, candidate string) string {
	existing, candidate = strings.TrimSpace(existing), strings.TrimSpace(candidate)
	a, b := model.NormalizeText(existing), model.NormalizeText(candidate)
	switch {
	case containsWords(b, a):
		return candidate
	case containsWords(a, b):
		return existing
	}
	return trimEnd(existing) + "; " + trimEnd(candidate)
}

func trimEnd(s string) string {
	return strings.TrimRight(s, ".!;, ")
}
