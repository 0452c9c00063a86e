package dedup

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rcliao/convo-memory/internal/embedding"
)

func TestLexicalComparator(t *testing.T) {
	c := LexicalComparator{Threshold: DefaultThreshold}
	tests := []struct {
		existing, candidate string
		want                bool
	}{
		{"I love hiking", "I love hiking and photography", true},
		{"I love hiking and photography.", "i love HIKING", true},
		{"I play chess on weekends", "I play chess online", true},
		{"I love hiking", "I collect vinyl records", false},
		{"I like cats", "I like concatenation", false},
		{"", "I love hiking", false},
	}
	for _, tt := range tests {
		got, err := c.Related(context.Background(), tt.existing, tt.candidate)
		if err != nil {
			t.Fatalf("related: %v", err)
		}
		if got != tt.want {
			t.Errorf("Related(%q, %q) = %v, want %v", tt.existing, tt.candidate, got, tt.want)
		}
	}
}

func TestMergeText(t *testing.T) {
	tests := []struct {
		existing, candidate, want string
	}{
		{"I love hiking", "I love hiking and photography", "I love hiking and photography"},
		{"I love hiking and photography.", "I love hiking", "I love hiking and photography."},
		{"I play chess on weekends.", "I play chess online.", "I play chess on weekends; I play chess online"},
	}
	for _, tt := range tests {
		if got := MergeText(tt.existing, tt.candidate); got != tt.want {
			t.Errorf("MergeText(%q, %q) = %q, want %q", tt.existing, tt.candidate, got, tt.want)
		}
	}
}

type stubEmbedder struct {
	vecs map[string]embedding.Vector
	err  error
}

func (s stubEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vecs[text], nil
}

func (s stubEmbedder) Dims() int { return 2 }

func TestEmbeddingComparator(t *testing.T) {
	emb := stubEmbedder{vecs: map[string]embedding.Vector{
		"I adore trekking": {1, 0.1},
		"I love hiking":    {1, 0},
		"I own a boat":     {0, 1},
	}}
	c := EmbeddingComparator{Embedder: emb, Threshold: 0.9}

	if ok, _ := c.Related(context.Background(), "I love hiking", "I adore trekking"); !ok {
		t.Error("expected near vectors to be related")
	}
	if ok, _ := c.Related(context.Background(), "I love hiking", "I own a boat"); ok {
		t.Error("expected orthogonal vectors to be unrelated")
	}
}

func TestEmbeddingComparatorFallsBack(t *testing.T) {
	c := EmbeddingComparator{
		Embedder:  stubEmbedder{err: errors.New("connection refused")},
		Threshold: 0.9,
		Fallback:  LexicalComparator{},
	}
	ok, err := c.Related(context.Background(), "I love hiking", "I love hiking and photography")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if !ok {
		t.Error("expected lexical fallback to match")
	}
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{`["Hobbies", "outdoor life"]`, []string{"hobbies", "outdoor-life"}},
		{"work, career ,work", []string{"career", "work"}},
		{`["unterminated`, []string{}},
		{"", []string{}},
		{" , ,", []string{}},
	}
	for _, tt := range tests {
		if got := ParseTopics(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTopics(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
