package condense

import (
	"reflect"
	"strings"
	"testing"
)

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Hello there", []string{"Hello there"}},
		{"punctuation", "Hi! My name is Bob. What is yours?", []string{"Hi!", "My name is Bob.", "What is yours?"}},
		{"decimal is not a boundary", "Pi is 3.14 roughly.", []string{"Pi is 3.14 roughly."}},
		{"line breaks", "first line\nsecond   line", []string{"first line", "second line"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sentences(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate_FitsUnchanged(t *testing.T) {
	in := "Short   and sweet."
	if got := Truncate(in, 100); got != "Short and sweet." {
		t.Errorf("got %q", got)
	}
}

func TestTruncate_SentenceBoundary(t *testing.T) {
	in := "I like tea. I also like coffee very much."
	got := Truncate(in, 20)
	if got != "I like tea." {
		t.Errorf("got %q, want %q", got, "I like tea.")
	}
}

func TestTruncate_PrefersLateClauseOverEarlySentence(t *testing.T) {
	in := "Hi. I enjoy hiking in the mountains, reading science fiction and cooking."
	got := Truncate(in, 40)
	want := "Hi. I enjoy hiking in the mountains"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTruncate_DashClause(t *testing.T) {
	in := "the weekend plan - hiking then dinner with friends"
	got := Truncate(in, 25)
	if got != "the weekend plan" {
		t.Errorf("got %q", got)
	}
}

func TestTruncate_HardFallback(t *testing.T) {
	in := strings.Repeat("a", 50)
	got := Truncate(in, 10)
	if got != strings.Repeat("a", 10) {
		t.Errorf("got %q", got)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	in := strings.Repeat("é", 30)
	got := Truncate(in, 7)
	if Len(got) != 7 {
		t.Errorf("expected 7 runes, got %d (%q)", Len(got), got)
	}
}

func TestTruncate_NeverExceedsLimit(t *testing.T) {
	inputs := []string{
		"One. Two, three; four: five - six. Seven!",
		strings.Repeat("word ", 200),
		"no boundaries at all just a long run of words without punctuation whatsoever",
	}
	for _, in := range inputs {
		for limit := 0; limit < 60; limit++ {
			if got := Truncate(in, limit); Len(got) > limit {
				t.Fatalf("Truncate(%q, %d) = %q exceeds limit", in, limit, got)
			}
		}
	}
}
