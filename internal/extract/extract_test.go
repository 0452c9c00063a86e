package extract

import (
	"context"
	"reflect"
	"testing"

	"github.com/rcliao/convo-memory/internal/model"
)

var testTopics = map[string][]string{
	"Hobbies":     {"hiking", "photography"},
	"photography": {"photography", "camera"},
	"work":        {"data scientist", "job"},
	"location":    {"live in"},
}

func TestExtractKeepsFirstPersonStatements(t *testing.T) {
	x := NewKeywordExtractor(testTopics)
	turn := model.Turn{
		UserID:    "alice",
		SessionID: "s1",
		AgentID:   "assistant",
		Text:      "Hi! I love hiking and photography. The weather is nice. Do you like hiking?\nI work as a data scientist",
	}

	got, err := x.Extract(context.Background(), turn)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []model.Candidate{
		{Text: "I love hiking and photography.", Topics: []string{"hobbies", "photography"}, SessionID: "s1", AgentID: "assistant"},
		{Text: "I work as a data scientist", Topics: []string{"work"}, SessionID: "s1", AgentID: "assistant"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestExtractUntaggedFactHasNoTopics(t *testing.T) {
	x := NewKeywordExtractor(testTopics)
	got, _ := x.Extract(context.Background(), model.Turn{Text: "My cat is called Miso."})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if len(got[0].Topics) != 0 {
		t.Errorf("expected no topics, got %v", got[0].Topics)
	}
}

func TestExtractMatchesWholeWords(t *testing.T) {
	x := NewKeywordExtractor(testTopics)
	got, _ := x.Extract(context.Background(), model.Turn{Text: "I’m a jobber who lives inland."})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if len(got[0].Topics) != 0 {
		t.Errorf("partial words must not tag, got %v", got[0].Topics)
	}
}

func TestExtractNothing(t *testing.T) {
	x := NewKeywordExtractor(nil)
	got, err := x.Extract(context.Background(), model.Turn{Text: "What time is it? It is noon."})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}
