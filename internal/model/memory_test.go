package model

import (
	"reflect"
	"testing"
)

func TestNormalizeTopics(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"case and dupes", []string{"Hobbies", "hobbies", " HOBBIES "}, []string{"hobbies"}},
		{"inner whitespace", []string{"machine  learning"}, []string{"machine-learning"}},
		{"drops blanks", []string{"", "  ", "work"}, []string{"work"}},
		{"sorted", []string{"b", "a"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTopics(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTopics(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	a := NormalizeText("  I love   Hiking. ")
	b := NormalizeText("i love hiking")
	if a != b {
		t.Errorf("expected %q == %q", a, b)
	}
}

func TestUnionTopics(t *testing.T) {
	got := UnionTopics([]string{"hobbies"}, []string{"Photography", "hobbies"})
	want := []string{"hobbies", "photography"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestHasTopic(t *testing.T) {
	r := MemoryRecord{Topics: []string{"hobbies"}}
	if !r.HasTopic("Hobbies") {
		t.Error("expected case-insensitive topic match")
	}
	if r.HasTopic("work") {
		t.Error("unexpected match")
	}
}
