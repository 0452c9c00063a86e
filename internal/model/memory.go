// Package model defines the core memory and session data types.
package model

import (
	"sort"
	"strings"
	"time"
)

// MemoryRecord is a durable, user-scoped fact extracted from conversation.
type MemoryRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Text            string    `json:"text"`
	Topics          []string  `json:"topics"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	AgentID         string    `json:"agent_id,omitempty"`
}

// HasTopic reports whether the record is tagged with topic.
func (r MemoryRecord) HasTopic(topic string) bool {
	t := NormalizeTopic(topic)
	for _, have := range r.Topics {
		if have == t {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with r.
func (r MemoryRecord) Clone() MemoryRecord {
	c := r
	c.Topics = append([]string(nil), r.Topics...)
	return c
}

// SessionSummary is the rolling digest of one conversation session.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	SummaryText string    `json:"summary_text"`
	TurnCount   int       `json:"turn_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionState is the summarizer state of a session.
type SessionState string

const (
	SessionEmpty  SessionState = "EMPTY"
	SessionActive SessionState = "ACTIVE"
)

// Candidate is a fact proposed for storage, before deduplication.
type Candidate struct {
	Text      string   `json:"text"`
	Topics    []string `json:"topics,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	AgentID   string   `json:"agent_id,omitempty"`
}

// Turn is one conversational turn submitted by the agent loop.
type Turn struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id,omitempty"`
	Text      string `json:"text"`
}

// Decision is the outcome of submitting a candidate.
type Decision string

const (
	DecisionInsert Decision = "INSERT"
	DecisionMerge  Decision = "MERGE"
	DecisionSkip   Decision = "SKIP"
)

// NormalizeTopic lowercases a tag and joins its words with "-".
func NormalizeTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), "-")
}

// NormalizeTopics returns the sorted, deduplicated, non-empty normalized tags.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		n := NormalizeTopic(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UnionTopics merges two topic sets.
func UnionTopics(a, b []string) []string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return NormalizeTopics(all)
}

// NormalizeText folds case and whitespace and trims trailing punctuation,
// so near-verbatim restatements of a fact compare equal.
func NormalizeText(text string) string {
	s := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimRight(s, ".!?;, ")
}
