package query

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/convo-memory/internal/condense"
	"github.com/rcliao/convo-memory/internal/model"
)

// DefaultContextBudget is the character budget when none is given.
const DefaultContextBudget = 2000

// ContextParams selects what goes into an assembled prompt context.
type ContextParams struct {
	UserID    string
	SessionID string
	Topics    []string
	Budget    int // max chars of summary plus memory text
}

// ContextMemory is a scored memory in an assembled context.
type ContextMemory struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Topics  []string `json:"topics"`
	Score   float64  `json:"score"`
	Excerpt bool     `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context.
type ContextResult struct {
	UserID   string                `json:"user_id"`
	Summary  *model.SessionSummary `json:"summary,omitempty"`
	Budget   int                   `json:"budget"`
	Used     int                   `json:"used"`
	Memories []ContextMemory       `json:"memories"`
}

// Context assembles the session summary and the user's best matching
// memories within the character budget. The summary is placed first and
// memories are packed greedily by score.
func (f *Facade) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	recs, err := f.GetMemories(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	result := &ContextResult{UserID: p.UserID, Budget: budget, Memories: []ContextMemory{}}
	if p.SessionID != "" {
		sum, err := f.GetSummary(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		if sum != nil && sum.UserID == p.UserID {
			result.Summary = sum
			result.Used = condense.Len(sum.SummaryText)
		}
	}

	wanted := model.NormalizeTopics(p.Topics)
	now := f.now()
	type scored struct {
		rec   model.MemoryRecord
		score float64
	}
	candidates := make([]scored, 0, len(recs))
	for _, rec := range recs {
		match := topicMatch(rec, wanted)
		if len(wanted) > 0 && match == 0 {
			continue
		}
		// Recency decays with a half-life of about a week.
		age := now.Sub(rec.UpdatedAt).Hours() / 24
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-0.1 * age)
		candidates = append(candidates, scored{rec: rec, score: match*0.6 + recency*0.4})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, c := range candidates {
		remaining := budget - result.Used
		n := condense.Len(c.rec.Text)
		m := ContextMemory{
			ID:     c.rec.ID,
			Text:   c.rec.Text,
			Topics: c.rec.Topics,
			Score:  math.Round(c.score*100) / 100,
		}
		if n > remaining {
			if remaining < 100 {
				break
			}
			m.Text = condense.Truncate(c.rec.Text, remaining)
			m.Excerpt = true
			n = condense.Len(m.Text)
		}
		result.Memories = append(result.Memories, m)
		result.Used += n
		if m.Excerpt {
			break
		}
	}
	return result, nil
}

// topicMatch is the fraction of wanted topics the record carries. With no
// wanted topics every record matches fully.
func topicMatch(rec model.MemoryRecord, wanted []string) float64 {
	if len(wanted) == 0 {
		return 1
	}
	hits := 0
	for _, t := range wanted {
		if rec.HasTopic(t) || hasTopicPrefix(rec, t+"/") {
			hits++
		}
	}
	return float64(hits) / float64(len(wanted))
}

func hasTopicPrefix(rec model.MemoryRecord, prefix string) bool {
	for _, t := range rec.Topics {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
