package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/dedup"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/summary"
)

// Remember submits one candidate fact for userID.
func (s *Service) Remember(ctx context.Context, userID string, c model.Candidate) (dedup.Result, error) {
	return s.engine.Submit(ctx, userID, c)
}

// BatchItem is the outcome of one candidate in a batch.
type BatchItem struct {
	Index  int           `json:"index"`
	Result *dedup.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BatchResult summarizes a batch submission.
type BatchResult struct {
	Items    []BatchItem `json:"items"`
	Inserted int         `json:"inserted"`
	Merged   int         `json:"merged"`
	Skipped  int         `json:"skipped"`
	Invalid  int         `json:"invalid"`
}

func (b *BatchResult) add(i int, res dedup.Result) {
	b.Items = append(b.Items, BatchItem{Index: i, Result: &res})
	switch res.Decision {
	case model.DecisionInsert:
		b.Inserted++
	case model.DecisionMerge:
		b.Merged++
	case model.DecisionSkip:
		b.Skipped++
	}
}

// RememberBatch submits candidates in order. Invalid candidates are reported
// in their item and skipped; any other failure stops the batch and is
// returned together with the items processed so far.
func (s *Service) RememberBatch(ctx context.Context, userID string, cands []model.Candidate) (*BatchResult, error) {
	out := &BatchResult{Items: []BatchItem{}}
	for i, c := range cands {
		res, err := s.engine.Submit(ctx, userID, c)
		if errors.Is(err, model.ErrValidation) {
			out.Items = append(out.Items, BatchItem{Index: i, Error: err.Error()})
			out.Invalid++
			continue
		}
		if err != nil {
			return out, fmt.Errorf("batch item %d: %w", i, err)
		}
		out.add(i, res)
	}
	return out, nil
}

// IngestResult is the outcome of ingesting one turn.
type IngestResult struct {
	Facts   []dedup.Result        `json:"facts"`
	Summary *model.SessionSummary `json:"summary"`
}

// Ingest extracts facts from a turn, submits them for the turn's user and
// folds the turn into its session summary.
func (s *Service) Ingest(ctx context.Context, turn model.Turn) (*IngestResult, error) {
	if strings.TrimSpace(turn.UserID) == "" {
		return nil, model.Invalid("user id is required")
	}
	if err := summary.ValidateSessionID(turn.SessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(turn.Text) == "" {
		return nil, model.Invalid("turn text is empty")
	}

	cands, err := s.extractor.Extract(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	out := &IngestResult{Facts: []dedup.Result{}}
	for _, c := range cands {
		c.SessionID = turn.SessionID
		res, err := s.engine.Submit(ctx, turn.UserID, c)
		if err != nil {
			return nil, err
		}
		out.Facts = append(out.Facts, res)
	}

	sum, err := s.summaries.Fold(ctx, turn.SessionID, turn.UserID, turn.Text)
	if err != nil {
		return nil, err
	}
	out.Summary = sum

	s.log.WithFields(logrus.Fields{
		"user_id":    turn.UserID,
		"session_id": turn.SessionID,
		"facts":      len(out.Facts),
	}).Info("turn ingested")
	return out, nil
}

// Fold folds a turn into the session summary without extracting facts.
func (s *Service) Fold(ctx context.Context, sessionID, userID, turn string) (*model.SessionSummary, error) {
	return s.summaries.Fold(ctx, sessionID, userID, turn)
}

// UpdateTopics replaces the topics of a user's memory.
func (s *Service) UpdateTopics(ctx context.Context, userID, id string, topics []string) (*model.MemoryRecord, error) {
	return s.engine.UpdateTopics(ctx, userID, id, topics)
}

// DeleteMemory removes a user's memory.
func (s *Service) DeleteMemory(ctx context.Context, userID, id string) error {
	return s.engine.Delete(ctx, userID, id)
}

// DeleteSummary removes a session summary.
func (s *Service) DeleteSummary(ctx context.Context, sessionID string) error {
	return s.summaries.Delete(ctx, sessionID)
}
