// Package query is the read side of the memory store: per-user listings,
// topic lookups and session summaries. It never writes persisted state.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/index"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/store"
)

// SummaryReader returns a session summary or fails with model.ErrNotFound.
type SummaryReader interface {
	Get(ctx context.Context, sessionID string) (*model.SessionSummary, error)
}

// Facade answers read queries.
type Facade struct {
	store     store.Store
	index     index.Index
	repair    *index.Repairer
	summaries SummaryReader
	log       logrus.FieldLogger
	now       func() time.Time
}

// New creates a Facade. repair must wrap idx.
func New(st store.Store, idx index.Index, repair *index.Repairer, summaries SummaryReader, log logrus.FieldLogger) *Facade {
	if log == nil {
		log = logging.Discard()
	}
	return &Facade{store: st, index: idx, repair: repair, summaries: summaries, log: log, now: time.Now}
}

// GetMemories returns every memory of userID, oldest first.
func (f *Facade) GetMemories(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.Invalid("user id is required")
	}
	recs, err := f.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return recs, nil
}

// GetMemoriesByTopic returns the memories of userID tagged with topic.
func (f *Facade) GetMemoriesByTopic(ctx context.Context, userID, topic string) ([]model.MemoryRecord, error) {
	t := model.NormalizeTopic(topic)
	if t == "" {
		return nil, model.Invalid("topic is required")
	}
	return f.byTopic(ctx, userID, func() []string { return f.index.Lookup(t, userID) }, func(rec model.MemoryRecord) bool {
		return rec.HasTopic(t)
	})
}

// GetMemoriesByTopicPrefix returns the memories of userID carrying any topic
// that starts with prefix.
func (f *Facade) GetMemoriesByTopicPrefix(ctx context.Context, userID, prefix string) ([]model.MemoryRecord, error) {
	p := model.NormalizeTopic(prefix)
	if p == "" {
		return nil, model.Invalid("topic prefix is required")
	}
	return f.byTopic(ctx, userID, func() []string { return f.index.LookupPrefix(p, userID) }, func(rec model.MemoryRecord) bool {
		for _, t := range rec.Topics {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
		return false
	})
}

// GetSummary returns the session's summary, or nil when it has none.
func (f *Facade) GetSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	sum, err := f.summaries.Get(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return sum, err
}

// byTopic intersects the user's listing with the index. When the index
// disagrees with the records, the index is rebuilt and the intersection
// taken again.
func (f *Facade) byTopic(ctx context.Context, userID string, lookup func() []string, match func(model.MemoryRecord) bool) ([]model.MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.Invalid("user id is required")
	}
	out, err := f.intersect(ctx, userID, lookup(), match)
	if errors.Is(err, model.ErrConsistency) {
		if rerr := f.repair.Repair(ctx, err); rerr != nil {
			return nil, rerr
		}
		out, err = f.intersect(ctx, userID, lookup(), match)
		if errors.Is(err, model.ErrConsistency) {
			// A write landed between the rebuild and the second pass.
			f.log.WithError(err).Debug("index still settling after rebuild")
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// intersect returns the user's records matching the lookup, in listing
// order, and cross-checks them against ids, the user's entries in the index.
// The records are returned even when the error wraps model.ErrConsistency.
func (f *Facade) intersect(ctx context.Context, userID string, ids []string, match func(model.MemoryRecord) bool) ([]model.MemoryRecord, error) {
	recs, err := f.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}

	var stale error
	out := []model.MemoryRecord{}
	owned := make(map[string]bool, len(recs))
	for _, rec := range recs {
		owned[rec.ID] = true
		ok := match(rec)
		switch {
		case listed[rec.ID] && !ok:
			stale = fmt.Errorf("index lists memory %s under a topic it lacks: %w", rec.ID, model.ErrConsistency)
		case !listed[rec.ID] && ok:
			stale = fmt.Errorf("index does not list memory %s: %w", rec.ID, model.ErrConsistency)
		}
		if ok {
			out = append(out, rec)
		}
	}
	for _, id := range ids {
		if !owned[id] {
			stale = fmt.Errorf("index lists missing memory %s: %w", id, model.ErrConsistency)
			break
		}
	}
	return out, stale
}
