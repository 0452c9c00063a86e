// Package dedup decides, for each candidate fact, whether to insert it as a
// new memory, merge it into an overlapping one or skip it as a duplicate,
// and applies that decision to the record store and topic index.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/condense"
	"github.com/rcliao/convo-memory/internal/index"
	"github.com/rcliao/convo-memory/internal/keylock"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/metrics"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/store"
)

// Result is the outcome of a submission. Record is the inserted or merged
// record, or for SKIP the existing record that made the candidate redundant.
type Result struct {
	Decision model.Decision      `json:"decision"`
	Record   model.MemoryRecord  `json:"record"`
	Previous *model.MemoryRecord `json:"previous,omitempty"`
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Comparator Comparator
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
	Clock      func() time.Time
}

// Engine applies candidate facts to the store and index. Writes for one
// user are serialized; different users proceed in parallel.
type Engine struct {
	store   store.Store
	index   index.Index
	repair  *index.Repairer
	cmp     Comparator
	locks   *keylock.Map
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	idMu    sync.Mutex
	entropy io.Reader
}

// New creates an Engine. repair must wrap idx.
func New(st store.Store, idx index.Index, repair *index.Repairer, opts Options) *Engine {
	e := &Engine{
		store:   st,
		index:   idx,
		repair:  repair,
		cmp:     opts.Comparator,
		locks:   keylock.New(),
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Clock,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if e.cmp == nil {
		e.cmp = LexicalComparator{Threshold: DefaultThreshold}
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Submit decides and applies one candidate fact for userID.
func (e *Engine) Submit(ctx context.Context, userID string, c model.Candidate) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, model.Invalid("user id is required")
	}
	c.Text = condense.Collapse(c.Text)
	if c.Text == "" {
		return Result{}, model.Invalid("fact text is empty")
	}
	c.Topics = model.NormalizeTopics(c.Topics)

	res, err := e.submit(ctx, userID, c)
	if errors.Is(err, model.ErrConsistency) {
		if rerr := e.repair.Repair(ctx, err); rerr != nil {
			return Result{}, rerr
		}
		res, err = e.submit(ctx, userID, c)
	}
	if err != nil {
		return Result{}, err
	}

	e.metrics.Decision(string(res.Decision))
	e.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"memory_id": res.Record.ID,
		"decision":  res.Decision,
	}).Debug("candidate applied")
	return res, nil
}

func (e *Engine) submit(ctx context.Context, userID string, c model.Candidate) (Result, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	release := e.repair.Hold()
	defer release()

	related, err := e.related(ctx, userID, c.Topics)
	if err != nil {
		return Result{}, err
	}

	norm := model.NormalizeText(c.Text)
	for _, r := range related {
		if model.NormalizeText(r.Text) == norm {
			return Result{Decision: model.DecisionSkip, Record: r}, nil
		}
	}
	for _, r := range related {
		ok, err := e.cmp.Related(ctx, r.Text, c.Text)
		if err != nil {
			return Result{}, fmt.Errorf("compare with %s: %w", r.ID, err)
		}
		if ok {
			return e.merge(ctx, r, c)
		}
	}
	return e.insert(ctx, userID, c)
}

// related returns the user's records sharing a topic with the candidate,
// most recently updated first. A candidate without topics is compared
// against every record the user has. The index must agree with the user's
// records on every candidate topic, otherwise ErrConsistency is returned.
func (e *Engine) related(ctx context.Context, userID string, topics []string) ([]model.MemoryRecord, error) {
	recs, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	if len(topics) == 0 {
		return byRecency(recs), nil
	}

	byID := make(map[string]model.MemoryRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	var out []model.MemoryRecord
	seen := make(map[string]bool)
	for _, t := range topics {
		listed := make(map[string]bool)
		for _, id := range e.index.Lookup(t, userID) {
			rec, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("topic %q lists missing memory %s: %w", t, id, model.ErrConsistency)
			}
			if !rec.HasTopic(t) {
				return nil, fmt.Errorf("topic %q lists memory %s which lacks it: %w", t, id, model.ErrConsistency)
			}
			listed[id] = true
			if !seen[id] {
				seen[id] = true
				out = append(out, rec)
			}
		}
		for _, r := range recs {
			if !listed[r.ID] && r.HasTopic(t) {
				return nil, fmt.Errorf("memory %s carries topic %q the index does not list: %w", r.ID, t, model.ErrConsistency)
			}
		}
	}
	return byRecency(out), nil
}

func byRecency(out []model.MemoryRecord) []model.MemoryRecord {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (e *Engine) insert(ctx context.Context, userID string, c model.Candidate) (Result, error) {
	now := e.now().UTC()
	rec := model.MemoryRecord{
		ID:              e.newID(now),
		UserID:          userID,
		Text:            c.Text,
		Topics:          c.Topics,
		CreatedAt:       now,
		UpdatedAt:       now,
		SourceSessionID: c.SessionID,
		AgentID:         c.AgentID,
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("insert memory: %w", err)
	}
	if err := e.indexAdd(userID, rec.ID, rec.Topics); err != nil {
		e.rollback("insert", rec.ID, err, e.store.Delete(ctx, rec.ID))
		return Result{}, fmt.Errorf("index memory %s: %w", rec.ID, err)
	}
	return Result{Decision: model.DecisionInsert, Record: rec}, nil
}

func (e *Engine) merge(ctx context.Context, existing model.MemoryRecord, c model.Candidate) (Result, error) {
	prev := existing.Clone()
	upd := existing.Clone()
	upd.Text = MergeText(prev.Text, c.Text)
	upd.Topics = model.UnionTopics(prev.Topics, c.Topics)
	upd.UpdatedAt = e.now().UTC()
	if c.SessionID != "" {
		upd.SourceSessionID = c.SessionID
	}
	if err := e.store.Put(ctx, upd); err != nil {
		return Result{}, fmt.Errorf("merge into %s: %w", prev.ID, err)
	}
	if err := e.indexAdd(upd.UserID, upd.ID, missing(upd.Topics, prev.Topics)); err != nil {
		e.rollback("merge", upd.ID, err, e.store.Put(ctx, prev))
		return Result{}, fmt.Errorf("index memory %s: %w", upd.ID, err)
	}
	return Result{Decision: model.DecisionMerge, Record: upd, Previous: &prev}, nil
}

// UpdateTopics replaces the topic set of a user's memory.
func (e *Engine) UpdateTopics(ctx context.Context, userID, id string, topics []string) (*model.MemoryRecord, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	release := e.repair.Hold()
	defer release()

	prev, err := e.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	upd := prev.Clone()
	upd.Topics = model.NormalizeTopics(topics)
	upd.UpdatedAt = e.now().UTC()
	if err := e.store.Put(ctx, upd); err != nil {
		return nil, fmt.Errorf("update topics of %s: %w", id, err)
	}

	added, removed := missing(upd.Topics, prev.Topics), missing(prev.Topics, upd.Topics)
	if err := e.indexRemove(userID, id, removed); err != nil {
		e.rollback("update_topics", id, err, e.store.Put(ctx, *prev))
		return nil, fmt.Errorf("index memory %s: %w", id, err)
	}
	if err := e.indexAdd(userID, id, added); err != nil {
		e.indexAdd(userID, id, removed)
		e.rollback("update_topics", id, err, e.store.Put(ctx, *prev))
		return nil, fmt.Errorf("index memory %s: %w", id, err)
	}
	return &upd, nil
}

// Delete removes a user's memory and its index entries.
func (e *Engine) Delete(ctx context.Context, userID, id string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()
	release := e.repair.Hold()
	defer release()

	prev, err := e.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if err := e.indexRemove(userID, id, prev.Topics); err != nil {
		e.rollback("delete", id, err, e.store.Insert(ctx, *prev))
		return fmt.Errorf("unindex memory %s: %w", id, err)
	}
	return nil
}

// owned fetches a record, hiding records of other users as not found.
func (e *Engine) owned(ctx context.Context, userID, id string) (*model.MemoryRecord, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, model.NotFound("memory", id)
	}
	return rec, nil
}

// indexAdd adds every topic or, on failure, none of them.
func (e *Engine) indexAdd(userID, id string, topics []string) error {
	for i, t := range topics {
		if err := e.index.Add(t, userID, id); err != nil {
			for _, done := range topics[:i] {
				e.index.Remove(done, userID, id)
			}
			return err
		}
	}
	return nil
}

// indexRemove removes every topic or, on failure, none of them.
func (e *Engine) indexRemove(userID, id string, topics []string) error {
	for i, t := range topics {
		if err := e.index.Remove(t, userID, id); err != nil {
			for _, done := range topics[:i] {
				e.index.Add(done, userID, id)
			}
			return err
		}
	}
	return nil
}

func (e *Engine) rollback(op, id string, cause, undoErr error) {
	e.metrics.Rollback(op)
	entry := e.log.WithFields(logrus.Fields{"op": op, "memory_id": id}).WithError(cause)
	if undoErr != nil {
		// The record now disagrees with the index until the next rebuild.
		entry.WithField("undo_error", undoErr.Error()).Error("index update failed and record write could not be undone")
		return
	}
	entry.Warn("index update failed, record write undone")
}

func (e *Engine) newID(now time.Time) string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), e.entropy).String()
}

// missing returns the topics in a that b lacks.
func missing(a, b []string) []string {
	var out []string
	for _, t := range a {
		found := false
		for _, u := range b {
			if t == u {
				found = true
				break
			}
		}
		if !found {
			out = append(out, t)
		}
	}
	return out
}
