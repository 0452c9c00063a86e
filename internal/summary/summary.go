// Package summary maintains one bounded rolling summary per conversation
// session, folding each new turn into it.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/condense"
	"github.com/rcliao/convo-memory/internal/keylock"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/metrics"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/store"
)

const (
	// DefaultMaxChars is the summary cap when none is configured.
	DefaultMaxChars = 500
	// MaxSessionIDLen bounds session ids, in characters.
	MaxSessionIDLen = 128
)

// Options configures a Summarizer. Zero values select defaults.
type Options struct {
	MaxChars   int
	CacheTTL   time.Duration
	Compressor Compressor
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
	Clock      func() time.Time
}

// Summarizer folds turns into session summaries. Folds for one session are
// serialized and always read the prior summary from the store, since other
// processes may share it; Get is served from a write-through cache when
// possible and so may lag another process's folds by up to CacheTTL.
type Summarizer struct {
	store    store.Store
	cache    *cache.Cache
	comp     Compressor
	maxChars int
	locks    *keylock.Map
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Summarizer over st.
func New(st store.Store, opts Options) *Summarizer {
	s := &Summarizer{
		store:    st,
		comp:     opts.Compressor,
		maxChars: opts.MaxChars,
		locks:    keylock.New(),
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
	}
	if s.maxChars <= 0 {
		s.maxChars = DefaultMaxChars
	}
	if s.comp == nil {
		s.comp = BoundaryCompressor{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s.cache = cache.New(ttl, 2*ttl)
	return s
}

// MaxChars returns the summary cap.
func (s *Summarizer) MaxChars() int { return s.maxChars }

// ValidateSessionID rejects empty, overlong and non-printable session ids.
func ValidateSessionID(id string) error {
	if id == "" {
		return model.Invalid("session id is required")
	}
	if n := utf8.RuneCountInString(id); n > MaxSessionIDLen {
		return model.Invalid("session id is %d characters, max %d", n, MaxSessionIDLen)
	}
	for _, r := range id {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return model.Invalid("session id %q contains whitespace or control characters", id)
		}
	}
	return nil
}

// Fold folds turn into the session's summary, creating it on the first turn.
func (s *Summarizer) Fold(ctx context.Context, sessionID, userID, turn string) (*model.SessionSummary, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, model.Invalid("user id is required")
	}
	if strings.TrimSpace(turn) == "" {
		return nil, model.Invalid("turn text is empty")
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	prior, err := s.stored(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	var next model.SessionSummary
	if prior == nil {
		next = model.SessionSummary{
			SessionID:   sessionID,
			UserID:      userID,
			SummaryText: s.comp.Compress("", turn, s.maxChars),
			TurnCount:   1,
			CreatedAt:   now,
		}
	} else {
		if prior.UserID != userID {
			return nil, model.Invalid("session %s belongs to another user", sessionID)
		}
		next = *prior
		next.SummaryText = s.comp.Compress(prior.SummaryText, turn, s.maxChars)
		next.TurnCount++
	}
	next.UpdatedAt = now
	if condense.Len(next.SummaryText) > s.maxChars {
		next.SummaryText = condense.Truncate(next.SummaryText, s.maxChars)
	}

	if err := s.store.PutSummary(ctx, next); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	s.cache.Set(sessionID, next, cache.DefaultExpiration)

	chars := condense.Len(next.SummaryText)
	s.metrics.Fold(chars)
	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"turn_count": next.TurnCount,
		"chars":      chars,
	}).Debug("turn folded")
	return &next, nil
}

// Get returns the session's summary. Fails with model.ErrNotFound when the
// session has none.
func (s *Summarizer) Get(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	sum, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, model.NotFound("session", sessionID)
	}
	return sum, nil
}

// State reports whether the session has a summary yet.
func (s *Summarizer) State(ctx context.Context, sessionID string) (model.SessionState, error) {
	_, err := s.Get(ctx, sessionID)
	switch {
	case err == nil:
		return model.SessionActive, nil
	case errors.Is(err, model.ErrNotFound):
		return model.SessionEmpty, nil
	}
	return "", err
}

// Restore writes an imported summary over any existing one.
func (s *Summarizer) Restore(ctx context.Context, sum model.SessionSummary) error {
	if err := ValidateSessionID(sum.SessionID); err != nil {
		return err
	}
	if condense.Len(sum.SummaryText) > s.maxChars {
		sum.SummaryText = condense.Truncate(sum.SummaryText, s.maxChars)
	}
	unlock := s.locks.Lock(sum.SessionID)
	defer unlock()

	if err := s.store.PutSummary(ctx, sum); err != nil {
		return fmt.Errorf("restore summary: %w", err)
	}
	s.cache.Delete(sum.SessionID)
	return nil
}

// Delete drops the session's summary, returning it to EMPTY.
func (s *Summarizer) Delete(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	s.cache.Delete(sessionID)
	return s.store.DeleteSummary(ctx, sessionID)
}

// load returns the cached or stored summary, or nil when absent. Only
// writers fill the cache, so an unlocked read never caches a stale value.
func (s *Summarizer) load(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	if v, ok := s.cache.Get(sessionID); ok {
		sum := v.(model.SessionSummary)
		return &sum, nil
	}
	return s.stored(ctx, sessionID)
}

// stored reads the summary from the store, or nil when absent.
func (s *Summarizer) stored(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	sum, err := s.store.GetSummary(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}
	return sum, nil
}
