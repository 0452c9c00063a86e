// Package service wires the record store, topic index, merge engine,
// summarizer and query facade into the in-process API used by the agent
// loop and the CLI.
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/config"
	"github.com/rcliao/convo-memory/internal/dedup"
	"github.com/rcliao/convo-memory/internal/embedding"
	"github.com/rcliao/convo-memory/internal/extract"
	"github.com/rcliao/convo-memory/internal/index"
	"github.com/rcliao/convo-memory/internal/metrics"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/query"
	"github.com/rcliao/convo-memory/internal/store"
	"github.com/rcliao/convo-memory/internal/summary"
)

// Service is the memory store for one process.
type Service struct {
	store     store.Store
	index     *index.TopicIndex
	repair    *index.Repairer
	engine    *dedup.Engine
	summaries *summary.Summarizer
	query     *query.Facade
	extractor extract.Extractor
	log       logrus.FieldLogger
}

// Open opens the configured store and builds a Service over it.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) (*Service, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgresStore(cfg.Store.PostgresURL, log)
	default:
		st, err = store.NewSQLiteStore(cfg.Store.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	svc, err := New(ctx, st, cfg, log, m)
	if err != nil {
		st.Close()
		return nil, err
	}
	return svc, nil
}

// New builds a Service over an open store and loads the topic index from it.
// The Service takes ownership of st.
func New(ctx context.Context, st store.Store, cfg *config.Config, log logrus.FieldLogger, m *metrics.Metrics) (*Service, error) {
	cmp, err := comparator(cfg, log)
	if err != nil {
		return nil, err
	}

	idx := index.New()
	repair := index.NewRepairer(idx, st, log, m)
	sums := summary.New(st, summary.Options{
		MaxChars: cfg.Summary.MaxChars,
		CacheTTL: cfg.Summary.CacheTTL,
		Logger:   log,
		Metrics:  m,
	})
	svc := &Service{
		store:     st,
		index:     idx,
		repair:    repair,
		engine:    dedup.New(st, idx, repair, dedup.Options{Comparator: cmp, Logger: log, Metrics: m}),
		summaries: sums,
		query:     query.New(st, idx, repair, sums, log),
		extractor: extract.NewKeywordExtractor(cfg.Extract.Topics),
		log:       log,
	}
	if err := repair.Rebuild(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func comparator(cfg *config.Config, log logrus.FieldLogger) (dedup.Comparator, error) {
	lexical := dedup.LexicalComparator{Threshold: cfg.Dedup.Threshold}
	if cfg.Dedup.Comparator != "embedding" {
		return lexical, nil
	}
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, model.Invalid("%v", err)
	}
	if emb == nil {
		return nil, model.Invalid("dedup.comparator embedding needs embedding.provider")
	}
	return dedup.EmbeddingComparator{
		Embedder:  emb,
		Threshold: cfg.Dedup.Threshold,
		Fallback:  lexical,
		Log:       log,
	}, nil
}

// Close closes the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// RebuildIndex reconstructs the topic index from the record store.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.repair.Rebuild(ctx)
}

// Topics lists every topic currently in the index.
func (s *Service) Topics() []string {
	return s.index.Topics()
}

// Stats reports store counts and the number of indexed topics.
type Stats struct {
	Store  *store.Stats `json:"store"`
	Topics int          `json:"topics"`
}

// Stats returns current statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Store: st, Topics: len(s.index.Topics())}, nil
}

// GetMemories returns every memory of userID.
func (s *Service) GetMemories(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	return s.query.GetMemories(ctx, userID)
}

// GetMemoriesByTopic returns the memories of userID tagged with topic.
func (s *Service) GetMemoriesByTopic(ctx context.Context, userID, topic string) ([]model.MemoryRecord, error) {
	return s.query.GetMemoriesByTopic(ctx, userID, topic)
}

// GetMemoriesByTopicPrefix returns the memories of userID with a topic under prefix.
func (s *Service) GetMemoriesByTopicPrefix(ctx context.Context, userID, prefix string) ([]model.MemoryRecord, error) {
	return s.query.GetMemoriesByTopicPrefix(ctx, userID, prefix)
}

// GetMemory returns one memory of userID.
func (s *Service) GetMemory(ctx context.Context, userID, id string) (*model.MemoryRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, model.NotFound("memory", id)
	}
	return rec, nil
}

// GetSummary returns the session summary, or nil when there is none.
func (s *Service) GetSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	return s.query.GetSummary(ctx, sessionID)
}

// SessionState reports whether the session has a summary.
func (s *Service) SessionState(ctx context.Context, sessionID string) (model.SessionState, error) {
	return s.summaries.State(ctx, sessionID)
}

// Context assembles prompt context for a user and session.
func (s *Service) Context(ctx context.Context, p query.ContextParams) (*query.ContextResult, error) {
	return s.query.Context(ctx, p)
}
