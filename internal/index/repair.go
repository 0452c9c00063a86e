package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/metrics"
	"github.com/rcliao/convo-memory/internal/model"
)

// Source is the authoritative record listing an index is rebuilt from.
type Source interface {
	ListAll(ctx context.Context) ([]model.MemoryRecord, error)
}

// Repairer orders index writers against rebuilds. Writers hold it shared for
// the span of a record write plus its index update; a rebuild holds it
// exclusively, so no update can land between listing the store and swapping
// the rebuilt index in.
type Repairer struct {
	mu      sync.RWMutex
	idx     Index
	src     Source
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewRepairer creates a Repairer for idx backed by src.
func NewRepairer(idx Index, src Source, log logrus.FieldLogger, m *metrics.Metrics) *Repairer {
	return &Repairer{idx: idx, src: src, log: log, metrics: m}
}

// Hold acquires the shared side and returns its release function.
func (r *Repairer) Hold() (release func()) {
	r.mu.RLock()
	return r.mu.RUnlock
}

// Rebuild reconstructs the index from the source. It must not be called
// while the caller holds the shared side.
func (r *Repairer) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.src.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	r.idx.Rebuild(records)
	r.metrics.Rebuild()
	r.log.WithField("records", len(records)).Info("topic index rebuilt")
	return nil
}

// Repair logs the inconsistency cause and rebuilds.
func (r *Repairer) Repair(ctx context.Context, cause error) error {
	r.log.WithError(cause).Warn("topic index disagrees with record store, rebuilding")
	return r.Rebuild(ctx)
}
