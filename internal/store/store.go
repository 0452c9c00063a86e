// Package store provides the record store interface and its SQLite and
// Postgres implementations. The store is the only owner of persisted state.
package store

import (
	"context"

	"github.com/rcliao/convo-memory/internal/model"
)

// Store persists memory records and session summaries. Every operation is
// atomic for the single record it touches.
type Store interface {
	// Insert stores a new record. Fails with model.ErrConflict if the id exists.
	Insert(ctx context.Context, rec model.MemoryRecord) error

	// Put inserts or overwrites a record by id.
	Put(ctx context.Context, rec model.MemoryRecord) error

	// Get retrieves a record by id. Fails with model.ErrNotFound on a miss.
	Get(ctx context.Context, id string) (*model.MemoryRecord, error)

	// ListByUser returns the user's records ordered by creation time, then id.
	ListByUser(ctx context.Context, userID string) ([]model.MemoryRecord, error)

	// ListAll returns every record, ordered like ListByUser.
	ListAll(ctx context.Context) ([]model.MemoryRecord, error)

	// Delete removes a record. Fails with model.ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// GetSummary retrieves a session summary. Fails with model.ErrNotFound on a miss.
	GetSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error)

	// ListSummaries returns every session summary, oldest first.
	ListSummaries(ctx context.Context) ([]model.SessionSummary, error)

	// PutSummary inserts or overwrites the summary for its session.
	PutSummary(ctx context.Context, sum model.SessionSummary) error

	// DeleteSummary removes a session summary. Fails with model.ErrNotFound if absent.
	DeleteSummary(ctx context.Context, sessionID string) error

	// Stats reports record and summary counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store.
	Close() error
}

func validateRecord(rec model.MemoryRecord) error {
	if rec.ID == "" {
		return model.Invalid("record id is required")
	}
	if rec.UserID == "" {
		return model.Invalid("record %s: user id is required", rec.ID)
	}
	return nil
}

func validateSummary(sum model.SessionSummary) error {
	if sum.SessionID == "" {
		return model.Invalid("session id is required")
	}
	if sum.UserID == "" {
		return model.Invalid("session %s: user id is required", sum.SessionID)
	}
	return nil
}
