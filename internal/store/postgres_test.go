package store

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/convo-memory/internal/model"
)

// newTestPostgres connects to CONVO_MEMORY_TEST_POSTGRES_URL and skips when unset.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("CONVO_MEMORY_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("CONVO_MEMORY_TEST_POSTGRES_URL not set")
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := NewPostgresStore(dsn, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.db.Exec("TRUNCATE memory_records, session_summaries")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	_, err := NewPostgresStore("", logrus.New())
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestPostgresRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	if err := s.Insert(ctx, record("m1", "alice", "I love hiking", "hobbies")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, record("m1", "alice", "dup")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.Put(ctx, record("m1", "bob", "stolen")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict for owner change, got %v", err)
	}

	rec := record("m1", "alice", "I love hiking and photography", "hobbies", "photography")
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != rec.Text || len(got.Topics) != 2 {
		t.Errorf("unexpected record %+v", got)
	}

	list, _ := s.ListByUser(ctx, "alice")
	if len(list) != 1 {
		t.Errorf("expected 1 record, got %d", len(list))
	}

	if err := s.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "m1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	sum := model.SessionSummary{SessionID: "s1", UserID: "bob", SummaryText: "Hello", TurnCount: 1}
	if err := s.PutSummary(ctx, sum); err != nil {
		t.Fatalf("put summary: %v", err)
	}
	sum.SummaryText, sum.TurnCount = "Hello My name is Bob", 2
	if err := s.PutSummary(ctx, sum); err != nil {
		t.Fatalf("update summary: %v", err)
	}
	got, err := s.GetSummary(ctx, "s1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if got.TurnCount != 2 {
		t.Errorf("expected 2 turns, got %d", got.TurnCount)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Summaries != 1 {
		t.Errorf("expected 1 summary, got %d", st.Summaries)
	}
}
