package query

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/convo-memory/internal/index"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/model"
	"github.com/rcliao/convo-memory/internal/store"
	"github.com/rcliao/convo-memory/internal/summary"
)

type fixture struct {
	st   *store.SQLiteStore
	idx  *index.TopicIndex
	sums *summary.Summarizer
	f    *Facade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := logging.Discard()
	idx := index.New()
	sums := summary.New(st, summary.Options{})
	f := New(st, idx, index.NewRepairer(idx, st, log, nil), sums, log)
	return &fixture{st: st, idx: idx, sums: sums, f: f}
}

// add writes a record and indexes it the way the merge engine would.
func (fx *fixture) add(t *testing.T, id, user, text string, updated time.Time, topics ...string) {
	t.Helper()
	rec := model.MemoryRecord{
		ID: id, UserID: user, Text: text, Topics: model.NormalizeTopics(topics),
		CreatedAt: updated, UpdatedAt: updated,
	}
	if err := fx.st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	for _, topic := range rec.Topics {
		fx.idx.Add(topic, user, id)
	}
}

func ids(recs []model.MemoryRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestGetMemoriesByTopic(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fx.add(t, "01A", "alice", "I love hiking", now, "hobbies")
	fx.add(t, "01B", "alice", "I work as a data scientist", now, "work")
	fx.add(t, "01C", "bob", "I love sailing", now, "hobbies")

	got, err := fx.f.GetMemoriesByTopic(ctx, "alice", "Hobbies")
	if err != nil {
		t.Fatalf("by topic: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != "01A" {
		t.Errorf("got %v, want [01A]", g)
	}

	got, _ = fx.f.GetMemoriesByTopic(ctx, "alice", "unknown")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestGetMemoriesByTopicPrefix(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fx.add(t, "01A", "alice", "I lead the billing project", now, "work/projects")
	fx.add(t, "01B", "alice", "My manager is Dana", now, "work/people")
	fx.add(t, "01C", "alice", "I love hiking", now, "hobbies")

	got, err := fx.f.GetMemoriesByTopicPrefix(ctx, "alice", "work/")
	if err != nil {
		t.Fatalf("by prefix: %v", err)
	}
	if g := ids(got); len(g) != 2 || g[0] != "01A" || g[1] != "01B" {
		t.Errorf("got %v, want [01A 01B]", g)
	}
}

func TestGetMemoriesValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if _, err := fx.f.GetMemories(ctx, " "); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := fx.f.GetMemoriesByTopic(ctx, "alice", ""); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestGetMemoriesByTopicRepairsOrphans(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.add(t, "01A", "alice", "I love hiking", time.Now().UTC(), "hobbies")
	fx.idx.Add("hobbies", "alice", "01GHOST")

	got, err := fx.f.GetMemoriesByTopic(ctx, "alice", "hobbies")
	if err != nil {
		t.Fatalf("by topic: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != "01A" {
		t.Errorf("got %v, want [01A]", g)
	}
	for _, id := range fx.idx.Lookup("hobbies", "") {
		if id == "01GHOST" {
			t.Error("orphaned entry should be gone after repair")
		}
	}
}

func TestGetMemoriesByTopicRepairsUnindexedRecord(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fx.add(t, "01A", "alice", "I love hiking", now, "hobbies")
	rec := model.MemoryRecord{ID: "01B", UserID: "alice", Text: "I collect vinyl records", Topics: []string{"hobbies"}, CreatedAt: now, UpdatedAt: now}
	if err := fx.st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := fx.f.GetMemoriesByTopic(ctx, "alice", "hobbies")
	if err != nil {
		t.Fatalf("by topic: %v", err)
	}
	if g := ids(got); len(g) != 2 || g[0] != "01A" || g[1] != "01B" {
		t.Errorf("got %v, want [01A 01B]", g)
	}
	if g := fx.idx.Lookup("hobbies", "alice"); len(g) != 2 {
		t.Errorf("expected both records indexed after repair, got %v", g)
	}
}

// countingStore counts the calls that reveal per-id fetches and rebuilds.
type countingStore struct {
	*store.SQLiteStore
	gets     atomic.Int64
	listAlls atomic.Int64
}

func (c *countingStore) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	c.gets.Add(1)
	return c.SQLiteStore.Get(ctx, id)
}

func (c *countingStore) ListAll(ctx context.Context) ([]model.MemoryRecord, error) {
	c.listAlls.Add(1)
	return c.SQLiteStore.ListAll(ctx)
}

func TestGetMemoriesByTopicSkipsOtherUsers(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fx.add(t, "01A", "alice", "I love hiking", now, "hobbies")
	for _, id := range []string{"01B", "01C", "01D"} {
		fx.add(t, id, "bob", "I love sailing "+id, now, "hobbies")
	}

	cs := &countingStore{SQLiteStore: fx.st}
	log := logging.Discard()
	f := New(cs, fx.idx, index.NewRepairer(fx.idx, cs, log, nil), fx.sums, log)

	got, err := f.GetMemoriesByTopic(ctx, "alice", "hobbies")
	if err != nil {
		t.Fatalf("by topic: %v", err)
	}
	if g := ids(got); len(g) != 1 || g[0] != "01A" {
		t.Errorf("got %v, want [01A]", g)
	}
	if n := cs.gets.Load(); n != 0 {
		t.Errorf("expected no per-id fetches, got %d", n)
	}
	if n := cs.listAlls.Load(); n != 0 {
		t.Errorf("expected no rebuild, got %d", n)
	}
}

func TestGetSummaryAbsentIsNil(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	sum, err := fx.f.GetSummary(ctx, "s1")
	if err != nil || sum != nil {
		t.Fatalf("expected nil, nil; got %v, %v", sum, err)
	}
	fx.sums.Fold(ctx, "s1", "bob", "Hello")
	sum, err = fx.f.GetSummary(ctx, "s1")
	if err != nil || sum == nil || sum.SummaryText != "Hello" {
		t.Errorf("got %+v, %v", sum, err)
	}
}

func TestContextRanksAndPacks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	fx.add(t, "01A", "alice", "I love hiking", now.Add(-30*24*time.Hour), "hobbies")
	fx.add(t, "01B", "alice", "I go climbing on Sundays", now, "hobbies")
	fx.add(t, "01C", "alice", "I work as a data scientist", now, "work")
	fx.sums.Fold(ctx, "s1", "alice", "We talked about weekend plans.")

	res, err := fx.f.Context(ctx, ContextParams{UserID: "alice", SessionID: "s1", Topics: []string{"hobbies"}})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if res.Summary == nil {
		t.Fatal("expected the session summary")
	}
	if g := len(res.Memories); g != 2 {
		t.Fatalf("expected 2 hobby memories, got %d", g)
	}
	if res.Memories[0].ID != "01B" {
		t.Errorf("expected the recent memory first, got %s", res.Memories[0].ID)
	}
	want := len("We talked about weekend plans.") + len("I love hiking") + len("I go climbing on Sundays")
	if res.Used != want {
		t.Errorf("used: got %d, want %d", res.Used, want)
	}
}

func TestContextRespectsBudget(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	long := strings.Repeat("I really enjoy long mountain hikes. ", 10)
	fx.add(t, "01A", "alice", long, now, "hobbies")
	fx.add(t, "01B", "alice", "I love hiking", now.Add(-time.Hour), "hobbies")

	res, err := fx.f.Context(ctx, ContextParams{UserID: "alice", Budget: 150})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if res.Used > 150 {
		t.Errorf("used %d exceeds budget", res.Used)
	}
	if len(res.Memories) != 1 || !res.Memories[0].Excerpt {
		t.Errorf("expected one excerpt, got %+v", res.Memories)
	}
}

func TestContextIgnoresOtherUsersSummary(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.sums.Fold(ctx, "s1", "bob", "Bob's private chat")

	res, err := fx.f.Context(ctx, ContextParams{UserID: "alice", SessionID: "s1"})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if res.Summary != nil {
		t.Error("summary of another user must not be included")
	}
}
