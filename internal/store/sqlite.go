package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/convo-memory/internal/model"
)

// timeFormat is fixed-width so text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		text              TEXT NOT NULL,
		topics            TEXT NOT NULL DEFAULT '[]',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		source_session_id TEXT,
		agent_id          TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at);

	CREATE TABLE IF NOT EXISTS session_summaries (
		session_id   TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		turn_count   INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_user ON session_summaries(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Insert(ctx context.Context, rec model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	topics, err := encodeTopics(rec.Topics)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, text, topics, created_at, updated_at, source_session_id, agent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Text, topics,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		nullable(rec.SourceSessionID), nullable(rec.AgentID))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert memory %s: %w", rec.ID, model.ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	topics, err := encodeTopics(rec.Topics)
	if err != nil {
		return err
	}

	// user_id and created_at never change once written.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, text, topics, created_at, updated_at, source_session_id, agent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			topics = excluded.topics,
			updated_at = excluded.updated_at,
			source_session_id = excluded.source_session_id,
			agent_id = excluded.agent_id
		 WHERE memories.user_id = excluded.user_id`,
		rec.ID, rec.UserID, rec.Text, topics,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		nullable(rec.SourceSessionID), nullable(rec.AgentID))
	if err != nil {
		return fmt.Errorf("put memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("put memory %s: owned by another user: %w", rec.ID, model.ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at, source_session_id, agent_id
		 FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	return s.list(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at, source_session_id, agent_id
		 FROM memories WHERE user_id = ? ORDER BY created_at, id`, userID)
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]model.MemoryRecord, error) {
	return s.list(ctx,
		`SELECT id, user_id, text, topics, created_at, updated_at, source_session_id, agent_id
		 FROM memories ORDER BY created_at, id`)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]model.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	records := []model.MemoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("memory", id)
	}
	return nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	var sum model.SessionSummary
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, summary_text, turn_count, created_at, updated_at
		 FROM session_summaries WHERE session_id = ?`, sessionID).
		Scan(&sum.SessionID, &sum.UserID, &sum.SummaryText, &sum.TurnCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("session summary", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	sum.CreatedAt = parseTime(createdAt)
	sum.UpdatedAt = parseTime(updatedAt)
	return &sum, nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]model.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, summary_text, turn_count, created_at, updated_at
		 FROM session_summaries ORDER BY created_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := []model.SessionSummary{}
	for rows.Next() {
		var sum model.SessionSummary
		var createdAt, updatedAt string
		if err := rows.Scan(&sum.SessionID, &sum.UserID, &sum.SummaryText, &sum.TurnCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutSummary(ctx context.Context, sum model.SessionSummary) error {
	if err := validateSummary(sum); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_summaries (session_id, user_id, summary_text, turn_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			summary_text = excluded.summary_text,
			turn_count = excluded.turn_count,
			updated_at = excluded.updated_at`,
		sum.SessionID, sum.UserID, sum.SummaryText, sum.TurnCount,
		formatTime(sum.CreatedAt), formatTime(sum.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSummary(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_summaries WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("session summary", sessionID)
	}
	return nil
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path, Users: []UserStats{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalMemories); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_summaries`).Scan(&st.Summaries); err != nil {
		return nil, fmt.Errorf("count summaries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, SUM(mem) AS memories, SUM(sess) AS summaries FROM (
			SELECT user_id, 1 AS mem, 0 AS sess FROM memories
			UNION ALL
			SELECT user_id, 0, 1 FROM session_summaries
		) GROUP BY user_id ORDER BY memories DESC, user_id`)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u UserStats
		if err := rows.Scan(&u.UserID, &u.Memories, &u.Summaries); err != nil {
			return nil, err
		}
		st.Users = append(st.Users, u)
	}
	return st, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.MemoryRecord, error) {
	var rec model.MemoryRecord
	var topics, createdAt, updatedAt string
	var sessionID, agentID sql.NullString

	err := row.Scan(&rec.ID, &rec.UserID, &rec.Text, &topics,
		&createdAt, &updatedAt, &sessionID, &agentID)
	if err != nil {
		return rec, err
	}

	rec.Topics = decodeTopics(topics)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.SourceSessionID = sessionID.String
	rec.AgentID = agentID.String
	return rec, nil
}

func encodeTopics(topics []string) (string, error) {
	b, err := json.Marshal(model.NormalizeTopics(topics))
	if err != nil {
		return "", fmt.Errorf("encode topics: %w", err)
	}
	return string(b), nil
}

// decodeTopics never fails: an unreadable column yields no topics.
func decodeTopics(s string) []string {
	var topics []string
	if err := json.Unmarshal([]byte(s), &topics); err != nil {
		return []string{}
	}
	return model.NormalizeTopics(topics)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
