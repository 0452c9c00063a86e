package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rcliao/convo-memory/internal/model"
)

// recordRow is the Postgres row shape of a MemoryRecord.
type recordRow struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index:idx_memory_records_user,priority:1"`
	Text            string    `gorm:"not null"`
	Topics          string    `gorm:"not null;default:'[]'"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime:false;index:idx_memory_records_user,priority:2"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
	SourceSessionID *string
	AgentID         *string
}

func (recordRow) TableName() string { return "memory_records" }

// summaryRow is the Postgres row shape of a SessionSummary.
type summaryRow struct {
	SessionID   string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;index"`
	SummaryText string    `gorm:"not null"`
	TurnCount   int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (summaryRow) TableName() string { return "session_summaries" }

// PostgresStore implements Store on Postgres through gorm.
type PostgresStore struct {
	db *gorm.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and migrates the schema. Slow and failed
// statements are reported through log.
func NewPostgresStore(dsn string, log logrus.FieldLogger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, model.Invalid("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&recordRow{}, &summaryRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert memory %s: %w", rec.ID, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "topics", "updated_at", "source_session_id", "agent_id"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "memory_records.user_id = excluded.user_id"},
		}},
	}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("put memory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("put memory %s: owned by another user: %w", rec.ID, model.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.MemoryRecord, error) {
	var row recordRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.NotFound("memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	rec := fromRow(row)
	return &rec, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]model.MemoryRecord, error) {
	var rows []recordRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&recordRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete memory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFound("memory", id)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	var row summaryRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.NotFound("session summary", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	sum := fromSummaryRow(row)
	return &sum, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context) ([]model.SessionSummary, error) {
	var rows []summaryRow
	if err := s.db.WithContext(ctx).Order("created_at, session_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	out := make([]model.SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromSummaryRow(row))
	}
	return out, nil
}

func (s *PostgresStore) PutSummary(ctx context.Context, sum model.SessionSummary) error {
	if err := validateSummary(sum); err != nil {
		return err
	}
	row := summaryRow{
		SessionID:   sum.SessionID,
		UserID:      sum.UserID,
		SummaryText: sum.SummaryText,
		TurnCount:   sum.TurnCount,
		CreatedAt:   utcOrNow(sum.CreatedAt),
		UpdatedAt:   utcOrNow(sum.UpdatedAt),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary_text", "turn_count", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSummary(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Delete(&summaryRow{}, "session_id = ?", sessionID)
	if res.Error != nil {
		return fmt.Errorf("delete summary: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFound("session summary", sessionID)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Users: []UserStats{}}
	db := s.db.WithContext(ctx)

	var memories, summaries int64
	if err := db.Model(&recordRow{}).Count(&memories).Error; err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	if err := db.Model(&summaryRow{}).Count(&summaries).Error; err != nil {
		return nil, fmt.Errorf("count summaries: %w", err)
	}
	st.TotalMemories = int(memories)
	st.Summaries = int(summaries)

	err := db.Raw(`
		SELECT user_id, SUM(mem) AS memories, SUM(sess) AS summaries FROM (
			SELECT user_id, 1 AS mem, 0 AS sess FROM memory_records
			UNION ALL
			SELECT user_id, 0, 1 FROM session_summaries
		) u GROUP BY user_id ORDER BY memories DESC, user_id`).Scan(&st.Users).Error
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec model.MemoryRecord) (recordRow, error) {
	topics, err := encodeTopics(rec.Topics)
	if err != nil {
		return recordRow{}, err
	}
	return recordRow{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Text:            rec.Text,
		Topics:          topics,
		CreatedAt:       utcOrNow(rec.CreatedAt),
		UpdatedAt:       utcOrNow(rec.UpdatedAt),
		SourceSessionID: nullable(rec.SourceSessionID),
		AgentID:         nullable(rec.AgentID),
	}, nil
}

func fromRow(row recordRow) model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:        row.ID,
		UserID:    row.UserID,
		Text:      row.Text,
		Topics:    decodeTopics(row.Topics),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.SourceSessionID != nil {
		rec.SourceSessionID = *row.SourceSessionID
	}
	if row.AgentID != nil {
		rec.AgentID = *row.AgentID
	}
	return rec
}

func fromRows(rows []recordRow) []model.MemoryRecord {
	out := make([]model.MemoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func fromSummaryRow(row summaryRow) model.SessionSummary {
	return model.SessionSummary{
		SessionID:   row.SessionID,
		UserID:      row.UserID,
		SummaryText: row.SummaryText,
		TurnCount:   row.TurnCount,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}
