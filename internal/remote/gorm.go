package remote

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// recordRow is the postgres row behind a Record.
type recordRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:128;not null;index:idx_records_user_type,priority:1"`
	Type      string    `gorm:"size:32;not null;index:idx_records_user_type,priority:2"`
	Timestamp time.Time `gorm:"not null;index:idx_records_user_type,priority:3"`
	Payload   string    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (recordRow) TableName() string { return "stress_records" }

func rowFromRecord(rec Record) recordRow {
	return recordRow{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Type:      string(rec.Type),
		Timestamp: rec.Timestamp.UTC(),
		Payload:   string(rec.Payload),
	}
}

func (r recordRow) record() Record {
	return Record{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      RecordType(r.Type),
		Timestamp: r.Timestamp,
		Payload:   []byte(r.Payload),
	}
}

// GormStore keeps records in postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects to the postgres DSN and migrates the records table.
func OpenGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to remote store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return NewGormStore(db)
}

// NewGormStore wraps an open gorm handle and migrates the records table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate remote store: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Push inserts rec; an existing id is left untouched.
func (s *GormStore) Push(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return ErrNoUser
	}
	row := rowFromRecord(rec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// Pull returns the user's records of typ, oldest first.
func (s *GormStore) Pull(ctx context.Context, userID string, typ RecordType) ([]Record, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, string(typ)).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
