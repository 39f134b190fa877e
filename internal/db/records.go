package db

import (
	"context"
	"fmt"

	"github.com/banshee-data/stress.report/internal/remote"
	"github.com/banshee-data/stress.report/internal/timeutil"
)

// RecordStore keeps a local copy of mirrored records. It satisfies
// remote.Store so it can stand in for, or sit beside, the remote backend.
type RecordStore struct {
	db *DB
}

// Records returns the record store backed by db.
func (db *DB) Records() *RecordStore {
	return &RecordStore{db: db}
}

// Push inserts rec; pushing the same id twice keeps the first copy.
func (s *RecordStore) Push(ctx context.Context, rec remote.Record) error {
	if rec.UserID == "" {
		return remote.ErrNoUser
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (record_id, user_id, record_type, recorded_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING`,
		rec.ID, rec.UserID, string(rec.Type), timeutil.UnixSeconds(rec.Timestamp), string(rec.Payload))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

// Pull returns the user's records of typ, oldest first.
func (s *RecordStore) Pull(ctx context.Context, userID string, typ remote.RecordType) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, recorded_at, payload FROM records
		WHERE user_id = ? AND record_type = ?
		ORDER BY recorded_at ASC, created_at ASC`, userID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []remote.Record
	for rows.Next() {
		var (
			id         string
			recordedAt float64
			payload    string
		)
		if err := rows.Scan(&id, &recordedAt, &payload); err != nil {
			return nil, err
		}
		out = append(out, remote.Record{
			ID:        id,
			UserID:    userID,
			Type:      typ,
			Timestamp: timeutil.FromUnixSeconds(recordedAt),
			Payload:   []byte(payload),
		})
	}
	return out, rows.Err()
}

// Count returns the number of stored records of typ across all users.
func (s *RecordStore) Count(ctx context.Context, typ remote.RecordType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE record_type = ?`, string(typ)).Scan(&n)
	return n, err
}
