// Package remote mirrors labeled samples, unlabeled snapshots and
// predictions to an off-device store. Local dataset writes and training
// never wait on it.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RecordType names a remote collection.
type RecordType string

const (
	StressData    RecordType = "stress_data"
	EnergyData    RecordType = "energy_data"
	QuadrantData  RecordType = "quadrant_data"
	UnlabeledData RecordType = "unlabeled_data"
	Predictions   RecordType = "predictions"
)

// ErrNoUser is returned when a record has no user id.
var ErrNoUser = errors.New("remote: record has no user id")

// Record is one mirrored entry. Payload is opaque JSON.
type Record struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      RecordType      `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Store pushes and pulls records per user and type.
type Store interface {
	Push(ctx context.Context, rec Record) error
	Pull(ctx context.Context, userID string, typ RecordType) ([]Record, error)
}
