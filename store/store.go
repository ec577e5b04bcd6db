// Package store is the Postgres-backed audit trail: devices, state
// snapshots, command lifecycle, connection events, and audio transcripts,
// per spec.md §4.1. It follows the teacher's `*sql.DB` wrapper shape and
// error-wrapping convention, adapted from the pack's own Postgres store
// (varun6897-gpu/collector/postgres_store.go) to this schema.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	dm "github.com/fleetctl/devicemgr"
)

// Store wraps a *sql.DB opened against the "pgx" driver (registered via
// the blank import of jackc/pgx/v5/stdlib in cmd/devicemgr).
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// UpsertDevice implements spec.md §4.1's idempotent upsert_device.
func (s *Store) UpsertDevice(ctx context.Context, dev dm.Device) error {
	metadata, err := marshalJSON(dev.Metadata)
	if err != nil {
		return fmt.Errorf("store: upsert device: marshal metadata: %w", err)
	}

	const stmt = `
INSERT INTO devices (device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (device_id) DO UPDATE SET
  device_type     = EXCLUDED.device_type,
  is_online       = EXCLUDED.is_online,
  last_heartbeat  = EXCLUDED.last_heartbeat,
  disconnected_at = EXCLUDED.disconnected_at,
  metadata        = EXCLUDED.metadata
`
	_, err = s.db.ExecContext(ctx, stmt,
		string(dev.DeviceID), string(dev.DeviceType), dev.IsOnline,
		nullTime(dev.LastHeartbeat), dev.ConnectedAt, nullTimePtr(dev.DisconnectedAt), metadata,
	)
	if err != nil {
		return fmt.Errorf("store: upsert device: %w", err)
	}
	return nil
}

// InsertStateSnapshot appends one telemetry snapshot.
func (s *Store) InsertStateSnapshot(snap dm.DeviceStateSnapshot) error {
	payload, err := marshalJSON(snap.Payload)
	if err != nil {
		return fmt.Errorf("store: insert state snapshot: marshal payload: %w", err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	const stmt = `
INSERT INTO device_state_snapshots (device_id, device_type, state_data, timestamp)
VALUES ($1,$2,$3,$4)
`
	if _, err := s.db.Exec(stmt, string(snap.DeviceID), string(snap.DeviceType), payload, snap.Timestamp); err != nil {
		return fmt.Errorf("store: insert state snapshot: %w", err)
	}
	return nil
}

// CreateCommand inserts a new command_logs row in the "created" state.
func (s *Store) CreateCommand(rec dm.CommandRecord) error {
	payload, err := marshalJSON(rec.Payload)
	if err != nil {
		return fmt.Errorf("store: create command: marshal payload: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	const stmt = `
INSERT INTO command_logs (command_id, device_type, command_name, payload, status, created_at, target_device_count)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err = s.db.Exec(stmt, rec.CommandID, string(rec.DeviceType), rec.CommandName, payload, string(rec.Status), rec.CreatedAt, rec.TargetDeviceCount)
	if err != nil {
		return fmt.Errorf("store: create command: %w", err)
	}
	return nil
}

// UpdateCommandStatus enforces invariant (b): transitions never regress.
// It runs inside a transaction so the current-status read and the update
// are atomic against concurrent acknowledgements for the same command.
func (s *Store) UpdateCommandStatus(commandID string, newStatus dm.CommandStatus, executedAt, completedAt *time.Time, response map[string]any, successCount, targetDeviceCount *int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: update command status: begin: %w", err)
	}
	defer tx.Rollback()

	var currentStatus string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM command_logs WHERE command_id = $1 FOR UPDATE`, commandID).Scan(&currentStatus); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("store: update command status: %w", dm.ErrCommandNotPending)
		}
		return fmt.Errorf("store: update command status: select: %w", err)
	}

	if !isValidTransition(currentStatus, string(newStatus)) {
		return fmt.Errorf("store: update command status: %w: %s -> %s", dm.ErrInvalidStatusTransition, currentStatus, newStatus)
	}

	respJSON, err := marshalJSON(response)
	if err != nil {
		return fmt.Errorf("store: update command status: marshal response: %w", err)
	}

	const stmt = `
UPDATE command_logs SET
  status              = $1,
  executed_at         = COALESCE($2, executed_at),
  completed_at        = COALESCE($3, completed_at),
  response_data       = COALESCE($4, response_data),
  success_count       = COALESCE($5, success_count),
  target_device_count = COALESCE($6, target_device_count)
WHERE command_id = $7
`
	_, err = tx.ExecContext(ctx, stmt, string(newStatus), nullTimePtr(executedAt), nullTimePtr(completedAt), nullableJSON(response, respJSON), successCount, targetDeviceCount, commandID)
	if err != nil {
		return fmt.Errorf("store: update command status: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: update command status: commit: %w", err)
	}
	return nil
}

// InsertConnectionEvent appends one connection event; it is an alias for
// RecordConnectionEvent.
func (s *Store) InsertConnectionEvent(ev dm.ConnectionEvent) error {
	return s.RecordConnectionEvent(ev)
}

// RecordConnectionEvent implements dm.EventSink.
func (s *Store) RecordConnectionEvent(ev dm.ConnectionEvent) error {
	details, err := marshalJSON(ev.Details)
	if err != nil {
		return fmt.Errorf("store: insert connection event: marshal details: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	const stmt = `
INSERT INTO device_connection_logs (device_id, device_type, event, timestamp, details)
VALUES ($1,$2,$3,$4,$5)
`
	_, err = s.db.Exec(stmt, string(ev.DeviceID), string(ev.DeviceType), string(ev.Kind), ev.Timestamp, details)
	if err != nil {
		return fmt.Errorf("store: insert connection event: %w", err)
	}
	return nil
}

// InsertTranscript appends one audio transcript.
func (s *Store) InsertTranscript(t dm.AudioTranscript) error {
	details, err := marshalJSON(t.Details)
	if err != nil {
		return fmt.Errorf("store: insert transcript: marshal details: %w", err)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	const stmt = `
INSERT INTO audio_transcripts (device_id, raw_text, normalized_text, prefix_ok, matched_command, confidence, manual, timestamp, details)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err = s.db.Exec(stmt, string(t.DeviceID), t.RawText, t.NormalizedText, t.PrefixOK, t.MatchedCommand, t.Confidence, t.Manual, t.Timestamp, details)
	if err != nil {
		return fmt.Errorf("store: insert transcript: %w", err)
	}
	return nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func nullableJSON(m map[string]any, encoded []byte) any {
	if m == nil {
		return nil
	}
	return encoded
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
