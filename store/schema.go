package store

// schema is applied once at startup. There is no migration framework in
// the dependency pack that fits this job (sqlmock only stands in for
// *sql.DB in tests; it exercises no migration runner), so a plain
// CREATE-TABLE-IF-NOT-EXISTS script runs instead. Table shapes mirror the
// original persistence layer's ORM models, translated to SQL with the same
// indexes.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
  device_id       TEXT PRIMARY KEY,
  device_type     TEXT NOT NULL,
  is_online       BOOLEAN NOT NULL DEFAULT FALSE,
  last_heartbeat  TIMESTAMPTZ,
  connected_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  disconnected_at TIMESTAMPTZ,
  metadata        JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_device_type_online ON devices (device_type, is_online);

CREATE TABLE IF NOT EXISTS device_state_snapshots (
  id          BIGSERIAL PRIMARY KEY,
  device_id   TEXT NOT NULL REFERENCES devices(device_id),
  device_type TEXT NOT NULL,
  state_data  JSONB NOT NULL,
  timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_device_timestamp ON device_state_snapshots (device_id, timestamp);

CREATE TABLE IF NOT EXISTS command_logs (
  command_id          TEXT PRIMARY KEY,
  device_type         TEXT NOT NULL,
  command_name        TEXT NOT NULL,
  payload             JSONB NOT NULL DEFAULT '{}',
  status              TEXT NOT NULL DEFAULT 'created',
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  executed_at         TIMESTAMPTZ,
  completed_at        TIMESTAMPTZ,
  response_data       JSONB,
  target_device_count INTEGER NOT NULL DEFAULT 0,
  success_count       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_status_created ON command_logs (status, created_at);
CREATE INDEX IF NOT EXISTS idx_device_type_created ON command_logs (device_type, created_at);

CREATE TABLE IF NOT EXISTS device_connection_logs (
  id          BIGSERIAL PRIMARY KEY,
  device_id   TEXT NOT NULL REFERENCES devices(device_id),
  device_type TEXT NOT NULL,
  event       TEXT NOT NULL,
  timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
  details     JSONB
);

CREATE INDEX IF NOT EXISTS idx_device_event_time ON device_connection_logs (device_id, event, timestamp);

CREATE TABLE IF NOT EXISTS audio_transcripts (
  id              BIGSERIAL PRIMARY KEY,
  device_id       TEXT NOT NULL,
  raw_text        TEXT NOT NULL DEFAULT '',
  normalized_text TEXT NOT NULL DEFAULT '',
  prefix_ok       BOOLEAN NOT NULL DEFAULT FALSE,
  matched_command TEXT,
  confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
  manual          BOOLEAN NOT NULL DEFAULT FALSE,
  timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
  details         JSONB
);

CREATE INDEX IF NOT EXISTS idx_transcript_device_time ON audio_transcripts (device_id, timestamp);
`

// statusOrder defines the strict partial order invariant (b) in spec.md
// §4.1 enforces: created < sent < {ack_success, ack_error, timeout}.
// no_targets is a terminal state reachable only from created.
var statusOrder = map[string]int{
	"created":     0,
	"sent":        1,
	"ack_success": 2,
	"ack_error":   2,
	"timeout":     2,
	"no_targets":  2,
}

func isValidTransition(from, to string) bool {
	fromRank, ok := statusOrder[from]
	if !ok {
		return false
	}
	toRank, ok := statusOrder[to]
	if !ok {
		return false
	}
	if from == "created" && to == "no_targets" {
		return true
	}
	if to == "no_targets" {
		return false
	}
	return toRank > fromRank
}
