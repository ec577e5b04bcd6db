package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	dm "github.com/fleetctl/devicemgr"
)

// ListDevices returns the full device list with current status, per
// spec.md §4.1's last read query.
func (s *Store) ListDevices() ([]dm.Device, error) {
	const q = `
SELECT device_id, device_type, is_online, last_heartbeat, connected_at, disconnected_at, metadata
FROM devices
ORDER BY device_id
`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	defer rows.Close()

	var out []dm.Device
	for rows.Next() {
		var dev dm.Device
		var deviceID, deviceType string
		var lastHeartbeat, disconnectedAt sql.NullTime
		var metadata []byte
		if err := rows.Scan(&deviceID, &deviceType, &dev.IsOnline, &lastHeartbeat, &dev.ConnectedAt, &disconnectedAt, &metadata); err != nil {
			return nil, fmt.Errorf("store: list devices: scan: %w", err)
		}
		dev.DeviceID = dm.DeviceID(deviceID)
		dev.DeviceType = dm.DeviceType(deviceType)
		if lastHeartbeat.Valid {
			dev.LastHeartbeat = lastHeartbeat.Time
		}
		if disconnectedAt.Valid {
			t := disconnectedAt.Time
			dev.DisconnectedAt = &t
		}
		dev.Metadata, err = unmarshalJSON(metadata)
		if err != nil {
			return nil, fmt.Errorf("store: list devices: unmarshal metadata: %w", err)
		}
		out = append(out, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list devices: rows: %w", err)
	}
	return out, nil
}

// LatestStateSnapshots returns the latest-N snapshots for one device,
// newest first.
func (s *Store) LatestStateSnapshots(deviceID dm.DeviceID, limit int) ([]dm.DeviceStateSnapshot, error) {
	const q = `
SELECT id, device_id, device_type, state_data, timestamp
FROM device_state_snapshots
WHERE device_id = $1
ORDER BY timestamp DESC
LIMIT $2
`
	rows, err := s.db.Query(q, string(deviceID), limit)
	if err != nil {
		return nil, fmt.Errorf("store: latest state snapshots: %w", err)
	}
	defer rows.Close()

	var out []dm.DeviceStateSnapshot
	for rows.Next() {
		var snap dm.DeviceStateSnapshot
		var deviceIDCol, deviceType string
		var payload []byte
		if err := rows.Scan(&snap.ID, &deviceIDCol, &deviceType, &payload, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("store: latest state snapshots: scan: %w", err)
		}
		snap.DeviceID = dm.DeviceID(deviceIDCol)
		snap.DeviceType = dm.DeviceType(deviceType)
		snap.Payload, err = unmarshalJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("store: latest state snapshots: unmarshal: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: latest state snapshots: rows: %w", err)
	}
	return out, nil
}

// RecentCommands returns the latest-N command logs, optionally filtered by
// status and/or device type (empty string means "no filter").
func (s *Store) RecentCommands(status string, deviceType dm.DeviceType, limit int) ([]dm.CommandRecord, error) {
	q := `
SELECT command_id, device_type, command_name, payload, status, created_at,
       executed_at, completed_at, response_data, target_device_count, success_count
FROM command_logs
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR device_type = $2)
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := s.db.Query(q, status, string(deviceType), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent commands: %w", err)
	}
	defer rows.Close()

	var out []dm.CommandRecord
	for rows.Next() {
		var rec dm.CommandRecord
		var deviceTypeCol, statusCol string
		var payload []byte
		var executedAt, completedAt sql.NullTime
		var response []byte

		if err := rows.Scan(&rec.CommandID, &deviceTypeCol, &rec.CommandName, &payload, &statusCol,
			&rec.CreatedAt, &executedAt, &completedAt, &response, &rec.TargetDeviceCount, &rec.SuccessCount); err != nil {
			return nil, fmt.Errorf("store: recent commands: scan: %w", err)
		}
		rec.DeviceType = dm.DeviceType(deviceTypeCol)
		rec.Status = dm.CommandStatus(statusCol)
		if executedAt.Valid {
			t := executedAt.Time
			rec.ExecutedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			rec.CompletedAt = &t
		}
		rec.Payload, err = unmarshalJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("store: recent commands: unmarshal payload: %w", err)
		}
		if len(response) > 0 {
			rec.ResponsePayload, err = unmarshalJSON(response)
			if err != nil {
				return nil, fmt.Errorf("store: recent commands: unmarshal response: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent commands: rows: %w", err)
	}
	return out, nil
}

// RecentConnectionEvents returns the latest-N connection events for one
// device, newest first.
func (s *Store) RecentConnectionEvents(deviceID dm.DeviceID, limit int) ([]dm.ConnectionEvent, error) {
	const q = `
SELECT id, device_id, device_type, event, timestamp, details
FROM device_connection_logs
WHERE device_id = $1
ORDER BY timestamp DESC
LIMIT $2
`
	rows, err := s.db.Query(q, string(deviceID), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent connection events: %w", err)
	}
	defer rows.Close()

	var out []dm.ConnectionEvent
	for rows.Next() {
		var ev dm.ConnectionEvent
		var deviceIDCol, deviceType, kind string
		var details []byte
		if err := rows.Scan(&ev.ID, &deviceIDCol, &deviceType, &kind, &ev.Timestamp, &details); err != nil {
			return nil, fmt.Errorf("store: recent connection events: scan: %w", err)
		}
		ev.DeviceID = dm.DeviceID(deviceIDCol)
		ev.DeviceType = dm.DeviceType(deviceType)
		ev.Kind = dm.ConnectionEventKind(kind)
		if len(details) > 0 {
			ev.Details, err = unmarshalJSON(details)
			if err != nil {
				return nil, fmt.Errorf("store: recent connection events: unmarshal: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent connection events: rows: %w", err)
	}
	return out, nil
}

// RecentTranscripts returns the latest-N audio transcripts, newest first.
func (s *Store) RecentTranscripts(limit int) ([]dm.AudioTranscript, error) {
	const q = `
SELECT id, device_id, raw_text, normalized_text, prefix_ok, matched_command, confidence, manual, timestamp, details
FROM audio_transcripts
ORDER BY timestamp DESC
LIMIT $1
`
	rows, err := s.db.Query(q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent transcripts: %w", err)
	}
	defer rows.Close()

	var out []dm.AudioTranscript
	for rows.Next() {
		var t dm.AudioTranscript
		var deviceID string
		var matchedCommand sql.NullString
		var details []byte
		if err := rows.Scan(&t.ID, &deviceID, &t.RawText, &t.NormalizedText, &t.PrefixOK, &matchedCommand, &t.Confidence, &t.Manual, &t.Timestamp, &details); err != nil {
			return nil, fmt.Errorf("store: recent transcripts: scan: %w", err)
		}
		t.DeviceID = dm.DeviceID(deviceID)
		if matchedCommand.Valid {
			v := matchedCommand.String
			t.MatchedCommand = &v
		}
		if len(details) > 0 {
			t.Details, err = unmarshalJSON(details)
			if err != nil {
				return nil, fmt.Errorf("store: recent transcripts: unmarshal: %w", err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent transcripts: rows: %w", err)
	}
	return out, nil
}

func unmarshalJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
