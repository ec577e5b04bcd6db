package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/registry"
)

type devicesStore interface {
	LatestStateSnapshots(deviceID dm.DeviceID, limit int) ([]dm.DeviceStateSnapshot, error)
	RecentCommands(status string, deviceType dm.DeviceType, limit int) ([]dm.CommandRecord, error)
	RecentConnectionEvents(deviceID dm.DeviceID, limit int) ([]dm.ConnectionEvent, error)
}

type devicesResponse struct {
	Total   int         `json:"total"`
	Devices []dm.Device `json:"devices"`
}

// DevicesHandler implements GET /devices, reading the live registry (C2)
// rather than the audit store, since the dashboard wants the current
// online/offline state, not a historical row.
func DevicesHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devices := reg.List()
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(devicesResponse{Total: len(devices), Devices: devices})
	}
}

// StateHistoryHandler implements GET /state-history/{device_id}?limit=N.
func StateHistoryHandler(store devicesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := dm.DeviceID(r.PathValue("device_id"))
		if deviceID == "" {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}
		limit := parseLimit(r, 50)
		snapshots, err := store.LatestStateSnapshots(deviceID, limit)
		if err != nil {
			http.Error(w, "failed to load state history", http.StatusInternalServerError)
			return
		}
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshots)
	}
}

// CommandLogsHandler implements GET /command-logs?status=X&device_type=Y&limit=N.
func CommandLogsHandler(store devicesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		deviceType := dm.DeviceType(r.URL.Query().Get("device_type"))
		limit := parseLimit(r, 50)

		records, err := store.RecentCommands(status, deviceType, limit)
		if err != nil {
			http.Error(w, "failed to load command logs", http.StatusInternalServerError)
			return
		}
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}
}

// DeviceConnectionHistoryHandler implements GET /device-connection-history/{device_id}?limit=N.
func DeviceConnectionHistoryHandler(store devicesStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := dm.DeviceID(r.PathValue("device_id"))
		if deviceID == "" {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}
		limit := parseLimit(r, 50)
		events, err := store.RecentConnectionEvents(deviceID, limit)
		if err != nil {
			http.Error(w, "failed to load connection history", http.StatusInternalServerError)
			return
		}
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events)
	}
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
