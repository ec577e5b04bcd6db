package httpapi

import (
	"encoding/json"
	"net/http"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/command"
)

type commandResponse struct {
	CommandID         string `json:"command_id"`
	Status            string `json:"status"`
	TargetDeviceCount int    `json:"target_device_count"`
}

// CommandHandler implements POST /command?device_type=X&command_name=Y,
// body {payload}. Per spec.md §4.5's failure semantics, this always
// returns HTTP 200 unless the request itself is malformed.
func CommandHandler(router *command.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceType := dm.DeviceType(r.URL.Query().Get("device_type"))
		commandName := r.URL.Query().Get("command_name")
		if deviceType == "" || commandName == "" {
			http.Error(w, "device_type and command_name are required", http.StatusBadRequest)
			return
		}

		payload := map[string]any{}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "malformed JSON body", http.StatusBadRequest)
				return
			}
		}

		rec := router.Dispatch(deviceType, commandName, payload, 0)
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(commandResponse{
			CommandID:         rec.CommandID,
			Status:            string(rec.Status),
			TargetDeviceCount: rec.TargetDeviceCount,
		})
	}
}

// ServoPoseHandler implements the supplemented convenience route
// POST /servo/pose/{name}, a thin alias dispatching through the same
// command.Router.Dispatch the generic surface uses, grounded on the
// original's app/devices/routes.py send_pose helper.
func ServoPoseHandler(router *command.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" {
			http.Error(w, "pose name is required", http.StatusBadRequest)
			return
		}
		rec := router.Dispatch("servo", name, nil, 0)
		writeCommandJSON(w, rec)
	}
}

// WheelMoveHandler implements the supplemented convenience route
// POST /wheel/move/{direction}.
func WheelMoveHandler(router *command.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		direction := r.PathValue("direction")
		if direction == "" {
			http.Error(w, "direction is required", http.StatusBadRequest)
			return
		}
		rec := router.Dispatch("wheel", direction, nil, 0)
		writeCommandJSON(w, rec)
	}
}

func writeCommandJSON(w http.ResponseWriter, rec dm.CommandRecord) {
	writeCORS(w)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(commandResponse{
		CommandID:         rec.CommandID,
		Status:            string(rec.Status),
		TargetDeviceCount: rec.TargetDeviceCount,
	})
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
