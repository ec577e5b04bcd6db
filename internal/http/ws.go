// Package httpapi implements C8's read-side endpoints and the WebSocket
// upgrade entrypoint, following the teacher's handler-constructor style in
// internal/http/devices_handler.go (a small dependency closed over in a
// returned http.HandlerFunc, plus a writeCORS helper) generalized to this
// server's route inventory from spec.md §6.
package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	dm "github.com/fleetctl/devicemgr"
	"github.com/fleetctl/devicemgr/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades GET /ws/{device_id} and hands the connection to
// the session manager. This server is the gateway devices connect *to*,
// the opposite role from the teacher's outbound-dialing BlizzardAdapter,
// so the upgrade happens here rather than in a client dialer.
func WebSocketHandler(sessions *session.Manager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := dm.DeviceID(r.PathValue("device_id"))
		if deviceID == "" {
			http.Error(w, "device_id is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("device_id", string(deviceID)).Msg("websocket upgrade failed")
			return
		}

		if err := sessions.Accept(deviceID, conn); err != nil {
			logger.Info().Err(err).Str("device_id", string(deviceID)).Msg("session rejected")
			_ = conn.Close()
		}
	}
}
