package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetctl/devicemgr/registry"
)

type healthResponse struct {
	Status      string `json:"status"`
	OnlineCount int    `json:"online_device_count"`
}

// HealthHandler implements GET /health.
func HealthHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := 0
		for _, dev := range reg.List() {
			if dev.IsOnline {
				online++
			}
		}
		writeCORS(w)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", OnlineCount: online})
	}
}
